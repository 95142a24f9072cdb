package models

// GiftCollection carries the floor price used to value item stakes.
type GiftCollection struct {
	ID    string  `gorm:"primaryKey" json:"id"`
	Name  string  `gorm:"not null" json:"name"`
	Floor float64 `gorm:"not null" json:"floor"`
}

// Gift is a single collectible owned by a user. Ownership moves through the
// ledger only: into escrow when staked, to the winner at settlement.
type Gift struct {
	ID           string `gorm:"primaryKey" json:"id"`
	CollectionID string `gorm:"index;not null" json:"collection_id"`
	OwnerID      int64  `gorm:"index;not null" json:"owner_id"`
}
