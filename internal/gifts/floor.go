package gifts

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Moonlightintherain/q/internal/models"
	"github.com/Moonlightintherain/q/pkg/logger"
	"github.com/Moonlightintherain/q/pkg/redis"
)

var ErrUnknownCollection = errors.New("unknown gift collection")

const floorCacheTTL = 5 * time.Minute

// Service resolves gift collections to floor prices and display names.
// Lookups go through Redis when it is wired in; the database stays the source
// of truth.
type Service struct {
	db    *gorm.DB
	cache *redis.RedisService
}

func NewService(db *gorm.DB, cache *redis.RedisService) *Service {
	return &Service{db: db, cache: cache}
}

func cacheKey(collectionID string) string {
	return "gift_collection:" + collectionID
}

func (s *Service) Collection(collectionID string) (*models.GiftCollection, error) {
	if s.cache != nil {
		if raw, err := s.cache.GetKey(context.Background(), cacheKey(collectionID)); err == nil {
			var col models.GiftCollection
			if err := json.Unmarshal([]byte(raw), &col); err == nil {
				return &col, nil
			}
		}
	}

	var col models.GiftCollection
	if err := s.db.First(&col, "id = ?", collectionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownCollection
		}
		return nil, logger.WrapError(err, "")
	}

	if s.cache != nil {
		if raw, err := json.Marshal(&col); err == nil {
			if err := s.cache.SetKey(context.Background(), cacheKey(collectionID), raw, floorCacheTTL); err != nil {
				logger.Warn("Failed to cache gift collection %s: %v", collectionID, err)
			}
		}
	}

	return &col, nil
}

func (s *Service) FloorPrice(collectionID string) (float64, error) {
	col, err := s.Collection(collectionID)
	if err != nil {
		return 0, err
	}
	return col.Floor, nil
}

func (s *Service) Collections() ([]models.GiftCollection, error) {
	var cols []models.GiftCollection
	if err := s.db.Order("id").Find(&cols).Error; err != nil {
		return nil, logger.WrapError(err, "")
	}
	return cols, nil
}

// ValueGifts prices each gift at its collection floor and returns the total.
func (s *Service) ValueGifts(giftList []models.Gift) (float64, error) {
	var total float64
	for _, g := range giftList {
		floor, err := s.FloorPrice(g.CollectionID)
		if err != nil {
			return 0, err
		}
		total += floor
	}
	return total, nil
}
