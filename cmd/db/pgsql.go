package db

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Moonlightintherain/q/internal/models"
	"github.com/Moonlightintherain/q/pkg/logger"
)

var DB *gorm.DB

func init() {
	var err error

	dbHost, ok1 := os.LookupEnv("POSTGRES_HOST")
	dbPort, ok2 := os.LookupEnv("POSTGRES_PORT")
	dbUser, ok3 := os.LookupEnv("POSTGRES_USER")
	dbPassword, ok4 := os.LookupEnv("POSTGRES_PASSWORD")
	dbName, ok5 := os.LookupEnv("POSTGRES_DB")
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		logger.Fatal("%v", errors.New("unable to get database connection parameters from environment"))
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		dbHost, dbPort, dbUser, dbPassword, dbName)

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		logger.Fatal("%v", err)
	}

	// Bound the pool so a burst of requests queues instead of exhausting
	// postgres connections.
	sqlDB, err := DB.DB()
	if err != nil {
		logger.Fatal("%v", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	err = DB.AutoMigrate(
		&models.User{},
		&models.Transaction{},
		&models.GiftCollection{},
		&models.Gift{},
		&models.CrashRoundLog{},
		&models.RouletteRoundLog{},
	)
	if err != nil {
		logger.Fatal("%v", err)
	}

	if err := models.EnsureReservedAccounts(DB); err != nil {
		logger.Fatal("%v", err)
	}
}
