package db

import (
	"newsmarket/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Market{},
		&models.NewsItem{},
		&models.JudgedPair{},
		&models.TradeRecord{},
		&models.EvaluationOutcome{},
		&models.FeedState{},
	)
}
