package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/DevN0mad/SprintPilot/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type HistoryStorage struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewHistoryStorage(dbPath string, logger *slog.Logger) (*HistoryStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Error("failed to create db dir", "dir", dir, "error", err)
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		logger.Error("failed to open sqlite db", "path", dbPath, "error", err)
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.AutoMigrate(&models.RequestRecord{}); err != nil {
		logger.Error("failed to auto-migrate request record model", "error", err)
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	logger.Info("sqlite history storage initialized", "path", dbPath)

	return &HistoryStorage{db: db, logger: logger}, nil
}

func (s *HistoryStorage) SaveRecord(ctx context.Context, rec models.RequestRecord) error {
	db := s.db.WithContext(ctx)

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	if err := db.Create(&rec).Error; err != nil {
		s.logger.Error("failed to save request record", "route", rec.Route, "error", err)
		return fmt.Errorf("save record: %w", err)
	}

	s.logger.Debug("request record saved", "route", rec.Route, "status", rec.Status)
	return nil
}

func (s *HistoryStorage) Recent(ctx context.Context, limit int) ([]models.RequestRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	db := s.db.WithContext(ctx)

	var records []models.RequestRecord
	if err := db.Order("created_at DESC").Limit(limit).Find(&records).Error; err != nil {
		s.logger.Error("failed to select request records", "error", err)
		return nil, fmt.Errorf("select records: %w", err)
	}

	if len(records) == 0 {
		s.logger.Info("no request records found")
	}

	return records, nil
}

func (s *HistoryStorage) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	db := s.db.WithContext(ctx)

	cutoff := time.Now().Add(-age)
	res := db.Where("created_at < ?", cutoff).Delete(&models.RequestRecord{})
	if res.Error != nil {
		s.logger.Error("failed to purge request records", "error", res.Error)
		return 0, res.Error
	}

	s.logger.Debug("request records purged",
		"cutoff", cutoff.Format(time.RFC3339),
		"rows_affected", res.RowsAffected)

	return res.RowsAffected, nil
}
