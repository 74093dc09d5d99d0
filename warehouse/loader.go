package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"carsnbids-pipeline/models"
)

// Loader upserts canonical auction rows into the warehouse staging table.
// Dimension and fact refreshes run downstream of this table and are not
// this service's concern.
type Loader struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewLoader(db *gorm.DB) (*Loader, error) {
	const op = "NewLoader"
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if err := db.AutoMigrate(&models.CanonicalAuction{}); err != nil {
		return nil, fmt.Errorf("[%s] Fail to migrate auction_records, err=%w", op, err)
	}
	return &Loader{
		db:     db,
		logger: slog.Default().With(slog.String("caller", "Loader")),
	}, nil
}

// LoadPartition upserts one partition's records by auction_id, so
// re-loading a partition after a merge replaces rows instead of
// duplicating them.
func (l *Loader) LoadPartition(ctx context.Context, records []models.CanonicalAuction) (int, error) {
	const op = "LoadPartition"
	if len(records) == 0 {
		return 0, nil
	}

	result := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "auction_id"}},
		UpdateAll: true,
	}).CreateInBatches(records, 100)
	if result.Error != nil {
		return 0, fmt.Errorf("[%s] Fail to upsert auction records, err=%w", op, result.Error)
	}

	l.logger.Info("Partition loaded", slog.Int("records", len(records)))
	return len(records), nil
}
