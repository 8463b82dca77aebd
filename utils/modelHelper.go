package utils

import (
	"context"
	"errors"

	"bitbucket.org/almapacdev/shipments_backend/config"
	"gorm.io/gorm"
)

/* DB fetching */

// FetchSingleModel fetches a model by primary key.
func FetchSingleModel[T any](ctx context.Context, id int, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Errf(KindNotFound, "record %d not found", id)
		}
		return nil, err
	}
	return &result, nil
}
