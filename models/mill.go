package models

import (
	"time"

	"bitbucket.org/almapacdev/shipments_backend/utils"
	"gorm.io/gorm"
)

// Mill is the sugar mill (ingenio) the shipment belongs to.
type Mill struct {
	Code      string    `gorm:"primary_key;size:20" json:"code"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func FindMillByCode(tx *gorm.DB, code string) (*Mill, error) {
	var mill Mill
	if err := tx.Where("code = ?", code).First(&mill).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.Errf(utils.KindNotFound, "mill %s not found", code)
		}
		return nil, err
	}
	return &mill, nil
}
