package models

import (
	"time"

	"gorm.io/gorm"
)

type Driver struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	License   string    `gorm:"size:20;uniqueIndex;not null" json:"license"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DriverLicenseTaken reports whether another driver already holds license.
func DriverLicenseTaken(tx *gorm.DB, license string, excludeDriverId int) (bool, error) {
	var count int64
	err := tx.Model(&Driver{}).
		Where("license = ? AND id <> ?", license, excludeDriverId).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
