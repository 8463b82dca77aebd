package models

import (
	"context"
	"time"

	"bitbucket.org/almapacdev/shipments_backend/config"
	"gorm.io/gorm"
)

// Status is one entry in a shipment's status ledger. Rows are append-only
// except for the chronological repair, which reinserts preserving timestamps.
type Status struct {
	ID                 int       `gorm:"primary_key" json:"id"`
	ShipmentId         int       `gorm:"column:shipment_id;index;not null" json:"shipment_id"`
	PredefinedStatusId int       `gorm:"column:predefined_status_id;not null" json:"predefined_status_id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// GetLastStatus returns the most recent ledger entry, nil when the ledger
// is empty.
func GetLastStatus(tx *gorm.DB, shipmentId int) (*Status, error) {
	var status Status
	err := tx.Where("shipment_id = ?", shipmentId).
		Order("id DESC").First(&status).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &status, nil
}

// GetStatusesByShipment returns the ledger in storage (insertion) order.
func GetStatusesByShipment(tx *gorm.DB, shipmentId int) ([]*Status, error) {
	var statuses []*Status
	err := tx.Where("shipment_id = ?", shipmentId).
		Order("id ASC").Find(&statuses).Error
	if err != nil {
		return nil, err
	}
	return statuses, nil
}

// GetStatusesNewestFirst returns the ledger newest entry first.
func GetStatusesNewestFirst(tx *gorm.DB, shipmentId int) ([]*Status, error) {
	var statuses []*Status
	err := tx.Where("shipment_id = ?", shipmentId).
		Order("id DESC").Find(&statuses).Error
	if err != nil {
		return nil, err
	}
	return statuses, nil
}

// StatusExists reports whether the ledger holds an entry with the given code.
func StatusExists(ctx context.Context, shipmentId int, predefinedStatusId int) (bool, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&Status{}).
		Where("shipment_id = ? AND predefined_status_id = ?", shipmentId, predefinedStatusId).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RemoveMostRecentStatus deletes the newest ledger entry carrying the given
// code. Returns false when no such entry exists.
func RemoveMostRecentStatus(tx *gorm.DB, shipmentId int, predefinedStatusId int) (bool, error) {
	var status Status
	err := tx.Where("shipment_id = ? AND predefined_status_id = ?", shipmentId, predefinedStatusId).
		Order("id DESC").First(&status).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, err
	}
	if err := tx.Delete(&status).Error; err != nil {
		return false, err
	}
	return true, nil
}
