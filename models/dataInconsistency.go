package models

import (
	"time"

	"gorm.io/gorm"
)

// DataInconsistency flags a shipment whose data contradicts itself.
// Stamping updated_at during the restore flow marks it handled.
type DataInconsistency struct {
	ID                int       `gorm:"primary_key" json:"id"`
	ShipmentId        int       `gorm:"column:shipment_id;index;not null" json:"shipment_id"`
	InconsistencyType string    `gorm:"column:inconsistency_type;size:100;not null" json:"inconsistency_type"`
	Comments          *string   `gorm:"size:500" json:"comments"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ReplaceDataInconsistency opens a fresh inconsistency report for a
// shipment, superseding any previous one.
func ReplaceDataInconsistency(tx *gorm.DB, shipmentId int, inconsistencyType string, comments *string) (*DataInconsistency, error) {
	if err := tx.Where("shipment_id = ?", shipmentId).Delete(&DataInconsistency{}).Error; err != nil {
		return nil, err
	}
	record := DataInconsistency{
		ShipmentId:        shipmentId,
		InconsistencyType: inconsistencyType,
		Comments:          comments,
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// GetDataInconsistencies returns a shipment's reports, newest first.
func GetDataInconsistencies(tx *gorm.DB, shipmentId int) ([]*DataInconsistency, error) {
	var records []*DataInconsistency
	err := tx.Where("shipment_id = ?", shipmentId).
		Order("id DESC").Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// TouchDataInconsistencies stamps the shipment's inconsistency reports as
// handled during the restore flow.
func TouchDataInconsistencies(tx *gorm.DB, shipmentId int, at time.Time) error {
	return tx.Model(&DataInconsistency{}).Where("shipment_id = ?", shipmentId).
		Update("updated_at", at).Error
}
