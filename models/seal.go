package models

import (
	"time"

	"gorm.io/gorm"
)

// ShipmentSeal is one physical seal placed on the unit. Position is implied
// by creation order.
type ShipmentSeal struct {
	ID          int       `gorm:"primary_key" json:"id"`
	ShipmentId  int       `gorm:"column:shipment_id;index;not null" json:"shipment_id"`
	SealCode    string    `gorm:"column:seal_code;size:50;not null" json:"seal_code"`
	Description *string   `gorm:"column:seal_description;size:255" json:"seal_description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetSealsInOrder returns the shipment's seals in placement order.
func GetSealsInOrder(tx *gorm.DB, shipmentId int) ([]*ShipmentSeal, error) {
	var seals []*ShipmentSeal
	err := tx.Where("shipment_id = ?", shipmentId).
		Order("created_at ASC, id ASC").Find(&seals).Error
	if err != nil {
		return nil, err
	}
	return seals, nil
}
