package models

import (
	"context"
	"time"

	"bitbucket.org/almapacdev/shipments_backend/config"
)

// ShipmentAttachment records that a document of a given type exists for a
// shipment. File storage itself lives elsewhere; this table is only
// consulted for existence.
type ShipmentAttachment struct {
	ID         int       `gorm:"primary_key" json:"id"`
	ShipmentId int       `gorm:"column:shipment_id;index;not null" json:"shipment_id"`
	Type       string    `gorm:"type:char(1);not null" json:"type"`
	FileName   string    `gorm:"column:file_name;size:255" json:"file_name"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasAttachment reports whether the shipment carries an attachment of the
// given type.
func HasAttachment(ctx context.Context, shipmentId int, t AttachmentType) (bool, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&ShipmentAttachment{}).
		Where("shipment_id = ? AND type = ?", shipmentId, string(t)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
