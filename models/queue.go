package models

import (
	"time"

	"gorm.io/gorm"
)

// QueueSlot is one occupied position in the per-truck-type waiting queue.
type QueueSlot struct {
	ID              int             `gorm:"primary_key" json:"id"`
	TruckType       string          `gorm:"column:truck_type;size:1;not null;index" json:"truck_type"`
	Status          QueueSlotStatus `gorm:"size:20;not null" json:"status"`
	EntryTime       time.Time       `gorm:"column:entry_time;not null" json:"entry_time"`
	ShipmentCodeGen *string         `gorm:"column:shipment_code_gen;size:50" json:"shipment_code_gen"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// CountWaitingSlots counts occupied (not yet sent) slots for a truck type.
func CountWaitingSlots(tx *gorm.DB, t TruckType) (int64, error) {
	var count int64
	err := tx.Model(&QueueSlot{}).
		Where("truck_type = ? AND status = ?", string(t), QueueSlotWaiting).
		Count(&count).Error
	return count, err
}

// OldestWaitingSlot returns the longest-waiting slot of a truck type,
// nil when the queue is empty.
func OldestWaitingSlot(tx *gorm.DB, t TruckType) (*QueueSlot, error) {
	var slot QueueSlot
	err := tx.Where("truck_type = ? AND status = ?", string(t), QueueSlotWaiting).
		Order("entry_time ASC").First(&slot).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &slot, nil
}

// OldestWaitingSlots returns up to limit longest-waiting slots of a type.
func OldestWaitingSlots(tx *gorm.DB, t TruckType, limit int) ([]*QueueSlot, error) {
	var slots []*QueueSlot
	err := tx.Where("truck_type = ? AND status = ?", string(t), QueueSlotWaiting).
		Order("entry_time ASC").Limit(limit).Find(&slots).Error
	if err != nil {
		return nil, err
	}
	return slots, nil
}
