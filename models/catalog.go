package models

import (
	"context"
	"time"

	"bitbucket.org/almapacdev/shipments_backend/config"
	"bitbucket.org/almapacdev/shipments_backend/utils"
)

// PredefinedStatus is the read-only status catalog. Rows are seeded at
// migration and never mutated at runtime.
type PredefinedStatus struct {
	ID          int       `gorm:"primary_key;autoIncrement:false" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Description string    `gorm:"size:255" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func DefaultPredefinedStatuses() []PredefinedStatus {
	return []PredefinedStatus{
		{ID: StatusInTransit, Name: "In Transit", Description: "Truck en route to the terminal"},
		{ID: StatusPrechecked, Name: "Pre-checked", Description: "Driver and paperwork pre-checked"},
		{ID: StatusAuthorized, Name: "Transaction Authorized", Description: "Magnetic card assigned, pushed to ERP and gate system"},
		{ID: StatusSummoned, Name: "Summoned", Description: "Called from the waiting queue"},
		{ID: StatusEntryGate, Name: "Entry Gate", Description: "Passed the entry gate"},
		{ID: StatusWeighIn, Name: "First Weighing", Description: "Tare or gross weight captured at entry scale"},
		{ID: StatusLoading, Name: "Loading / Unloading", Description: "At the loading or discharge bay"},
		{ID: StatusWeighOut, Name: "Second Weighing", Description: "Weight captured at exit scale"},
		{ID: StatusSealing, Name: "Sealing", Description: "Seals placed on the unit"},
		{ID: StatusExitGate, Name: "Exit Gate", Description: "Passed the exit gate"},
		{ID: StatusDeparted, Name: "Departed", Description: "Left the terminal"},
		{ID: StatusReceiptIssued, Name: "Receipt Issued", Description: "Final receipt issued to the receipt system"},
		{ID: StatusInconsistency, Name: "Data Inconsistency", Description: "Shipment flagged for contradictory data"},
		{ID: StatusCancelled, Name: "Cancelled", Description: "Shipment cancelled"},
		{ID: StatusCooling, Name: "Cooling", Description: "Tanker in cooling stand-down"},
	}
}

const statusCatalogRedisKey = "statusCatalog"

// GetStatusCatalog returns the id => status map, redis or db, cache result.
func GetStatusCatalog(ctx context.Context) (map[int]PredefinedStatus, error) {
	catalog := make(map[int]PredefinedStatus)
	exists, err := config.GetRedisObject(statusCatalogRedisKey, &catalog)
	if err != nil {
		return nil, err
	}
	if !exists || len(catalog) == 0 {
		db := config.GetDB()
		var rows []PredefinedStatus
		if err := db.WithContext(ctx).Find(&rows).Error; err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			rows = DefaultPredefinedStatuses()
		}
		for _, row := range rows {
			catalog[row.ID] = row
		}
		if err := config.SetRedisObject(statusCatalogRedisKey, &catalog, time.Hour); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

// GetPredefinedStatus resolves one catalog entry.
func GetPredefinedStatus(ctx context.Context, id int) (*PredefinedStatus, error) {
	catalog, err := GetStatusCatalog(ctx)
	if err != nil {
		return nil, err
	}
	status, ok := catalog[id]
	if !ok {
		return nil, utils.Errf(utils.KindNotFound, "status %d does not exist", id)
	}
	return &status, nil
}

// QueueCapacity is the per-truck-type slot cap catalog.
type QueueCapacity struct {
	TruckType string    `gorm:"primary_key;size:1" json:"truck_type"`
	Capacity  int       `gorm:"not null" json:"capacity"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DefaultQueueCap: tankers queue five deep, everything else four.
func DefaultQueueCap(t TruckType) int {
	if t == TruckTypeTanker {
		return 5
	}
	return 4
}

const queueCapsRedisKey = "queueCaps"

// GetQueueCap returns the slot cap for a truck type, redis or db,
// falling back to the defaults when neither has an override.
func GetQueueCap(ctx context.Context, t TruckType) int {
	caps := make(map[string]int)
	exists, err := config.GetRedisObject(queueCapsRedisKey, &caps)
	if err != nil || !exists || len(caps) == 0 {
		caps = make(map[string]int)
		if db := config.GetDB(); db != nil {
			var rows []QueueCapacity
			if err := db.WithContext(ctx).Find(&rows).Error; err == nil {
				for _, row := range rows {
					caps[row.TruckType] = row.Capacity
				}
				_ = config.SetRedisObject(queueCapsRedisKey, &caps, time.Hour)
			}
		}
	}
	if cap, ok := caps[string(t)]; ok && cap > 0 {
		return cap
	}
	return DefaultQueueCap(t)
}
