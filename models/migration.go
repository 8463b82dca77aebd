package models

import (
	"log"

	"bitbucket.org/almapacdev/shipments_backend/config"
	"gorm.io/gorm/clause"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Shipment{}, &Status{}, &PredefinedStatus{},
		&Driver{}, &Vehicle{}, &Mill{},
		&ShipmentSeal{}, &ShipmentAttachment{},
		&QueueSlot{}, &QueueCapacity{},
		&ContingencyTransaction{}, &DataInconsistency{},
		&TransactionLog{}, &SysLog{}, &ShipmentLog{},
	)
	if err != nil {
		log.Fatal(err)
	}

	seedStatusCatalog()
	seedQueueCapacities()

	// Cached catalogs may predate the reseed.
	if err := config.RemoveRedisKey(statusCatalogRedisKey, queueCapsRedisKey); err != nil {
		log.Printf("failed to invalidate cached catalogs: %v", err)
	}
}

// seedStatusCatalog inserts missing catalog rows; existing rows are kept
// untouched so operators can adjust display names.
func seedStatusCatalog() {
	db := config.GetDB()
	statuses := DefaultPredefinedStatuses()
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&statuses).Error; err != nil {
		log.Fatal(err)
	}
}

func seedQueueCapacities() {
	db := config.GetDB()
	caps := []QueueCapacity{
		{TruckType: string(TruckTypeDump), Capacity: DefaultQueueCap(TruckTypeDump)},
		{TruckType: string(TruckTypeFlatbed), Capacity: DefaultQueueCap(TruckTypeFlatbed)},
		{TruckType: string(TruckTypeTanker), Capacity: DefaultQueueCap(TruckTypeTanker)},
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&caps).Error; err != nil {
		log.Fatal(err)
	}
}
