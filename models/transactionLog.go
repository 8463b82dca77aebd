package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/almapacdev/shipments_backend/config"
	"bitbucket.org/almapacdev/shipments_backend/utils"
	"gorm.io/gorm"
)

// TransactionLog is the audit trail for shipment mutations.
type TransactionLog struct {
	ID             int       `gorm:"primary_key" json:"id"`
	CodeGen        string    `gorm:"column:code_gen;size:50;index;not null" json:"code_gen"`
	Username       string    `gorm:"size:100;not null" json:"username"`
	StatusAtChange *int      `gorm:"column:status_at_change" json:"status_at_change"`
	Changes        string    `gorm:"type:json" json:"changes"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// WriteTransactionLog appends one audit entry inside the caller's tx.
// Changes are marshaled here so callers pass the patched fields directly.
func WriteTransactionLog(tx *gorm.DB, codeGen string, username string, statusAtChange *int, changes any) error {
	changesInByte, err := json.Marshal(changes)
	if err != nil {
		return err
	}
	entry := TransactionLog{
		CodeGen:        codeGen,
		Username:       username,
		StatusAtChange: statusAtChange,
		Changes:        string(changesInByte),
	}
	return tx.Create(&entry).Error
}

// SysLog records system events (unknown NAV notifications, out-of-band
// status jumps, failed gate updates). Best effort, never blocks a flow.
type SysLog struct {
	ID        int        `gorm:"primary_key" json:"id"`
	LogType   SysLogType `gorm:"column:log_type;size:50;not null" json:"log_type"`
	CodeGen   *string    `gorm:"column:code_gen;size:50" json:"code_gen"`
	Detail    string     `gorm:"size:500" json:"detail"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// CreateSysLog writes a system event. Failures are logged and swallowed.
func CreateSysLog(ctx context.Context, logType SysLogType, codeGen *string, detail string) {
	db := config.GetDB()
	if db == nil {
		return
	}
	record := SysLog{
		LogType: logType,
		CodeGen: codeGen,
		Detail:  utils.TruncateErrorDetail(detail),
	}
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		config.LogError(config.GetLogger(), "models", "CreateSysLog", string(logType), record, err)
	}
}

// ShipmentLog holds operator observations tied to status changes.
type ShipmentLog struct {
	ID          int       `gorm:"primary_key" json:"id"`
	ShipmentId  int       `gorm:"column:shipment_id;index;not null" json:"shipment_id"`
	StatusId    *int      `gorm:"column:status_id" json:"status_id"`
	Observation string    `gorm:"size:500;not null" json:"observation"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// CreateShipmentLog appends an observation inside the caller's tx.
func CreateShipmentLog(tx *gorm.DB, shipmentId int, statusId *int, observation string) error {
	record := ShipmentLog{
		ShipmentId:  shipmentId,
		StatusId:    statusId,
		Observation: utils.TruncateErrorDetail(observation),
	}
	return tx.Create(&record).Error
}
