package models

import (
	"context"
	"time"

	"bitbucket.org/almapacdev/shipments_backend/config"
	"bitbucket.org/almapacdev/shipments_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Shipment is the aggregate root. Column names follow the schema shared
// with NAV and the gate system, so several are Spanish legacy names.
type Shipment struct {
	ID                       int              `gorm:"primary_key" json:"id"`
	CodeGen                  string           `gorm:"column:code_gen;size:50;uniqueIndex;not null" json:"code_gen"`
	Product                  string           `gorm:"size:100;not null" json:"product"`
	OperationType            string           `gorm:"column:operation_type;size:10;not null" json:"operation_type"`
	LoadType                 string           `gorm:"column:load_type;size:20;not null" json:"load_type"`
	Transporter              string           `gorm:"size:100" json:"transporter"`
	ActivityNumber           string           `gorm:"column:activity_number;size:5" json:"activity_number"`
	ProductQuantity          decimal.Decimal  `gorm:"column:product_quantity;type:decimal(10,2);not null" json:"product_quantity"`
	ProductQuantityKg        decimal.Decimal  `gorm:"column:product_quantity_kg;type:decimal(10,2);not null" json:"product_quantity_kg"`
	UnitMeasure              string           `gorm:"column:unit_measure;size:20;not null" json:"unit_measure"`
	RequiresSweeping         string           `gorm:"column:requires_sweeping;type:char(1);default:N" json:"requires_sweeping"`
	MagneticCard             *int             `gorm:"column:magnetic_card" json:"magnetic_card"`
	CurrentStatus            *int             `gorm:"column:current_status" json:"current_status"`
	DateTimeCurrentStatus    *time.Time       `gorm:"column:date_time_current_status" json:"date_time_current_status"`
	DateTimePrecheck         *time.Time       `gorm:"column:date_time_precheckeo" json:"date_time_precheck"`
	NavRecordId              *int             `gorm:"column:id_nav_record" json:"id_nav_record"`
	LeveransPreTransactionId *int             `gorm:"column:id_pre_transaccion_leverans" json:"id_pre_transaccion_leverans"`
	ExcaliburDocCode         *string          `gorm:"column:id_excalibur;size:100" json:"id_excalibur"`
	GrossWeight              decimal.Decimal  `gorm:"column:peso_bruto;type:decimal(18,3);not null;default:0" json:"peso_bruto"`
	TareWeight               decimal.Decimal  `gorm:"column:peso_tara;type:decimal(18,3);not null;default:0" json:"peso_tara"`
	Buzzer                   *int             `gorm:"column:buzzer" json:"buzzer"`
	Brix                     *decimal.Decimal `gorm:"column:brix;type:decimal(5,2)" json:"brix"`
	Humidity                 *decimal.Decimal `gorm:"column:humidity;type:decimal(5,2)" json:"humidity"`
	LocationCode             *string          `gorm:"column:code_location;size:50" json:"code_location"`
	DriverId                 *int             `gorm:"column:driver_id" json:"driver_id"`
	VehicleId                *int             `gorm:"column:vehicle_id" json:"vehicle_id"`
	MillCode                 *string          `gorm:"column:mill_code;size:20" json:"mill_code"`
	CreatedAt                time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time        `gorm:"autoUpdateTime" json:"updated_at"`

	Driver   *Driver         `gorm:"foreignKey:DriverId" json:"driver,omitempty"`
	Vehicle  *Vehicle        `gorm:"foreignKey:VehicleId" json:"vehicle,omitempty"`
	Mill     *Mill           `gorm:"foreignKey:MillCode;references:Code" json:"mill,omitempty"`
	Seals    []*ShipmentSeal `gorm:"foreignKey:ShipmentId" json:"seals,omitempty"`
	Statuses []*Status       `gorm:"foreignKey:ShipmentId" json:"statuses,omitempty"`
}

// GetShipmentByCodeGen fetches a shipment by its generated code.
func GetShipmentByCodeGen(ctx context.Context, codeGen string, associations ...string) (*Shipment, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var shipment Shipment
	if err := dbCtx.Where("code_gen = ?", codeGen).First(&shipment).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.Errf(utils.KindNotFound, "shipment %s not found", codeGen)
		}
		return nil, err
	}
	return &shipment, nil
}

// FindShipmentByCodeGen is the tx-scoped variant for workflow steps.
func FindShipmentByCodeGen(tx *gorm.DB, codeGen string, associations ...string) (*Shipment, error) {
	for _, field := range associations {
		tx = tx.Preload(field)
	}
	var shipment Shipment
	if err := tx.Where("code_gen = ?", codeGen).First(&shipment).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.Errf(utils.KindNotFound, "shipment %s not found", codeGen)
		}
		return nil, err
	}
	return &shipment, nil
}

func SetShipmentNavRecordId(ctx context.Context, codeGen string, navRecordId int) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&Shipment{}).Where("code_gen = ?", codeGen).
		Update("id_nav_record", navRecordId).Error
}

func SetShipmentLeveransPreTransactionId(ctx context.Context, codeGen string, preTransactionId int) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&Shipment{}).Where("code_gen = ?", codeGen).
		Update("id_pre_transaccion_leverans", preTransactionId).Error
}

func SetShipmentExcaliburDocCode(tx *gorm.DB, codeGen string, docCode string) error {
	return tx.Model(&Shipment{}).Where("code_gen = ?", codeGen).
		Update("id_excalibur", docCode).Error
}

func SetShipmentPrecheckTime(tx *gorm.DB, codeGen string, at time.Time) error {
	return tx.Model(&Shipment{}).Where("code_gen = ?", codeGen).
		Update("date_time_precheckeo", at).Error
}

// SetShipmentCurrentStatus resyncs the denormalized current status columns.
func SetShipmentCurrentStatus(tx *gorm.DB, shipmentId int, statusId int, at time.Time) error {
	return tx.Model(&Shipment{}).Where("id = ?", shipmentId).Updates(map[string]interface{}{
		"current_status":           statusId,
		"date_time_current_status": at,
	}).Error
}
