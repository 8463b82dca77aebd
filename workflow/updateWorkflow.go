package workflow

import (
	"context"

	"bitbucket.org/almapacdev/shipments_backend/config"
	"bitbucket.org/almapacdev/shipments_backend/models"
	"bitbucket.org/almapacdev/shipments_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpdateEngine applies partial shipment updates transactionally: row lock,
// field handlers, one optimistic checkpoint, audit trail.
type UpdateEngine struct {
	logger *logrus.Logger
	nav    NavPusher
}

func NewUpdateEngine(nav NavPusher) *UpdateEngine {
	return &UpdateEngine{
		logger: config.GetLogger(),
		nav:    nav,
	}
}

type DriverPatch struct {
	Name    *string `json:"name"`
	License *string `json:"license"`
}

type VehiclePatch struct {
	Plate        *string `json:"plate"`
	TrailerPlate *string `json:"trailer_plate"`
}

type SealPatch struct {
	SealCode    string  `json:"seal_code" binding:"required"`
	Description *string `json:"seal_description"`
}

// ShipmentPatch is a partial update. Nil fields are untouched.
type ShipmentPatch struct {
	Username          *string          `json:"username"`
	UnitMeasure       *string          `json:"unit_measure"`
	ProductQuantity   *decimal.Decimal `json:"product_quantity"`
	GrossWeight       *decimal.Decimal `json:"peso_bruto"`
	TareWeight        *decimal.Decimal `json:"peso_tara"`
	Transporter       *string          `json:"transporter"`
	RequiresSweeping  *string          `json:"requires_sweeping"`
	Buzzer            *int             `json:"buzzer"`
	Brix              *decimal.Decimal `json:"brix"`
	Humidity          *decimal.Decimal `json:"humidity"`
	LocationCode      *string          `json:"code_location"`
	MagneticCard      *int             `json:"magnetic_card"`
	MillCode          *string          `json:"mill_code"`
	Driver            *DriverPatch     `json:"driver"`
	Vehicle           *VehiclePatch    `json:"vehicle"`
	Seals             []SealPatch      `json:"seals"`
	ReportedPositions []string         `json:"reported_positions"`
}

// touchedFields lists the field names this patch modifies, for the
// allow-list check. Username and reported positions are metadata.
func (p *ShipmentPatch) touchedFields() []string {
	var fields []string
	add := func(name string, touched bool) {
		if touched {
			fields = append(fields, name)
		}
	}
	add("unit_measure", p.UnitMeasure != nil)
	add("product_quantity", p.ProductQuantity != nil)
	add("peso_bruto", p.GrossWeight != nil)
	add("peso_tara", p.TareWeight != nil)
	add("transporter", p.Transporter != nil)
	add("requires_sweeping", p.RequiresSweeping != nil)
	add("buzzer", p.Buzzer != nil)
	add("brix", p.Brix != nil)
	add("humidity", p.Humidity != nil)
	add("code_location", p.LocationCode != nil)
	add("magnetic_card", p.MagneticCard != nil)
	add("mill_code", p.MillCode != nil)
	add("driver", p.Driver != nil)
	add("vehicle", p.Vehicle != nil)
	add("seals", len(p.Seals) > 0)
	return fields
}

// UpdateShipment applies the patch under a row lock. allowedFields, when
// non-nil, restricts which fields the caller may touch. The denormalized
// current status is the optimistic checkpoint: if it moved between the
// locked read and the save, the update conflicts.
func (e *UpdateEngine) UpdateShipment(ctx context.Context, id int, patch *ShipmentPatch, allowedFields []string) (*models.Shipment, error) {
	sessionUsername, _ := utils.GetUsernameFromContext(ctx)
	username := resolveUsername(patch.Username, sessionUsername)

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var shipment models.Shipment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).First(&shipment).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return utils.Errf(utils.KindNotFound, "shipment %d not found", id)
			}
			return err
		}

		statuses, err := models.GetStatusesNewestFirst(tx, shipment.ID)
		if err != nil {
			return err
		}
		if len(statuses) == 0 {
			return utils.Errf(utils.KindInvalidState,
				"shipment %s has no status history", shipment.CodeGen)
		}

		if allowedFields != nil {
			allowed := make(map[string]bool, len(allowedFields))
			for _, field := range allowedFields {
				allowed[field] = true
			}
			for _, field := range patch.touchedFields() {
				if !allowed[field] {
					return utils.Errf(utils.KindForbidden, "field %s is not allowed for this caller", field)
				}
			}
		}

		// pre-image for the optimistic checkpoint, captured under the lock
		preImageStatus := shipment.CurrentStatus

		existingSeals, err := models.GetSealsInOrder(tx, shipment.ID)
		if err != nil {
			return err
		}
		if err := validateSealPatches(patch.Seals, len(existingSeals)); err != nil {
			return err
		}

		now := utils.Now()
		skipOptimisticCheck := false
		if statuses[0].PredefinedStatusId == models.StatusInconsistency {
			codes := make([]int, len(statuses))
			for i, status := range statuses {
				codes[i] = status.PredefinedStatusId
			}
			restoreCode, ok := previousNonInconsistencyStatus(codes)
			if !ok {
				return utils.Errf(utils.KindInvalidState,
					"shipment %s has no status to restore", shipment.CodeGen)
			}
			restored := models.Status{
				ShipmentId:         shipment.ID,
				PredefinedStatusId: restoreCode,
				CreatedAt:          now,
				UpdatedAt:          now,
			}
			if err := tx.Create(&restored).Error; err != nil {
				return err
			}
			if err := models.SetShipmentCurrentStatus(tx, shipment.ID, restoreCode, now); err != nil {
				return err
			}
			if err := models.TouchDataInconsistencies(tx, shipment.ID, now); err != nil {
				return err
			}
			shipment.CurrentStatus = &restoreCode
			shipment.DateTimeCurrentStatus = &now
			skipOptimisticCheck = true
		}

		if err := e.applyFieldHandlers(ctx, tx, &shipment, patch, existingSeals); err != nil {
			return err
		}

		if !skipOptimisticCheck {
			var currentStatus *int
			err := tx.Model(&models.Shipment{}).Where("id = ?", shipment.ID).
				Select("current_status").Scan(&currentStatus).Error
			if err != nil {
				return err
			}
			if !intPtrEqual(currentStatus, preImageStatus) {
				return utils.Errf(utils.KindConflict,
					"shipment %s changed status during the update", shipment.CodeGen)
			}
		}

		shipment.UpdatedAt = now
		if err := tx.Save(&shipment).Error; err != nil {
			return err
		}

		return models.WriteTransactionLog(tx, shipment.CodeGen, username, preImageStatus, patch)
	})
	if err != nil {
		config.LogError(e.logger, "workflow", "UpdateShipment", username, id, err)
		return nil, err
	}

	return utils.FetchSingleModel[models.Shipment](ctx, id, "Driver", "Vehicle", "Mill", "Seals")
}

// applyFieldHandlers mutates the locked shipment (and its driver, vehicle,
// mill and seals) according to the patch.
func (e *UpdateEngine) applyFieldHandlers(ctx context.Context, tx *gorm.DB, shipment *models.Shipment, patch *ShipmentPatch, existingSeals []*models.ShipmentSeal) error {

	if patch.UnitMeasure != nil || patch.ProductQuantity != nil {
		unit := shipment.UnitMeasure
		if patch.UnitMeasure != nil {
			unit = *patch.UnitMeasure
		}
		quantity := shipment.ProductQuantity
		if patch.ProductQuantity != nil {
			quantity = *patch.ProductQuantity
		}
		quantityKg, err := utils.ConvertMass(quantity, unit, "kg")
		if err != nil {
			return err
		}
		shipment.UnitMeasure = unit
		shipment.ProductQuantity = quantity
		shipment.ProductQuantityKg = quantityKg

		if shipment.NavRecordId != nil {
			if err := e.nav.UpdateClientWeight(ctx, shipment); err != nil {
				return utils.Wrapf(utils.KindExternalSyncFailed, err,
					"erp weight update failed for %s", shipment.CodeGen)
			}
		}
	}

	if patch.GrossWeight != nil {
		shipment.GrossWeight = *patch.GrossWeight
	}
	if patch.TareWeight != nil {
		shipment.TareWeight = *patch.TareWeight
	}
	if patch.Transporter != nil {
		shipment.Transporter = *patch.Transporter
	}
	if patch.RequiresSweeping != nil {
		if *patch.RequiresSweeping != "Y" && *patch.RequiresSweeping != "N" {
			return utils.Errf(utils.KindValidationFailed,
				"requires_sweeping must be Y or N, got %q", *patch.RequiresSweeping)
		}
		shipment.RequiresSweeping = *patch.RequiresSweeping
	}
	if patch.Buzzer != nil {
		shipment.Buzzer = patch.Buzzer
	}
	if patch.Brix != nil {
		shipment.Brix = patch.Brix
	}
	if patch.Humidity != nil {
		shipment.Humidity = patch.Humidity
	}
	if patch.LocationCode != nil {
		shipment.LocationCode = patch.LocationCode
	}
	if patch.MagneticCard != nil {
		shipment.MagneticCard = patch.MagneticCard
	}

	if patch.MillCode != nil {
		mill, err := models.FindMillByCode(tx, *patch.MillCode)
		if err != nil {
			return err
		}
		shipment.MillCode = &mill.Code
	}

	if patch.Driver != nil {
		if shipment.DriverId == nil {
			return utils.Errf(utils.KindInvalidState, "shipment %s has no driver assigned", shipment.CodeGen)
		}
		updates := map[string]interface{}{}
		if patch.Driver.License != nil {
			if !driverLicensePattern.MatchString(*patch.Driver.License) {
				return utils.Errf(utils.KindValidationFailed,
					"driver license must be digits only, got %q", *patch.Driver.License)
			}
			taken, err := models.DriverLicenseTaken(tx, *patch.Driver.License, *shipment.DriverId)
			if err != nil {
				return err
			}
			if taken {
				return utils.Errf(utils.KindConflict,
					"driver license %s belongs to another driver", *patch.Driver.License)
			}
			updates["license"] = *patch.Driver.License
		}
		if patch.Driver.Name != nil {
			updates["name"] = *patch.Driver.Name
		}
		if len(updates) > 0 {
			err := tx.Model(&models.Driver{}).Where("id = ?", *shipment.DriverId).
				Updates(updates).Error
			if err != nil {
				return err
			}
		}
	}

	if patch.Vehicle != nil {
		if shipment.VehicleId == nil {
			return utils.Errf(utils.KindInvalidState, "shipment %s has no vehicle assigned", shipment.CodeGen)
		}
		updates := map[string]interface{}{}
		if patch.Vehicle.Plate != nil {
			if !vehiclePlatePattern.MatchString(*patch.Vehicle.Plate) {
				return utils.Errf(utils.KindValidationFailed,
					"vehicle plate must match C<digits>, got %q", *patch.Vehicle.Plate)
			}
			updates["plate"] = *patch.Vehicle.Plate
		}
		if patch.Vehicle.TrailerPlate != nil {
			if !trailerPlatePattern.MatchString(*patch.Vehicle.TrailerPlate) {
				return utils.Errf(utils.KindValidationFailed,
					"trailer plate must match RE<digits>, got %q", *patch.Vehicle.TrailerPlate)
			}
			updates["trailer_plate"] = *patch.Vehicle.TrailerPlate
		}
		if len(updates) > 0 {
			err := tx.Model(&models.Vehicle{}).Where("id = ?", *shipment.VehicleId).
				Updates(updates).Error
			if err != nil {
				return err
			}
		}
	}

	if len(patch.Seals) > 0 {
		positions, err := resolveSealPositions(patch.ReportedPositions, len(patch.Seals), len(existingSeals))
		if err != nil {
			return err
		}
		for i, sealPatch := range patch.Seals {
			target := existingSeals[positions[i]]
			err := tx.Model(&models.ShipmentSeal{}).Where("id = ?", target.ID).
				Updates(map[string]interface{}{
					"seal_code":        sealPatch.SealCode,
					"seal_description": sealPatch.Description,
				}).Error
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// AssignMagneticCard sets the card on the shipment and propagates it to
// NAV when the shipment is already registered there.
func (e *UpdateEngine) AssignMagneticCard(ctx context.Context, codeGen string, card int) (*models.Shipment, error) {
	shipment, err := models.GetShipmentByCodeGen(ctx, codeGen, "Driver", "Vehicle", "Mill")
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&models.Shipment{}).Where("id = ?", shipment.ID).
		Update("magnetic_card", card).Error; err != nil {
		return nil, err
	}
	shipment.MagneticCard = &card

	if shipment.NavRecordId != nil {
		if err := e.nav.UpdateMagneticCard(ctx, shipment); err != nil {
			return nil, utils.Wrapf(utils.KindExternalSyncFailed, err,
				"erp magnetic card update failed for %s", codeGen)
		}
	}
	return shipment, nil
}
