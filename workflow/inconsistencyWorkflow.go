package workflow

import (
	"context"

	"bitbucket.org/almapacdev/shipments_backend/config"
	"bitbucket.org/almapacdev/shipments_backend/models"
	"bitbucket.org/almapacdev/shipments_backend/utils"
	"gorm.io/gorm"
)

// ReportInconsistency flags a shipment whose data contradicts itself:
// replaces its inconsistency report, moves the ledger to the
// inconsistency status and writes the audit trail in one transaction.
// The restore half runs through the update engine once the data is fixed.
func (o *StatusOrchestrator) ReportInconsistency(ctx context.Context, codeGen string, inconsistencyType string, comments *string) (*models.DataInconsistency, error) {
	if inconsistencyType == "" {
		return nil, utils.Errf(utils.KindValidationFailed, "inconsistency type cannot be empty")
	}
	shipment, err := models.GetShipmentByCodeGen(ctx, codeGen)
	if err != nil {
		return nil, err
	}

	sessionUsername, _ := utils.GetUsernameFromContext(ctx)
	username := resolveUsername(nil, sessionUsername)

	db := config.GetDB()
	var record *models.DataInconsistency
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		last, err := models.GetLastStatus(tx, shipment.ID)
		if err != nil {
			return err
		}
		if last == nil {
			return utils.Errf(utils.KindInvalidState,
				"shipment %s has no status history", codeGen)
		}

		record, err = models.ReplaceDataInconsistency(tx, shipment.ID, inconsistencyType, comments)
		if err != nil {
			return err
		}

		// Re-reporting while already flagged only refreshes the record.
		if last.PredefinedStatusId != models.StatusInconsistency {
			now := utils.Now()
			entry := models.Status{
				ShipmentId:         shipment.ID,
				PredefinedStatusId: models.StatusInconsistency,
				CreatedAt:          now,
				UpdatedAt:          now,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
			if err := models.SetShipmentCurrentStatus(tx, shipment.ID, models.StatusInconsistency, now); err != nil {
				return err
			}
			if comments != nil && *comments != "" {
				statusId := models.StatusInconsistency
				if err := models.CreateShipmentLog(tx, shipment.ID, &statusId, *comments); err != nil {
					return err
				}
			}
		}

		return models.WriteTransactionLog(tx, shipment.CodeGen, username, &last.PredefinedStatusId, record)
	})
	if err != nil {
		config.LogError(o.logger, "workflow", "ReportInconsistency", codeGen, inconsistencyType, err)
		return nil, err
	}
	return record, nil
}
