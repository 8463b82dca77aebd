package workflow

import (
	"context"
	"fmt"
	"sync"

	"bitbucket.org/almapacdev/shipments_backend/config"
	"bitbucket.org/almapacdev/shipments_backend/extsync"
	"bitbucket.org/almapacdev/shipments_backend/models"
	"bitbucket.org/almapacdev/shipments_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NavPusher is the ERP side of a shipment's life: registration, card and
// weight updates. All calls are synchronous-critical.
type NavPusher interface {
	Push(ctx context.Context, shipment *models.Shipment) (int, error)
	UpdateMagneticCard(ctx context.Context, shipment *models.Shipment) error
	UpdateClientWeight(ctx context.Context, shipment *models.Shipment) error
}

// LeveransGate is the gate system. UpdateStatus reports ok=false on any
// failure; the failure detail is already logged by the client.
type LeveransGate interface {
	Push(ctx context.Context, shipment *models.Shipment) (int, error)
	UpdateStatus(ctx context.Context, shipment *models.Shipment, newStatus int) bool
}

// ReceiptIssuer issues the final receipt and returns its document code.
type ReceiptIssuer interface {
	Issue(ctx context.Context, codeGen string) (string, error)
}

// StatusOrchestrator owns the shipment status ledger: every recording,
// removal and repair goes through it.
type StatusOrchestrator struct {
	logger      *logrus.Logger
	nav         NavPusher
	leverans    LeveransGate
	receipts    ReceiptIssuer
	contingency *ContingencyQueue

	// hasAttachment is swappable for tests.
	hasAttachment func(ctx context.Context, shipmentId int, t models.AttachmentType) (bool, error)
}

func NewStatusOrchestrator(nav NavPusher, leverans LeveransGate, receipts ReceiptIssuer, contingency *ContingencyQueue) *StatusOrchestrator {
	return &StatusOrchestrator{
		logger:        config.GetLogger(),
		nav:           nav,
		leverans:      leverans,
		receipts:      receipts,
		contingency:   contingency,
		hasAttachment: models.HasAttachment,
	}
}

// AddStatus records statusCode on the shipment's ledger: validates the
// transition, runs the code's side effects, then writes the ledger entry
// and resyncs the denormalized current status in one transaction.
func (o *StatusOrchestrator) AddStatus(ctx context.Context, codeGen string, statusCode int, observation string) (*models.Status, error) {
	shipment, err := models.GetShipmentByCodeGen(ctx, codeGen, "Driver", "Vehicle", "Mill")
	if err != nil {
		return nil, err
	}
	if _, err := models.GetPredefinedStatus(ctx, statusCode); err != nil {
		return nil, err
	}

	db := config.GetDB()
	last, err := models.GetLastStatus(db.WithContext(ctx), shipment.ID)
	if err != nil {
		return nil, err
	}
	var lastCode *int
	if last != nil {
		lastCode = &last.PredefinedStatusId
	}
	if err := validateNextStatus(lastCode, statusCode); err != nil {
		return nil, err
	}
	if isOutOfBandJump(lastCode, statusCode) {
		models.CreateSysLog(ctx, models.SysLogOutOfBandStatus, &shipment.CodeGen,
			fmt.Sprintf("status %d recorded after %d", statusCode, *lastCode))
		config.LogWarn(o.logger, "workflow", "AddStatus", codeGen, statusCode, "status recorded out of band")
	}

	for _, effect := range transitionEffects[statusCode] {
		if err := effect.run(ctx, o, shipment); err != nil {
			config.LogError(o.logger, "workflow", "AddStatus", codeGen+":"+effect.name, statusCode, err)
			return nil, err
		}
	}

	now := utils.Now()
	created := models.Status{
		ShipmentId:         shipment.ID,
		PredefinedStatusId: statusCode,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&created).Error; err != nil {
			return err
		}
		if err := models.SetShipmentCurrentStatus(tx, shipment.ID, statusCode, now); err != nil {
			return err
		}
		if observation != "" {
			statusId := statusCode
			if err := models.CreateShipmentLog(tx, shipment.ID, &statusId, observation); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateStatuses reconciles a set of codes onto the ledger: any existing
// entry with the same code is replaced by a fresh one, then the ledger is
// repaired chronologically.
func (o *StatusOrchestrator) UpdateStatuses(ctx context.Context, codeGen string, statusCodes []int, observation string) error {
	shipment, err := models.GetShipmentByCodeGen(ctx, codeGen)
	if err != nil {
		return err
	}
	for _, code := range statusCodes {
		exists, err := models.StatusExists(ctx, shipment.ID, code)
		if err != nil {
			return err
		}
		if exists {
			if _, err := o.RemoveStatus(ctx, codeGen, code); err != nil {
				return err
			}
		}
		if _, err := o.AddStatus(ctx, codeGen, code, observation); err != nil {
			return err
		}
	}
	return o.EnsureStatusOrder(ctx, codeGen)
}

// EnsureStatusOrder repairs the ledger so storage order matches creation
// time: entries are deleted and reinserted preserving their timestamps,
// and the denormalized current status is resynced from the newest entry.
// Idempotent.
func (o *StatusOrchestrator) EnsureStatusOrder(ctx context.Context, codeGen string) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		shipment, err := models.FindShipmentByCodeGen(tx, codeGen)
		if err != nil {
			return err
		}
		statuses, err := models.GetStatusesByShipment(tx, shipment.ID)
		if err != nil {
			return err
		}
		if len(statuses) == 0 {
			return nil
		}

		ordered, alreadyOrdered := chronologicalOrder(statuses)
		if !alreadyOrdered {
			if err := tx.Where("shipment_id = ?", shipment.ID).Delete(&models.Status{}).Error; err != nil {
				return err
			}
			for _, status := range ordered {
				fresh := models.Status{
					ShipmentId:         shipment.ID,
					PredefinedStatusId: status.PredefinedStatusId,
					CreatedAt:          status.CreatedAt,
					UpdatedAt:          status.UpdatedAt,
				}
				if err := tx.Create(&fresh).Error; err != nil {
					return err
				}
			}
		}

		newest := ordered[len(ordered)-1]
		return models.SetShipmentCurrentStatus(tx, shipment.ID, newest.PredefinedStatusId, newest.CreatedAt)
	})
}

// RemoveStatus deletes the most recent ledger entry with the given code
// and resyncs the denormalized current status. Returns false when the
// ledger has no such entry.
func (o *StatusOrchestrator) RemoveStatus(ctx context.Context, codeGen string, statusCode int) (bool, error) {
	shipment, err := models.GetShipmentByCodeGen(ctx, codeGen)
	if err != nil {
		return false, err
	}
	db := config.GetDB()
	removed := false
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		removed, err = models.RemoveMostRecentStatus(tx, shipment.ID, statusCode)
		if err != nil || !removed {
			return err
		}
		last, err := models.GetLastStatus(tx, shipment.ID)
		if err != nil {
			return err
		}
		if last == nil {
			return tx.Model(&models.Shipment{}).Where("id = ?", shipment.ID).Updates(map[string]interface{}{
				"current_status":           nil,
				"date_time_current_status": nil,
			}).Error
		}
		return models.SetShipmentCurrentStatus(tx, shipment.ID, last.PredefinedStatusId, last.CreatedAt)
	})
	return removed, err
}

// GetCurrentStatus returns the newest ledger entry for a shipment.
func (o *StatusOrchestrator) GetCurrentStatus(ctx context.Context, codeGen string) (*models.Status, error) {
	shipment, err := models.GetShipmentByCodeGen(ctx, codeGen)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	return models.GetLastStatus(db.WithContext(ctx), shipment.ID)
}

// GetStatuses returns the full ledger in storage order.
func (o *StatusOrchestrator) GetStatuses(ctx context.Context, codeGen string) ([]*models.Status, error) {
	shipment, err := models.GetShipmentByCodeGen(ctx, codeGen)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	return models.GetStatusesByShipment(db.WithContext(ctx), shipment.ID)
}

/* transition side effects */

func stampPrecheckTime(ctx context.Context, o *StatusOrchestrator, shipment *models.Shipment) error {
	db := config.GetDB()
	return models.SetShipmentPrecheckTime(db.WithContext(ctx), shipment.CodeGen, utils.Now())
}

func checkAuthorizationPreconditions(ctx context.Context, o *StatusOrchestrator, shipment *models.Shipment) error {
	if shipment.MagneticCard == nil {
		return utils.Errf(utils.KindPreconditionFailed,
			"shipment %s has no magnetic card assigned", shipment.CodeGen)
	}
	has, err := o.hasAttachment(ctx, shipment.ID, models.AttachmentTypePrecheckDriver)
	if err != nil {
		return err
	}
	if !has {
		return utils.Errf(utils.KindPreconditionFailed,
			"shipment %s is missing the pre-check driver document", shipment.CodeGen)
	}
	return nil
}

// pushNavAndLeverans registers the shipment in both external systems
// concurrently. Either failure aborts the authorization; ids are only
// persisted when both calls succeed.
func pushNavAndLeverans(ctx context.Context, o *StatusOrchestrator, shipment *models.Shipment) error {
	var wg sync.WaitGroup
	var navId, leveransId int
	var navErr, leveransErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		navId, navErr = o.nav.Push(ctx, shipment)
	}()
	go func() {
		defer wg.Done()
		leveransId, leveransErr = o.leverans.Push(ctx, shipment)
	}()
	wg.Wait()

	if navErr != nil {
		return utils.Wrapf(utils.KindExternalSyncFailed, navErr,
			"erp registration failed for %s", shipment.CodeGen)
	}
	if leveransErr != nil {
		return utils.Wrapf(utils.KindExternalSyncFailed, leveransErr,
			"gate registration failed for %s", shipment.CodeGen)
	}

	if err := models.SetShipmentNavRecordId(ctx, shipment.CodeGen, navId); err != nil {
		return err
	}
	if err := models.SetShipmentLeveransPreTransactionId(ctx, shipment.CodeGen, leveransId); err != nil {
		return err
	}
	shipment.NavRecordId = &navId
	shipment.LeveransPreTransactionId = &leveransId
	return nil
}

func gateSetSummoned(ctx context.Context, o *StatusOrchestrator, shipment *models.Shipment) error {
	if ok := o.leverans.UpdateStatus(ctx, shipment, extsync.LeveransStatusSummoned); !ok {
		return utils.Errf(utils.KindExternalSyncFailed, "gate status update failed for %s", shipment.CodeGen)
	}
	return nil
}

func gateSetAtGate(ctx context.Context, o *StatusOrchestrator, shipment *models.Shipment) error {
	if ok := o.leverans.UpdateStatus(ctx, shipment, extsync.LeveransStatusAtGate); !ok {
		return utils.Errf(utils.KindExternalSyncFailed, "gate status update failed for %s", shipment.CodeGen)
	}
	return nil
}

// issueReceiptAsync fires the receipt push without blocking the status
// recording. Failures land in the contingency queue.
func issueReceiptAsync(ctx context.Context, o *StatusOrchestrator, shipment *models.Shipment) error {
	codeGen := shipment.CodeGen
	go o.sendReceipt(context.Background(), codeGen)
	return nil
}

func (o *StatusOrchestrator) sendReceipt(ctx context.Context, codeGen string) {
	docCode, err := o.receipts.Issue(ctx, codeGen)
	if err != nil {
		config.LogError(o.logger, "workflow", "sendReceipt", codeGen, nil, err)
		if cerr := o.contingency.RegisterFailure(ctx, codeGen, models.StatusReceiptIssued, err.Error()); cerr != nil {
			config.LogError(o.logger, "workflow", "sendReceipt", codeGen+":contingency", nil, cerr)
		}
		return
	}
	db := config.GetDB()
	if err := models.SetShipmentExcaliburDocCode(db.WithContext(ctx), codeGen, docCode); err != nil {
		config.LogError(o.logger, "workflow", "sendReceipt", codeGen, docCode, err)
	}
}
