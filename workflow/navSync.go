package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/almapacdev/shipments_backend/models"
	"bitbucket.org/almapacdev/shipments_backend/utils"
)

// navStatusRule maps one NAV transaction status to the ledger codes it
// implies (allowed) and the codes it contradicts (forbidden).
type navStatusRule struct {
	allowed   []int
	forbidden []int
}

var navStatusRules = map[string]navStatusRule{
	"1": {allowed: []int{models.StatusWeighIn, models.StatusLoading},
		forbidden: []int{models.StatusExitGate, models.StatusDeparted, models.StatusReceiptIssued}},
	"2": {allowed: []int{models.StatusWeighIn, models.StatusLoading, models.StatusExitGate, models.StatusDeparted},
		forbidden: []int{models.StatusReceiptIssued}},
	"3": {allowed: []int{models.StatusWeighIn, models.StatusLoading, models.StatusExitGate, models.StatusDeparted, models.StatusReceiptIssued}},
	"0": {forbidden: []int{models.StatusWeighIn, models.StatusLoading, models.StatusExitGate, models.StatusDeparted, models.StatusReceiptIssued}},
}

// navLeveransMapping translates a NAV transaction status into the gate
// pre-transaction status that must accompany it.
var navLeveransMapping = map[string]int{
	"1": 4,
	"2": 4,
	"3": 5,
	"0": 2,
}

// HandleNavStatusChange reconciles the ledger with a NAV transaction
// status notification: forbidden codes are removed, missing allowed codes
// are inserted, the ledger is repaired and the gate system is updated.
func (o *StatusOrchestrator) HandleNavStatusChange(ctx context.Context, navTxId int, codeGen string, navStatus string) error {
	shipment, err := models.GetShipmentByCodeGen(ctx, codeGen)
	if err != nil {
		if utils.IsKind(err, utils.KindNotFound) {
			models.CreateSysLog(ctx, models.SysLogUnknownShipment, &codeGen,
				fmt.Sprintf("nav transaction %d references an unknown shipment", navTxId))
		}
		return err
	}

	rule, ok := navStatusRules[navStatus]
	if !ok {
		models.CreateSysLog(ctx, models.SysLogUnknownStatus, &codeGen,
			fmt.Sprintf("nav transaction %d carries unknown status %q", navTxId, navStatus))
		return utils.Errf(utils.KindInvalidType, "unknown nav transaction status %q", navStatus)
	}

	for _, code := range rule.forbidden {
		exists, err := models.StatusExists(ctx, shipment.ID, code)
		if err != nil {
			return err
		}
		if exists {
			if _, err := o.RemoveStatus(ctx, codeGen, code); err != nil {
				return err
			}
		}
	}

	var missing []int
	for _, code := range rule.allowed {
		exists, err := models.StatusExists(ctx, shipment.ID, code)
		if err != nil {
			return err
		}
		if !exists {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		observation := fmt.Sprintf("synced from nav transaction %d (status %s)", navTxId, navStatus)
		if err := o.UpdateStatuses(ctx, codeGen, missing, observation); err != nil {
			return err
		}
	} else if err := o.EnsureStatusOrder(ctx, codeGen); err != nil {
		return err
	}

	// shipment may have changed during the reconciliation
	shipment, err = models.GetShipmentByCodeGen(ctx, codeGen)
	if err != nil {
		return err
	}
	if ok := o.leverans.UpdateStatus(ctx, shipment, navLeveransMapping[navStatus]); !ok {
		return utils.Errf(utils.KindExternalSyncFailed, "gate status update failed for %s", codeGen)
	}
	return nil
}
