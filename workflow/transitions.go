package workflow

import (
	"context"
	"sort"

	"bitbucket.org/almapacdev/shipments_backend/models"
	"bitbucket.org/almapacdev/shipments_backend/utils"
)

// outOfBandStatuses may be recorded even when the ledger has not reached
// the preceding code. Physical reality at the terminal outruns the data
// entry for these, so operators record them late.
var outOfBandStatuses = map[int]bool{
	models.StatusAuthorized:    true,
	models.StatusEntryGate:     true,
	models.StatusWeighIn:       true,
	models.StatusLoading:       true,
	models.StatusWeighOut:      true,
	models.StatusSealing:       true,
	models.StatusExitGate:      true,
	models.StatusDeparted:      true,
	models.StatusReceiptIssued: true,
	models.StatusInconsistency: true,
	models.StatusCancelled:     true,
	models.StatusCooling:       true,
}

// validateNextStatus enforces the ledger ordering rules. lastCode is nil
// when the ledger is empty.
func validateNextStatus(lastCode *int, nextCode int) error {
	if lastCode == nil {
		if nextCode != models.StatusInTransit {
			return utils.Errf(utils.KindInvalidTransition,
				"first status must be %d, got %d", models.StatusInTransit, nextCode)
		}
		return nil
	}
	if nextCode == *lastCode {
		return utils.Errf(utils.KindDuplicateStatus, "status %d is already the current status", nextCode)
	}
	if nextCode == *lastCode+1 {
		return nil
	}
	if outOfBandStatuses[nextCode] {
		return nil
	}
	return utils.Errf(utils.KindInvalidTransition,
		"cannot move from status %d to %d", *lastCode, nextCode)
}

// isOutOfBandJump reports whether recording nextCode after lastCode skips
// the strict sequence. Only call after validateNextStatus passed.
func isOutOfBandJump(lastCode *int, nextCode int) bool {
	return lastCode != nil && nextCode != *lastCode+1
}

// transitionEffect is one side effect attached to recording a status code.
// Effects run in order before the ledger write; any failure aborts the
// whole recording.
type transitionEffect struct {
	name string
	run  func(ctx context.Context, o *StatusOrchestrator, shipment *models.Shipment) error
}

// transitionEffects binds status codes to their side effects. This table
// is the single place a new status hook gets registered.
var transitionEffects = map[int][]transitionEffect{
	models.StatusPrechecked: {
		{name: "stampPrecheckTime", run: stampPrecheckTime},
	},
	models.StatusAuthorized: {
		{name: "checkAuthorizationPreconditions", run: checkAuthorizationPreconditions},
		{name: "pushNavAndLeverans", run: pushNavAndLeverans},
	},
	models.StatusSummoned: {
		{name: "gateSetSummoned", run: gateSetSummoned},
	},
	models.StatusEntryGate: {
		{name: "gateSetAtGate", run: gateSetAtGate},
	},
	models.StatusReceiptIssued: {
		{name: "issueReceiptAsync", run: issueReceiptAsync},
	},
}

// chronologicalOrder returns the ledger sorted by creation time (stable,
// so same-timestamp entries keep insertion order) and whether the input
// was already in that order.
func chronologicalOrder(statuses []*models.Status) ([]*models.Status, bool) {
	ordered := make([]*models.Status, len(statuses))
	copy(ordered, statuses)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})
	for i := range statuses {
		if statuses[i].ID != ordered[i].ID {
			return ordered, false
		}
	}
	return ordered, true
}
