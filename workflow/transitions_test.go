package workflow

import (
	"testing"
	"time"

	"bitbucket.org/almapacdev/shipments_backend/models"
	"bitbucket.org/almapacdev/shipments_backend/utils"
)

// NOTE: These tests are intentionally DB-free. They validate the ledger
// ordering rules in isolation; full DB integration tests require MySQL.

func intPtr(v int) *int { return &v }

func TestValidateNextStatus_EmptyLedger_AcceptsOnlyInTransit(t *testing.T) {
	if err := validateNextStatus(nil, models.StatusInTransit); err != nil {
		t.Fatalf("expected first status %d to be accepted, got %v", models.StatusInTransit, err)
	}
	for _, code := range []int{models.StatusPrechecked, models.StatusAuthorized, models.StatusReceiptIssued} {
		err := validateNextStatus(nil, code)
		if utils.KindOf(err) != utils.KindInvalidTransition {
			t.Fatalf("expected invalid transition for first status %d, got %v", code, err)
		}
	}
}

func TestValidateNextStatus_SequentialAdvance(t *testing.T) {
	for last := models.StatusInTransit; last < models.StatusCooling; last++ {
		if err := validateNextStatus(intPtr(last), last+1); err != nil {
			t.Fatalf("expected %d -> %d to be accepted, got %v", last, last+1, err)
		}
	}
}

func TestValidateNextStatus_Duplicate(t *testing.T) {
	err := validateNextStatus(intPtr(models.StatusWeighIn), models.StatusWeighIn)
	if utils.KindOf(err) != utils.KindDuplicateStatus {
		t.Fatalf("expected duplicate status error, got %v", err)
	}
}

func TestValidateNextStatus_OutOfBandJumps(t *testing.T) {
	// Operators record physical events late, so jumps into these codes
	// are accepted even when the sequence has not caught up.
	allowed := []int{
		models.StatusAuthorized, models.StatusEntryGate, models.StatusWeighIn,
		models.StatusLoading, models.StatusWeighOut, models.StatusSealing,
		models.StatusExitGate, models.StatusDeparted, models.StatusReceiptIssued,
		models.StatusInconsistency, models.StatusCancelled, models.StatusCooling,
	}
	for _, code := range allowed {
		if code == models.StatusPrechecked+1 {
			continue
		}
		if err := validateNextStatus(intPtr(models.StatusPrechecked), code); err != nil {
			t.Fatalf("expected out-of-band jump 2 -> %d to be accepted, got %v", code, err)
		}
	}

	// Summoned is not in the allow-list: it must arrive in sequence.
	err := validateNextStatus(intPtr(models.StatusPrechecked), models.StatusSummoned)
	if utils.KindOf(err) != utils.KindInvalidTransition {
		t.Fatalf("expected 2 -> %d to be rejected, got %v", models.StatusSummoned, err)
	}
	// Going backwards to a sequential-only code is rejected too.
	err = validateNextStatus(intPtr(models.StatusWeighIn), models.StatusInTransit)
	if utils.KindOf(err) != utils.KindInvalidTransition {
		t.Fatalf("expected 6 -> 1 to be rejected, got %v", err)
	}
}

func TestIsOutOfBandJump(t *testing.T) {
	if isOutOfBandJump(nil, models.StatusInTransit) {
		t.Fatal("first status is never out of band")
	}
	if isOutOfBandJump(intPtr(models.StatusInTransit), models.StatusPrechecked) {
		t.Fatal("sequential advance is not out of band")
	}
	if !isOutOfBandJump(intPtr(models.StatusPrechecked), models.StatusEntryGate) {
		t.Fatal("2 -> 5 skips the sequence and should be out of band")
	}
}

func TestChronologicalOrder(t *testing.T) {
	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	mk := func(id int, offset time.Duration) *models.Status {
		return &models.Status{ID: id, PredefinedStatusId: id, CreatedAt: base.Add(offset)}
	}

	ordered, ok := chronologicalOrder([]*models.Status{
		mk(1, 0), mk(2, time.Minute), mk(3, 2*time.Minute),
	})
	if !ok {
		t.Fatal("already-ordered ledger reported as misordered")
	}
	if len(ordered) != 3 || ordered[0].ID != 1 || ordered[2].ID != 3 {
		t.Fatalf("unexpected order: %v", ordered)
	}

	ordered, ok = chronologicalOrder([]*models.Status{
		mk(1, 0), mk(3, 2*time.Minute), mk(2, time.Minute),
	})
	if ok {
		t.Fatal("misordered ledger reported as ordered")
	}
	if ordered[1].ID != 2 || ordered[2].ID != 3 {
		t.Fatalf("sort did not restore chronological order: got %d, %d, %d",
			ordered[0].ID, ordered[1].ID, ordered[2].ID)
	}

	// Same timestamp: stable sort keeps insertion order.
	ordered, ok = chronologicalOrder([]*models.Status{mk(10, 0), mk(11, 0)})
	if !ok || ordered[0].ID != 10 {
		t.Fatal("equal timestamps must keep insertion order")
	}
}
