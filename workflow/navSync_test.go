package workflow

import (
	"testing"

	"bitbucket.org/almapacdev/shipments_backend/extsync"
	"bitbucket.org/almapacdev/shipments_backend/models"
)

// The reconciliation tables are a contract with the ERP middleware. These
// tests pin them so a refactor cannot silently change what a transaction
// status implies.

func TestNavStatusRules_Contract(t *testing.T) {
	if len(navStatusRules) != 4 {
		t.Fatalf("expected rules for statuses 1, 2, 3 and 0, got %d", len(navStatusRules))
	}

	contains := func(codes []int, code int) bool {
		for _, c := range codes {
			if c == code {
				return true
			}
		}
		return false
	}

	// An open transaction (1) implies the truck is inside but the exit
	// side of the flow must not have been recorded yet.
	open := navStatusRules["1"]
	if !contains(open.allowed, models.StatusWeighIn) || !contains(open.allowed, models.StatusLoading) {
		t.Fatal("open transaction must imply weigh-in and loading")
	}
	if !contains(open.forbidden, models.StatusReceiptIssued) {
		t.Fatal("open transaction must contradict an issued receipt")
	}

	// A closed transaction (3) allows the full exit flow and forbids none.
	closed := navStatusRules["3"]
	if !contains(closed.allowed, models.StatusReceiptIssued) || len(closed.forbidden) != 0 {
		t.Fatal("closed transaction allows the receipt and forbids nothing")
	}

	// A voided transaction (0) allows nothing inside the terminal.
	voided := navStatusRules["0"]
	if len(voided.allowed) != 0 || !contains(voided.forbidden, models.StatusWeighIn) {
		t.Fatal("voided transaction must strip the in-terminal codes")
	}

	// No code appears in both lists of the same rule.
	for status, rule := range navStatusRules {
		for _, code := range rule.allowed {
			if contains(rule.forbidden, code) {
				t.Fatalf("status %s lists code %d as both allowed and forbidden", status, code)
			}
		}
	}
}

func TestNavLeveransMapping_Contract(t *testing.T) {
	want := map[string]int{
		"1": extsync.LeveransStatusAtGate,
		"2": extsync.LeveransStatusAtGate,
		"3": extsync.LeveransStatusInside,
		"0": extsync.LeveransStatusCancelled,
	}
	for status, gate := range want {
		if navLeveransMapping[status] != gate {
			t.Fatalf("nav status %s must map to gate status %d, got %d", status, gate, navLeveransMapping[status])
		}
	}
	if len(navLeveransMapping) != len(want) {
		t.Fatalf("unexpected extra gate mappings: %v", navLeveransMapping)
	}
}
