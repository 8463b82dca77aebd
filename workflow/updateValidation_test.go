package workflow

import (
	"testing"

	"bitbucket.org/almapacdev/shipments_backend/models"
	"bitbucket.org/almapacdev/shipments_backend/utils"
)

func strPtr(s string) *string { return &s }

func TestResolveUsername(t *testing.T) {
	if got := resolveUsername(strPtr("jlopez"), "session-user"); got != "jlopez" {
		t.Fatalf("explicit override must win, got %q", got)
	}
	if got := resolveUsername(strPtr(""), "session-user"); got != "session-user" {
		t.Fatalf("empty override falls back to session, got %q", got)
	}
	if got := resolveUsername(nil, "session-user"); got != "session-user" {
		t.Fatalf("nil override falls back to session, got %q", got)
	}
	if got := resolveUsername(nil, ""); got != "UNKNOWN" {
		t.Fatalf("no identity at all must record UNKNOWN, got %q", got)
	}
}

func TestValidateSealPatches(t *testing.T) {
	if err := validateSealPatches(nil, 0); err != nil {
		t.Fatalf("no patches is always valid, got %v", err)
	}
	patches := []SealPatch{{SealCode: "A1"}, {SealCode: "A2"}}
	if err := validateSealPatches(patches, 2); err != nil {
		t.Fatalf("expected two patches against two placed seals to pass, got %v", err)
	}

	err := validateSealPatches(patches, 1)
	if utils.KindOf(err) != utils.KindValidationFailed {
		t.Fatalf("reporting more seals than placed must fail, got %v", err)
	}
	err = validateSealPatches([]SealPatch{{SealCode: ""}}, 3)
	if utils.KindOf(err) != utils.KindValidationFailed {
		t.Fatalf("empty seal code must fail, got %v", err)
	}
	err = validateSealPatches([]SealPatch{{SealCode: "A1"}, {SealCode: "A1"}}, 3)
	if utils.KindOf(err) != utils.KindValidationFailed {
		t.Fatalf("duplicate seal code must fail, got %v", err)
	}
}

func TestParseReportedPosition(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"marchamo1", 1, true},
		{"marchamo12", 12, true},
		{"sello3", 0, false},
		{"marchamo0", 0, false},
		{"marchamo", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := parseReportedPosition(c.in)
		if got != c.want || ok != c.ok {
			t.Fatalf("parseReportedPosition(%q) = %d, %v; want %d, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestResolveSealPositions(t *testing.T) {
	// Parseable labels map to their 1-based slot.
	got, err := resolveSealPositions([]string{"marchamo2", "marchamo1"}, 2, 3)
	if err != nil {
		t.Fatalf("resolveSealPositions failed: %v", err)
	}
	if got[0] != 1 || got[1] != 0 {
		t.Fatalf("reported positions ignored: %v", got)
	}
	// Unparseable labels fall back to the sequential index.
	got, err = resolveSealPositions([]string{"sello-x", "marchamo2"}, 2, 3)
	if err != nil {
		t.Fatalf("resolveSealPositions failed: %v", err)
	}
	if got[0] != 0 || got[1] != 1 {
		t.Fatalf("sequential fallback broken: %v", got)
	}
	// Out-of-range positions fall back too.
	got, err = resolveSealPositions([]string{"marchamo9"}, 1, 3)
	if err != nil {
		t.Fatalf("resolveSealPositions failed: %v", err)
	}
	if got[0] != 0 {
		t.Fatalf("out-of-range position must fall back to index, got %v", got)
	}
}

func TestResolveSealPositions_RejectsCollisions(t *testing.T) {
	// Two labels naming the same slot would overwrite one seal twice and
	// skip another.
	_, err := resolveSealPositions([]string{"marchamo2", "marchamo2"}, 2, 3)
	if utils.KindOf(err) != utils.KindValidationFailed {
		t.Fatalf("duplicate reported positions must fail validation, got %v", err)
	}
	// A label can also collide with a later patch's sequential fallback.
	_, err = resolveSealPositions([]string{"marchamo3"}, 3, 3)
	if utils.KindOf(err) != utils.KindValidationFailed {
		t.Fatalf("label colliding with a sequential index must fail validation, got %v", err)
	}
}

func TestPreviousNonInconsistencyStatus(t *testing.T) {
	code, ok := previousNonInconsistencyStatus([]int{models.StatusInconsistency, models.StatusWeighOut, models.StatusWeighIn})
	if !ok || code != models.StatusWeighOut {
		t.Fatalf("expected %d, got %d (%v)", models.StatusWeighOut, code, ok)
	}
	code, ok = previousNonInconsistencyStatus([]int{models.StatusInconsistency, models.StatusInconsistency})
	if ok {
		t.Fatalf("ledger of only inconsistencies has nothing to restore, got %d", code)
	}
	_, ok = previousNonInconsistencyStatus(nil)
	if ok {
		t.Fatal("empty ledger has nothing to restore")
	}
}

func TestUpdatePatterns(t *testing.T) {
	if !driverLicensePattern.MatchString("045112233") {
		t.Fatal("numeric license must match")
	}
	if driverLicensePattern.MatchString("04511-2233") || driverLicensePattern.MatchString("") {
		t.Fatal("non-numeric license must not match")
	}
	if !vehiclePlatePattern.MatchString("C123456") || vehiclePlatePattern.MatchString("P123456") {
		t.Fatal("cargo plates start with C")
	}
	if !trailerPlatePattern.MatchString("RE98765") || trailerPlatePattern.MatchString("R98765") {
		t.Fatal("trailer plates start with RE")
	}
}

func TestIntPtrEqual(t *testing.T) {
	a, b := 4, 4
	c := 5
	if !intPtrEqual(&a, &b) || intPtrEqual(&a, &c) {
		t.Fatal("value comparison broken")
	}
	if !intPtrEqual(nil, nil) || intPtrEqual(&a, nil) || intPtrEqual(nil, &a) {
		t.Fatal("nil handling broken")
	}
}
