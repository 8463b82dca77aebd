package models

import (
	"context"
	"testing"
)

// DB-free checks over the seeded catalogs. GetQueueCap is exercised with
// neither redis nor MySQL connected, which is the state a fresh process
// is in between listen and connect.

func TestDefaultPredefinedStatuses_CoversAllCodes(t *testing.T) {
	statuses := DefaultPredefinedStatuses()
	if len(statuses) != 15 {
		t.Fatalf("expected 15 catalog entries, got %d", len(statuses))
	}
	byId := make(map[int]PredefinedStatus, len(statuses))
	for _, s := range statuses {
		if s.Name == "" {
			t.Fatalf("catalog entry %d has no name", s.ID)
		}
		if _, dup := byId[s.ID]; dup {
			t.Fatalf("duplicate catalog id %d", s.ID)
		}
		byId[s.ID] = s
	}
	for code := StatusInTransit; code <= StatusCooling; code++ {
		if _, ok := byId[code]; !ok {
			t.Fatalf("catalog is missing status code %d", code)
		}
	}
}

func TestDefaultQueueCap(t *testing.T) {
	if got := DefaultQueueCap(TruckTypeTanker); got != 5 {
		t.Fatalf("tanker queue cap should be 5, got %d", got)
	}
	if got := DefaultQueueCap(TruckTypeDump); got != 4 {
		t.Fatalf("dump truck queue cap should be 4, got %d", got)
	}
	if got := DefaultQueueCap(TruckTypeFlatbed); got != 4 {
		t.Fatalf("flatbed queue cap should be 4, got %d", got)
	}
}

func TestGetQueueCap_FallsBackToDefaultsWithoutBackends(t *testing.T) {
	ctx := context.Background()
	if got := GetQueueCap(ctx, TruckTypeTanker); got != 5 {
		t.Fatalf("expected default tanker cap 5, got %d", got)
	}
	if got := GetQueueCap(ctx, TruckTypeFlatbed); got != 4 {
		t.Fatalf("expected default cap 4, got %d", got)
	}
}

func TestIsValidTruckType(t *testing.T) {
	for _, v := range []TruckType{TruckTypeDump, TruckTypeFlatbed, TruckTypeTanker} {
		if !IsValidTruckType(v) {
			t.Fatalf("truck type %s should be valid", v)
		}
	}
	for _, v := range []TruckType{"", "X", "p", "VR"} {
		if IsValidTruckType(v) {
			t.Fatalf("truck type %q should be invalid", v)
		}
	}
}
