package extsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bitbucket.org/almapacdev/shipments_backend/models"
)

func testClient(name string, baseURL string) *syncClient {
	return &syncClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Second},
	}
}

func TestExcalibur_Issue_StructuredDocumentCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/receipts" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["codeGen"] != "EXP-2026-0001" {
			t.Errorf("unexpected payload: %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"document_code": "REC-778"})
	}))
	defer srv.Close()

	e := &ExcaliburClient{c: testClient("excalibur", srv.URL)}
	docCode, err := e.Issue(context.Background(), "EXP-2026-0001")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if docCode != "REC-778" {
		t.Fatalf("expected REC-778, got %q", docCode)
	}
}

func TestExcalibur_Issue_SoapFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"wsResponse": "<soap:Envelope><return_value>REC-990</return_value></soap:Envelope>",
		})
	}))
	defer srv.Close()

	e := &ExcaliburClient{c: testClient("excalibur", srv.URL)}
	docCode, err := e.Issue(context.Background(), "EXP-2026-0002")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if docCode != "REC-990" {
		t.Fatalf("expected REC-990, got %q", docCode)
	}
}

func TestExcalibur_Issue_NoDocumentCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"wsResponse": "<soap:Envelope/>"})
	}))
	defer srv.Close()

	e := &ExcaliburClient{c: testClient("excalibur", srv.URL)}
	if _, err := e.Issue(context.Background(), "EXP-2026-0003"); err == nil {
		t.Fatal("expected an error when no document code is present")
	}
}

func TestNav_Push_ReturnsRecordId(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/shipments" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["driverLicense"] != "12345678" {
			t.Errorf("driver fields missing from payload: %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"newRecord": map[string]any{"id": 4410}})
	}))
	defer srv.Close()

	n := &NavClient{c: testClient("nav", srv.URL)}
	shipment := &models.Shipment{
		CodeGen: "EXP-2026-0004",
		Driver:  &models.Driver{Name: "Mario", License: "12345678"},
	}
	id, err := n.Push(context.Background(), shipment)
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if id != 4410 {
		t.Fatalf("expected record id 4410, got %d", id)
	}
}

func TestNav_Push_ZeroRecordIdIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"newRecord": map[string]any{"id": 0}})
	}))
	defer srv.Close()

	n := &NavClient{c: testClient("nav", srv.URL)}
	if _, err := n.Push(context.Background(), &models.Shipment{CodeGen: "EXP-2026-0005"}); err == nil {
		t.Fatal("expected an error on a zero record id")
	}
}

func TestDoJSON_UpstreamErrorIsTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(strings.Repeat("x", 2000)))
	}))
	defer srv.Close()

	c := testClient("nav", srv.URL)
	err := c.doJSON(context.Background(), http.MethodGet, "/whatever", nil, nil)
	if err == nil {
		t.Fatal("expected an error on a 500 response")
	}
	if !strings.Contains(err.Error(), "nav api error 500") {
		t.Fatalf("error should carry client name and status: %v", err)
	}
	// Contingency detail rows cap at 500 chars; the error must fit.
	if len(err.Error()) > 600 {
		t.Fatalf("upstream body was not truncated: %d chars", len(err.Error()))
	}
}

func TestNav_UpdateMagneticCard_RequiresNavRecord(t *testing.T) {
	n := &NavClient{c: testClient("nav", "http://localhost:1")}
	err := n.UpdateMagneticCard(context.Background(), &models.Shipment{CodeGen: "EXP-2026-0006"})
	if err == nil {
		t.Fatal("expected an error for a shipment never pushed to nav")
	}
}
