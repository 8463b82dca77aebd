package extsync

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"bitbucket.org/almapacdev/shipments_backend/config"
	"bitbucket.org/almapacdev/shipments_backend/models"
	"bitbucket.org/almapacdev/shipments_backend/utils"
)

// Leverans pre-transaction statuses the gate system understands.
const (
	LeveransStatusRegistered = 1
	LeveransStatusCancelled  = 2
	LeveransStatusSummoned   = 3
	LeveransStatusAtGate     = 4
	LeveransStatusInside     = 5
)

// LeveransClient talks to the Leverans gate system.
type LeveransClient struct {
	c *syncClient
}

func NewLeveransClient() *LeveransClient {
	return &LeveransClient{
		c: newSyncClient("leverans", "SERVER_MIDDLEWARE_LEVERANS", "http://localhost:7050", 8*time.Second),
	}
}

type leveransPushResponse struct {
	PkPreTransaccion int `json:"pkPreTransaccion"`
}

// Push registers a pre-transaction at the gate and returns its id.
func (l *LeveransClient) Push(ctx context.Context, shipment *models.Shipment) (int, error) {
	payload := map[string]any{
		"codeGen":       shipment.CodeGen,
		"product":       shipment.Product,
		"operationType": shipment.OperationType,
		"magneticCard":  shipment.MagneticCard,
	}
	if shipment.Driver != nil {
		payload["driverLicense"] = shipment.Driver.License
	}
	if shipment.Vehicle != nil {
		payload["vehiclePlate"] = shipment.Vehicle.Plate
	}
	var resp leveransPushResponse
	if err := l.c.doJSON(ctx, http.MethodPost, "/api/pre-transactions", payload, &resp); err != nil {
		return 0, err
	}
	if resp.PkPreTransaccion == 0 {
		return 0, fmt.Errorf("leverans push for %s returned no pre-transaction id", shipment.CodeGen)
	}
	return resp.PkPreTransaccion, nil
}

// UpdateStatus moves the gate-side pre-transaction to newStatus. Failures
// are recorded to the system log and reported as ok=false so callers can
// abort without surfacing gate internals.
func (l *LeveransClient) UpdateStatus(ctx context.Context, shipment *models.Shipment, newStatus int) bool {
	if shipment.LeveransPreTransactionId == nil {
		models.CreateSysLog(ctx, models.SysLogLeveransUpdateFailed, &shipment.CodeGen,
			fmt.Sprintf("no pre-transaction id, cannot set status %d", newStatus))
		return false
	}
	payload := map[string]any{"status": newStatus}
	path := fmt.Sprintf("/api/pre-transactions/%d/status", *shipment.LeveransPreTransactionId)
	if err := l.c.doJSON(ctx, http.MethodPut, path, payload, nil); err != nil {
		models.CreateSysLog(ctx, models.SysLogLeveransUpdateFailed, &shipment.CodeGen,
			utils.TruncateErrorDetail(err.Error()))
		config.LogError(config.GetLogger(), "extsync", "UpdateStatus", shipment.CodeGen, newStatus, err)
		return false
	}
	return true
}
