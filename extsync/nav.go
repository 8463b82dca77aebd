package extsync

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"bitbucket.org/almapacdev/shipments_backend/models"
	"bitbucket.org/almapacdev/shipments_backend/utils"
)

// NavClient talks to the NAV ERP middleware. Push and the weight/card
// updates are synchronous-critical: callers abort their flow on failure.
type NavClient struct {
	c *syncClient
}

func NewNavClient() *NavClient {
	return &NavClient{
		c: newSyncClient("nav", "SERVER_MIDDLEWARE_NAV", "http://localhost:7048", 8*time.Second),
	}
}

type navPushResponse struct {
	NewRecord struct {
		ID int `json:"id"`
	} `json:"newRecord"`
}

// Push registers the shipment in NAV and returns the NAV record id.
// The shipment must be loaded with Driver, Vehicle and Mill.
func (n *NavClient) Push(ctx context.Context, shipment *models.Shipment) (int, error) {
	var resp navPushResponse
	if err := n.c.doJSON(ctx, http.MethodPost, "/api/shipments", navShipmentPayload(shipment), &resp); err != nil {
		return 0, err
	}
	if resp.NewRecord.ID == 0 {
		return 0, fmt.Errorf("nav push for %s returned no record id", shipment.CodeGen)
	}
	return resp.NewRecord.ID, nil
}

// UpdateMagneticCard pushes the assigned card to NAV.
func (n *NavClient) UpdateMagneticCard(ctx context.Context, shipment *models.Shipment) error {
	if shipment.NavRecordId == nil {
		return utils.Errf(utils.KindInvalidState, "shipment %s has no nav record", shipment.CodeGen)
	}
	payload := map[string]any{
		"codeGen":      shipment.CodeGen,
		"magneticCard": shipment.MagneticCard,
	}
	path := fmt.Sprintf("/api/shipments/%d/magnetic-card", *shipment.NavRecordId)
	return n.c.doJSON(ctx, http.MethodPut, path, payload, nil)
}

// UpdateClientWeight pushes the corrected quantities to NAV.
func (n *NavClient) UpdateClientWeight(ctx context.Context, shipment *models.Shipment) error {
	if shipment.NavRecordId == nil {
		return utils.Errf(utils.KindInvalidState, "shipment %s has no nav record", shipment.CodeGen)
	}
	payload := map[string]any{
		"codeGen":           shipment.CodeGen,
		"productQuantity":   shipment.ProductQuantity,
		"productQuantityKg": shipment.ProductQuantityKg,
		"unitMeasure":       shipment.UnitMeasure,
	}
	path := fmt.Sprintf("/api/shipments/%d/weight", *shipment.NavRecordId)
	return n.c.doJSON(ctx, http.MethodPut, path, payload, nil)
}

func navShipmentPayload(shipment *models.Shipment) map[string]any {
	payload := map[string]any{
		"codeGen":           shipment.CodeGen,
		"product":           shipment.Product,
		"operationType":     shipment.OperationType,
		"loadType":          shipment.LoadType,
		"transporter":       shipment.Transporter,
		"activityNumber":    shipment.ActivityNumber,
		"productQuantity":   shipment.ProductQuantity,
		"productQuantityKg": shipment.ProductQuantityKg,
		"unitMeasure":       shipment.UnitMeasure,
		"magneticCard":      shipment.MagneticCard,
	}
	if shipment.Driver != nil {
		payload["driverName"] = shipment.Driver.Name
		payload["driverLicense"] = shipment.Driver.License
	}
	if shipment.Vehicle != nil {
		payload["vehiclePlate"] = shipment.Vehicle.Plate
		payload["trailerPlate"] = shipment.Vehicle.TrailerPlate
		payload["truckType"] = shipment.Vehicle.TruckType
	}
	if shipment.MillCode != nil {
		payload["millCode"] = *shipment.MillCode
	}
	return payload
}
