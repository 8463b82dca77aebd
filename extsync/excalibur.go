package extsync

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"
)

// ExcaliburClient issues final receipts. The middleware fronts a SOAP
// service, so the document code may arrive either as a JSON field or
// embedded in the raw SOAP response.
type ExcaliburClient struct {
	c *syncClient
}

// NewExcaliburClient builds a receipt client with the given timeout:
// the fire-and-forget path allows a long wait, sweeps use a short one.
func NewExcaliburClient(timeout time.Duration) *ExcaliburClient {
	return &ExcaliburClient{
		c: newSyncClient("excalibur", "SERVER_EXCALIBUR_NAME", "http://localhost:7060", timeout),
	}
}

type receiptResponse struct {
	DocumentCode string `json:"document_code"`
	WsResponse   string `json:"wsResponse"`
}

var returnValuePattern = regexp.MustCompile(`<return_value>(.*?)</return_value>`)

// Issue requests a receipt for the shipment and returns the document code.
func (e *ExcaliburClient) Issue(ctx context.Context, codeGen string) (string, error) {
	payload := map[string]any{"codeGen": codeGen}
	var resp receiptResponse
	if err := e.c.doJSON(ctx, http.MethodPost, "/api/receipts", payload, &resp); err != nil {
		return "", err
	}
	docCode, ok := extractDocumentCode(resp)
	if !ok {
		return "", fmt.Errorf("excalibur receipt for %s carried no document code", codeGen)
	}
	return docCode, nil
}

// extractDocumentCode prefers the structured field and falls back to the
// <return_value> element of the raw SOAP body.
func extractDocumentCode(resp receiptResponse) (string, bool) {
	if resp.DocumentCode != "" {
		return resp.DocumentCode, true
	}
	if m := returnValuePattern.FindStringSubmatch(resp.WsResponse); m != nil && m[1] != "" {
		return m[1], true
	}
	return "", false
}
