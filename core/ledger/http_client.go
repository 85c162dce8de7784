package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"medvault/core/fault"
	"medvault/core/wallet"
)

// HTTPClient talks JSON to a ledger node. Submissions are signed with the
// node's wallet and carry a strictly increasing nonce; the signer lock
// serializes concurrent submissions so two transactions never race on the
// same nonce.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	signer  *Signer
}

func NewHTTPClient(baseURL string, signer *Signer, timeout time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		signer:  signer,
	}
}

// SignedTx is the wire envelope for a submitted transaction.
type SignedTx struct {
	Call      Call             `json:"call"`
	Nonce     uint64           `json:"nonce"`
	Signature wallet.Signature `json:"signature"`
}

func (c *HTTPClient) Submit(ctx context.Context, call Call) (Receipt, error) {
	const op = "ledger.Submit"

	tx, err := c.signer.SignCall(call)
	if err != nil {
		return Receipt{}, fault.New(fault.LedgerUnavailable, op, err)
	}
	body, err := json.Marshal(tx)
	if err != nil {
		return Receipt{}, fault.New(fault.LedgerUnavailable, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/tx", bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fault.New(fault.LedgerUnavailable, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Receipt{}, fault.New(fault.LedgerUnavailable, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return Receipt{}, fault.Newf(fault.AccessDenied, op, "ledger rejected transaction")
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return Receipt{}, fault.Newf(fault.LedgerUnavailable, op, "%s: %s", resp.Status, string(raw))
	}

	var receipt Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return Receipt{}, fault.New(fault.LedgerUnavailable, op, fmt.Errorf("bad receipt: %w", err))
	}
	return receipt, nil
}

func (c *HTTPClient) Call(ctx context.Context, call Call) (json.RawMessage, error) {
	const op = "ledger.Call"

	body, err := json.Marshal(call)
	if err != nil {
		return nil, fault.New(fault.LedgerUnavailable, op, err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/call", bytes.NewReader(body))
	if err != nil {
		return nil, fault.New(fault.LedgerUnavailable, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fault.New(fault.LedgerUnavailable, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fault.Newf(fault.LedgerUnavailable, op, "%s: %s", resp.Status, string(raw))
	}
	return io.ReadAll(resp.Body)
}
