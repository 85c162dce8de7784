package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"medvault/core/fault"
)

// GatewayTransport talks to a content-addressed network store over its HTTP
// gateway API: POST /api/v0/blobs to put, GET /api/v0/blobs/<address> to get.
type GatewayTransport struct {
	baseURL string
	client  *http.Client
}

// NewGatewayTransport points the transport at a gateway base URL such as
// "http://localhost:5001".
func NewGatewayTransport(baseURL string, timeout time.Duration) *GatewayTransport {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &GatewayTransport{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type putResponse struct {
	Address string `json:"address"`
}

func (t *GatewayTransport) Put(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", t.baseURL+"/api/v0/blobs", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gateway put: %s: %s", resp.Status, string(body))
	}

	var pr putResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", fmt.Errorf("gateway put: bad response: %w", err)
	}
	if pr.Address == "" {
		return "", fmt.Errorf("gateway put: empty address in response")
	}
	return pr.Address, nil
}

func (t *GatewayTransport) Get(ctx context.Context, address string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", t.baseURL+"/api/v0/blobs/"+address, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fault.Newf(fault.NotFound, "blob.GatewayTransport.Get", "no blob at %s", address)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gateway get: %s: %s", resp.Status, string(body))
	}
	return io.ReadAll(resp.Body)
}
