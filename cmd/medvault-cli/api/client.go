package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Client talks to a MedVault node's HTTP API. The node URL comes from
// MEDVAULT_NODE_URL (default http://localhost:8080) and the session token
// from MEDVAULT_TOKEN.
type Client struct {
	BaseURL string
	Token   string
	http    *http.Client
}

func NewClient() *Client {
	baseURL := os.Getenv("MEDVAULT_NODE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL: baseURL,
		Token:   os.Getenv("MEDVAULT_TOKEN"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(method, path string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &errResp) == nil && errResp.Message != "" {
			return fmt.Errorf("%s: %s", errResp.Error, errResp.Message)
		}
		return fmt.Errorf("node returned %d: %s", resp.StatusCode, string(data))
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

// Status mirrors the node's /status response.
type Status struct {
	Status      string `json:"status"`
	Uptime      int64  `json:"uptime_seconds"`
	RecordCount int    `json:"record_count"`
	OutboxDepth int    `json:"outbox_depth"`
	Version     string `json:"version"`
	APIVersion  string `json:"api_version"`
}

func (s Status) ToJSON() string {
	b, _ := json.MarshalIndent(s, "", "  ")
	return string(b)
}

func (c *Client) GetStatus() (Status, error) {
	var status Status
	err := c.do(http.MethodGet, "/status", nil, &status)
	return status, err
}

// NodeHealth mirrors the node's /nodehealth response.
type NodeHealth struct {
	Status  string `json:"status"`
	Metrics struct {
		UptimeSeconds  int64   `json:"uptime_seconds"`
		RecordCount    int     `json:"record_count"`
		OutboxDepth    int     `json:"outbox_depth"`
		Degraded       bool    `json:"degraded"`
		CPULoadPercent float64 `json:"cpu_load_percent"`
		MemoryMB       float64 `json:"memory_mb"`
		DiskFreeMB     float64 `json:"disk_free_mb"`
	} `json:"metrics"`
}

func (c *Client) GetNodeHealth() (NodeHealth, error) {
	var health NodeHealth
	err := c.do(http.MethodGet, "/nodehealth", nil, &health)
	return health, err
}

func (c *Client) GetLiveness() (bool, error) {
	var resp struct {
		Alive bool `json:"alive"`
	}
	err := c.do(http.MethodGet, "/health/liveness", nil, &resp)
	return resp.Alive, err
}

func (c *Client) GetReadiness() (bool, error) {
	var resp struct {
		Ready bool `json:"ready"`
	}
	err := c.do(http.MethodGet, "/health/readiness", nil, &resp)
	return resp.Ready, err
}

type capabilityRequest struct {
	PatientID string `json:"patientId"`
	DoctorID  string `json:"doctorId"`
}

// Grant asks the node to grant the doctor access to the patient's records.
// The returned status is "applied" or "queued".
func (c *Client) Grant(patientID, doctorID string) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	err := c.do(http.MethodPost, "/api/v1/capabilities/grant", capabilityRequest{patientID, doctorID}, &resp)
	return resp.Status, err
}

// Revoke asks the node to revoke the doctor's access.
func (c *Client) Revoke(patientID, doctorID string) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	err := c.do(http.MethodPost, "/api/v1/capabilities/revoke", capabilityRequest{patientID, doctorID}, &resp)
	return resp.Status, err
}

func (c *Client) CheckAccess(patientID, doctorID string) (bool, error) {
	var resp struct {
		HasAccess bool `json:"hasAccess"`
	}
	path := fmt.Sprintf("/api/v1/capabilities/check?patientId=%s&doctorId=%s", patientID, doctorID)
	err := c.do(http.MethodGet, path, nil, &resp)
	return resp.HasAccess, err
}

// Record is one entry from the node's record listing. Plaintext is empty and
// Error set when the node could not decrypt that entry.
type Record struct {
	RecordID   string `json:"recordId"`
	Title      string `json:"title"`
	RecordType string `json:"recordType"`
	AddedBy    string `json:"addedBy"`
	CreatedAt  string `json:"createdAt"`
	Plaintext  string `json:"plaintext,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (c *Client) ListRecords(patientID string) ([]Record, error) {
	var resp struct {
		Records []Record `json:"records"`
	}
	err := c.do(http.MethodGet, "/api/v1/records?patientId="+patientID, nil, &resp)
	return resp.Records, err
}

// SubmitRecord uploads a payload as a new record for the patient.
func (c *Client) SubmitRecord(patientID, title, recordType string, payload []byte) (string, error) {
	body := map[string]string{
		"patientId":  patientID,
		"title":      title,
		"recordType": recordType,
		"payload":    base64.StdEncoding.EncodeToString(payload),
	}
	var resp struct {
		RecordID string `json:"recordId"`
	}
	err := c.do(http.MethodPost, "/api/v1/records", body, &resp)
	return resp.RecordID, err
}
