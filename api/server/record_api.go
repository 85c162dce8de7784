package server

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"time"

	"medvault/core/fault"
	"medvault/core/records"
	"medvault/core/validation"
	"medvault/types/ids"
)

type submitRecordResponse struct {
	Success        bool      `json:"success"`
	RecordID       string    `json:"recordId"`
	ContentAddress string    `json:"contentAddress"`
	CreatedAt      time.Time `json:"createdAt"`
}

// SubmitRecordHandler handles POST /api/v1/records. The payload is encrypted
// before it reaches the blob store; the response exposes only the record id
// and content address.
func (s *Server) SubmitRecordHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeFault(w, fault.Newf(fault.InvalidInput, "server.SubmitRecord", "could not read body: %v", err))
		return
	}
	sub, err := validation.ValidateSubmission(body)
	if err != nil {
		writeFault(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	entry, err := s.records.AddRecord(ctx, identity.Actor, sub.PatientID, sub.Payload, records.Metadata{
		Title:      sub.Title,
		RecordType: sub.RecordType,
	})
	if err != nil {
		writeFault(w, err)
		return
	}

	writeJSON(w, submitRecordResponse{
		Success:        true,
		RecordID:       entry.RecordID,
		ContentAddress: entry.BlobRef.ContentAddress,
		CreatedAt:      entry.CreatedAt,
	})
}

type recordItem struct {
	RecordID   string    `json:"recordId"`
	Title      string    `json:"title"`
	RecordType string    `json:"recordType"`
	AddedBy    string    `json:"addedBy"`
	CreatedAt  time.Time `json:"createdAt"`
	Plaintext  string    `json:"plaintext,omitempty"` // base64
	Error      string    `json:"error,omitempty"`     // fault kind for this entry
}

type listRecordsResponse struct {
	Success bool         `json:"success"`
	Records []recordItem `json:"records"`
}

// ListRecordsHandler handles GET /api/v1/records?patientId=… The actor comes
// from the session token. Entries whose blob could not be verified are
// returned with their fault kind instead of a payload, never skipped.
func (s *Server) ListRecordsHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	patientID, err := ids.Parse(r.URL.Query().Get("patientId"))
	if err != nil {
		writeFault(w, fault.Newf(fault.InvalidInput, "server.ListRecords", "patientId: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	views, err := s.records.ReadRecords(ctx, identity.Actor, patientID)
	if err != nil {
		writeFault(w, err)
		return
	}

	items := make([]recordItem, 0, len(views))
	for _, v := range views {
		item := recordItem{
			RecordID:   v.Entry.RecordID,
			Title:      v.Entry.Title,
			RecordType: v.Entry.RecordType,
			AddedBy:    v.Entry.AddedBy.String(),
			CreatedAt:  v.Entry.CreatedAt,
		}
		if v.Err != nil {
			item.Error = string(fault.KindOf(v.Err))
		} else {
			item.Plaintext = base64.StdEncoding.EncodeToString(v.Plaintext)
		}
		items = append(items, item)
	}
	writeJSON(w, listRecordsResponse{Success: true, Records: items})
}
