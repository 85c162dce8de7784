package server

import (
	"context"
	"encoding/json"
	"net/http"

	"medvault/core/capability"
	"medvault/core/fault"
	"medvault/types/ids"
)

type capabilityRequest struct {
	PatientID string `json:"patientId"`
	DoctorID  string `json:"doctorId"`
}

func (s *Server) parseCapabilityRequest(r *http.Request) (ids.Address, ids.Address, error) {
	var req capabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ids.Empty, ids.Empty, fault.Newf(fault.InvalidInput, "server.Capability", "invalid JSON: %v", err)
	}
	patientID, err := ids.Parse(req.PatientID)
	if err != nil {
		return ids.Empty, ids.Empty, fault.Newf(fault.InvalidInput, "server.Capability", "patientId: %v", err)
	}
	doctorID, err := ids.Parse(req.DoctorID)
	if err != nil {
		return ids.Empty, ids.Empty, fault.Newf(fault.InvalidInput, "server.Capability", "doctorId: %v", err)
	}
	return patientID, doctorID, nil
}

type capabilityResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"` // "applied" or "queued"
	Message string `json:"message"`
}

// GrantHandler handles POST /api/v1/capabilities/grant. A queued status means
// the ledger was unreachable and the write is durably queued for retry.
func (s *Server) GrantHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	identity, ok := identityFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	patientID, doctorID, err := s.parseCapabilityRequest(r)
	if err != nil {
		writeFault(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	status, err := s.capabilities.SubmitGrant(ctx, identity.Actor, patientID, doctorID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, capabilityResponse{Success: true, Status: string(status), Message: "Access granted"})
}

// RevokeHandler handles POST /api/v1/capabilities/revoke.
func (s *Server) RevokeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	identity, ok := identityFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	patientID, doctorID, err := s.parseCapabilityRequest(r)
	if err != nil {
		writeFault(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	status, err := s.capabilities.SubmitRevoke(ctx, identity.Actor, patientID, doctorID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, capabilityResponse{Success: true, Status: string(status), Message: "Access revoked"})
}

// CheckAccessHandler handles GET /api/v1/capabilities/check?patientId=…&doctorId=…
func (s *Server) CheckAccessHandler(w http.ResponseWriter, r *http.Request) {
	patientID, err := ids.Parse(r.URL.Query().Get("patientId"))
	if err != nil {
		writeFault(w, fault.Newf(fault.InvalidInput, "server.CheckAccess", "patientId: %v", err))
		return
	}
	doctorID, err := ids.Parse(r.URL.Query().Get("doctorId"))
	if err != nil {
		writeFault(w, fault.Newf(fault.InvalidInput, "server.CheckAccess", "doctorId: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	hasAccess, err := s.ledger.HasAccess(ctx, patientID, doctorID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"success": true, "hasAccess": hasAccess})
}

// CapabilityEventsHandler handles GET /api/v1/capabilities/events, listing
// the append-only event log for a pair when the ledger can report it.
func (s *Server) CapabilityEventsHandler(w http.ResponseWriter, r *http.Request) {
	patientID, err := ids.Parse(r.URL.Query().Get("patientId"))
	if err != nil {
		writeFault(w, fault.Newf(fault.InvalidInput, "server.CapabilityEvents", "patientId: %v", err))
		return
	}
	doctorID, err := ids.Parse(r.URL.Query().Get("doctorId"))
	if err != nil {
		writeFault(w, fault.Newf(fault.InvalidInput, "server.CapabilityEvents", "doctorId: %v", err))
		return
	}

	history, ok := s.ledger.(capability.History)
	if !ok {
		http.Error(w, "Event history not supported by this ledger", http.StatusNotImplemented)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	events, err := history.Events(ctx, patientID, doctorID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"success": true, "events": events})
}
