package server

import (
	"encoding/json"
	"net/http"
	"time"

	"medvault/core/audit"
	"medvault/core/capability"
	"medvault/core/fault"
	"medvault/core/outbox"
	"medvault/core/records"
	"medvault/core/registry"
)

// Server is the HTTP surface over the record service and the capability
// outbox. All dependencies are injected; there is no shared global state.
type Server struct {
	records      *records.Service
	capabilities *outbox.Outbox
	ledger       capability.Ledger
	registry     *registry.Registry
	audit        audit.AuditLogger

	ListenAddr     string
	jwtSecret      string
	requestTimeout time.Duration
}

func NewServer(svc *records.Service, caps *outbox.Outbox, ledger capability.Ledger, reg *registry.Registry, auditLogger audit.AuditLogger, listenAddr, jwtSecret string, requestTimeout time.Duration) *Server {
	if requestTimeout == 0 {
		requestTimeout = 15 * time.Second
	}
	return &Server{
		records:        svc,
		capabilities:   caps,
		ledger:         ledger,
		registry:       reg,
		audit:          auditLogger,
		ListenAddr:     listenAddr,
		jwtSecret:      jwtSecret,
		requestTimeout: requestTimeout,
	}
}

// Routes registers all endpoints on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/api/v1/records", s.authMiddleware(http.HandlerFunc(s.RecordsHandler)))
	mux.Handle("/api/v1/capabilities/grant", s.authMiddleware(http.HandlerFunc(s.GrantHandler)))
	mux.Handle("/api/v1/capabilities/revoke", s.authMiddleware(http.HandlerFunc(s.RevokeHandler)))
	mux.Handle("/api/v1/capabilities/check", s.authMiddleware(http.HandlerFunc(s.CheckAccessHandler)))
	mux.Handle("/api/v1/capabilities/events", s.authMiddleware(http.HandlerFunc(s.CapabilityEventsHandler)))

	mux.HandleFunc("/health/liveness", s.HandleLiveness)
	mux.HandleFunc("/health/readiness", s.HandleReadiness)
	mux.HandleFunc("/status", s.HandleStatus)
	mux.HandleFunc("/nodehealth", s.HandleNodeHealth)

	return mux
}

func (s *Server) Start() error {
	return http.ListenAndServe(s.ListenAddr, s.Routes())
}

// RecordsHandler dispatches /api/v1/records by method.
func (s *Server) RecordsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.SubmitRecordHandler(w, r)
	case http.MethodGet:
		s.ListRecordsHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeFault maps a classified error onto an HTTP status and a response body
// carrying the kind, so callers can tell a denial from an outage from an
// integrity failure.
func writeFault(w http.ResponseWriter, err error) {
	kind := fault.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case fault.AccessDenied:
		status = http.StatusForbidden
	case fault.NotFound:
		status = http.StatusNotFound
	case fault.InvalidInput:
		status = http.StatusBadRequest
	case fault.LedgerUnavailable, fault.BlobStoreUnavailable:
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{
		Success: false,
		Error:   string(kind),
		Message: err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
