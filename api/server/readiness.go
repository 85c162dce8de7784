// readiness.go - Readiness probe logic for the MedVault node
package server

// NodeReadiness returns true when the node can serve traffic with the ledger
// reachable. A draining outbox means capability writes are queueing, so the
// node stays up but reports not-ready for new rollouts.
func (s *Server) NodeReadiness() bool {
	if !s.NodeLiveness() {
		return false
	}
	if s.capabilities != nil && s.capabilities.Degraded() {
		return false
	}
	return true
}
