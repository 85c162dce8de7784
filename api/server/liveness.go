// liveness.go - Liveness probe logic for the MedVault node
package server

// NodeLiveness returns true when the node is running and its stores are wired.
func (s *Server) NodeLiveness() bool {
	return s.records != nil && s.registry != nil
}
