package handler

import "github.com/vcscsvcscs/aura-health/apps/backend/pkg/api"

// Server combines all handlers into one api.ServerInterface
type Server struct {
	*PrescriptionHandler
	*CartHandler
	*HealthHandler
}

var _ api.ServerInterface = (*Server)(nil)

// NewServer creates a new Server
func NewServer(prescriptions *PrescriptionHandler, cart *CartHandler, health *HealthHandler) *Server {
	return &Server{
		PrescriptionHandler: prescriptions,
		CartHandler:         cart,
		HealthHandler:       health,
	}
}
