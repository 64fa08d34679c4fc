package domain

import (
	"context"
	"time"
)

// ManagedService is the orchestrator's record of one container service.
// The proxy engine only reads Port for block correlation and writes back the
// proxy fields after a successful apply.
type ManagedService struct {
	Name              string    `json:"name" db:"name"`
	Image             string    `json:"image" db:"image"`
	Subdomain         string    `json:"subdomain" db:"subdomain"` // empty when no domain is attached
	Port              string    `json:"port" db:"port"`           // empty until the service has been bound
	ClientMaxBodySize string    `json:"client_max_body_size" db:"client_max_body_size"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// ServiceRepository is the port-resolution capability of the service orchestrator.
type ServiceRepository interface {
	GetByName(ctx context.Context, name string) (*ManagedService, error)
	List(ctx context.Context) ([]ManagedService, error)

	// UpdateProxy stores the mapping that is now live in the proxy configuration.
	UpdateProxy(ctx context.Context, name, subdomain, port, clientMaxBodySize string) error
}
