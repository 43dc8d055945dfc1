package health

import "context"

// BackendPinger checks index backend availability.
type BackendPinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks an external model provider's availability.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}
