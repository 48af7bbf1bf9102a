package metrics

import "context"

// HealthChecker is the interface to check if a component is ready to serve
type HealthChecker interface {
	// IsHealthy returns an error when the component cannot make progress
	IsHealthy(ctx context.Context) error
}

// PendingReader reports the amount of work accepted and not yet processed by a component
type PendingReader interface {
	GetName() string
	Pending(ctx context.Context) (int64, error)
}
