package health

import "context"

// Metrics is a point-in-time reading of host resource usage, in percent (0-100).
type Metrics struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// Snapshot combines resource metrics with the current connection count.
// It is recomputed on demand and never stored.
type Snapshot struct {
	CPUPercent      float64 `json:"cpu_percent"`
	MemoryPercent   float64 `json:"memory_percent"`
	ConnectionCount int     `json:"connection_count"`
}

// Provider returns resource metrics. Implementations gate every connection
// attempt, so they must answer quickly.
type Provider interface {
	Metrics(ctx context.Context) (Metrics, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Metrics, error)

// Metrics calls f.
func (f ProviderFunc) Metrics(ctx context.Context) (Metrics, error) {
	return f(ctx)
}

// Static always reports the same readings.
type Static Metrics

// Metrics returns the static readings.
func (s Static) Metrics(context.Context) (Metrics, error) {
	return Metrics(s), nil
}
