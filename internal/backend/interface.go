package backend

import (
	"context"

	"retireplan/internal/amqp"
	"retireplan/internal/services"
	"retireplan/internal/sheets"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult bundles the store and the optional integrations built for it.
type BackendResult struct {
	Store sheets.Store

	// Exporter is nil when Google Sheets export is not configured.
	Exporter sheets.ProjectionExporter

	// Broker is nil when AMQP is not configured or could not be reached.
	Broker *amqp.Client

	// Ping checks the store is reachable, for readiness probes.
	Ping func(ctx context.Context) error

	Cleanup CleanupFunc
}

// Publisher returns the broker as a report publisher, or nil.
func (r *BackendResult) Publisher() services.ReportPublisher {
	if r.Broker == nil {
		return nil
	}
	return r.Broker
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// AMQP, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export, optional
	GoogleSpreadsheetID      string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
