package logsource

import "github.com/tinytelemetry/hasura-metrics-adapter/internal/model"

// LogSource is the contract between log inputs and the ingest pipeline.
type LogSource interface {
	Lines() <-chan model.IngestEnvelope // read-only channel of log lines
	Stop()                              // graceful shutdown
	Name() string                       // "file"
}
