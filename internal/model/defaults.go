package model

import "time"

// Shared defaults used by the adapter binary and tests.
const (
	DefaultListenAddr = "0.0.0.0:9090"
	DefaultSleepTime  = 1000 * time.Millisecond
)

// Collector variant names. The exclusion list in configuration refers to
// collectors by these names.
const (
	CollectorQueryLog              = "query-log"
	CollectorHTTPLog               = "http-log"
	CollectorWebhookLog            = "webhook-log"
	CollectorWebsocketLog          = "websocket-log"
	CollectorCronTriggers          = "cron-triggers"
	CollectorEventTriggers         = "event-triggers"
	CollectorScheduledEvents       = "scheduled-events"
	CollectorMetadataInconsistency = "metadata-inconsistency"
)

// CollectorNames lists every known collector variant.
func CollectorNames() []string {
	return []string{
		CollectorQueryLog,
		CollectorHTTPLog,
		CollectorWebhookLog,
		CollectorWebsocketLog,
		CollectorCronTriggers,
		CollectorEventTriggers,
		CollectorScheduledEvents,
		CollectorMetadataInconsistency,
	}
}

// IngestEnvelope carries one raw log line from a source to processing.
type IngestEnvelope struct {
	Source string
	Line   string
}
