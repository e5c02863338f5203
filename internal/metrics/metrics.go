package metrics

import "sync"

// Event counter names.
const (
	Joins              = "joins"
	DuplicateJoins     = "duplicate_joins"
	Leaves             = "leaves"
	DisconnectCleanups = "disconnect_cleanups"
	ReadyBroadcasts    = "ready_broadcasts"
	SignalsForwarded   = "signals_forwarded"
	SignalsDropped     = "signals_dropped"
	ChatMessages       = "chat_messages"
	SendFailures       = "send_failures"
	MalformedEnvelopes = "malformed_envelopes"
	RateLimited        = "rate_limited"
	StaleReferences    = "stale_references"
	PresenceErrors     = "presence_errors"
	SessionsOpened     = "sessions_opened"
	SessionsClosed     = "sessions_closed"
)

// Metrics is a concurrency-safe counter registry.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

// Inc is safe to call on a nil *Metrics.
func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
