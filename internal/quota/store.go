package quota

import (
	"context"
	"sync"
	"time"
)

// CredentialRecord is the persisted form of one credential. The secret is
// deliberately absent: the snapshot holds bookkeeping only.
type CredentialRecord struct {
	Name       string     `json:"name"`
	DailyQuota int64      `json:"daily_quota"`
	UsedQuota  int64      `json:"used_quota"`
	LastReset  time.Time  `json:"last_reset"`
	IsActive   bool       `json:"is_active"`
	ErrorCount int        `json:"error_count"`
	LastError  *time.Time `json:"last_error,omitempty"`
}

// AggregateTotals are the pool-wide counters read by external monitoring.
type AggregateTotals struct {
	TotalRequests      int64            `json:"total_requests"`
	TotalQuotaUsed     int64            `json:"total_quota_used"`
	RequestsByEndpoint map[string]int64 `json:"requests_by_endpoint"`
	QuotaByEndpoint    map[string]int64 `json:"quota_by_endpoint"`
	ErrorsByCredential map[string]int64 `json:"errors_by_credential"`
}

// Snapshot is the full persisted ledger state. The ledger is its sole writer.
type Snapshot struct {
	SavedAt     time.Time          `json:"saved_at"`
	Credentials []CredentialRecord `json:"credentials"`
	Totals      AggregateTotals    `json:"totals"`
	Events      []UsageEvent       `json:"events,omitempty"`
}

// Store persists ledger snapshots. Save is called synchronously on every
// ledger mutation, so implementations should be cheap; at most the single
// in-flight mutation may be lost on a crash.
type Store interface {
	// Load returns the last saved snapshot, or (nil, nil) when none exists.
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Close() error
}

// MemoryStore keeps the snapshot in process. Used in tests and when no
// persistence is configured.
type MemoryStore struct {
	mu   sync.Mutex
	snap *Snapshot
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load(_ context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, nil
}

func (s *MemoryStore) Save(_ context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	return nil
}

func (s *MemoryStore) Close() error { return nil }
