package quota

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Sentinel errors for ledger operations.
var (
	ErrInsufficientQuota = errors.New("quota: insufficient quota on credential")
	ErrNoCredential      = errors.New("quota: no eligible credential")
	ErrUnknownCredential = errors.New("quota: unknown credential")
	ErrInactiveCred      = errors.New("quota: credential is inactive")
)

const (
	// A credential goes inactive after this many consecutive error commits.
	maxConsecutiveErrors = 5
	// Usage events older than this are pruned on commit.
	eventRetention = 7 * 24 * time.Hour
)

// resetLocation is the provider's canonical quota-day timezone. The quota
// day rolls over at midnight Pacific regardless of local server time.
var resetLocation = func() *time.Location {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		return time.FixedZone("PT", -8*3600)
	}
	return loc
}()

// Credential is one API key identity with its own daily budget. The secret
// never leaves this package except through SelectBestCredential, and is
// never persisted or logged in full.
type Credential struct {
	Name              string
	Secret            string
	DailyQuota        int64
	ConsumedToday     int64
	LastReset         time.Time
	Active            bool
	ConsecutiveErrors int
	LastError         *time.Time
}

// Remaining returns the unspent units of the daily budget.
func (c *Credential) Remaining() int64 {
	r := c.DailyQuota - c.ConsumedToday
	if r < 0 {
		return 0
	}
	return r
}

// Usage is the point-in-time view of one credential's budget.
type Usage struct {
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"`
	Limit     int64 `json:"limit"`
}

// Outcome of one committed call attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// UsageEvent is the append-only record of one attempted call. Never mutated.
type UsageEvent struct {
	ID         string    `json:"id"`
	Credential string    `json:"credential"`
	Endpoint   string    `json:"endpoint"`
	Units      int64     `json:"units"`
	Timestamp  time.Time `json:"timestamp"`
	Outcome    Outcome   `json:"outcome"`
}

// Reservation is a provisional deduction made before a call is attempted.
// It must be committed exactly once, success or error.
type Reservation struct {
	ID         string
	Credential string
	Endpoint   string
	Units      int64

	committed bool
}

// CredentialStatus is the operator-facing view of one credential.
type CredentialStatus struct {
	Name       string     `json:"name"`
	Used       int64      `json:"used"`
	Remaining  int64      `json:"remaining"`
	Limit      int64      `json:"limit"`
	Active     bool       `json:"active"`
	ErrorCount int        `json:"error_count"`
	LastReset  time.Time  `json:"last_reset"`
	LastError  *time.Time `json:"last_error,omitempty"`
}

// Summary aggregates the whole pool for monitoring and pre-flight checks.
type Summary struct {
	TotalQuota     int64              `json:"total_quota"`
	TotalUsed      int64              `json:"total_used"`
	TotalRemaining int64              `json:"total_remaining"`
	TotalRequests  int64              `json:"total_requests"`
	Credentials    []CredentialStatus `json:"credentials"`
}

// Ledger owns all credential state and usage history. It is the sole
// mutator of quota and the sole writer of its persisted form. One mutex
// serializes select, reserve, commit and the daily reset check; network
// I/O never runs under it.
type Ledger struct {
	mu    sync.Mutex
	creds map[string]*Credential
	names []string // stable iteration order

	events []UsageEvent

	totalRequests      int64
	totalUnits         int64
	requestsByEndpoint map[string]int64
	unitsByEndpoint    map[string]int64
	errorsByCredential map[string]int64

	store Store
	now   func() time.Time
}

// NewLedger builds a ledger for the given name→secret credential map,
// restores persisted bookkeeping from the store, and applies the daily
// reset check once. Credentials present in the store but absent from the
// configuration are dropped; new credentials start with a fresh budget.
func NewLedger(ctx context.Context, store Store, secrets map[string]string, dailyQuota int64) (*Ledger, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	l := &Ledger{
		creds:              make(map[string]*Credential, len(secrets)),
		requestsByEndpoint: make(map[string]int64),
		unitsByEndpoint:    make(map[string]int64),
		errorsByCredential: make(map[string]int64),
		store:              store,
		now:                time.Now,
	}

	for name, secret := range secrets {
		l.creds[name] = &Credential{
			Name:       name,
			Secret:     secret,
			DailyQuota: dailyQuota,
			LastReset:  l.now().UTC(),
			Active:     true,
		}
		l.names = append(l.names, name)
	}
	sort.Strings(l.names)

	snap, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		l.restore(snap)
	}

	l.mu.Lock()
	l.checkDailyReset()
	l.persist()
	l.mu.Unlock()

	log.Info().Int("credentials", len(l.creds)).Int64("daily_quota", dailyQuota).Msg("Quota ledger initialized")
	return l, nil
}

func (l *Ledger) restore(snap *Snapshot) {
	for _, rec := range snap.Credentials {
		c, ok := l.creds[rec.Name]
		if !ok {
			log.Warn().Str("credential", rec.Name).Msg("Persisted credential no longer configured, dropping")
			continue
		}
		if rec.DailyQuota > 0 {
			c.DailyQuota = rec.DailyQuota
		}
		c.ConsumedToday = rec.UsedQuota
		if c.ConsumedToday > c.DailyQuota {
			c.ConsumedToday = c.DailyQuota
		}
		c.LastReset = rec.LastReset
		c.Active = rec.IsActive
		c.ConsecutiveErrors = rec.ErrorCount
		c.LastError = rec.LastError
	}
	l.totalRequests = snap.Totals.TotalRequests
	l.totalUnits = snap.Totals.TotalQuotaUsed
	for k, v := range snap.Totals.RequestsByEndpoint {
		l.requestsByEndpoint[k] = v
	}
	for k, v := range snap.Totals.QuotaByEndpoint {
		l.unitsByEndpoint[k] = v
	}
	for k, v := range snap.Totals.ErrorsByCredential {
		l.errorsByCredential[k] = v
	}
	l.events = append(l.events, snap.Events...)
}

// SetClock overrides the ledger's time source. Test hook.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// lastResetBoundary returns the most recent midnight of the provider's
// quota day at or before now.
func lastResetBoundary(now time.Time) time.Time {
	n := now.In(resetLocation)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, resetLocation)
}

// checkDailyReset lazily rolls every credential whose LastReset predates
// the current quota-day boundary. Must be called with the lock held.
func (l *Ledger) checkDailyReset() {
	boundary := lastResetBoundary(l.now())
	for _, name := range l.names {
		c := l.creds[name]
		if c.LastReset.Before(boundary) {
			c.ConsumedToday = 0
			c.ConsecutiveErrors = 0
			c.Active = true
			c.LastReset = l.now().UTC()
			log.Info().Str("credential", c.Name).Msg("Daily quota reset applied")
		}
	}
}

// persist writes the current snapshot synchronously. Must be called with
// the lock held. A store failure is logged, never fatal: at worst the
// single in-flight mutation is lost on a crash.
func (l *Ledger) persist() {
	snap := l.snapshotLocked()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.store.Save(ctx, snap); err != nil {
		log.Error().Err(err).Msg("Failed to persist quota ledger")
	}
}

func (l *Ledger) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		SavedAt: l.now().UTC(),
		Totals: AggregateTotals{
			TotalRequests:      l.totalRequests,
			TotalQuotaUsed:     l.totalUnits,
			RequestsByEndpoint: copyCounts(l.requestsByEndpoint),
			QuotaByEndpoint:    copyCounts(l.unitsByEndpoint),
			ErrorsByCredential: copyCounts(l.errorsByCredential),
		},
	}
	for _, name := range l.names {
		c := l.creds[name]
		snap.Credentials = append(snap.Credentials, CredentialRecord{
			Name:       c.Name,
			DailyQuota: c.DailyQuota,
			UsedQuota:  c.ConsumedToday,
			LastReset:  c.LastReset,
			IsActive:   c.Active,
			ErrorCount: c.ConsecutiveErrors,
			LastError:  c.LastError,
		})
	}
	snap.Events = append(snap.Events, l.events...)
	return snap
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CurrentUsage returns the budget view for one credential after applying
// the daily reset check.
func (l *Ledger) CurrentUsage(name string) (Usage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkDailyReset()

	c, ok := l.creds[name]
	if !ok {
		return Usage{}, ErrUnknownCredential
	}
	return Usage{Used: c.ConsumedToday, Remaining: c.Remaining(), Limit: c.DailyQuota}, nil
}

// CanReserve reports whether the named credential could cover units right now.
func (l *Ledger) CanReserve(name string, units int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkDailyReset()

	c, ok := l.creds[name]
	return ok && c.Active && c.Remaining() >= units
}

// Reserve atomically deducts units from the named credential. It is the
// only operation that spends quota; ConsumedToday never exceeds DailyQuota
// because the check and the increment happen under one lock.
func (l *Ledger) Reserve(name, endpoint string, units int64) (*Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkDailyReset()

	c, ok := l.creds[name]
	if !ok {
		return nil, ErrUnknownCredential
	}
	if !c.Active {
		return nil, ErrInactiveCred
	}
	if c.Remaining() < units {
		return nil, ErrInsufficientQuota
	}
	c.ConsumedToday += units
	l.persist()

	return &Reservation{
		ID:         uuid.New().String(),
		Credential: name,
		Endpoint:   endpoint,
		Units:      units,
	}, nil
}

// Commit finalizes a reservation. Quota stays charged regardless of
// outcome, mirroring how the provider bills failed calls. An error
// outcome bumps the credential's consecutive error count and deactivates
// it at the threshold; a success outcome clears the count.
func (l *Ledger) Commit(res *Reservation, outcome Outcome) {
	if res == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if res.committed {
		return
	}
	res.committed = true
	l.checkDailyReset()

	now := l.now().UTC()
	l.totalRequests++
	l.totalUnits += res.Units
	l.requestsByEndpoint[res.Endpoint]++
	l.unitsByEndpoint[res.Endpoint] += res.Units

	if c, ok := l.creds[res.Credential]; ok {
		if outcome == OutcomeError {
			c.ConsecutiveErrors++
			t := now
			c.LastError = &t
			l.errorsByCredential[res.Credential]++
			if c.ConsecutiveErrors >= maxConsecutiveErrors && c.Active {
				c.Active = false
				log.Warn().Str("credential", c.Name).Int("errors", c.ConsecutiveErrors).
					Msg("Credential deactivated after consecutive errors")
			}
		} else {
			c.ConsecutiveErrors = 0
		}
	}

	l.events = append(l.events, UsageEvent{
		ID:         uuid.New().String(),
		Credential: res.Credential,
		Endpoint:   res.Endpoint,
		Units:      res.Units,
		Timestamp:  now,
		Outcome:    outcome,
	})
	l.pruneEvents(now)
	l.persist()
}

func (l *Ledger) pruneEvents(now time.Time) {
	cutoff := now.Add(-eventRetention)
	i := 0
	for i < len(l.events) && l.events[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		l.events = append([]UsageEvent(nil), l.events[i:]...)
	}
}

// SelectBestCredential picks the active credential with the most remaining
// quota that can cover the required units, ties broken by the lowest
// consecutive error count. The returned value is a copy; ok is false when
// nothing qualifies, which callers must treat as a hard stop.
func (l *Ledger) SelectBestCredential(endpoint string, required int64) (Credential, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkDailyReset()

	var best *Credential
	for _, name := range l.names {
		c := l.creds[name]
		if !c.Active || c.Remaining() < required {
			continue
		}
		if best == nil ||
			c.Remaining() > best.Remaining() ||
			(c.Remaining() == best.Remaining() && c.ConsecutiveErrors < best.ConsecutiveErrors) {
			best = c
		}
	}
	if best == nil {
		return Credential{}, false
	}
	return *best, true
}

// Deactivate takes a credential out of rotation immediately, independent
// of the consecutive-error threshold. Used for auth failures.
func (l *Ledger) Deactivate(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.creds[name]
	if !ok || !c.Active {
		return
	}
	c.Active = false
	t := l.now().UTC()
	c.LastError = &t
	l.persist()
	log.Warn().Str("credential", name).Msg("Credential deactivated")
}

// MarkExhausted drains a credential's budget for the rest of the quota
// day. Applied when the provider reports quotaExceeded even though the
// local ledger believed units remained.
func (l *Ledger) MarkExhausted(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.creds[name]
	if !ok {
		return
	}
	c.ConsumedToday = c.DailyQuota
	l.persist()
	log.Warn().Str("credential", name).Msg("Credential marked quota-exhausted by provider")
}

// ResetCredential explicitly restores a credential to a fresh state.
func (l *Ledger) ResetCredential(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.creds[name]
	if !ok {
		return ErrUnknownCredential
	}
	c.ConsumedToday = 0
	c.ConsecutiveErrors = 0
	c.Active = true
	c.LastReset = l.now().UTC()
	l.persist()
	return nil
}

// TotalRemaining sums the remaining quota across all active credentials.
func (l *Ledger) TotalRemaining() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkDailyReset()

	var total int64
	for _, name := range l.names {
		c := l.creds[name]
		if c.Active {
			total += c.Remaining()
		}
	}
	return total
}

// GetSummary returns the operator-facing aggregate view.
func (l *Ledger) GetSummary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkDailyReset()

	s := Summary{TotalRequests: l.totalRequests}
	for _, name := range l.names {
		c := l.creds[name]
		s.TotalQuota += c.DailyQuota
		s.TotalUsed += c.ConsumedToday
		if c.Active {
			s.TotalRemaining += c.Remaining()
		}
		s.Credentials = append(s.Credentials, CredentialStatus{
			Name:       c.Name,
			Used:       c.ConsumedToday,
			Remaining:  c.Remaining(),
			Limit:      c.DailyQuota,
			Active:     c.Active,
			ErrorCount: c.ConsecutiveErrors,
			LastReset:  c.LastReset,
			LastError:  c.LastError,
		})
	}
	return s
}

// Events returns a copy of the retained usage events, oldest first.
func (l *Ledger) Events() []UsageEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]UsageEvent(nil), l.events...)
}

// Close flushes the final snapshot and releases the store.
func (l *Ledger) Close(ctx context.Context) error {
	l.mu.Lock()
	snap := l.snapshotLocked()
	l.mu.Unlock()

	if err := l.store.Save(ctx, snap); err != nil {
		return err
	}
	return l.store.Close()
}
