// Package usage enforces the per-user daily and monthly AI request quotas.
//
// Windows roll over lazily: every operation reconciles the stored counters
// against the current calendar date before reading them. Admission reserves
// a slot on the user record in the same compare-and-swap write that checks
// the quota, so concurrent requests from one user cannot both take the last
// slot. A reservation becomes a counted request only on Commit.
package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aiassist/core/internal/config"
	"github.com/aiassist/core/internal/models"
	"github.com/aiassist/core/internal/store"
	"github.com/google/uuid"
)

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

type Boundary string

const (
	BoundaryDaily   Boundary = "daily"
	BoundaryMonthly Boundary = "monthly"
)

type Limits struct {
	Daily   int `json:"daily"`
	Monthly int `json:"monthly"`
}

// Table maps a tier to its limits.
type Table struct {
	Free    Limits
	Premium Limits
}

func TableFromConfig(cfg config.AILimitsConfig) Table {
	return Table{
		Free:    Limits{Daily: cfg.DailyFree, Monthly: cfg.MonthlyFree},
		Premium: Limits{Daily: cfg.DailyPremium, Monthly: cfg.MonthlyPremium},
	}
}

func (t Table) For(u *models.User) (Tier, Limits) {
	if u.IsPremium() {
		return TierPremium, t.Premium
	}
	return TierFree, t.Free
}

// Snapshot is the derived quota view. It is recomputed on every request and
// never stored.
type Snapshot struct {
	CanMake          bool     `json:"canMake"`
	DailyRemaining   int      `json:"dailyRemaining"`
	MonthlyRemaining int      `json:"monthlyRemaining"`
	Limits           Limits   `json:"limits"`
	Tier             Tier     `json:"tier"`
	Boundary         Boundary `json:"boundary,omitempty"`
}

// Denial is returned when admission is refused. It is an expected outcome,
// not a failure of the gate.
type Denial struct {
	Snapshot Snapshot
}

func (d *Denial) Error() string {
	return fmt.Sprintf("%s usage limit exceeded", d.Snapshot.Boundary)
}

// IsDenial reports whether err is a quota denial and returns it.
func IsDenial(err error) (*Denial, bool) {
	var d *Denial
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

// Ticket identifies an admitted, not yet completed request.
type Ticket struct {
	UserID string
	ID     string
}

type Gate struct {
	users          store.UserStore
	table          Table
	loc            *time.Location
	reservationTTL time.Duration
	now            func() time.Time
}

type Option func(*Gate)

func WithLocation(loc *time.Location) Option {
	return func(g *Gate) {
		if loc != nil {
			g.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithReservationTTL bounds how long an admitted request may hold a slot
// without completing. It must exceed the provider timeout.
func WithReservationTTL(ttl time.Duration) Option {
	return func(g *Gate) {
		if ttl > 0 {
			g.reservationTTL = ttl
		}
	}
}

func NewGate(users store.UserStore, table Table, opts ...Option) *Gate {
	g := &Gate{
		users:          users,
		table:          table,
		loc:            time.Local,
		reservationTTL: 2 * time.Minute,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) clock() time.Time { return g.now().In(g.loc) }

func (g *Gate) reconcile(u models.Usage, now time.Time) models.Usage {
	return PruneReservations(ReconcileWindows(u, now), now, g.reservationTTL)
}

// SnapshotOf derives the quota view of an already loaded user without
// writing anything.
func (g *Gate) SnapshotOf(u *models.User) Snapshot {
	return g.snapshot(u, g.reconcile(u.Usage, g.clock()))
}

func (g *Gate) snapshot(u *models.User, usage models.Usage) Snapshot {
	tier, limits := g.table.For(u)
	inFlight := len(usage.InFlight)
	s := Snapshot{
		DailyRemaining:   max(0, limits.Daily-usage.DailyCount-inFlight),
		MonthlyRemaining: max(0, limits.Monthly-usage.MonthlyCount-inFlight),
		Limits:           limits,
		Tier:             tier,
	}
	switch {
	case s.DailyRemaining == 0:
		s.Boundary = BoundaryDaily
	case s.MonthlyRemaining == 0:
		s.Boundary = BoundaryMonthly
	default:
		s.CanMake = true
	}
	return s
}

// Check reconciles the windows, persists any rollover and returns the
// current snapshot.
func (g *Gate) Check(ctx context.Context, userID string) (Snapshot, *models.User, error) {
	var snap Snapshot
	u, err := store.MutateUser(ctx, g.users, userID, func(u *models.User) error {
		reconciled := g.reconcile(u.Usage, g.clock())
		snap = g.snapshot(u, reconciled)
		if !usageChanged(u.Usage, reconciled) {
			return store.ErrSkipWrite
		}
		u.Usage = reconciled
		return nil
	})
	if err != nil {
		return Snapshot{}, nil, err
	}
	return snap, u, nil
}

// Admit decides whether userID may start an AI request. On success the
// returned ticket must be passed to Commit or Release. A refusal is
// returned as *Denial.
func (g *Gate) Admit(ctx context.Context, userID string) (*Ticket, Snapshot, error) {
	var (
		snap   Snapshot
		ticket *Ticket
	)
	_, err := store.MutateUser(ctx, g.users, userID, func(u *models.User) error {
		now := g.clock()
		reconciled := g.reconcile(u.Usage, now)
		snap = g.snapshot(u, reconciled)
		ticket = nil
		if !snap.CanMake {
			if !usageChanged(u.Usage, reconciled) {
				return store.ErrSkipWrite
			}
			u.Usage = reconciled
			return nil
		}
		ticket = &Ticket{UserID: userID, ID: uuid.NewString()}
		reconciled.InFlight = models.PushBounded(reconciled.InFlight, models.Reservation{ID: ticket.ID, At: now}, 0)
		u.Usage = reconciled
		snap = g.snapshot(u, reconciled)
		return nil
	})
	if err != nil {
		return nil, Snapshot{}, err
	}
	if ticket == nil {
		return nil, snap, &Denial{Snapshot: snap}
	}
	return ticket, snap, nil
}

// Commit turns the reservation into a counted request.
func (g *Gate) Commit(ctx context.Context, t *Ticket) (Snapshot, error) {
	return g.increment(ctx, t.UserID, t.ID)
}

// Increment counts one completed request for a caller that holds no ticket.
func (g *Gate) Increment(ctx context.Context, userID string) (Snapshot, error) {
	return g.increment(ctx, userID, "")
}

func (g *Gate) increment(ctx context.Context, userID, reservationID string) (Snapshot, error) {
	var snap Snapshot
	_, err := store.MutateUser(ctx, g.users, userID, func(u *models.User) error {
		now := g.clock()
		reconciled := g.reconcile(u.Usage, now)
		if reservationID != "" {
			reconciled.InFlight, _ = models.RemoveWhere(reconciled.InFlight, func(r models.Reservation) bool {
				return r.ID == reservationID
			})
		}
		reconciled.DailyCount++
		reconciled.MonthlyCount++
		reconciled.TotalCount++
		reconciled.LastRequestAt = &now
		u.Usage = reconciled
		snap = g.snapshot(u, reconciled)
		return nil
	})
	return snap, err
}

// Release gives the reserved slot back without counting a request.
func (g *Gate) Release(ctx context.Context, t *Ticket) error {
	_, err := store.MutateUser(ctx, g.users, t.UserID, func(u *models.User) error {
		var removed bool
		u.Usage.InFlight, removed = models.RemoveWhere(u.Usage.InFlight, func(r models.Reservation) bool {
			return r.ID == t.ID
		})
		if !removed {
			return store.ErrSkipWrite
		}
		return nil
	})
	return err
}

// Reset clears both counters and restarts both windows.
func (g *Gate) Reset(ctx context.Context, userID string) (Snapshot, error) {
	var snap Snapshot
	_, err := store.MutateUser(ctx, g.users, userID, func(u *models.User) error {
		now := g.clock()
		u.Usage.DailyCount = 0
		u.Usage.MonthlyCount = 0
		u.Usage.LastDailyResetAt = now
		u.Usage.LastMonthlyResetAt = now
		u.Usage.InFlight = nil
		snap = g.snapshot(u, u.Usage)
		return nil
	})
	return snap, err
}
