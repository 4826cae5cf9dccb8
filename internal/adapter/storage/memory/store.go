// Package memory is an in-process implementation of the repositories.
// Units of work are serialized by one mutex and applied copy-on-write,
// so a failed unit leaves no trace. Used by tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
)

type state struct {
	chargers map[string]domain.Charger
	bookings map[string]domain.Booking
	sessions map[string]domain.ChargingSession
	wallets  map[string]domain.Wallet // by user id
	walletTx []domain.WalletTransaction
}

func newState() *state {
	return &state{
		chargers: make(map[string]domain.Charger),
		bookings: make(map[string]domain.Booking),
		sessions: make(map[string]domain.ChargingSession),
		wallets:  make(map[string]domain.Wallet),
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.chargers {
		c.chargers[k] = v
	}
	for k, v := range st.bookings {
		c.bookings[k] = v
	}
	for k, v := range st.sessions {
		c.sessions[k] = v
	}
	for k, v := range st.wallets {
		c.wallets[k] = v
	}
	c.walletTx = append([]domain.WalletTransaction(nil), st.walletTx...)
	return c
}

type faults struct {
	mu  sync.Mutex
	ops map[string]error
}

// Store implements ports.UnitOfWork in memory
type Store struct {
	mu     *sync.Mutex
	state  *state
	isTx   bool
	faults *faults
}

var _ ports.UnitOfWork = (*Store)(nil)

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		mu:     &sync.Mutex{},
		state:  newState(),
		faults: &faults{ops: make(map[string]error)},
	}
}

// WithTx runs fn against a private copy of the data and publishes it only if fn succeeds
func (s *Store) WithTx(ctx context.Context, fn func(ports.Repositories) error) error {
	if s.isTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	child := &Store{mu: s.mu, state: s.state.clone(), isTx: true, faults: s.faults}
	if err := fn(child); err != nil {
		return err
	}
	if err := s.fault("commit"); err != nil {
		return domain.StorageFailure("commit", err)
	}
	s.state = child.state
	return nil
}

// FailOn makes the next call of op return err. op is "<repo>.<Method>" or "commit".
func (s *Store) FailOn(op string, err error) {
	s.faults.mu.Lock()
	defer s.faults.mu.Unlock()
	s.faults.ops[op] = err
}

func (s *Store) fault(op string) error {
	s.faults.mu.Lock()
	defer s.faults.mu.Unlock()
	if err, ok := s.faults.ops[op]; ok {
		delete(s.faults.ops, op)
		return err
	}
	return nil
}

// view runs fn on the data this handle sees. Outside a transaction it takes the store lock.
func (s *Store) view(op string, fn func(st *state) error) error {
	if !s.isTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	if err := s.fault(op); err != nil {
		return err
	}
	return fn(s.state)
}

func (s *Store) Chargers() ports.ChargerRepository { return chargerRepo{s} }
func (s *Store) Bookings() ports.BookingRepository { return bookingRepo{s} }
func (s *Store) Sessions() ports.SessionRepository { return sessionRepo{s} }
func (s *Store) Wallets() ports.WalletRepository   { return walletRepo{s} }

type chargerRepo struct{ s *Store }

func (r chargerRepo) Save(_ context.Context, c *domain.Charger) error {
	return r.s.view("chargers.Save", func(st *state) error {
		st.chargers[c.ID] = *c
		return nil
	})
}

func (r chargerRepo) FindByID(_ context.Context, id string) (*domain.Charger, error) {
	var out *domain.Charger
	err := r.s.view("chargers.FindByID", func(st *state) error {
		if c, ok := st.chargers[id]; ok {
			out = &c
		}
		return nil
	})
	return out, err
}

func (r chargerRepo) FindByIDForUpdate(ctx context.Context, id string) (*domain.Charger, error) {
	return r.FindByID(ctx, id)
}

func (r chargerRepo) UpdateStatus(_ context.Context, id string, status domain.ChargerStatus) error {
	return r.s.view("chargers.UpdateStatus", func(st *state) error {
		if c, ok := st.chargers[id]; ok {
			c.Status = status
			c.UpdatedAt = time.Now()
			st.chargers[id] = c
		}
		return nil
	})
}

type bookingRepo struct{ s *Store }

func (r bookingRepo) Save(_ context.Context, b *domain.Booking) error {
	return r.s.view("bookings.Save", func(st *state) error {
		st.bookings[b.ID] = *b
		return nil
	})
}

func (r bookingRepo) FindByID(_ context.Context, id string) (*domain.Booking, error) {
	var out *domain.Booking
	err := r.s.view("bookings.FindByID", func(st *state) error {
		if b, ok := st.bookings[id]; ok {
			out = &b
		}
		return nil
	})
	return out, err
}

func (r bookingRepo) FindByIDForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	return r.FindByID(ctx, id)
}

func (r bookingRepo) CountOverlapping(_ context.Context, chargerID string, start, end time.Time, excludeID string) (int, error) {
	n := 0
	err := r.s.view("bookings.CountOverlapping", func(st *state) error {
		for _, b := range st.bookings {
			if b.ID != excludeID && st.bookingHoldsPort(&b, chargerID, start, end) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r bookingRepo) FindOverlapping(_ context.Context, chargerID string, start, end time.Time) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.s.view("bookings.FindOverlapping", func(st *state) error {
		for _, b := range st.bookings {
			if st.bookingHoldsPort(&b, chargerID, start, end) {
				out = append(out, b)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return byStart(&out[i], &out[j]) })
	return out, nil
}

// bookingHoldsPort reports whether b occupies a port on chargerID within
// [start, end). A booking being charged is left to its open session.
func (st *state) bookingHoldsPort(b *domain.Booking, chargerID string, start, end time.Time) bool {
	if b.ChargerID != chargerID || !b.Status.IsOccupying() || !b.Overlaps(start, end) {
		return false
	}
	for _, cs := range st.sessions {
		if cs.BookingID != nil && *cs.BookingID == b.ID && cs.Status.IsOpen() {
			return false
		}
	}
	return true
}

func (r bookingRepo) FindPreemptible(_ context.Context, chargerID string, start, end time.Time, limit int) ([]domain.Booking, error) {
	out, err := r.filter("bookings.FindPreemptible", func(b *domain.Booking) bool {
		return b.ChargerID == chargerID &&
			b.Status == domain.BookingStatusReserved &&
			b.Priority == domain.BookingPriorityNormal &&
			b.Overlaps(start, end)
	}, byCreated)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r bookingRepo) FindByUserID(_ context.Context, userID string, status domain.BookingStatus, limit, offset int) ([]domain.Booking, error) {
	out, err := r.filter("bookings.FindByUserID", func(b *domain.Booking) bool {
		return b.UserID == userID && (status == "" || b.Status == status)
	}, byCreatedDesc)
	if err != nil {
		return nil, err
	}
	return page(out, limit, offset), nil
}

func (r bookingRepo) FindByChargerID(_ context.Context, chargerID string, from, to time.Time) ([]domain.Booking, error) {
	return r.filter("bookings.FindByChargerID", func(b *domain.Booking) bool {
		return b.ChargerID == chargerID && b.Overlaps(from, to)
	}, byStart)
}

func (r bookingRepo) FindPendingCreatedBefore(_ context.Context, cutoff time.Time) ([]domain.Booking, error) {
	return r.filter("bookings.FindPendingCreatedBefore", func(b *domain.Booking) bool {
		return b.Status == domain.BookingStatusPending && b.CreatedAt.Before(cutoff)
	}, byCreated)
}

func (r bookingRepo) FindOverrun(_ context.Context, now time.Time) ([]domain.Booking, error) {
	return r.filter("bookings.FindOverrun", func(b *domain.Booking) bool {
		return b.Status.IsOccupying() && b.EndTime.Before(now)
	}, byStart)
}

func (r bookingRepo) filter(op string, keep func(*domain.Booking) bool, less func(a, b *domain.Booking) bool) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.s.view(op, func(st *state) error {
		for _, b := range st.bookings {
			if keep(&b) {
				out = append(out, b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return less(&out[i], &out[j]) })
	return out, err
}

func byStart(a, b *domain.Booking) bool {
	if a.StartTime.Equal(b.StartTime) {
		return a.ID < b.ID
	}
	return a.StartTime.Before(b.StartTime)
}

func byCreated(a, b *domain.Booking) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func byCreatedDesc(a, b *domain.Booking) bool { return byCreated(b, a) }

type sessionRepo struct{ s *Store }

func (r sessionRepo) Save(_ context.Context, cs *domain.ChargingSession) error {
	return r.s.view("sessions.Save", func(st *state) error {
		st.sessions[cs.ID] = *cs
		return nil
	})
}

func (r sessionRepo) FindByID(_ context.Context, id string) (*domain.ChargingSession, error) {
	var out *domain.ChargingSession
	err := r.s.view("sessions.FindByID", func(st *state) error {
		if cs, ok := st.sessions[id]; ok {
			out = &cs
		}
		return nil
	})
	return out, err
}

func (r sessionRepo) FindByIDForUpdate(ctx context.Context, id string) (*domain.ChargingSession, error) {
	return r.FindByID(ctx, id)
}

func (r sessionRepo) FindOpenByBookingID(_ context.Context, bookingID string) (*domain.ChargingSession, error) {
	out, err := r.filter("sessions.FindOpenByBookingID", func(cs *domain.ChargingSession) bool {
		return cs.BookingID != nil && *cs.BookingID == bookingID && cs.Status.IsOpen()
	})
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return &out[0], nil
}

func (r sessionRepo) FindOpenByUserID(_ context.Context, userID string) ([]domain.ChargingSession, error) {
	return r.filter("sessions.FindOpenByUserID", func(cs *domain.ChargingSession) bool {
		return cs.UserID == userID && cs.Status.IsOpen()
	})
}

func (r sessionRepo) CountOccupying(_ context.Context, chargerID string, start, end, now time.Time, excludeBookingID string) (int, error) {
	out, err := r.filter("sessions.CountOccupying", func(cs *domain.ChargingSession) bool {
		if excludeBookingID != "" && cs.BookingID != nil && *cs.BookingID == excludeBookingID {
			return false
		}
		return cs.ChargerID == chargerID && cs.HoldsPortAt(start, end, now)
	})
	return len(out), err
}

func (r sessionRepo) FindOccupying(_ context.Context, chargerID string, start, end, now time.Time) ([]domain.ChargingSession, error) {
	return r.filter("sessions.FindOccupying", func(cs *domain.ChargingSession) bool {
		return cs.ChargerID == chargerID && cs.HoldsPortAt(start, end, now)
	})
}

func (r sessionRepo) FindHistoryByUserID(_ context.Context, userID string, limit, offset int) ([]domain.ChargingSession, error) {
	out, err := r.filter("sessions.FindHistoryByUserID", func(cs *domain.ChargingSession) bool {
		return cs.UserID == userID
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return page(out, limit, offset), nil
}

func (r sessionRepo) FindCompletedByChargerID(_ context.Context, chargerID string, from, to time.Time) ([]domain.ChargingSession, error) {
	return r.filter("sessions.FindCompletedByChargerID", func(cs *domain.ChargingSession) bool {
		return cs.ChargerID == chargerID && cs.Status == domain.SessionStatusCompleted &&
			!cs.StartTime.Before(from) && cs.StartTime.Before(to)
	})
}

func (r sessionRepo) FindCompletedByUserID(_ context.Context, userID string) ([]domain.ChargingSession, error) {
	return r.filter("sessions.FindCompletedByUserID", func(cs *domain.ChargingSession) bool {
		return cs.UserID == userID && cs.Status == domain.SessionStatusCompleted
	})
}

func (r sessionRepo) filter(op string, keep func(*domain.ChargingSession) bool) ([]domain.ChargingSession, error) {
	var out []domain.ChargingSession
	err := r.s.view(op, func(st *state) error {
		for _, cs := range st.sessions {
			if keep(&cs) {
				out = append(out, cs)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, err
}

type walletRepo struct{ s *Store }

func (r walletRepo) FindByUserID(_ context.Context, userID string) (*domain.Wallet, error) {
	var out *domain.Wallet
	err := r.s.view("wallets.FindByUserID", func(st *state) error {
		if w, ok := st.wallets[userID]; ok {
			out = &w
		}
		return nil
	})
	return out, err
}

func (r walletRepo) FindByUserIDForUpdate(ctx context.Context, userID string) (*domain.Wallet, error) {
	return r.FindByUserID(ctx, userID)
}

func (r walletRepo) Save(_ context.Context, w *domain.Wallet) error {
	return r.s.view("wallets.Save", func(st *state) error {
		st.wallets[w.UserID] = *w
		return nil
	})
}

func (r walletRepo) Ensure(_ context.Context, w *domain.Wallet) error {
	return r.s.view("wallets.Ensure", func(st *state) error {
		if _, ok := st.wallets[w.UserID]; !ok {
			st.wallets[w.UserID] = *w
		}
		return nil
	})
}

func (r walletRepo) AppendTransaction(_ context.Context, tx *domain.WalletTransaction) error {
	return r.s.view("wallets.AppendTransaction", func(st *state) error {
		st.walletTx = append(st.walletTx, *tx)
		return nil
	})
}

func (r walletRepo) FindTransactions(_ context.Context, userID string, limit, offset int) ([]domain.WalletTransaction, error) {
	var out []domain.WalletTransaction
	err := r.s.view("wallets.FindTransactions", func(st *state) error {
		for i := len(st.walletTx) - 1; i >= 0; i-- {
			if st.walletTx[i].UserID == userID {
				out = append(out, st.walletTx[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page(out, limit, offset), nil
}

func (r walletRepo) SumTransactions(_ context.Context, userID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	err := r.s.view("wallets.SumTransactions", func(st *state) error {
		for _, tx := range st.walletTx {
			if tx.UserID == userID {
				sum = sum.Add(tx.Amount)
			}
		}
		return nil
	})
	return sum, err
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
