package registrations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// memoryStore mimics the database: committed rows plus a row lock per event.
type memoryStore struct {
	mu         sync.Mutex
	capacity   map[string]int
	eventLocks map[string]*sync.Mutex
	rows       []Registration
	jobs       []string
	enqueueErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		capacity:   make(map[string]int),
		eventLocks: make(map[string]*sync.Mutex),
	}
}

func (s *memoryStore) addEvent(id string, capacity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capacity[id] = capacity
	s.eventLocks[id] = &sync.Mutex{}
}

func (s *memoryStore) confirmed(eventID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if r.EventID == eventID && r.Status == StatusConfirmed {
			n++
		}
	}
	return n
}

type memoryTx struct {
	store   *memoryStore
	locked  []*sync.Mutex
	pending []Registration
	jobs    []string
	done    bool
}

func (t *memoryTx) Commit(context.Context) error {
	if t.done {
		return errors.New("tx already closed")
	}
	t.store.mu.Lock()
	t.store.rows = append(t.store.rows, t.pending...)
	t.store.jobs = append(t.store.jobs, t.jobs...)
	t.store.mu.Unlock()
	t.finish()
	return nil
}

func (t *memoryTx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *memoryTx) finish() {
	t.done = true
	for _, l := range t.locked {
		l.Unlock()
	}
	t.locked = nil
}

type memoryRepo struct {
	store *memoryStore
	tx    *memoryTx
}

func (r *memoryRepo) BeginTx(context.Context) (Repository, TxCommitter, error) {
	tx := &memoryTx{store: r.store}
	return &memoryRepo{store: r.store, tx: tx}, tx, nil
}

func (r *memoryRepo) LockEvent(_ context.Context, eventID string) (EventSlot, error) {
	r.store.mu.Lock()
	lock, ok := r.store.eventLocks[eventID]
	capacity := r.store.capacity[eventID]
	r.store.mu.Unlock()
	if !ok {
		return EventSlot{}, ErrEventNotFound
	}
	lock.Lock()
	r.tx.locked = append(r.tx.locked, lock)
	return EventSlot{ID: eventID, MaxCapacity: capacity}, nil
}

func (r *memoryRepo) visible() []Registration {
	r.store.mu.Lock()
	rows := append([]Registration(nil), r.store.rows...)
	r.store.mu.Unlock()
	if r.tx != nil {
		rows = append(rows, r.tx.pending...)
	}
	return rows
}

func (r *memoryRepo) CountConfirmed(_ context.Context, eventID string) (int, error) {
	n := 0
	for _, row := range r.visible() {
		if row.EventID == eventID && row.Status == StatusConfirmed {
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) Exists(_ context.Context, accountID, eventID string) (bool, error) {
	for _, row := range r.visible() {
		if row.AccountID == accountID && row.EventID == eventID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) Create(_ context.Context, params CreateParams) (*Registration, error) {
	reg := Registration{
		ID:               params.ID,
		AccountID:        params.AccountID,
		EventID:          params.EventID,
		Status:           params.Status,
		RegistrationDate: time.Now(),
	}
	r.tx.pending = append(r.tx.pending, reg)
	return &reg, nil
}

func (r *memoryRepo) EnqueueConfirmation(_ context.Context, registrationID string) error {
	if r.store.enqueueErr != nil {
		return r.store.enqueueErr
	}
	r.tx.jobs = append(r.tx.jobs, registrationID)
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, accountID, eventID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for i, row := range r.store.rows {
		if row.AccountID == accountID && row.EventID == eventID {
			r.store.rows = append(r.store.rows[:i], r.store.rows[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (r *memoryRepo) ListForAccount(_ context.Context, accountID string) ([]AccountRegistration, error) {
	var out []AccountRegistration
	for _, row := range r.visible() {
		if row.AccountID == accountID {
			out = append(out, AccountRegistration{Registration: row})
		}
	}
	return out, nil
}

func newTestService(store *memoryStore) *Service {
	return NewService(&memoryRepo{store: store}, zerolog.Nop())
}

func TestRegisterConfirmsAndEnqueues(t *testing.T) {
	store := newMemoryStore()
	store.addEvent("e1", 2)
	svc := newTestService(store)

	reg, err := svc.Register(context.Background(), "e1", "alice")
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, reg.Status)
	require.Equal(t, "alice", reg.AccountID)
	require.Equal(t, "e1", reg.EventID)
	require.Len(t, reg.ID, 26)
	require.Equal(t, []string{reg.ID}, store.jobs)
	require.Equal(t, 1, store.confirmed("e1"))
}

func TestRegisterMissingEvent(t *testing.T) {
	svc := newTestService(newMemoryStore())
	_, err := svc.Register(context.Background(), "nope", "alice")
	require.ErrorIs(t, err, ErrEventNotFound)
}

func TestRegisterTwiceIsConflict(t *testing.T) {
	store := newMemoryStore()
	store.addEvent("e1", 5)
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Register(ctx, "e1", "alice")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "e1", "alice")
	require.ErrorIs(t, err, ErrAlreadyRegistered)
	require.Equal(t, 1, store.confirmed("e1"))
}

func TestRegisterFullEventInsertsNothing(t *testing.T) {
	store := newMemoryStore()
	store.addEvent("e1", 1)
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Register(ctx, "e1", "alice")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "e1", "bob")
	require.ErrorIs(t, err, ErrCapacityExceeded)
	require.Equal(t, 1, store.confirmed("e1"))
	require.Len(t, store.jobs, 1)
}

func TestCapacityCheckedBeforeDuplicate(t *testing.T) {
	store := newMemoryStore()
	store.addEvent("e1", 1)
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Register(ctx, "e1", "alice")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "e1", "alice")
	require.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestRegisterRollsBackWhenEnqueueFails(t *testing.T) {
	store := newMemoryStore()
	store.addEvent("e1", 1)
	store.enqueueErr = errors.New("queue unavailable")
	svc := newTestService(store)

	_, err := svc.Register(context.Background(), "e1", "alice")
	require.ErrorContains(t, err, "enqueue confirmation")
	require.Equal(t, 0, store.confirmed("e1"))

	store.enqueueErr = nil
	_, err = svc.Register(context.Background(), "e1", "alice")
	require.NoError(t, err, "event lock must be released after rollback")
}

func TestCapacityRoundTrip(t *testing.T) {
	const capacity = 3
	store := newMemoryStore()
	store.addEvent("e1", capacity)
	svc := newTestService(store)
	ctx := context.Background()

	for i := 0; i < capacity; i++ {
		_, err := svc.Register(ctx, "e1", fmt.Sprintf("acct-%d", i))
		require.NoError(t, err)
	}

	_, err := svc.Register(ctx, "e1", "late")
	require.ErrorIs(t, err, ErrCapacityExceeded)

	require.NoError(t, svc.Cancel(ctx, "e1", "acct-0"))

	_, err = svc.Register(ctx, "e1", "late")
	require.NoError(t, err)
	require.Equal(t, capacity, store.confirmed("e1"))
}

func TestConcurrentRegistrationsNeverOverrun(t *testing.T) {
	const (
		capacity = 5
		attempts = 50
	)
	store := newMemoryStore()
	store.addEvent("e1", capacity)
	svc := newTestService(store)

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		full      atomic.Int32
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Register(context.Background(), "e1", fmt.Sprintf("acct-%d", i))
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrCapacityExceeded):
				full.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, capacity, successes.Load())
	require.EqualValues(t, attempts-capacity, full.Load())
	require.Equal(t, capacity, store.confirmed("e1"))
}

func TestCancel(t *testing.T) {
	store := newMemoryStore()
	store.addEvent("e1", 2)
	svc := newTestService(store)
	ctx := context.Background()

	require.ErrorIs(t, svc.Cancel(ctx, "e1", "alice"), ErrNotFound)

	_, err := svc.Register(ctx, "e1", "alice")
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, "e1", "alice"))
	require.ErrorIs(t, svc.Cancel(ctx, "e1", "alice"), ErrNotFound)
}

func TestListForAccountRequiresSelf(t *testing.T) {
	store := newMemoryStore()
	store.addEvent("e1", 2)
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Register(ctx, "e1", "alice")
	require.NoError(t, err)

	_, err = svc.ListForAccount(ctx, "alice", "bob")
	require.ErrorIs(t, err, ErrForbidden)

	list, err := svc.ListForAccount(ctx, "alice", "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "e1", list[0].EventID)
}

func TestOutcomeOf(t *testing.T) {
	require.Equal(t, "confirmed", outcomeOf(nil))
	require.Equal(t, "capacity_exceeded", outcomeOf(ErrCapacityExceeded))
	require.Equal(t, "duplicate", outcomeOf(fmt.Errorf("wrapped: %w", ErrAlreadyRegistered)))
	require.Equal(t, "event_not_found", outcomeOf(ErrEventNotFound))
	require.Equal(t, "error", outcomeOf(errors.New("db down")))
}
