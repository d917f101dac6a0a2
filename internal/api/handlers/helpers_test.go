package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/api/middleware"
	"github.com/Togather-Foundation/rsvp/internal/api/problem"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/domain/accounts"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	auth.BcryptCost = bcrypt.MinCost
}

const (
	adaID   = "01HYX3KQW7ERTV9XNBM2P8QJZF"
	graceID = "01HYX3KQW7ERTV9XNBM2P8QJZG"
	eventID = "01HYX3KQW7ERTV9XNBM2P8QJZH"
	missing = "01HYX3KQW7ERTV9XNBM2P8QJZZ"
)

// serve routes one request through a mux registered with pattern, so path
// values resolve the way they do in the router. A non-nil caller is
// installed as the authenticated account.
func serve(t *testing.T, pattern string, h http.HandlerFunc, method, target, body string, caller *accounts.Account) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		if caller != nil {
			r = r.WithContext(middleware.WithAccount(r.Context(), caller))
		}
		h(w, r)
	})

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) problem.Response {
	t.Helper()
	return decode[problem.Response](t, rec)
}

// memAccounts is an in-memory accounts.Repository.
type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]*accounts.Account
	created  map[string]int64
	regs     map[string]int64
	upcoming map[string]int64
	err      error
}

func newMemAccounts() *memAccounts {
	return &memAccounts{
		accounts: map[string]*accounts.Account{},
		created:  map[string]int64{},
		regs:     map[string]int64{},
		upcoming: map[string]int64{},
	}
}

// seed stores an account with the given password hashed.
func (m *memAccounts) seed(t *testing.T, id, email, name, password string) *accounts.Account {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	account := &accounts.Account{ID: id, Email: email, Name: name, PasswordHash: hash, CreatedAt: time.Now().UTC()}
	m.mu.Lock()
	m.accounts[id] = account
	m.mu.Unlock()
	return account
}

func (m *memAccounts) Create(_ context.Context, params accounts.CreateParams) (*accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, a := range m.accounts {
		if a.Email == params.Email {
			return nil, accounts.ErrEmailTaken
		}
	}
	account := &accounts.Account{
		ID:           params.ID,
		Email:        params.Email,
		Name:         params.Name,
		PasswordHash: params.PasswordHash,
		CreatedAt:    time.Now().UTC(),
	}
	m.accounts[params.ID] = account
	return account, nil
}

func (m *memAccounts) GetByID(_ context.Context, id string) (*accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	a, ok := m.accounts[id]
	if !ok {
		return nil, accounts.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (m *memAccounts) GetByEmail(_ context.Context, email string) (*accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, a := range m.accounts {
		if a.Email == email {
			copied := *a
			return &copied, nil
		}
	}
	return nil, accounts.ErrNotFound
}

func (m *memAccounts) EmailTakenByOther(_ context.Context, email, accountID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == email && a.ID != accountID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memAccounts) UpdateProfile(_ context.Context, id, name, email string) (*accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, accounts.ErrNotFound
	}
	a.Name, a.Email = name, email
	copied := *a
	return &copied, nil
}

func (m *memAccounts) UpdatePassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return accounts.ErrNotFound
	}
	a.PasswordHash = hash
	return nil
}

func (m *memAccounts) CountEventsCreated(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created[id], m.err
}

func (m *memAccounts) CountRegistrations(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[id], m.err
}

func (m *memAccounts) CountUpcomingRegistrations(_ context.Context, id string, _ time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upcoming[id], m.err
}

// memEvents is an in-memory events.Repository. Occupancy fields are left
// as stored.
type memEvents struct {
	mu     sync.Mutex
	events map[string]*events.Event
	err    error
}

func newMemEvents() *memEvents {
	return &memEvents{events: map[string]*events.Event{}}
}

func (m *memEvents) put(e events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = &e
}

func (m *memEvents) Create(_ context.Context, params events.CreateParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events[params.ID] = &events.Event{
		ID:             params.ID,
		Title:          params.Input.Title,
		Description:    params.Input.Description,
		DateTime:       params.Input.DateTime,
		Location:       params.Input.Location,
		MaxCapacity:    params.Input.MaxCapacity,
		CreatedBy:      params.CreatedBy,
		CreatedAt:      time.Now().UTC(),
		AvailableSpots: params.Input.MaxCapacity,
	}
	return nil
}

func (m *memEvents) Get(_ context.Context, id string) (*events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	e, ok := m.events[id]
	if !ok {
		return nil, events.ErrNotFound
	}
	copied := *e
	return &copied, nil
}

func (m *memEvents) ListUpcoming(_ context.Context, now time.Time, filters events.Filters) ([]events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []events.Event
	for _, e := range m.events {
		if !e.DateTime.After(now) {
			continue
		}
		if filters.Location != "" && !strings.Contains(strings.ToLower(e.Location), strings.ToLower(filters.Location)) {
			continue
		}
		if filters.Query != "" && !strings.Contains(strings.ToLower(e.Title), strings.ToLower(filters.Query)) {
			continue
		}
		if filters.DateFrom != nil && e.DateTime.Before(*filters.DateFrom) {
			continue
		}
		if filters.DateTo != nil && e.DateTime.After(*filters.DateTo) {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateTime.Before(out[j].DateTime) })
	return out, nil
}

func (m *memEvents) ListByCreator(_ context.Context, creatorID string) ([]events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []events.Event
	for _, e := range m.events {
		if e.CreatedBy == creatorID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memEvents) GetCreator(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return "", events.ErrNotFound
	}
	return e.CreatedBy, nil
}

func (m *memEvents) Update(_ context.Context, id string, input events.Input) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return events.ErrNotFound
	}
	e.Title = input.Title
	e.Description = input.Description
	e.DateTime = input.DateTime
	e.Location = input.Location
	e.MaxCapacity = input.MaxCapacity
	return nil
}

func (m *memEvents) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return events.ErrNotFound
	}
	delete(m.events, id)
	return nil
}

// memRegistrations is an in-memory registrations.Repository. Its
// "transaction" is the repository itself and a mutex-free committer.
type memRegistrations struct {
	mu        sync.Mutex
	capacity  map[string]int
	regs      map[string]*registrations.Registration
	enqueued  []string
	committed int
}

func newMemRegistrations() *memRegistrations {
	return &memRegistrations{capacity: map[string]int{}, regs: map[string]*registrations.Registration{}}
}

func regKey(accountID, eventID string) string { return accountID + "/" + eventID }

type memTx struct{ repo *memRegistrations }

func (tx memTx) Commit(context.Context) error {
	tx.repo.mu.Lock()
	tx.repo.committed++
	tx.repo.mu.Unlock()
	return nil
}

func (memTx) Rollback(context.Context) error { return nil }

func (m *memRegistrations) BeginTx(context.Context) (registrations.Repository, registrations.TxCommitter, error) {
	return m, memTx{repo: m}, nil
}

func (m *memRegistrations) LockEvent(_ context.Context, eventID string) (registrations.EventSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	capacity, ok := m.capacity[eventID]
	if !ok {
		return registrations.EventSlot{}, registrations.ErrEventNotFound
	}
	return registrations.EventSlot{ID: eventID, MaxCapacity: capacity}, nil
}

func (m *memRegistrations) CountConfirmed(_ context.Context, eventID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.regs {
		if r.EventID == eventID {
			n++
		}
	}
	return n, nil
}

func (m *memRegistrations) Exists(_ context.Context, accountID, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.regs[regKey(accountID, eventID)]
	return ok, nil
}

func (m *memRegistrations) Create(_ context.Context, params registrations.CreateParams) (*registrations.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg := &registrations.Registration{
		ID:               params.ID,
		AccountID:        params.AccountID,
		EventID:          params.EventID,
		RegistrationDate: time.Now().UTC(),
		Status:           params.Status,
	}
	m.regs[regKey(params.AccountID, params.EventID)] = reg
	return reg, nil
}

func (m *memRegistrations) EnqueueConfirmation(_ context.Context, registrationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = append(m.enqueued, registrationID)
	return nil
}

func (m *memRegistrations) Delete(_ context.Context, accountID, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := regKey(accountID, eventID)
	if _, ok := m.regs[key]; !ok {
		return registrations.ErrNotFound
	}
	delete(m.regs, key)
	return nil
}

func (m *memRegistrations) ListForAccount(_ context.Context, accountID string) ([]registrations.AccountRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []registrations.AccountRegistration
	for _, r := range m.regs {
		if r.AccountID == accountID {
			out = append(out, registrations.AccountRegistration{Registration: *r})
		}
	}
	return out, nil
}

var testLogger = zerolog.Nop()
