package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
	"github.com/Togather-Foundation/rsvp/internal/jobs"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recordingInserter struct {
	mu   sync.Mutex
	args []river.JobArgs
	err  error
}

func (r *recordingInserter) InsertTx(_ context.Context, _ pgx.Tx, args river.JobArgs, _ *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.args = append(r.args, args)
	return &rivertype.JobInsertResult{Job: &rivertype.JobRow{Kind: args.Kind()}}, nil
}

func countRegistrations(t *testing.T, ctx context.Context, repo *RegistrationRepository, eventID string) int {
	t.Helper()
	n, err := repo.CountConfirmed(ctx, eventID)
	require.NoError(t, err)
	return n
}

func TestRegistrationServiceAgainstPostgres(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)
	repo := &RegistrationRepository{pool: pool}
	inserter := &recordingInserter{}
	repo.SetJobInserter(inserter)
	svc := registrations.NewService(repo, zerolog.Nop())

	creator := insertAccount(t, ctx, pool, "Ada")
	alice := insertAccount(t, ctx, pool, "Alice")
	bob := insertAccount(t, ctx, pool, "Bob")
	eventID := insertEvent(t, ctx, pool, creator, "Tiny Room", "Berlin", 1, time.Now().Add(time.Hour))

	reg, err := svc.Register(ctx, eventID, alice)
	require.NoError(t, err)
	require.Equal(t, registrations.StatusConfirmed, reg.Status)
	require.Len(t, inserter.args, 1)
	require.Equal(t, jobs.RegistrationConfirmationArgs{RegistrationID: reg.ID}, inserter.args[0])

	_, err = svc.Register(ctx, eventID, bob)
	require.ErrorIs(t, err, registrations.ErrCapacityExceeded)
	require.Equal(t, 1, countRegistrations(t, ctx, repo, eventID))

	_, err = svc.Register(ctx, "01HYX3KQW7ERTV9XNBM2P8QJZZ", bob)
	require.ErrorIs(t, err, registrations.ErrEventNotFound)

	require.NoError(t, svc.Cancel(ctx, eventID, alice))
	require.ErrorIs(t, svc.Cancel(ctx, eventID, alice), registrations.ErrNotFound)

	_, err = svc.Register(ctx, eventID, bob)
	require.NoError(t, err)
}

func TestRegistrationRepositoryUniquePair(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)
	repo := &RegistrationRepository{pool: pool}

	creator := insertAccount(t, ctx, pool, "Ada")
	alice := insertAccount(t, ctx, pool, "Alice")
	eventID := insertEvent(t, ctx, pool, creator, "Meetup", "Berlin", 5, time.Now().Add(time.Hour))

	txRepo, committer, err := repo.BeginTx(ctx)
	require.NoError(t, err)
	_, err = txRepo.Create(ctx, registrations.CreateParams{ID: "01HYX3KQW7ERTV9XNBM2P8QJA1", AccountID: alice, EventID: eventID, Status: registrations.StatusConfirmed})
	require.NoError(t, err)
	require.NoError(t, committer.Commit(ctx))
	require.NoError(t, committer.Rollback(ctx), "rollback after commit is a no-op")

	txRepo, committer, err = repo.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = committer.Rollback(ctx) }()
	_, err = txRepo.Create(ctx, registrations.CreateParams{ID: "01HYX3KQW7ERTV9XNBM2P8QJA2", AccountID: alice, EventID: eventID, Status: registrations.StatusConfirmed})
	require.ErrorIs(t, err, registrations.ErrAlreadyRegistered)
}

func TestRegistrationRollsBackWhenJobInsertFails(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)
	repo := &RegistrationRepository{pool: pool}
	repo.SetJobInserter(&recordingInserter{err: errors.New("queue down")})
	svc := registrations.NewService(repo, zerolog.Nop())

	creator := insertAccount(t, ctx, pool, "Ada")
	alice := insertAccount(t, ctx, pool, "Alice")
	eventID := insertEvent(t, ctx, pool, creator, "Meetup", "Berlin", 5, time.Now().Add(time.Hour))

	_, err := svc.Register(ctx, eventID, alice)
	require.Error(t, err)
	require.Equal(t, 0, countRegistrations(t, ctx, repo, eventID))
}

func TestConcurrentRegistrationsForLastSpots(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)
	repo := &RegistrationRepository{pool: pool}
	svc := registrations.NewService(repo, zerolog.Nop())

	const (
		capacity = 3
		callers  = 15
	)
	creator := insertAccount(t, ctx, pool, "Ada")
	eventID := insertEvent(t, ctx, pool, creator, "Popular", "Berlin", capacity, time.Now().Add(time.Hour))
	accountIDs := make([]string, callers)
	for i := range accountIDs {
		accountIDs[i] = insertAccount(t, ctx, pool, fmt.Sprintf("Guest %d", i))
	}

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		full      atomic.Int32
	)
	start := make(chan struct{})
	for _, accountID := range accountIDs {
		wg.Add(1)
		go func(accountID string) {
			defer wg.Done()
			<-start
			_, err := svc.Register(ctx, eventID, accountID)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, registrations.ErrCapacityExceeded):
				full.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(accountID)
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, capacity, successes.Load())
	require.EqualValues(t, callers-capacity, full.Load())
	require.Equal(t, capacity, countRegistrations(t, ctx, repo, eventID))
}

func TestDeletingEventCascadesRegistrations(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)
	regRepo := &RegistrationRepository{pool: pool}
	eventRepo := &EventRepository{pool: pool}
	svc := registrations.NewService(regRepo, zerolog.Nop())

	creator := insertAccount(t, ctx, pool, "Ada")
	alice := insertAccount(t, ctx, pool, "Alice")
	eventID := insertEvent(t, ctx, pool, creator, "Doomed", "Berlin", 5, time.Now().Add(time.Hour))

	reg, err := svc.Register(ctx, eventID, alice)
	require.NoError(t, err)

	require.NoError(t, eventRepo.Delete(ctx, eventID))

	_, err = regRepo.ConfirmationDetails(ctx, reg.ID)
	require.ErrorIs(t, err, registrations.ErrNotFound)
	require.ErrorIs(t, svc.Cancel(ctx, eventID, alice), registrations.ErrNotFound)

	list, err := svc.ListForAccount(ctx, alice, alice)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestListForAccountAndConfirmationDetails(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)
	repo := &RegistrationRepository{pool: pool}
	svc := registrations.NewService(repo, zerolog.Nop())

	creator := insertAccount(t, ctx, pool, "Ada")
	alice := insertAccount(t, ctx, pool, "Alice")
	later := insertEvent(t, ctx, pool, creator, "Later", "Hamburg", 5, time.Now().Add(48*time.Hour))
	sooner := insertEvent(t, ctx, pool, creator, "Sooner", "Berlin", 5, time.Now().Add(24*time.Hour))

	_, err := svc.Register(ctx, later, alice)
	require.NoError(t, err)
	reg, err := svc.Register(ctx, sooner, alice)
	require.NoError(t, err)

	list, err := svc.ListForAccount(ctx, alice, alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Sooner", list[0].Title)
	require.Equal(t, "Later", list[1].Title)
	require.Equal(t, "Ada", list[0].CreatorName)
	require.Equal(t, 5, list[0].MaxCapacity)

	details, err := repo.ConfirmationDetails(ctx, reg.ID)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", details.AccountEmail)
	require.Equal(t, "Sooner", details.EventTitle)
	require.Equal(t, "Berlin", details.EventLocation)
}
