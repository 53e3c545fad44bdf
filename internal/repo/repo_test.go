package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/wb-go/wbf/dbpg"

	"eventsphere/internal/model"
)

var (
	pgOnce      sync.Once
	pgInitErr   error
	pgContainer *postgres.PostgresContainer
	pgDB        *dbpg.DB
	pgRepo      Repository
)

func TestMain(m *testing.M) {
	code := m.Run()
	if pgContainer != nil {
		_ = pgContainer.Terminate(context.Background())
	}
	os.Exit(code)
}

// setupPostgres returns a repository over a migrated, empty database. The
// container is started once per package run.
func setupPostgres(t *testing.T) Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres tests need docker")
	}

	pgOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		container, err := postgres.Run(
			ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("eventsphere"),
			postgres.WithUsername("eventsphere"),
			postgres.WithPassword("eventsphere"),
			postgres.BasicWaitStrategies(),
			testcontainers.WithReuseByName("eventsphere-repo-db"),
		)
		if err != nil {
			pgInitErr = err
			return
		}
		pgContainer = container

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			pgInitErr = err
			return
		}
		db, err := dbpg.New(dsn, nil, &dbpg.Options{MaxOpenConns: 20, MaxIdleConns: 5, ConnMaxLifetime: time.Minute})
		if err != nil {
			pgInitErr = err
			return
		}
		pgDB = db

		log := zerolog.Nop()
		r, err := NewRepository(db, &log)
		if err != nil {
			pgInitErr = err
			return
		}
		pgInitErr = r.MigrateUp(filepath.Join(projectRoot(), "migrations", "postgres"))
		pgRepo = r
	})
	require.NoError(t, pgInitErr)

	_, err := pgDB.ExecContext(context.Background(), `TRUNCATE registrations, events, users`)
	require.NoError(t, err)
	return pgRepo
}

func projectRoot() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}

func seedPostgresEvent(t *testing.T, r Repository, id string, capacity int) {
	t.Helper()
	require.NoError(t, r.CreateEvent(context.Background(), &model.Event{
		ID:       id,
		Title:    "Event " + id,
		Date:     time.Now().Add(24 * time.Hour).UTC(),
		Capacity: capacity,
	}))
}

func TestPostgresAppendMemberOrderOfChecks(t *testing.T) {
	r := setupPostgres(t)
	ctx := context.Background()
	seedPostgresEvent(t, r, "e1", 1)

	_, err := r.AppendMemberTx(ctx, "missing", "u1")
	require.ErrorIs(t, err, ErrEventNotFound)

	e, err := r.AppendMemberTx(ctx, "e1", "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, e.RegisteredUsers)

	_, err = r.AppendMemberTx(ctx, "e1", "u1")
	require.ErrorIs(t, err, ErrDuplicateRegistration)

	_, err = r.AppendMemberTx(ctx, "e1", "u2")
	require.ErrorIs(t, err, ErrEventFull)
}

func TestPostgresLastSeatRace(t *testing.T) {
	r := setupPostgres(t)
	ctx := context.Background()

	for round := range 20 {
		id := fmt.Sprintf("e%d", round)
		seedPostgresEvent(t, r, id, 1)

		var ok, full, other int32
		var wg sync.WaitGroup
		for i := range 2 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := r.AppendMemberTx(ctx, id, fmt.Sprintf("u%d", i))
				switch {
				case err == nil:
					atomic.AddInt32(&ok, 1)
				case errors.Is(err, ErrEventFull):
					atomic.AddInt32(&full, 1)
				default:
					atomic.AddInt32(&other, 1)
				}
			}(i)
		}
		wg.Wait()

		require.EqualValues(t, 1, ok)
		require.EqualValues(t, 1, full)
		require.Zero(t, other)

		e, err := r.GetEventByID(ctx, id)
		require.NoError(t, err)
		require.Len(t, e.RegisteredUsers, 1)
	}
}

func TestPostgresConcurrentCapacity(t *testing.T) {
	r := setupPostgres(t)
	ctx := context.Background()
	const capacity, requests = 5, 40
	seedPostgresEvent(t, r, "e1", capacity)

	var ok, full int32
	var wg sync.WaitGroup
	wg.Add(requests)
	for i := range requests {
		go func(i int) {
			defer wg.Done()
			_, err := r.AppendMemberTx(ctx, "e1", fmt.Sprintf("u%d", i))
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, ErrEventFull):
				atomic.AddInt32(&full, 1)
			}
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, capacity, ok)
	require.EqualValues(t, requests-capacity, full)
}

func TestPostgresSameUserRace(t *testing.T) {
	r := setupPostgres(t)
	ctx := context.Background()

	for round := range 20 {
		id := fmt.Sprintf("e%d", round)
		seedPostgresEvent(t, r, id, 1)

		var ok, dup int32
		var wg sync.WaitGroup
		for range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := r.AppendMemberTx(ctx, id, "u1")
				switch {
				case err == nil:
					atomic.AddInt32(&ok, 1)
				case errors.Is(err, ErrDuplicateRegistration):
					atomic.AddInt32(&dup, 1)
				}
			}()
		}
		wg.Wait()

		require.EqualValues(t, 1, ok)
		require.EqualValues(t, 1, dup)
	}
}

func TestPostgresRegistrationUniquePerPair(t *testing.T) {
	r := setupPostgres(t)
	ctx := context.Background()
	seedPostgresEvent(t, r, "e1", 0)
	now := time.Now().UTC().Truncate(time.Millisecond)

	first := &model.Registration{ID: "r1", EventID: "e1", UserID: "u1", RegistrationDate: now, ProofArtifact: "p1"}
	require.NoError(t, r.CreateRegistration(ctx, first))

	err := r.CreateRegistration(ctx, &model.Registration{ID: "r2", EventID: "e1", UserID: "u1", RegistrationDate: now, ProofArtifact: "p2"})
	require.ErrorIs(t, err, ErrRegistrationExists)

	err = r.CreateRegistration(ctx, &model.Registration{ID: "r3", EventID: "missing", UserID: "u1", RegistrationDate: now, ProofArtifact: "p3"})
	require.ErrorIs(t, err, ErrEventNotFound)

	got, err := r.GetRegistration(ctx, "e1", "u1")
	require.NoError(t, err)
	require.Equal(t, "r1", got.ID)
	require.Equal(t, "p1", got.ProofArtifact)

	_, err = r.GetRegistration(ctx, "e1", "u2")
	require.ErrorIs(t, err, ErrRegistrationNotFound)
}

func TestPostgresUpdateEventCapacityGuard(t *testing.T) {
	r := setupPostgres(t)
	ctx := context.Background()
	seedPostgresEvent(t, r, "e1", 3)
	for _, u := range []string{"u1", "u2"} {
		_, err := r.AppendMemberTx(ctx, "e1", u)
		require.NoError(t, err)
	}

	_, err := r.UpdateEvent(ctx, &model.Event{ID: "e1", Title: "Renamed", Date: time.Now(), Capacity: 1})
	require.ErrorIs(t, err, ErrCapacityBelowMembers)

	updated, err := r.UpdateEvent(ctx, &model.Event{ID: "e1", Title: "Renamed", Date: time.Now(), Capacity: 2})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Title)
	require.Equal(t, []string{"u1", "u2"}, updated.RegisteredUsers)

	_, err = r.UpdateEvent(ctx, &model.Event{ID: "missing", Title: "x", Date: time.Now()})
	require.ErrorIs(t, err, ErrEventNotFound)
}

func TestPostgresEventsByMember(t *testing.T) {
	r := setupPostgres(t)
	ctx := context.Background()
	for _, id := range []string{"b", "a", "c"} {
		seedPostgresEvent(t, r, id, 0)
	}
	for _, id := range []string{"c", "b"} {
		_, err := r.AppendMemberTx(ctx, id, "u1")
		require.NoError(t, err)
	}

	events, err := r.GetEventsByMember(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, ids(events))

	none, err := r.GetEventsByMember(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestPostgresDeleteCascadesRegistrations(t *testing.T) {
	r := setupPostgres(t)
	ctx := context.Background()
	seedPostgresEvent(t, r, "e1", 0)
	require.NoError(t, r.CreateRegistration(ctx, &model.Registration{
		ID: "r1", EventID: "e1", UserID: "u1", RegistrationDate: time.Now(), ProofArtifact: "p",
	}))

	require.NoError(t, r.DeleteEvent(ctx, "e1"))
	require.ErrorIs(t, r.DeleteEvent(ctx, "e1"), ErrEventNotFound)

	regs, err := r.GetRegistrationsByEventID(ctx, "e1")
	require.NoError(t, err)
	require.Empty(t, regs)
}
