package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"eventsphere/internal/model"
)

var (
	ErrEventNotFound         = errors.New("event not found")
	ErrEventFull             = errors.New("event is full")
	ErrDuplicateRegistration = errors.New("duplicate registration")
	ErrRegistrationNotFound  = errors.New("registration not found")
	ErrRegistrationExists    = errors.New("registration already exists")
	ErrCapacityBelowMembers  = errors.New("capacity is below the number of registered users")
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type Repository interface {
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEventByID(ctx context.Context, id string) (*model.Event, error)
	GetAllEvents(ctx context.Context, filter model.EventFilter) ([]model.Event, error)
	UpdateEvent(ctx context.Context, e *model.Event) (*model.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	// AppendMemberTx adds userID to the event membership under a per-event
	// exclusive lock. The duplicate check runs before the capacity check.
	AppendMemberTx(ctx context.Context, eventID, userID string) (*model.Event, error)
	GetEventsByMember(ctx context.Context, userID string) ([]model.Event, error)
	CreateRegistration(ctx context.Context, reg *model.Registration) error
	GetRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error)
	GetRegistrationsByEventID(ctx context.Context, eventID string) ([]model.Registration, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]model.User, error)
	Stats(ctx context.Context, now time.Time) (model.Stats, error)
	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	return r.applyMigrations(migrationsDir, "*.up.sql")
}

func (r *repository) MigrateDown(migrationsDir string) error {
	return r.applyMigrations(migrationsDir, "*.down.sql")
}

func (r *repository) applyMigrations(migrationsDir, pattern string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, pattern))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Str("dir", migrationsDir).Str("pattern", pattern).Int("files", len(files)).Msg("migrations applied")
	return nil
}

const eventColumns = `id, title, description, date, time, location, category,
	organizer, image_url, capacity, registered_users, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var e model.Event
	var members []string
	if err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.Date, &e.Time, &e.Location, &e.Category,
		&e.Organizer, &e.ImageURL, &e.Capacity, pq.Array(&members), &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	e.RegisteredUsers = members
	if e.RegisteredUsers == nil {
		e.RegisteredUsers = []string{}
	}
	return &e, nil
}

func (r *repository) CreateEvent(ctx context.Context, e *model.Event) error {
	query := `
		INSERT INTO events (id, title, description, date, time, location, category,
		                    organizer, image_url, capacity, registered_users)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, '{}')
		RETURNING created_at, updated_at
	`
	row := r.db.QueryRowContext(ctx, query,
		e.ID, e.Title, e.Description, e.Date, e.Time, e.Location, e.Category,
		e.Organizer, e.ImageURL, e.Capacity,
	)
	if err := row.Scan(&e.CreatedAt, &e.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	e.RegisteredUsers = []string{}
	return nil
}

func (r *repository) GetEventByID(ctx context.Context, id string) (*model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	e, err := scanEvent(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

func (r *repository) GetAllEvents(ctx context.Context, filter model.EventFilter) ([]model.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE ($1 = '' OR category = $1)
		  AND ($2 = '' OR title ILIKE '%' || $2 || '%')
		ORDER BY date ASC
	`
	return r.queryEvents(ctx, query, filter.Category, filter.Search)
}

func (r *repository) GetEventsByMember(ctx context.Context, userID string) ([]model.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE $1 = ANY(registered_users)
		ORDER BY created_at ASC, id ASC
	`
	return r.queryEvents(ctx, query, userID)
}

func (r *repository) queryEvents(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := make([]model.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

func (r *repository) UpdateEvent(ctx context.Context, e *model.Event) (*model.Event, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var members []string
	err = tx.QueryRowContext(ctx, `SELECT registered_users FROM events WHERE id = $1 FOR UPDATE`, e.ID).
		Scan(pq.Array(&members))
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to lock event: %w", err)
	}

	if e.Capacity > 0 && len(members) > e.Capacity {
		_ = tx.Rollback()
		return nil, ErrCapacityBelowMembers
	}

	updated, err := scanEvent(tx.QueryRowContext(ctx, `
		UPDATE events
		SET title = $2, description = $3, date = $4, time = $5, location = $6,
		    category = $7, organizer = $8, image_url = $9, capacity = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING `+eventColumns,
		e.ID, e.Title, e.Description, e.Date, e.Time, e.Location,
		e.Category, e.Organizer, e.ImageURL, e.Capacity,
	))
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to update event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return updated, nil
}

func (r *repository) DeleteEvent(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if n == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *repository) AppendMemberTx(ctx context.Context, eventID, userID string) (*model.Event, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	event, err := scanEvent(tx.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, eventID))
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to lock event: %w", err)
	}

	if event.HasMember(userID) {
		_ = tx.Rollback()
		return nil, ErrDuplicateRegistration
	}
	if event.IsFull() {
		_ = tx.Rollback()
		return nil, ErrEventFull
	}

	var members []string
	err = tx.QueryRowContext(ctx, `
		UPDATE events
		SET registered_users = array_append(registered_users, $2), updated_at = NOW()
		WHERE id = $1
		RETURNING registered_users, updated_at
	`, eventID, userID).Scan(pq.Array(&members), &event.UpdatedAt)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to append member: %w", err)
	}
	event.RegisteredUsers = members

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return event, nil
}

func (r *repository) CreateRegistration(ctx context.Context, reg *model.Registration) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO registrations (id, user_id, event_id, registration_date, proof_artifact)
		VALUES ($1, $2, $3, $4, $5)
	`, reg.ID, reg.UserID, reg.EventID, reg.RegistrationDate, reg.ProofArtifact)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case uniqueViolation:
				return ErrRegistrationExists
			case foreignKeyViolation:
				return ErrEventNotFound
			}
		}
		return fmt.Errorf("failed to create registration: %w", err)
	}
	return nil
}

func (r *repository) GetRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, event_id, registration_date, proof_artifact
		FROM registrations
		WHERE event_id = $1 AND user_id = $2
	`, eventID, userID)

	var reg model.Registration
	if err := row.Scan(&reg.ID, &reg.UserID, &reg.EventID, &reg.RegistrationDate, &reg.ProofArtifact); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return &reg, nil
}

func (r *repository) GetRegistrationsByEventID(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, event_id, registration_date, proof_artifact
		FROM registrations
		WHERE event_id = $1
		ORDER BY registration_date ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get registrations: %w", err)
	}
	defer rows.Close()

	regs := make([]model.Registration, 0)
	for rows.Next() {
		var reg model.Registration
		if err := rows.Scan(&reg.ID, &reg.UserID, &reg.EventID, &reg.RegistrationDate, &reg.ProofArtifact); err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate registrations: %w", err)
	}
	return regs, nil
}

func (r *repository) GetUsersByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, email, role FROM users WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *repository) Stats(ctx context.Context, now time.Time) (model.Stats, error) {
	var s model.Stats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM events),
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM events WHERE date >= $1)
	`, now).Scan(&s.TotalEvents, &s.TotalUsers, &s.Upcoming)
	if err != nil {
		return model.Stats{}, fmt.Errorf("failed to count stats: %w", err)
	}
	return s, nil
}
