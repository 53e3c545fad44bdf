package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"eventsphere/internal/dto"
	"eventsphere/internal/metrics"
	"eventsphere/internal/model"
	"eventsphere/internal/proof"
	"eventsphere/internal/repo"
)

var (
	ErrEventNotFound     = repo.ErrEventNotFound
	ErrCapacityExceeded  = repo.ErrEventFull
	ErrAlreadyRegistered = repo.ErrDuplicateRegistration
	ErrProofGeneration   = proof.ErrGeneration
	ErrProofTimeout      = proof.ErrTimeout

	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotMember       = errors.New("user is not a member of the event")
	ErrPartialFailure  = errors.New("registration partially applied")
)

// PartialFailureError is returned when the membership append was committed
// but the proof or the registration record could not be produced. The event
// membership is the source of truth for Reconcile.
type PartialFailureError struct {
	EventID string
	UserID  string
	Cause   error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("registration of user %s for event %s partially applied: %v", e.UserID, e.EventID, e.Cause)
}

func (e *PartialFailureError) Unwrap() []error {
	return []error{ErrPartialFailure, e.Cause}
}

// ReconcileQueue accepts reconcile messages; rabbit.Client satisfies it.
type ReconcileQueue interface {
	Publish(message []byte, delaySeconds int) error
}

type UserDirectory interface {
	Lookup(ctx context.Context, ids []string) (map[string]model.User, error)
}

type RegistrationService struct {
	repo           repo.Repository
	proofs         proof.Generator
	users          UserDirectory
	queue          ReconcileQueue
	reconcileDelay int
	log            *zerolog.Logger
	now            func() time.Time
}

type RegistrationOption func(*RegistrationService)

func WithReconcileQueue(q ReconcileQueue, delaySeconds int) RegistrationOption {
	return func(s *RegistrationService) {
		s.queue = q
		s.reconcileDelay = delaySeconds
	}
}

func WithClock(now func() time.Time) RegistrationOption {
	return func(s *RegistrationService) {
		s.now = now
	}
}

func NewRegistrationService(
	r repo.Repository,
	proofs proof.Generator,
	users UserDirectory,
	logger *zerolog.Logger,
	opts ...RegistrationOption,
) *RegistrationService {
	s := &RegistrationService{
		repo:   r,
		proofs: proofs,
		users:  users,
		log:    logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds userID to the event and issues a registration with a proof
// artifact. Membership is appended under the store's per-event lock; the
// proof and the record are written afterwards, and a failure there is
// reported as *PartialFailureError.
func (s *RegistrationService) Register(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	if eventID == "" || userID == "" {
		return nil, fmt.Errorf("%w: event id and user id are required", ErrInvalidArgument)
	}

	if _, err := s.repo.AppendMemberTx(ctx, eventID, userID); err != nil {
		metrics.RegistrationsTotal.WithLabelValues(outcomeOf(err)).Inc()
		if !isRejection(err) {
			s.log.Error().Err(err).Str("event_id", eventID).Str("user_id", userID).Msg("failed to append event member")
		}
		return nil, err
	}

	reg, err := s.issue(ctx, eventID, userID)
	if errors.Is(err, repo.ErrRegistrationExists) {
		// a concurrent Reconcile already wrote the record
		reg, err = s.repo.GetRegistration(ctx, eventID, userID)
	}
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomePartialFailure).Inc()
		s.log.Error().
			Err(err).
			Str("event_id", eventID).
			Str("user_id", userID).
			Msg("registration partially applied: membership committed without registration record")
		s.enqueueReconcile(eventID, userID, 1, err)
		return nil, &PartialFailureError{EventID: eventID, UserID: userID, Cause: err}
	}

	metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	s.log.Info().
		Str("registration_id", reg.ID).
		Str("event_id", eventID).
		Str("user_id", userID).
		Msg("registration created successfully")
	return reg, nil
}

func (s *RegistrationService) issue(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	reg := &model.Registration{
		ID:               uuid.NewString(),
		UserID:           userID,
		EventID:          eventID,
		RegistrationDate: s.now().UTC(),
	}
	payload := proof.Payload{
		EventID:        eventID,
		UserID:         userID,
		Timestamp:      reg.RegistrationDate,
		RegistrationID: reg.ID,
	}

	start := time.Now()
	artifact, err := s.proofs.Generate(ctx, payload.String())
	metrics.ProofGenerationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	reg.ProofArtifact = artifact

	if err := s.repo.CreateRegistration(ctx, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func (s *RegistrationService) enqueueReconcile(eventID, userID string, attempt int, cause error) {
	if s.queue == nil {
		s.log.Error().
			Str("event_id", eventID).
			Str("user_id", userID).
			Msg("no reconcile queue configured, registration needs manual reconciliation")
		return
	}
	body, err := json.Marshal(dto.ReconcileMessage{
		EventID:  eventID,
		UserID:   userID,
		Attempt:  attempt,
		Reason:   cause.Error(),
		QueuedAt: s.now().UTC(),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal reconcile message")
		return
	}
	if err := s.queue.Publish(body, s.reconcileDelay); err != nil {
		s.log.Error().
			Err(err).
			Str("event_id", eventID).
			Str("user_id", userID).
			Msg("failed to publish reconcile message, registration needs manual reconciliation")
	}
}

// Reconcile repairs a partially applied registration. It is idempotent: an
// existing record is returned as is.
func (s *RegistrationService) Reconcile(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	if eventID == "" || userID == "" {
		return nil, fmt.Errorf("%w: event id and user id are required", ErrInvalidArgument)
	}

	event, err := s.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.HasMember(userID) {
		metrics.ReconcileTotal.WithLabelValues(metrics.ReconcileNotMember).Inc()
		return nil, ErrNotMember
	}

	existing, err := s.repo.GetRegistration(ctx, eventID, userID)
	if err == nil {
		metrics.ReconcileTotal.WithLabelValues(metrics.ReconcileAlreadyPresent).Inc()
		return existing, nil
	}
	if !errors.Is(err, repo.ErrRegistrationNotFound) {
		return nil, err
	}

	reg, err := s.issue(ctx, eventID, userID)
	if errors.Is(err, repo.ErrRegistrationExists) {
		metrics.ReconcileTotal.WithLabelValues(metrics.ReconcileAlreadyPresent).Inc()
		return s.repo.GetRegistration(ctx, eventID, userID)
	}
	if err != nil {
		return nil, err
	}

	metrics.ReconcileTotal.WithLabelValues(metrics.ReconcileRepaired).Inc()
	s.log.Warn().
		Str("registration_id", reg.ID).
		Str("event_id", eventID).
		Str("user_id", userID).
		Msg("registration reconciled")
	return reg, nil
}

// ListParticipants returns the event's registrations with user display
// fields. Users missing from the directory are returned without them.
func (s *RegistrationService) ListParticipants(ctx context.Context, eventID string) ([]model.Participant, error) {
	if _, err := s.repo.GetEventByID(ctx, eventID); err != nil {
		return nil, err
	}

	regs, err := s.repo.GetRegistrationsByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(regs))
	for _, r := range regs {
		ids = append(ids, r.UserID)
	}
	users, err := s.users.Lookup(ctx, ids)
	if err != nil {
		s.log.Warn().Err(err).Str("event_id", eventID).Msg("failed to resolve participant identities")
		users = nil
	}

	participants := make([]model.Participant, 0, len(regs))
	for _, r := range regs {
		u := users[r.UserID]
		participants = append(participants, model.Participant{
			Registration: r,
			Name:         u.Name,
			Email:        u.Email,
		})
	}
	return participants, nil
}

func (s *RegistrationService) ListRegisteredEvents(ctx context.Context, userID string) ([]model.Event, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	return s.repo.GetEventsByMember(ctx, userID)
}

func isRejection(err error) bool {
	return errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrAlreadyRegistered) ||
		errors.Is(err, ErrCapacityExceeded)
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrEventNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, ErrAlreadyRegistered):
		return metrics.OutcomeDuplicate
	case errors.Is(err, ErrCapacityExceeded):
		return metrics.OutcomeFull
	default:
		return metrics.OutcomeError
	}
}
