package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"eventsphere/internal/model"
	"eventsphere/internal/repo"
)

// EventService covers the organizer and admin side of events. Membership is
// never written here; it only changes through RegistrationService.
type EventService struct {
	repo repo.Repository
	log  *zerolog.Logger
	now  func() time.Time
}

func NewEventService(r repo.Repository, logger *zerolog.Logger) *EventService {
	return &EventService{repo: r, log: logger, now: time.Now}
}

func (s *EventService) CreateEvent(ctx context.Context, e *model.Event) (*model.Event, error) {
	e.ID = uuid.NewString()
	e.RegisteredUsers = []string{}
	if err := s.repo.CreateEvent(ctx, e); err != nil {
		s.log.Error().Err(err).Msg("failed to create event in DB")
		return nil, err
	}
	s.log.Info().Str("event_id", e.ID).Str("title", e.Title).Int("capacity", e.Capacity).Msg("event created successfully")
	return e, nil
}

func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return s.repo.GetEventByID(ctx, id)
}

func (s *EventService) ListEvents(ctx context.Context, filter model.EventFilter) ([]model.Event, error) {
	return s.repo.GetAllEvents(ctx, filter)
}

// UpdateEvent replaces the descriptive attributes and capacity of an event.
// Capacity may not drop below the current member count.
func (s *EventService) UpdateEvent(ctx context.Context, e *model.Event) (*model.Event, error) {
	updated, err := s.repo.UpdateEvent(ctx, e)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("event_id", e.ID).Msg("event updated")
	return updated, nil
}

func (s *EventService) DeleteEvent(ctx context.Context, id string) error {
	if err := s.repo.DeleteEvent(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("event_id", id).Msg("event deleted")
	return nil
}

func (s *EventService) Stats(ctx context.Context) (model.Stats, error) {
	return s.repo.Stats(ctx, s.now())
}
