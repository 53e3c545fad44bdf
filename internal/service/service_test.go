package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"eventsphere/internal/model"
	"eventsphere/internal/repo"
)

func newEventService(t *testing.T) (*EventService, *repo.MemoryRepository) {
	t.Helper()
	r := repo.NewMemoryRepository()
	log := zerolog.Nop()
	return NewEventService(r, &log), r
}

func TestEventServiceCreateAssignsIDAndEmptyMembers(t *testing.T) {
	svc, _ := newEventService(t)
	ctx := context.Background()

	created, err := svc.CreateEvent(ctx, &model.Event{
		Title:           "Go Meetup",
		Date:            time.Now().Add(48 * time.Hour),
		Capacity:        10,
		RegisteredUsers: []string{"smuggled"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Empty(t, created.RegisteredUsers)

	got, err := svc.GetEvent(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Go Meetup", got.Title)
	require.Equal(t, 10, got.Capacity)
	require.Empty(t, got.RegisteredUsers)
	require.False(t, got.CreatedAt.IsZero())
}

func TestEventServiceUpdateKeepsMembers(t *testing.T) {
	svc, r := newEventService(t)
	ctx := context.Background()

	created, err := svc.CreateEvent(ctx, &model.Event{Title: "Go Meetup", Date: time.Now(), Capacity: 3})
	require.NoError(t, err)
	for _, u := range []string{"u1", "u2"} {
		_, err := r.AppendMemberTx(ctx, created.ID, u)
		require.NoError(t, err)
	}

	_, err = svc.UpdateEvent(ctx, &model.Event{ID: created.ID, Title: "Go Meetup", Capacity: 1})
	require.ErrorIs(t, err, repo.ErrCapacityBelowMembers)

	updated, err := svc.UpdateEvent(ctx, &model.Event{ID: created.ID, Title: "Go Meetup 2", Location: "Berlin", Capacity: 0})
	require.NoError(t, err)
	require.Equal(t, "Go Meetup 2", updated.Title)
	require.Equal(t, "Berlin", updated.Location)
	require.True(t, updated.Unlimited())
	require.Equal(t, []string{"u1", "u2"}, updated.RegisteredUsers)

	_, err = svc.UpdateEvent(ctx, &model.Event{ID: "missing", Title: "x"})
	require.ErrorIs(t, err, ErrEventNotFound)
}

func TestEventServiceListAndDelete(t *testing.T) {
	svc, _ := newEventService(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	second, err := svc.CreateEvent(ctx, &model.Event{Title: "Rust night", Category: "tech", Date: base.AddDate(0, 0, 7)})
	require.NoError(t, err)
	first, err := svc.CreateEvent(ctx, &model.Event{Title: "Go night", Category: "tech", Date: base})
	require.NoError(t, err)
	_, err = svc.CreateEvent(ctx, &model.Event{Title: "Choir", Category: "music", Date: base})
	require.NoError(t, err)

	tech, err := svc.ListEvents(ctx, model.EventFilter{Category: "tech"})
	require.NoError(t, err)
	require.Len(t, tech, 2)
	require.Equal(t, first.ID, tech[0].ID)
	require.Equal(t, second.ID, tech[1].ID)

	require.NoError(t, svc.DeleteEvent(ctx, first.ID))
	require.ErrorIs(t, svc.DeleteEvent(ctx, first.ID), ErrEventNotFound)

	_, err = svc.GetEvent(ctx, first.ID)
	require.ErrorIs(t, err, ErrEventNotFound)

	all, err := svc.ListEvents(ctx, model.EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestEventServiceStats(t *testing.T) {
	svc, r := newEventService(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.CreateEvent(ctx, &model.Event{Title: "past", Date: now.AddDate(0, -1, 0)})
	require.NoError(t, err)
	_, err = svc.CreateEvent(ctx, &model.Event{Title: "next", Date: now.AddDate(0, 1, 0)})
	require.NoError(t, err)
	r.PutUser(model.User{ID: "u1", Name: "Ada"})
	r.PutUser(model.User{ID: "u2", Name: "Bob"})

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, model.Stats{TotalEvents: 2, TotalUsers: 2, Upcoming: 1}, stats)
}
