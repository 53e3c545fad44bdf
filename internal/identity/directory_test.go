package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"eventsphere/internal/model"
)

type countingSource struct {
	users map[string]model.User
	calls [][]string
	err   error
}

func (s *countingSource) GetUsersByIDs(_ context.Context, ids []string) ([]model.User, error) {
	s.calls = append(s.calls, ids)
	if s.err != nil {
		return nil, s.err
	}
	var out []model.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func TestDirectoryLookupCachesHits(t *testing.T) {
	src := &countingSource{users: map[string]model.User{
		"u1": {ID: "u1", Name: "Ada", Email: "ada@example.com"},
		"u2": {ID: "u2", Name: "Bob", Email: "bob@example.com"},
	}}
	dir := NewDirectory(src, time.Minute)
	ctx := context.Background()

	got, err := dir.Lookup(ctx, []string{"u1", "u2", "ghost"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Ada", got["u1"].Name)

	got, err = dir.Lookup(ctx, []string{"u1", "u2"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Len(t, src.calls, 1, "second lookup should be served from cache")
}

func TestDirectoryLookupOnlyFetchesMissing(t *testing.T) {
	src := &countingSource{users: map[string]model.User{
		"u1": {ID: "u1", Name: "Ada"},
		"u2": {ID: "u2", Name: "Bob"},
	}}
	dir := NewDirectory(src, time.Minute)
	ctx := context.Background()

	_, err := dir.Lookup(ctx, []string{"u1"})
	require.NoError(t, err)
	_, err = dir.Lookup(ctx, []string{"u1", "u2"})
	require.NoError(t, err)

	require.Equal(t, [][]string{{"u1"}, {"u2"}}, src.calls)
}

func TestDirectoryForget(t *testing.T) {
	src := &countingSource{users: map[string]model.User{"u1": {ID: "u1", Name: "Ada"}}}
	dir := NewDirectory(src, time.Minute)
	ctx := context.Background()

	_, err := dir.Lookup(ctx, []string{"u1"})
	require.NoError(t, err)
	dir.Forget("u1")
	_, err = dir.Lookup(ctx, []string{"u1"})
	require.NoError(t, err)
	require.Len(t, src.calls, 2)
}

func TestDirectoryLookupSourceError(t *testing.T) {
	src := &countingSource{err: errors.New("db down")}
	dir := NewDirectory(src, time.Minute)

	_, err := dir.Lookup(context.Background(), []string{"u1"})
	require.ErrorContains(t, err, "db down")
}
