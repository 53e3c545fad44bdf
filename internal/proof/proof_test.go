package proof

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type generatorFunc func(ctx context.Context, payload string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, payload string) (string, error) {
	return f(ctx, payload)
}

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestQRGeneratorProducesPNGDataURI(t *testing.T) {
	g := NewQRGenerator(128)

	artifact, err := g.Generate(context.Background(), "event:e1;user:u1;ts:1;reg:r1")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(artifact, dataURIPrefix))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(artifact, dataURIPrefix))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(raw, pngMagic))
}

func TestQRGeneratorDistinctPayloadsDistinctArtifacts(t *testing.T) {
	g := NewQRGenerator(128)
	ctx := context.Background()

	a, err := g.Generate(ctx, "event:e1;user:u1;ts:1;reg:r1")
	require.NoError(t, err)
	b, err := g.Generate(ctx, "event:e1;user:u2;ts:1;reg:r2")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestQRGeneratorEmptyPayload(t *testing.T) {
	_, err := NewQRGenerator(0).Generate(context.Background(), "")
	require.ErrorIs(t, err, ErrGeneration)
}

func TestTimeoutGeneratorPassesThrough(t *testing.T) {
	g := WithTimeout(generatorFunc(func(context.Context, string) (string, error) {
		return "artifact", nil
	}), time.Second)

	artifact, err := g.Generate(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, "artifact", artifact)
}

func TestTimeoutGeneratorExpires(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	g := WithTimeout(generatorFunc(func(context.Context, string) (string, error) {
		<-release
		return "late", nil
	}), 20*time.Millisecond)

	start := time.Now()
	_, err := g.Generate(context.Background(), "p")
	require.ErrorIs(t, err, ErrTimeout)
	require.NotErrorIs(t, err, ErrGeneration)
	require.Less(t, time.Since(start), time.Second)
}

func TestTimeoutGeneratorContextAwareGeneratorStillTimesOut(t *testing.T) {
	g := WithTimeout(generatorFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), 20*time.Millisecond)

	_, err := g.Generate(context.Background(), "p")
	require.ErrorIs(t, err, ErrTimeout)
}

func TestTimeoutGeneratorWrapsFailures(t *testing.T) {
	g := WithTimeout(generatorFunc(func(context.Context, string) (string, error) {
		return "", errors.New("encoder exploded")
	}), time.Second)

	_, err := g.Generate(context.Background(), "p")
	require.ErrorIs(t, err, ErrGeneration)
	require.ErrorContains(t, err, "encoder exploded")
}

func TestTimeoutGeneratorCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := WithTimeout(generatorFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), time.Second)

	_, err := g.Generate(ctx, "p")
	require.ErrorIs(t, err, ErrGeneration)
	require.NotErrorIs(t, err, ErrTimeout)
}

func TestPayloadRoundTrip(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_123)
	p := Payload{EventID: "e1", UserID: "u1", Timestamp: ts, RegistrationID: "r1"}

	s := p.String()
	require.Equal(t, "event:e1;user:u1;ts:1700000000123;reg:r1", s)

	parsed, err := ParsePayload(s)
	require.NoError(t, err)
	require.Equal(t, "e1", parsed.EventID)
	require.Equal(t, "u1", parsed.UserID)
	require.Equal(t, "r1", parsed.RegistrationID)
	require.True(t, ts.Equal(parsed.Timestamp))
}

func TestParsePayloadRejectsMalformed(t *testing.T) {
	for _, s := range []string{
		"",
		"event:e1;user:u1",
		"event:e1;user:u1;ts:abc;reg:r1",
		"event:e1;user:u1;ts:1;reg:r1;extra:x",
		"event:;user:u1;ts:1;reg:r1",
		"garbage",
	} {
		_, err := ParsePayload(s)
		require.ErrorIs(t, err, ErrInvalidPayload, "payload %q", s)
	}
}
