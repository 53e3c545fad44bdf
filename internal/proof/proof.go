package proof

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
)

var (
	ErrGeneration     = errors.New("proof generation failed")
	ErrTimeout        = errors.New("proof generation timed out")
	ErrInvalidPayload = errors.New("invalid proof payload")
)

const dataURIPrefix = "data:image/png;base64,"

// Generator turns a registration payload into an encoded image artifact.
type Generator interface {
	Generate(ctx context.Context, payload string) (string, error)
}

type QRGenerator struct {
	size  int
	level qrcode.RecoveryLevel
}

func NewQRGenerator(size int) *QRGenerator {
	if size <= 0 {
		size = 256
	}
	return &QRGenerator{size: size, level: qrcode.Medium}
}

// Generate returns a PNG QR code as a data URI.
func (g *QRGenerator) Generate(ctx context.Context, payload string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if payload == "" {
		return "", fmt.Errorf("%w: empty payload", ErrGeneration)
	}
	png, err := qrcode.Encode(payload, g.level, g.size)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return dataURIPrefix + base64.StdEncoding.EncodeToString(png), nil
}

// TimeoutGenerator bounds every call to the wrapped generator.
type TimeoutGenerator struct {
	next    Generator
	timeout time.Duration
}

func WithTimeout(next Generator, timeout time.Duration) *TimeoutGenerator {
	return &TimeoutGenerator{next: next, timeout: timeout}
}

type result struct {
	artifact string
	err      error
}

func (g *TimeoutGenerator) Generate(ctx context.Context, payload string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		artifact, err := g.next.Generate(cctx, payload)
		done <- result{artifact: artifact, err: err}
	}()

	select {
	case r := <-done:
		switch {
		case r.err == nil:
			return r.artifact, nil
		case g.expired(ctx, cctx):
			return "", fmt.Errorf("%w after %s", ErrTimeout, g.timeout)
		case errors.Is(r.err, ErrGeneration), errors.Is(r.err, ErrTimeout):
			return "", r.err
		default:
			return "", fmt.Errorf("%w: %w", ErrGeneration, r.err)
		}
	case <-cctx.Done():
		if g.expired(ctx, cctx) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, g.timeout)
		}
		return "", fmt.Errorf("%w: %w", ErrGeneration, ctx.Err())
	}
}

// expired reports whether our own deadline fired, as opposed to the caller's
// context being cancelled.
func (g *TimeoutGenerator) expired(parent, cctx context.Context) bool {
	return errors.Is(cctx.Err(), context.DeadlineExceeded) && parent.Err() == nil
}

// Payload is what a proof artifact encodes.
type Payload struct {
	EventID        string
	UserID         string
	Timestamp      time.Time
	RegistrationID string
}

func (p Payload) String() string {
	return fmt.Sprintf("event:%s;user:%s;ts:%d;reg:%s",
		p.EventID, p.UserID, p.Timestamp.UnixMilli(), p.RegistrationID)
}

func ParsePayload(s string) (Payload, error) {
	var p Payload
	seen := 0
	for _, part := range strings.Split(s, ";") {
		key, value, ok := strings.Cut(part, ":")
		if !ok || value == "" {
			return Payload{}, fmt.Errorf("%w: %q", ErrInvalidPayload, part)
		}
		switch key {
		case "event":
			p.EventID = value
		case "user":
			p.UserID = value
		case "ts":
			ms, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return Payload{}, fmt.Errorf("%w: timestamp %q", ErrInvalidPayload, value)
			}
			p.Timestamp = time.UnixMilli(ms)
		case "reg":
			p.RegistrationID = value
		default:
			return Payload{}, fmt.Errorf("%w: unknown key %q", ErrInvalidPayload, key)
		}
		seen++
	}
	if seen != 4 || p.EventID == "" || p.UserID == "" || p.RegistrationID == "" || p.Timestamp.IsZero() {
		return Payload{}, fmt.Errorf("%w: missing fields", ErrInvalidPayload)
	}
	return p, nil
}
