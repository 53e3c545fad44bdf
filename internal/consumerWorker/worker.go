package consumerWorker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"eventsphere/internal/dto"
	"eventsphere/internal/metrics"
	"eventsphere/internal/model"
	"eventsphere/internal/service"
)

type Consumer interface {
	Consume(ctx context.Context, handler func([]byte) error) error
	Publish(message []byte, delaySeconds int) error
}

type Reconciler interface {
	Reconcile(ctx context.Context, eventID, userID string) (*model.Registration, error)
}

type Alerter interface {
	SendReconcileAlert(eventID, userID string, attempts int, cause string) error
}

type Options struct {
	MaxAttempts  int
	DelaySeconds int
}

// Reader drains the reconcile queue. Failed attempts are republished with a
// delay until MaxAttempts, then operators are alerted.
type Reader struct {
	queue  Consumer
	svc    Reconciler
	alert  Alerter
	opts   Options
	log    *zerolog.Logger
	done   chan struct{}
	cancel context.CancelFunc
}

func NewReader(queue Consumer, svc Reconciler, alert Alerter, opts Options, log *zerolog.Logger) *Reader {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	return &Reader{
		queue: queue,
		svc:   svc,
		alert: alert,
		opts:  opts,
		log:   log,
		done:  make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.log.Info().Msg("reconcile reader started")

	go func() {
		defer close(r.done)

		if err := r.queue.Consume(cctx, func(body []byte) error {
			return r.handle(cctx, body)
		}); err != nil {
			r.log.Error().Err(err).Msg("failed to start consuming")
			return
		}

		<-cctx.Done()
		r.log.Info().Msg("reconcile reader stopped by context")
	}()
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

func (r *Reader) handle(ctx context.Context, body []byte) error {
	var msg dto.ReconcileMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		r.log.Error().Err(err).Str("body", string(body)).Msg("dropping malformed reconcile message")
		return nil
	}

	log := r.log.With().
		Str("event_id", msg.EventID).
		Str("user_id", msg.UserID).
		Int("attempt", msg.Attempt).
		Logger()

	_, err := r.svc.Reconcile(ctx, msg.EventID, msg.UserID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrNotMember), errors.Is(err, service.ErrEventNotFound):
		log.Warn().Err(err).Msg("nothing to reconcile")
		return nil
	}

	if msg.Attempt < r.opts.MaxAttempts {
		msg.Attempt++
		msg.Reason = err.Error()
		next, mErr := json.Marshal(msg)
		if mErr != nil {
			return mErr
		}
		if pErr := r.queue.Publish(next, r.opts.DelaySeconds); pErr != nil {
			return pErr
		}
		metrics.ReconcileTotal.WithLabelValues(metrics.ReconcileRetry).Inc()
		log.Warn().Err(err).Msg("reconcile failed, scheduled retry")
		return nil
	}

	metrics.ReconcileTotal.WithLabelValues(metrics.ReconcileGaveUp).Inc()
	log.Error().Err(err).Msg("reconcile gave up, operator action required")
	if aErr := r.alert.SendReconcileAlert(msg.EventID, msg.UserID, msg.Attempt, err.Error()); aErr != nil {
		log.Warn().Err(aErr).Msg("failed to alert operators")
	}
	return nil
}
