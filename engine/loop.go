package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/risk"
)

// Step performs one poll: fetch the newest bars and hand them to
// OnNewBar. Transient broker failures are logged and swallowed; only a
// lost broker session is returned.
func (e *Engine) Step(ctx context.Context) (Action, error) {
	start := time.Now()

	bars, err := e.broker.GetBars(ctx, e.instrument, e.tf, e.bars)
	if err != nil {
		act := e.dataUnavailable(time.Time{}, "bars unavailable")
		return act, e.pollError("get bars", err)
	}

	act, err := e.OnNewBar(ctx, bars)
	if err != nil {
		return act, e.pollError("on new bar", err)
	}
	if act.Reason == risk.ReasonSameBar {
		e.log.Trace().Time("bar", act.BarTime).Msg("same bar")
		return act, nil
	}
	e.metrics.ObserveBar(time.Since(start))
	return act, nil
}

func (e *Engine) pollError(op string, err error) error {
	switch {
	case errors.Is(err, broker.ErrNotConnected):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil
	case broker.IsUnavailable(err):
		e.metrics.RecordError("unavailable")
		e.log.Warn().Err(err).Str("op", op).Msg("broker unavailable, retrying next poll")
	default:
		e.metrics.RecordError("broker")
		e.log.Error().Err(err).Str("op", op).Msg("poll failed, retrying next poll")
	}
	return nil
}

// Run polls the broker every Polling interval until ctx is cancelled or
// the broker session is lost. The broker is closed on return.
func (e *Engine) Run(ctx context.Context) error {
	if !e.configured {
		return ErrNotConfigured
	}
	defer func() {
		if err := e.broker.Close(); err != nil {
			e.log.Warn().Err(err).Msg("broker close")
		}
	}()

	e.log.Info().
		Str("mode", string(e.mode)).
		Str("timeframe", string(e.tf)).
		Int("bars", e.bars).
		Dur("poll", e.polling).
		Msg("starting")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("stopping")
			return nil
		case <-timer.C:
		}

		if _, err := e.Step(ctx); err != nil {
			e.log.Error().Err(err).Msg("fatal broker error")
			return err
		}
		timer.Reset(e.polling)
	}
}
