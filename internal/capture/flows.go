package capture

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/observatory-remote/internal/device"
	"github.com/signalsfoundry/observatory-remote/internal/logging"
	"github.com/signalsfoundry/observatory-remote/internal/settle"
)

const (
	reasonFilterChange = "filter change"
	reasonFocuserMove  = "focuser move"
)

// ChangeFilter selects filterID and holds the capture gate until the wheel
// stops moving. Focuser telemetry is refreshed afterwards because filters
// may carry focus offsets.
func (o *Orchestrator) ChangeFilter(ctx context.Context, filterID int) error {
	ctx, log := logging.WithOperationLogger(ctx, o.log)
	ctx, span := startSpan(ctx, "capture.ChangeFilter", attribute.Int("filter_id", filterID))
	defer span.End()

	err := o.gate.Hold(ctx, reasonFilterChange, func(ctx context.Context) error {
		if err := o.send(ctx, device.Command{
			Kind:   device.FilterWheel,
			Verb:   device.VerbChangeFilter,
			Params: map[string]string{"filterId": strconv.Itoa(filterID)},
		}); err != nil {
			return fmt.Errorf("change filter: %w", err)
		}

		cfg := settle.Config{Name: string(device.FilterWheel), Interval: o.cfg.FilterWheelPoll, Timeout: o.cfg.FilterWheelTimeout}
		res, err := settle.Wait(ctx, cfg, o.tel.Fetcher(device.FilterWheel), idle, o.settleOptions()...)
		if err != nil {
			return fmt.Errorf("wait for filter wheel: %w", err)
		}
		log.Info(ctx, "filter changed",
			logging.Int("filter_id", filterID),
			logging.Int("polls", res.Polls),
		)

		o.refreshFocuser(ctx, log)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// MoveFocuser drives the focuser to position and holds the capture gate
// until it reports neither moving nor settling, plus the settle buffer.
func (o *Orchestrator) MoveFocuser(ctx context.Context, position int) error {
	ctx, log := logging.WithOperationLogger(ctx, o.log)
	ctx, span := startSpan(ctx, "capture.MoveFocuser", attribute.Int("position", position))
	defer span.End()

	err := o.gate.Hold(ctx, reasonFocuserMove, func(ctx context.Context) error {
		if err := o.send(ctx, device.Command{
			Kind:   device.Focuser,
			Verb:   device.VerbMove,
			Params: map[string]string{"position": strconv.Itoa(position)},
		}); err != nil {
			return fmt.Errorf("move focuser: %w", err)
		}

		cfg := settle.Config{Name: string(device.Focuser), Interval: o.cfg.FocuserPoll, Timeout: o.cfg.FocuserTimeout}
		res, err := settle.Wait(ctx, cfg, o.tel.Fetcher(device.Focuser), idle, o.settleOptions()...)
		if err != nil {
			return fmt.Errorf("wait for focuser: %w", err)
		}

		if err := o.sleep(ctx, o.cfg.FocuserSettleBuffer); err != nil {
			return fmt.Errorf("focuser settle buffer: %w", err)
		}
		log.Info(ctx, "focuser moved",
			logging.Int("position", position),
			logging.Int("polls", res.Polls),
		)

		o.refreshFocuser(ctx, log)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (o *Orchestrator) send(ctx context.Context, cmd device.Command) error {
	env, err := o.cmd.Do(ctx, cmd)
	if err != nil {
		return err
	}
	return env.Err()
}

func (o *Orchestrator) refreshFocuser(ctx context.Context, log logging.Logger) {
	if _, err := o.tel.Refresh(ctx, device.Focuser); err != nil {
		log.Warn(ctx, "focuser refresh failed", logging.Err(err))
	}
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-o.clock.After(d):
		return nil
	}
}

func idle(s device.Snapshot) bool {
	return !s.Busy()
}
