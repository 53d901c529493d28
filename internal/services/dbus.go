package services

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"

	"github.com/tis24dev/stackrestore/internal/logging"
)

// DBusConn is the subset of the systemd D-Bus connection used here.
type DBusConn interface {
	StartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	ListUnitsByNamesContext(ctx context.Context, units []string) ([]dbus.UnitStatus, error)
	ResetFailedUnitContext(ctx context.Context, name string) error
	Close()
}

// NewDBusConn opens a system bus connection to systemd.
var NewDBusConn = func(ctx context.Context) (DBusConn, error) {
	return dbus.NewWithContext(ctx)
}

// DBus manages units through the systemd D-Bus API. A connection is opened
// per call so a restarted systemd never leaves us with a stale one.
type DBus struct {
	logger   *logging.Logger
	timeouts Timeouts
}

// NewDBus returns a D-Bus backed provider.
func NewDBus(timeouts Timeouts, logger *logging.Logger) *DBus {
	return &DBus{logger: logger, timeouts: timeouts}
}

func (d *DBus) status(ctx context.Context, unit string) (dbus.UnitStatus, error) {
	conn, err := NewDBusConn(ctx)
	if err != nil {
		return dbus.UnitStatus{}, fmt.Errorf("connect to systemd: %w", err)
	}
	defer conn.Close()

	sctx, cancel := withTimeout(ctx, d.timeouts.Status)
	defer cancel()
	units, err := conn.ListUnitsByNamesContext(sctx, []string{unit})
	if err != nil {
		return dbus.UnitStatus{}, fmt.Errorf("query unit %s: %w", unit, err)
	}
	if len(units) == 0 {
		return dbus.UnitStatus{Name: unit, LoadState: "not-found"}, nil
	}
	return units[0], nil
}

// Present reports whether the unit has a loadable definition.
func (d *DBus) Present(ctx context.Context, unit string) (bool, error) {
	if unit == "" {
		return false, nil
	}
	st, err := d.status(ctx, unit)
	if err != nil {
		return false, err
	}
	return st.LoadState != "not-found" && st.LoadState != "", nil
}

// IsActive reads the unit's ActiveState.
func (d *DBus) IsActive(ctx context.Context, unit string) (bool, error) {
	st, err := d.status(ctx, unit)
	if err != nil {
		return false, err
	}
	return parseActiveState(unit, st.ActiveState)
}

// Stop queues a stop job and waits for it to finish.
func (d *DBus) Stop(ctx context.Context, unit string) error {
	err := d.job(ctx, "stop", unit, d.timeouts.Stop, func(conn DBusConn, jctx context.Context, ch chan<- string) (int, error) {
		return conn.StopUnitContext(jctx, unit, "replace", ch)
	})
	if err != nil {
		return err
	}
	conn, err := NewDBusConn(ctx)
	if err == nil {
		if rerr := conn.ResetFailedUnitContext(ctx, unit); rerr != nil {
			d.logger.Debug("reset-failed %s ignored: %v", unit, rerr)
		}
		conn.Close()
	}
	return nil
}

// Start queues a start job and waits for it to finish.
func (d *DBus) Start(ctx context.Context, unit string) error {
	return d.job(ctx, "start", unit, d.timeouts.Start, func(conn DBusConn, jctx context.Context, ch chan<- string) (int, error) {
		return conn.StartUnitContext(jctx, unit, "replace", ch)
	})
}

type jobFunc func(conn DBusConn, ctx context.Context, ch chan<- string) (int, error)

func (d *DBus) job(ctx context.Context, op, unit string, timeout time.Duration, submit jobFunc) error {
	conn, err := NewDBusConn(ctx)
	if err != nil {
		return fmt.Errorf("connect to systemd: %w", err)
	}
	defer conn.Close()

	jctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	statusCh := make(chan string, 1)
	id, err := submit(conn, jctx, statusCh)
	if err != nil {
		return fmt.Errorf("dbus %s request for %s failed: %w", op, unit, err)
	}
	d.logger.Debug("Queued %s job %d for %s", op, id, unit)

	select {
	case status := <-statusCh:
		if status != "done" {
			return fmt.Errorf("failed to %s %s (job result %q)", op, unit, status)
		}
		return nil
	case <-jctx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s %s timed out after %s", op, unit, timeout)
	}
}
