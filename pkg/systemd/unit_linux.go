//go:build linux

package systemd

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

// GetStatus looks up a unit on the system bus.
func GetStatus(ctx context.Context, name string) (UnitStatus, error) {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return UnitStatus{}, fmt.Errorf("systemd: connect: %w", err)
	}
	defer conn.Close()

	props, err := conn.GetUnitPropertiesContext(ctx, unitName(name))
	if err != nil {
		if isNoSuchUnitErr(err) {
			return statusFromProps(name, nil), nil
		}
		return UnitStatus{}, fmt.Errorf("systemd: status %s: %w", name, err)
	}
	return statusFromProps(name, props), nil
}

// Restart restarts a unit and waits for the job result.
func Restart(ctx context.Context, name string) error {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return fmt.Errorf("systemd: connect: %w", err)
	}
	defer conn.Close()

	done := make(chan string, 1)
	if _, err := conn.RestartUnitContext(ctx, unitName(name), "replace", done); err != nil {
		return fmt.Errorf("systemd: restart %s: %w", name, err)
	}
	select {
	case res := <-done:
		if res != "done" {
			return fmt.Errorf("systemd: restart %s: job %s", name, res)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
