//go:build !linux

package systemd

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("systemd: not supported on this platform")

func GetStatus(context.Context, string) (UnitStatus, error) { return UnitStatus{}, errUnsupported }

func Restart(context.Context, string) error { return errUnsupported }
