//go:build !linux

package work

import (
	"context"
	"errors"
)

func (u *unitCheck) Execute(context.Context) error {
	return errors.New("unit checks require systemd (linux)")
}
