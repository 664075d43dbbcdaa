// SPDX-FileCopyrightText: 2025 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package systemdunit runs short lived shell commands as transient units
// of the user's systemd instance.
package systemdunit

import (
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	systemd1 "github.com/linuxdeepin/go-dbus-factory/system/org.freedesktop.systemd1"
	"github.com/linuxdeepin/go-lib/log"
)

var logger = log.NewLogger("dde-session-manager/systemdunit")

const shellPath = "/bin/sh"

type execStart struct {
	Path             string   // the binary path to execute
	Args             []string // an array with all arguments to pass to the executed command, starting with argument 0
	UncleanIsFailure bool     // a boolean whether it should be considered a failure if the process exits uncleanly
}

// TransientUnit describes one oneshot unit.
type TransientUnit struct {
	UnitName    string
	Description string
	Command     string
	Environment []string
}

func (t *TransientUnit) properties() []systemd1.Property {
	props := []systemd1.Property{
		{"Type", dbus.MakeVariant("oneshot")},
		{"Description", dbus.MakeVariant(t.Description)},
		{"ExecStart", dbus.MakeVariant([]execStart{{
			Path:             shellPath,
			Args:             []string{shellPath, "-c", t.Command},
			UncleanIsFailure: false,
		}})},
	}
	if len(t.Environment) > 0 {
		props = append(props, systemd1.Property{"Environment", dbus.MakeVariant(t.Environment)})
	}
	return props
}

// Runner starts commands through the user manager and falls back to a
// plain child process when that is unavailable.
type Runner struct {
	prefix  string
	manager systemd1.Manager
	serial  uint32
}

// NewRunner returns a Runner for conn, which should be the session bus.
// A nil conn always takes the fallback path.
func NewRunner(conn *dbus.Conn, prefix string) *Runner {
	r := &Runner{prefix: prefix}
	if conn != nil {
		r.manager = systemd1.NewManager(conn)
	}
	return r
}

func (r *Runner) nextUnitName() string {
	n := atomic.AddUint32(&r.serial, 1)
	return fmt.Sprintf("%s-%d-%d.service", r.prefix, os.Getpid(), n)
}

func (r *Runner) unitExists(name string) bool {
	_, err := r.manager.GetUnit(0, name)
	return err == nil
}

func (r *Runner) start(t *TransientUnit) error {
	if r.unitExists(t.UnitName) {
		err := r.manager.ResetFailedUnit(0, t.UnitName)
		if err != nil {
			return fmt.Errorf("failed to reset failed unit: %w", err)
		}
	}
	_, err := r.manager.StartTransientUnit(0, t.UnitName, "replace", t.properties(), nil)
	if err != nil {
		return fmt.Errorf("failed to start transient unit: %w", err)
	}
	return nil
}

// Run starts cmd without waiting for it.
func (r *Runner) Run(cmd, description string) error {
	if r.manager != nil {
		t := &TransientUnit{
			UnitName:    r.nextUnitName(),
			Description: description,
			Command:     cmd,
		}
		err := r.start(t)
		if err == nil {
			logger.Debugf("started %s for %q", t.UnitName, cmd)
			return nil
		}
		logger.Warning(err)
	}

	c := exec.Command(shellPath, "-c", cmd)
	err := c.Start()
	if err != nil {
		return err
	}
	go func() {
		_ = c.Wait()
	}()
	return nil
}
