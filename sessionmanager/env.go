// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sessionmanager

import (
	"os"

	"github.com/godbus/dbus/v5"
	ofdbus "github.com/linuxdeepin/go-dbus-factory/session/org.freedesktop.dbus"
	systemd1 "github.com/linuxdeepin/go-dbus-factory/system/org.freedesktop.systemd1"
	"github.com/linuxdeepin/go-lib/multierr"
)

// envUpdater makes a variable visible to everything started later in the
// session.
type envUpdater interface {
	Setenv(name, value string) error
}

type busEnvUpdater struct {
	dbusDaemon ofdbus.DBus
	systemd    systemd1.Manager
}

func newBusEnvUpdater(conn *dbus.Conn) *busEnvUpdater {
	return &busEnvUpdater{
		dbusDaemon: ofdbus.NewDBus(conn),
		systemd:    systemd1.NewManager(conn),
	}
}

func (u *busEnvUpdater) Setenv(name, value string) error {
	var errs error
	if err := os.Setenv(name, value); err != nil {
		errs = multierr.Append(errs, err)
	}
	err := u.dbusDaemon.UpdateActivationEnvironment(0, map[string]string{name: value})
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	err = u.systemd.SetEnvironment(0, []string{name + "=" + value})
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}
