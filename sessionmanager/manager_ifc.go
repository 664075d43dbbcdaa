// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sessionmanager

import (
	"github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/dde-session-manager/session/app"
	"github.com/linuxdeepin/dde-session-manager/session/client"
	"github.com/linuxdeepin/dde-session-manager/session/inhibitor"
	"github.com/linuxdeepin/go-lib/dbusutil"
)

var errStopped = newError(ErrGeneral, "session manager is not running")

// onLoop runs fn on the event loop and returns its error.
func (m *Manager) onLoop(fn func() error) error {
	var err error
	if !m.loop.call(func() {
		err = fn()
	}) {
		return errStopped
	}
	return err
}

func (m *Manager) checkInitialization() error {
	if m.phase > app.PhaseInitialization {
		return newError(ErrNotInInitialization, "Setenv interface is only available during the Initialization phase")
	}
	return nil
}

func (m *Manager) Setenv(name, value string) *dbus.Error {
	err := m.onLoop(m.checkInitialization)
	if err != nil {
		return dbusutil.ToError(err)
	}
	if m.env == nil {
		return nil
	}
	return dbusutil.ToError(m.env.Setenv(name, value))
}

func (m *Manager) InitializationError(message string, fatal bool) *dbus.Error {
	err := m.onLoop(func() error {
		if err := m.checkInitialization(); err != nil {
			return err
		}
		logger.Warning("initialization error:", message)
		m.dialog.ShowFailure("", message)
		if fatal {
			m.quitFn()
		}
		return nil
	})
	return dbusutil.ToError(err)
}

func (m *Manager) RegisterClient(sender dbus.Sender, appID, startupID string) (dbus.ObjectPath, *dbus.Error) {
	var pid uint32
	if m.service != nil {
		var err error
		pid, err = m.service.GetConnPID(string(sender))
		if err != nil {
			logger.Warning(err)
		}
	}

	var path dbus.ObjectPath
	err := m.onLoop(func() error {
		var err error
		path, err = m.registerClient(string(sender), pid, appID, startupID)
		return err
	})
	return path, dbusutil.ToError(err)
}

func (m *Manager) registerClient(busName string, pid uint32, appID, startupID string) (dbus.ObjectPath, error) {
	if m.phase >= app.PhaseQueryEndSession {
		return "", newError(ErrNotInRunning, "Unable to register client: shutting down")
	}

	if startupID == "" {
		startupID = newStartupID()
	} else if m.findClientByStartupID(startupID) != nil {
		return "", newError(ErrAlreadyRegistered, "Unable to register client: already registered")
	}

	a := m.findAppForStartupID(startupID)
	if a == nil {
		a = m.findAppByAppID(appID)
	}

	c := client.NewDBusClient(m.service, busName, pid, appID, startupID)
	if !m.addClient(c) {
		return "", newError(ErrGeneral, "Unable to add client %s", c.ID())
	}
	logger.Debugf("registered D-Bus client %s for %s (%s)", c.ID(), busName, startupID)

	if a != nil {
		c.SetAppID(a.AppID())
		a.SetRegistered(true)
		m.appEventDuringStartup(a)
	}
	c.SetStatus(client.StatusRegistered)
	return c.Path(), nil
}

func (m *Manager) UnregisterClient(clientPath dbus.ObjectPath) *dbus.Error {
	err := m.onLoop(func() error {
		c, ok := m.clients.Lookup(string(clientPath))
		if !ok {
			return newError(ErrNotRegistered, "Unable to unregister client: not registered")
		}
		// the client is dropped once its bus name leaves the bus
		c.SetStatus(client.StatusUnregistered)
		return nil
	})
	return dbusutil.ToError(err)
}

func (m *Manager) Inhibit(sender dbus.Sender, appID string, toplevelXID uint32, reason string,
	flags uint32) (uint32, *dbus.Error) {
	var cookie uint32
	err := m.onLoop(func() error {
		var err error
		cookie, err = m.inhibit(string(sender), appID, toplevelXID, reason, inhibitor.Flag(flags))
		return err
	})
	return cookie, dbusutil.ToError(err)
}

func (m *Manager) inhibit(busName, appID string, toplevelXID uint32, reason string,
	flags inhibitor.Flag) (uint32, error) {
	if m.logoutMode == LogoutModeForce {
		return 0, newError(ErrGeneral, "Forced logout cannot be inhibited")
	}
	if appID == "" {
		return 0, newError(ErrGeneral, "Application ID not specified")
	}
	if reason == "" {
		return 0, newError(ErrGeneral, "Reason not specified")
	}
	if flags == 0 {
		return 0, newError(ErrGeneral, "Invalid inhibit flags")
	}

	cookie := m.newCookie()
	inh := inhibitor.NewForApp(appID, toplevelXID, flags, reason, busName, cookie)
	if !m.inhibitors.Add(inh.ID(), inh) {
		return 0, newError(ErrGeneral, "Unable to add inhibitor")
	}
	logger.Debugf("%s inhibits %s: %s", appID, flags, reason)
	return cookie, nil
}

func (m *Manager) Uninhibit(cookie uint32) *dbus.Error {
	err := m.onLoop(func() error {
		inh, ok := m.inhibitors.Find(func(_ string, inh *inhibitor.Inhibitor) bool {
			return inh.Cookie() == cookie
		})
		if !ok {
			return newError(ErrGeneral, "Unable to uninhibit: Invalid cookie")
		}
		m.inhibitors.Remove(inh.ID())
		return nil
	})
	return dbusutil.ToError(err)
}

func (m *Manager) IsInhibited(flags uint32) (bool, *dbus.Error) {
	var inhibited bool
	err := m.onLoop(func() error {
		_, inhibited = m.inhibitors.Find(func(_ string, inh *inhibitor.Inhibitor) bool {
			return inh.Flags()&inhibitor.Flag(flags) != 0
		})
		return nil
	})
	return inhibited, dbusutil.ToError(err)
}

func (m *Manager) GetClients() ([]dbus.ObjectPath, *dbus.Error) {
	var paths []dbus.ObjectPath
	err := m.onLoop(func() error {
		m.clients.Foreach(func(id string, _ client.Client) bool {
			paths = append(paths, dbus.ObjectPath(id))
			return true
		})
		return nil
	})
	return paths, dbusutil.ToError(err)
}

func (m *Manager) GetInhibitors() ([]dbus.ObjectPath, *dbus.Error) {
	var paths []dbus.ObjectPath
	err := m.onLoop(func() error {
		m.inhibitors.Foreach(func(id string, _ *inhibitor.Inhibitor) bool {
			paths = append(paths, dbus.ObjectPath(id))
			return true
		})
		return nil
	})
	return paths, dbusutil.ToError(err)
}

func (m *Manager) IsAutostartConditionHandled(condition string) (bool, *dbus.Error) {
	var handled bool
	err := m.onLoop(func() error {
		_, handled = m.apps.Find(func(_ string, a *app.App) bool {
			return a.HasAutostartCondition(condition) && !a.IsDisabled()
		})
		return nil
	})
	return handled, dbusutil.ToError(err)
}

func (m *Manager) checkCanEndSession() error {
	if m.phase != app.PhaseRunning {
		return newError(ErrNotInRunning, "Shutdown interface is only available during the Running phase")
	}
	if m.cfg.DisableLogout() {
		return newError(ErrLockedDown, "Logout has been locked down")
	}
	return nil
}

func (m *Manager) shutdownOrPrompt(action Action) error {
	if err := m.checkCanEndSession(); err != nil {
		return err
	}
	if m.cfg.LogoutPrompt() {
		m.showShutdownDialog(action)
		return nil
	}
	m.requestEndSession(action, LogoutModeNormal)
	return nil
}

func (m *Manager) Shutdown() *dbus.Error {
	return dbusutil.ToError(m.onLoop(func() error {
		return m.shutdownOrPrompt(ActionShutdown)
	}))
}

func (m *Manager) Reboot() *dbus.Error {
	return dbusutil.ToError(m.onLoop(func() error {
		return m.shutdownOrPrompt(ActionReboot)
	}))
}

func (m *Manager) requestAction(action Action) error {
	if m.phase != app.PhaseRunning {
		return newError(ErrNotInRunning, "RequestShutdown interface is only available during the Running phase")
	}
	m.requestEndSession(action, LogoutModeNormal)
	return nil
}

func (m *Manager) RequestShutdown() *dbus.Error {
	return dbusutil.ToError(m.onLoop(func() error {
		return m.requestAction(ActionShutdown)
	}))
}

func (m *Manager) RequestReboot() *dbus.Error {
	return dbusutil.ToError(m.onLoop(func() error {
		return m.requestAction(ActionReboot)
	}))
}

func (m *Manager) CanShutdown() (bool, *dbus.Error) {
	var can bool
	err := m.onLoop(func() error {
		can = !m.cfg.DisableLogout() &&
			(m.sys.CanStop() || m.sys.CanRestart() || m.sys.CanSuspend() || m.sys.CanHibernate())
		return nil
	})
	return can, dbusutil.ToError(err)
}

func (m *Manager) logout(mode LogoutMode) error {
	if m.phase != app.PhaseRunning {
		return newError(ErrNotInRunning, "Logout interface is only available during the Running phase")
	}
	if m.cfg.DisableLogout() {
		return newError(ErrLockedDown, "Logout has been locked down")
	}
	switch mode {
	case LogoutModeNormal, LogoutModeNoConfirmation, LogoutModeForce:
	default:
		return newError(ErrInvalidOption, "Unknown logout mode flag")
	}
	m.userLogout(mode)
	return nil
}

func (m *Manager) Logout(mode uint32) *dbus.Error {
	return dbusutil.ToError(m.onLoop(func() error {
		return m.logout(LogoutMode(mode))
	}))
}

func (m *Manager) IsSessionRunning() (bool, *dbus.Error) {
	var running bool
	err := m.onLoop(func() error {
		running = m.phase == app.PhaseRunning
		return nil
	})
	return running, dbusutil.ToError(err)
}
