// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package sessionmanager starts the session in phases, keeps the client,
// inhibitor and application registries and negotiates the end of the
// session with every client.
package sessionmanager

import (
	"os"
	"strings"
	"sync"

	"github.com/linuxdeepin/dde-session-manager/common/systemdunit"
	"github.com/linuxdeepin/dde-session-manager/loader"
	"github.com/linuxdeepin/dde-session-manager/session/app"
	"github.com/linuxdeepin/dde-session-manager/session/presence"
	"github.com/linuxdeepin/dde-session-manager/session/sessionsave"
	"github.com/linuxdeepin/dde-session-manager/session/system"
	"github.com/linuxdeepin/dde-session-manager/sessionwatcher"
	ofdbus "github.com/linuxdeepin/go-dbus-factory/session/org.freedesktop.dbus"
	"github.com/linuxdeepin/go-lib/dbusutil"
	"github.com/linuxdeepin/go-lib/dbusutil/proxy"
	"github.com/linuxdeepin/go-lib/log"
)

var logger = log.NewLogger("dde-session-manager/sessionmanager")

const (
	moduleName         = "sessionmanager"
	defaultSessionName = "deepin"
	unitPrefix         = "dde-session-manager"
)

var (
	optionsMu   sync.Mutex
	sessionName = defaultSessionName
	quitFunc    = func() {}
	xsmpServer  XSMPServer
	dialog      Dialog
)

// SetSessionName selects the <name>.session definition to load.
func SetSessionName(name string) {
	optionsMu.Lock()
	if name != "" {
		sessionName = name
	}
	optionsMu.Unlock()
}

// SetQuitFunc sets what ends the process once the session is over.
func SetQuitFunc(fn func()) {
	optionsMu.Lock()
	quitFunc = fn
	optionsMu.Unlock()
}

// SetFrontends plugs in the XSMP server and the dialog frontend, either
// may be nil.
func SetFrontends(server XSMPServer, d Dialog) {
	optionsMu.Lock()
	xsmpServer = server
	dialog = d
	optionsMu.Unlock()
}

type Daemon struct {
	*loader.ModuleBase
	manager    *Manager
	cfg        *dconfigConfig
	sys        system.System
	sigLoop    *dbusutil.SignalLoop
	dbusDaemon ofdbus.DBus
}

func init() {
	loader.Register(NewDaemon(logger))
}

func NewDaemon(logger *log.Logger) *Daemon {
	d := new(Daemon)
	d.ModuleBase = loader.NewModuleBase(moduleName, d, logger)
	return d
}

func (*Daemon) GetDependencies() []string {
	return []string{"sessionwatcher"}
}

// Manager returns the running manager, nil when the module is stopped.
func (d *Daemon) Manager() *Manager {
	return d.manager
}

func currentDesktops() []string {
	env := os.Getenv("XDG_CURRENT_DESKTOP")
	if env == "" {
		return nil
	}
	return strings.Split(env, ":")
}

func (d *Daemon) Start() error {
	if d.manager != nil {
		return nil
	}
	service := loader.GetService()
	conn := service.Conn()

	d.cfg = newDConfigConfig()
	sys, err := system.New(d.cfg.UseLogind())
	if err != nil {
		d.cfg.destroy()
		return err
	}
	d.sys = sys

	optionsMu.Lock()
	name, quit, server, dlg := sessionName, quitFunc, xsmpServer, dialog
	optionsMu.Unlock()

	runner := systemdunit.NewRunner(conn, unitPrefix)
	m := newManager(name, managerOptions{
		service:    service,
		system:     sys,
		config:     d.cfg,
		dialog:     dlg,
		xsmpServer: server,
		saver:      sessionsave.New(runner),
		env:        newBusEnvUpdater(conn),
		runner:     runner,
		appContext: &app.Context{
			CurrentDesktops: currentDesktops(),
			Activator:       app.NewBusActivator(conn),
			Settings:        app.NewGioSettings(),
		},
		quit: quit,
	})
	d.manager = m

	err = service.Export(dbusPath, m)
	if err != nil {
		return err
	}
	err = service.Export(presence.DBusPath, m.presence)
	if err != nil {
		return err
	}

	d.sigLoop = dbusutil.NewSignalLoop(conn, 10)
	d.sigLoop.Start()
	if err := m.presence.WatchScreenSaver(conn, d.sigLoop); err != nil {
		logger.Warning(err)
	}

	d.dbusDaemon = ofdbus.NewDBus(conn)
	d.dbusDaemon.InitSignalExt(d.sigLoop, true)
	_, err = d.dbusDaemon.ConnectNameOwnerChanged(func(name, oldOwner, newOwner string) {
		if newOwner == "" && oldOwner != "" {
			m.loop.post(func() {
				m.onNameLost(oldOwner)
			})
		}
	})
	if err != nil {
		logger.Warning(err)
	}

	go func() {
		<-conn.Context().Done()
		logger.Warning("lost connection to the session bus")
		m.loop.post(func() {
			m.dbusDisconnected = true
		})
	}()

	if watcher := sessionwatcher.Get(); watcher != nil {
		watcher.ConnectActiveChanged(func(active bool) {
			m.loop.post(func() {
				m.setSessionIsActive(active)
			})
		})
	}

	m.loop.start()

	err = service.RequestName(dbusServiceName)
	if err != nil {
		return err
	}

	m.loop.post(func() {
		if err := m.loadSession(name); err != nil {
			logger.Warning(err)
		}
		m.start()
	})
	return nil
}

func (d *Daemon) Stop() error {
	if d.manager == nil {
		return nil
	}
	service := loader.GetService()
	if err := service.StopExport(d.manager); err != nil {
		logger.Warning(err)
	}
	if err := service.StopExport(d.manager.presence); err != nil {
		logger.Warning(err)
	}
	d.dbusDaemon.RemoveHandler(proxy.RemoveAllHandlers)
	d.sigLoop.Stop()
	d.manager.destroy()
	d.sys.Destroy()
	d.cfg.destroy()
	d.manager = nil
	return nil
}
