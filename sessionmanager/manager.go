// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sessionmanager

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/dde-session-manager/session/app"
	"github.com/linuxdeepin/dde-session-manager/session/client"
	"github.com/linuxdeepin/dde-session-manager/session/inhibitor"
	"github.com/linuxdeepin/dde-session-manager/session/presence"
	"github.com/linuxdeepin/dde-session-manager/session/sessionsave"
	"github.com/linuxdeepin/dde-session-manager/session/store"
	"github.com/linuxdeepin/dde-session-manager/session/system"
	"github.com/linuxdeepin/go-lib/dbusutil"
	"github.com/linuxdeepin/go-lib/utils"
)

//go:generate dbusutil-gen em -type Manager

const (
	dbusServiceName = "org.deepin.dde.SessionManager1"
	dbusPath        = "/org/deepin/dde/SessionManager1"
	dbusInterface   = dbusServiceName

	defaultPhaseTimeout   = 30 * time.Second
	defaultQueryTimeout   = 1 * time.Second
	defaultConfirmTimeout = 60 * time.Second

	switchUserCommand = "dde-switchtogreeter"
)

type LogoutMode uint32

const (
	LogoutModeNormal LogoutMode = iota
	LogoutModeNoConfirmation
	LogoutModeForce
)

// busService is the part of *dbusutil.Service the manager uses.
type busService interface {
	Export(path dbus.ObjectPath, implementers ...dbusutil.Implementer) error
	StopExport(implementer dbusutil.Implementer) error
	Emit(v dbusutil.Implementer, signalName string, values ...interface{}) error
	EmitPropertyChanged(v dbusutil.Implementer, propName string, value interface{}) error
	GetConnPID(name string) (uint32, error)
}

type sessionSaver interface {
	Save(clients []sessionsave.Client) error
	Clear() error
}

type commandRunner interface {
	Run(cmd, description string) error
}

type timeouts struct {
	phase   time.Duration
	query   time.Duration
	confirm time.Duration
}

type managerOptions struct {
	service    busService
	system     system.System
	config     Config
	dialog     Dialog
	xsmpServer XSMPServer
	saver      sessionSaver
	env        envUpdater
	runner     commandRunner
	appContext *app.Context
	quit       func()
	timeouts   timeouts
}

// loopTimer fires fn on the event loop unless it was stopped first.
type loopTimer struct {
	t    *time.Timer
	done bool
}

func (lt *loopTimer) stop() {
	if lt == nil {
		return
	}
	lt.done = true
	lt.t.Stop()
}

type Manager struct {
	service    busService
	loop       *eventLoop
	sys        system.System
	cfg        Config
	dialog     Dialog
	xsmpServer XSMPServer
	saver      sessionSaver
	env        envUpdater
	runner     commandRunner
	appCtx     *app.Context
	presence   *presence.Presence
	quitFn     func()
	timeouts   timeouts

	clients    *store.Store[client.Client]
	inhibitors *store.Store[*inhibitor.Inhibitor]
	apps       *store.Store[*app.App]
	exported   map[string]dbusutil.Implementer

	phase            app.Phase
	requiredApps     map[string]bool
	pendingApps      []*app.App
	queryClients     []client.Client
	nextQueryClients []client.Client
	conditionClients map[string]bool

	phaseTimer   *loopTimer
	queryTimer   *loopTimer
	confirmTimer *loopTimer

	logoutMode       LogoutMode
	logoutType       Action
	dialogSerial     int
	dialogOpen       bool
	confirming       bool
	queryCompleted   bool
	xsmpAccepting    bool
	dbusDisconnected bool
	quitting         bool

	PropsMu          sync.RWMutex
	SessionName      string
	SessionIsActive  bool
	Phase            int32
	InhibitedActions uint32

	//nolint
	signals *struct {
		ClientAdded struct {
			id dbus.ObjectPath
		}
		ClientRemoved struct {
			id dbus.ObjectPath
		}
		InhibitorAdded struct {
			id dbus.ObjectPath
		}
		InhibitorRemoved struct {
			id dbus.ObjectPath
		}
		SessionRunning struct{}
		SessionOver    struct{}
	}
}

func newManager(sessionName string, opts managerOptions) *Manager {
	m := &Manager{
		service:          opts.service,
		loop:             newEventLoop(),
		sys:              opts.system,
		cfg:              opts.config,
		dialog:           opts.dialog,
		xsmpServer:       opts.xsmpServer,
		saver:            opts.saver,
		env:              opts.env,
		runner:           opts.runner,
		appCtx:           opts.appContext,
		quitFn:           opts.quit,
		timeouts:         opts.timeouts,
		clients:          store.New[client.Client]("clients"),
		inhibitors:       store.New[*inhibitor.Inhibitor]("inhibitors"),
		apps:             store.New[*app.App]("apps"),
		exported:         make(map[string]dbusutil.Implementer),
		phase:            app.PhaseStartup,
		requiredApps:     make(map[string]bool),
		conditionClients: make(map[string]bool),
		SessionName:      sessionName,
		SessionIsActive:  true,
	}
	if m.cfg == nil {
		s := defaultSettings
		m.cfg = &s
	}
	if m.dialog == nil {
		m.dialog = &headlessDialog{}
	}
	if m.timeouts.phase == 0 {
		m.timeouts.phase = defaultPhaseTimeout
	}
	if m.timeouts.query == 0 {
		m.timeouts.query = defaultQueryTimeout
	}
	if m.timeouts.confirm == 0 {
		m.timeouts.confirm = defaultConfirmTimeout
	}
	if m.quitFn == nil {
		m.quitFn = func() {}
	}
	if m.appCtx == nil {
		m.appCtx = &app.Context{}
	}
	m.appCtx.SessionName = m.getSessionName
	m.appCtx.IsBlacklisted = func(file string) bool {
		return isBlacklisted(m.cfg, file)
	}

	m.presence = presence.New(m.service, func(status presence.Status) {
		m.sys.SetSessionIdle(status == presence.StatusIdle)
	})

	m.clients.Connect(m.handleClientsChanged)
	m.inhibitors.Connect(m.handleInhibitorsChanged)

	m.sys.ConnectRequestFailed(func(err error) {
		logger.Warning("system request failed:", err)
		m.loop.post(func() {
			m.quitFn()
		})
	})
	return m
}

func (*Manager) GetInterfaceName() string {
	return dbusInterface
}

func (m *Manager) getSessionName() string {
	m.PropsMu.RLock()
	defer m.PropsMu.RUnlock()
	return m.SessionName
}

func (m *Manager) startTimer(d time.Duration, fn func()) *loopTimer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		m.loop.post(func() {
			if lt.done {
				return
			}
			lt.done = true
			fn()
		})
	})
	return lt
}

func (m *Manager) setPhase(phase app.Phase) {
	m.phase = phase
	m.PropsMu.Lock()
	m.Phase = int32(phase)
	m.PropsMu.Unlock()
	m.emitPropChanged("Phase", int32(phase))
}

func (m *Manager) setSessionIsActive(active bool) {
	m.PropsMu.Lock()
	if m.SessionIsActive == active {
		m.PropsMu.Unlock()
		return
	}
	m.SessionIsActive = active
	m.PropsMu.Unlock()
	m.emitPropChanged("SessionIsActive", active)
}

func (m *Manager) emitPropChanged(name string, value interface{}) {
	if m.service == nil {
		return
	}
	err := m.service.EmitPropertyChanged(m, name, value)
	if err != nil {
		logger.Warning(err)
	}
}

func (m *Manager) emitSignal(name string, values ...interface{}) {
	if m.service == nil {
		return
	}
	err := m.service.Emit(m, name, values...)
	if err != nil {
		logger.Warning(err)
	}
}

func (m *Manager) export(id string, implementers ...dbusutil.Implementer) {
	if m.service == nil || len(implementers) == 0 {
		return
	}
	err := m.service.Export(dbus.ObjectPath(id), implementers...)
	if err != nil {
		logger.Warningf("export %s: %v", id, err)
		return
	}
	m.exported[id] = implementers[0]
}

func (m *Manager) stopExport(id string) {
	impl, ok := m.exported[id]
	if !ok {
		return
	}
	delete(m.exported, id)
	err := m.service.StopExport(impl)
	if err != nil {
		logger.Warningf("stop export %s: %v", id, err)
	}
}

func (m *Manager) handleClientsChanged(ev store.EventType, id string) {
	switch ev {
	case store.EventAdded:
		c, ok := m.clients.Lookup(id)
		if !ok {
			return
		}
		if dc, ok := c.(*client.DBusClient); ok {
			m.export(id, dc.Implementers()...)
		}
		m.emitSignal("ClientAdded", dbus.ObjectPath(id))
	case store.EventRemoved:
		m.stopExport(id)
		delete(m.conditionClients, id)
		m.emitSignal("ClientRemoved", dbus.ObjectPath(id))
	}
}

func (m *Manager) handleInhibitorsChanged(ev store.EventType, id string) {
	switch ev {
	case store.EventAdded:
		inh, ok := m.inhibitors.Lookup(id)
		if !ok {
			return
		}
		m.sys.AddInhibitor(id, inh.Flags())
		m.export(id, inh)
		m.updateInhibitedActions()
		m.emitSignal("InhibitorAdded", dbus.ObjectPath(id))
	case store.EventRemoved:
		m.sys.RemoveInhibitor(id)
		m.stopExport(id)
		m.updateInhibitedActions()
		m.emitSignal("InhibitorRemoved", dbus.ObjectPath(id))
		if m.confirming {
			m.loop.post(m.confirmIfUninhibited)
		}
	}
	m.updateIdle()
}

func (m *Manager) updateInhibitedActions() {
	var flags inhibitor.Flag
	m.inhibitors.Foreach(func(_ string, inh *inhibitor.Inhibitor) bool {
		flags |= inh.Flags()
		return true
	})
	m.PropsMu.Lock()
	if m.InhibitedActions == uint32(flags) {
		m.PropsMu.Unlock()
		return
	}
	m.InhibitedActions = uint32(flags)
	m.PropsMu.Unlock()
	m.emitPropChanged("InhibitedActions", uint32(flags))
}

func (m *Manager) updateIdle() {
	m.presence.SetIdleEnabled(!m.isInhibited(inhibitor.FlagIdle))
}

func (m *Manager) isInhibited(flag inhibitor.Flag) bool {
	_, found := m.inhibitors.Find(func(_ string, inh *inhibitor.Inhibitor) bool {
		return inh.Flags().Has(flag)
	})
	return found
}

func (m *Manager) inhibitorsFor(flag inhibitor.Flag) []*inhibitor.Inhibitor {
	var result []*inhibitor.Inhibitor
	m.inhibitors.Foreach(func(_ string, inh *inhibitor.Inhibitor) bool {
		if inh.Flags().Has(flag) {
			result = append(result, inh)
		}
		return true
	})
	return result
}

func (m *Manager) isLogoutInhibited() bool {
	if m.logoutMode == LogoutModeForce {
		return false
	}
	return m.isInhibited(inhibitor.FlagLogout)
}

func (m *Manager) newCookie() uint32 {
	for {
		cookie := rand.Uint32()
		if cookie == 0 {
			continue
		}
		_, taken := m.inhibitors.Find(func(_ string, inh *inhibitor.Inhibitor) bool {
			return inh.Cookie() == cookie
		})
		if !taken {
			return cookie
		}
	}
}

func newStartupID() string {
	return "10" + strings.ReplaceAll(utils.GenUuid(), "-", "")
}

func (m *Manager) setXSMPAccepting(accept bool) {
	if m.xsmpServer == nil || m.xsmpAccepting == accept {
		return
	}
	if accept {
		if err := m.xsmpServer.Start(); err != nil {
			logger.Warning("failed to start XSMP server:", err)
			return
		}
	} else {
		m.xsmpServer.Stop()
	}
	m.xsmpAccepting = accept
}

// start runs the startup phases, it must be called on the loop.
func (m *Manager) start() {
	if m.phase > app.PhaseStartup {
		logger.Warning("session already started")
		return
	}
	m.setXSMPAccepting(true)
	m.setPhase(app.PhaseEarlyInitialization)
	m.startPhase()
}

func (m *Manager) quit() {
	if m.quitting {
		return
	}
	m.quitting = true
	logger.Info("quit session, action:", m.logoutType)

	switch m.logoutType {
	case ActionShutdown:
		m.sys.AttemptStop()
	case ActionReboot:
		m.sys.AttemptRestart()
	default:
		if err := m.sys.Logout(); err != nil {
			logger.Warning("logout failed:", err)
		}
		m.quitFn()
	}
}

func (m *Manager) destroy() {
	m.loop.stop()
	m.phaseTimer.stop()
	m.queryTimer.stop()
	m.confirmTimer.stop()
	for _, a := range m.apps.Items() {
		a.Dispose()
	}
	m.setXSMPAccepting(false)
}
