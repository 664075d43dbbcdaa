// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sessionwatcher

import (
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
	login1 "github.com/linuxdeepin/go-dbus-factory/system/org.freedesktop.login1"
	"github.com/linuxdeepin/go-lib/dbusutil"
	"github.com/linuxdeepin/go-lib/dbusutil/proxy"
	"github.com/linuxdeepin/go-lib/strv"
)

//go:generate dbusutil-gen em -type Manager

const (
	dbusServiceName = "org.deepin.dde.SessionWatcher1"
	dbusPath        = "/org/deepin/dde/SessionWatcher1"
	dbusInterface   = dbusServiceName
)

var graphicalSessionTypes = strv.Strv{"x11", "wayland"}

type Manager struct {
	service       *dbusutil.Service
	loginManager  login1.Manager
	systemSigLoop *dbusutil.SignalLoop
	mu            sync.Mutex
	sessions      map[string]login1.Session
	callbacks     []func(bool)

	PropsMu  sync.RWMutex
	IsActive bool
}

// sessionState is what decides whether a session counts as active.
type sessionState struct {
	seatID   string
	seatPath dbus.ObjectPath
	typ      string
	active   bool
}

func isActiveGraphical(s sessionState) bool {
	return s.seatID != "" && s.seatPath != "/" && s.active &&
		(s.typ == "" || graphicalSessionTypes.Contains(s.typ))
}

func anyActive(states []sessionState) bool {
	for _, s := range states {
		if isActiveGraphical(s) {
			return true
		}
	}
	return false
}

func newManager(service *dbusutil.Service) (*Manager, error) {
	manager := &Manager{
		service:  service,
		sessions: make(map[string]login1.Session),
	}
	systemConn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	manager.loginManager = login1.NewManager(systemConn)

	manager.systemSigLoop = dbusutil.NewSignalLoop(systemConn, 10)
	manager.systemSigLoop.Start()
	manager.loginManager.InitSignalExt(manager.systemSigLoop, true)

	// active until logind says otherwise
	manager.IsActive = true
	return manager, nil
}

func (m *Manager) destroy() {
	m.mu.Lock()
	for _, session := range m.sessions {
		session.RemoveHandler(proxy.RemoveAllHandlers)
	}
	m.mu.Unlock()

	m.loginManager.RemoveHandler(proxy.RemoveAllHandlers)
	m.systemSigLoop.Stop()
}

func (*Manager) GetInterfaceName() string {
	return dbusInterface
}

func (m *Manager) connectActiveChanged(cb func(bool)) {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, cb)
	m.mu.Unlock()

	m.PropsMu.RLock()
	active := m.IsActive
	m.PropsMu.RUnlock()
	cb(active)
}

func (m *Manager) initUserSessions() {
	sessions, err := m.loginManager.ListSessions(0)
	if err != nil {
		logger.Warning("List sessions failed:", err)
		return
	}

	for _, session := range sessions {
		m.addSession(session.SessionId, session.Path)
	}
	m.handleSessionChanged()
	_, err = m.loginManager.ConnectSessionNew(func(id string, path dbus.ObjectPath) {
		logger.Debug("Session added:", id, path)
		m.addSession(id, path)
		m.handleSessionChanged()
	})
	if err != nil {
		logger.Warning("ConnectSessionNew error:", err)
	}

	_, err = m.loginManager.ConnectSessionRemoved(func(id string, path dbus.ObjectPath) {
		logger.Debug("Session removed:", id, path)
		m.deleteSession(id)
		m.handleSessionChanged()
	})
	if err != nil {
		logger.Warning("ConnectSessionRemoved error:", err)
	}
}

func (m *Manager) addSession(id string, path dbus.ObjectPath) {
	systemConn := m.systemSigLoop.Conn()
	session, err := login1.NewSession(systemConn, path)
	if err != nil {
		logger.Warning(err)
		return
	}

	userInfo, err := session.User().Get(0)
	if err != nil {
		logger.Warning(err)
		return
	}
	if userInfo.UID != uint32(os.Getuid()) {
		logger.Debug("Not the current user session:", id, path, userInfo.UID)
		return
	}
	remote, err := session.Remote().Get(0)
	if err != nil {
		logger.Warning(err)
		return
	}
	if remote {
		logger.Debugf("session %v is remote", id)
		return
	}

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()

	session.InitSignalExt(m.systemSigLoop, true)
	err = session.Active().ConnectChanged(func(hasValue bool, value bool) {
		m.handleSessionChanged()
	})
	if err != nil {
		logger.Warning("ConnectChanged error:", err)
	}
}

func (m *Manager) deleteSession(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return
	}
	session.RemoveHandler(proxy.RemoveAllHandlers)
	delete(m.sessions, id)
}

func (m *Manager) sessionStates() []sessionState {
	m.mu.Lock()
	sessions := make([]login1.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.Unlock()

	var states []sessionState
	for _, session := range sessions {
		seatInfo, err := session.Seat().Get(0)
		if err != nil {
			logger.Warning(err)
			continue
		}
		active, err := session.Active().Get(0)
		if err != nil {
			logger.Warning(err)
			continue
		}
		typ, err := session.Type().Get(0)
		if err != nil {
			logger.Warning(err)
		}
		states = append(states, sessionState{
			seatID:   seatInfo.Id,
			seatPath: seatInfo.Path,
			typ:      typ,
			active:   active,
		})
	}
	return states
}

func (m *Manager) handleSessionChanged() {
	states := m.sessionStates()
	if len(states) == 0 {
		return
	}

	isActive := anyActive(states)
	m.PropsMu.Lock()
	changed := m.setIsActive(isActive)
	m.PropsMu.Unlock()
	if !changed {
		return
	}

	m.mu.Lock()
	callbacks := append([]func(bool){}, m.callbacks...)
	m.mu.Unlock()
	for _, cb := range callbacks {
		cb(isActive)
	}
}

// setIsActive must be called with PropsMu held, it reports a change.
func (m *Manager) setIsActive(val bool) bool {
	if m.IsActive == val {
		return false
	}
	m.IsActive = val
	logger.Debug("IsActive changed:", val)
	err := m.service.EmitPropertyChanged(m, "IsActive", val)
	if err != nil {
		logger.Warning("EmitPropertyChanged error:", err)
	}
	return true
}

// IsX11SessionActive reports whether the caller's display session is active.
func (m *Manager) IsX11SessionActive(sender dbus.Sender) (bool, *dbus.Error) {
	uid, err := m.service.GetConnUID(string(sender))
	if err != nil {
		logger.Warning(err)
		return false, dbusutil.ToError(err)
	}

	systemConn := m.systemSigLoop.Conn()
	userPath, err := m.loginManager.GetUser(0, uid)
	if err != nil {
		logger.Warning(err)
		return false, dbusutil.ToError(err)
	}

	user, err := login1.NewUser(systemConn, userPath)
	if err != nil {
		return false, dbusutil.ToError(err)
	}

	display, err := user.Display().Get(0)
	if err != nil {
		return false, dbusutil.ToError(err)
	}

	session, err := login1.NewSession(systemConn, display.Path)
	if err != nil {
		return false, dbusutil.ToError(err)
	}

	active, err := session.Active().Get(0)
	if err != nil {
		return false, dbusutil.ToError(err)
	}
	return active, nil
}
