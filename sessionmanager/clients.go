// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sessionmanager

import (
	"github.com/linuxdeepin/dde-session-manager/common/sessiondirs"
	"github.com/linuxdeepin/dde-session-manager/session/app"
	"github.com/linuxdeepin/dde-session-manager/session/client"
	"github.com/linuxdeepin/dde-session-manager/session/inhibitor"
)

func (m *Manager) addClient(c client.Client) bool {
	c.SetHandlers(client.Handlers{
		Disconnected: func(c client.Client) {
			m.loop.post(func() {
				m.onClientDisconnected(c)
			})
		},
		EndSessionResponse: func(c client.Client, isOK, doLast, cancel bool, reason string) {
			m.loop.post(func() {
				if _, ok := m.clients.Lookup(c.ID()); !ok {
					return
				}
				m.onClientEndSessionResponse(c, isOK, doLast, cancel, reason)
			})
		},
	})
	return m.clients.Add(c.ID(), c)
}

func (m *Manager) findClientByStartupID(startupID string) client.Client {
	if startupID == "" {
		return nil
	}
	c, _ := m.clients.Find(func(_ string, c client.Client) bool {
		return c.StartupID() == startupID
	})
	return c
}

func (m *Manager) findAppByStartupID(startupID string) *app.App {
	if startupID == "" {
		return nil
	}
	a, _ := m.apps.Find(func(_ string, a *app.App) bool {
		return a.StartupID() == startupID
	})
	return a
}

func (m *Manager) findAppByAppID(appID string) *app.App {
	if appID == "" {
		return nil
	}
	appID = sessiondirs.DesktopFileName(appID)
	a, _ := m.apps.Find(func(_ string, a *app.App) bool {
		return sessiondirs.DesktopFileName(a.AppID()) == appID
	})
	return a
}

// findAppForStartupID only considers the apps the current phase waits for
// while the session is starting up.
func (m *Manager) findAppForStartupID(startupID string) *app.App {
	if m.phase < app.PhaseApplication {
		for _, a := range m.pendingApps {
			if a.StartupID() == startupID {
				return a
			}
		}
		return nil
	}
	return m.findAppByStartupID(startupID)
}

func (m *Manager) onClientDisconnected(c client.Client) {
	if _, ok := m.clients.Lookup(c.ID()); !ok {
		return
	}
	m.disconnectClient(c)
}

func (m *Manager) disconnectClient(c client.Client) {
	logger.Debugf("client %s disconnected", c.ID())
	c.SetStatus(client.StatusFinished)
	isCondition := m.conditionClients[c.ID()]
	delete(m.conditionClients, c.ID())
	m.removeClientInhibitors(c.ID())

	a := m.findAppByStartupID(c.StartupID())
	if a == nil {
		a = m.findAppByAppID(c.AppID())
	}

	restart := m.shouldRestart(c, a, isCondition)

	// The client must be gone from the store before its answer can move
	// the session on, otherwise the next phase would still address it.
	m.clients.Remove(c.ID())

	phaseBefore := m.phase
	if m.phase == app.PhaseQueryEndSession || m.phase == app.PhaseEndSession {
		m.onClientEndSessionResponse(c, true, false, false, "")
	}

	if restart {
		m.restartApp(a)
	}

	if m.phase != phaseBefore || m.dialogOpen {
		return
	}
	if m.phase >= app.PhaseQueryEndSession && m.clients.Size() == 0 {
		logger.Debug("last client disconnected")
		if m.phase == app.PhaseQueryEndSession {
			m.queryEndSessionComplete()
			return
		}
		m.endPhase()
	}
}

func (m *Manager) shouldRestart(c client.Client, a *app.App, isCondition bool) bool {
	_, isDBus := c.(*client.DBusClient)
	switch {
	case m.dbusDisconnected && isDBus:
		logger.Debug("session bus is gone, not restarting", c.ID())
		return false
	case a == nil:
		return false
	case m.phase >= app.PhaseQueryEndSession:
		return false
	case isCondition:
		logger.Debug("not restarting client stopped by its condition", c.ID())
		return false
	}
	return a.AutoRestart() || c.RestartStyleHint() == client.RestartImmediately
}

// onNameLost drops the inhibitors and clients of a bus name that left the
// bus.
func (m *Manager) onNameLost(name string) {
	m.inhibitors.ForeachRemove(func(_ string, inh *inhibitor.Inhibitor) bool {
		return inh.BusName() == name
	})

	var lost []client.Client
	m.clients.Foreach(func(_ string, c client.Client) bool {
		if dc, ok := c.(*client.DBusClient); ok && dc.BusName() == name {
			lost = append(lost, c)
		}
		return true
	})
	for _, c := range lost {
		m.disconnectClient(c)
	}
}

// NewXSMPConnection adds a client for a new XSMP connection. It returns nil
// when the session no longer accepts clients.
func (m *Manager) NewXSMPConnection(conn client.Conn) *client.XSMPClient {
	c := client.NewXSMPClient(conn)
	c.SetXSMPHandlers(client.XSMPHandlers{
		RegisterRequest: func(c *client.XSMPClient, previousID string) string {
			var id string
			m.loop.call(func() {
				id = m.onXSMPRegisterRequest(c, previousID)
			})
			return id
		},
		LogoutRequest: func(c *client.XSMPClient, showDialog bool) {
			m.loop.post(func() {
				m.onXSMPLogoutRequest(showDialog)
			})
		},
	})

	var added bool
	m.loop.call(func() {
		added = m.phase < app.PhaseQueryEndSession && m.addClient(c)
	})
	if !added {
		logger.Debug("reject XSMP connection", conn.Description())
		if err := conn.Close(); err != nil {
			logger.Debug(err)
		}
		return nil
	}
	return c
}

func (m *Manager) onXSMPRegisterRequest(c *client.XSMPClient, previousID string) string {
	if m.phase >= app.PhaseQueryEndSession {
		logger.Debug("reject XSMP registration, session is ending")
		return ""
	}
	if _, ok := m.clients.Lookup(c.ID()); !ok {
		return ""
	}

	if previousID == "" {
		return newStartupID()
	}
	if m.findClientByStartupID(previousID) != nil {
		logger.Debugf("startup id %s is already registered", previousID)
		return ""
	}

	a := m.findAppForStartupID(previousID)
	if a == nil {
		logger.Debugf("no app for startup id %s", previousID)
		return ""
	}
	c.SetAppID(a.AppID())
	a.SetRegistered(true)
	m.appEventDuringStartup(a)
	return previousID
}

func (m *Manager) onXSMPLogoutRequest(showDialog bool) {
	if m.phase != app.PhaseRunning || m.cfg.DisableLogout() {
		return
	}
	mode := LogoutModeNoConfirmation
	if showDialog {
		mode = LogoutModeNormal
	}
	m.userLogout(mode)
}
