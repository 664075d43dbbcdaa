// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sessionmanager

import (
	"github.com/linuxdeepin/dde-session-manager/session/app"
	"github.com/linuxdeepin/dde-session-manager/session/client"
	"github.com/linuxdeepin/dde-session-manager/session/inhibitor"
	"github.com/linuxdeepin/dde-session-manager/session/sessionsave"
	"github.com/linuxdeepin/go-lib/gettext"
)

func (m *Manager) doPhaseQueryEndSession() {
	m.setXSMPAccepting(false)
	m.clients.SetLocked(true)
	m.apps.SetLocked(true)
	m.queryEndSession()
}

func (m *Manager) queryEndSession() {
	var flags client.EndSessionFlag
	if m.logoutMode == LogoutModeForce {
		flags |= client.EndSessionFlagForceful
	}

	m.clients.Foreach(func(_ string, c client.Client) bool {
		err := c.QueryEndSession(flags)
		if err != nil {
			logger.Debugf("query %s: %v", c.ID(), err)
			return true
		}
		m.queryClients = append(m.queryClients, c)
		return true
	})

	if len(m.queryClients) == 0 {
		m.queryEndSessionComplete()
		return
	}
	m.queryTimer = m.startTimer(m.timeouts.query, m.onQueryTimeout)
}

func (m *Manager) onQueryTimeout() {
	m.queryTimer = nil
	if m.logoutMode != LogoutModeForce {
		for _, c := range m.queryClients {
			logger.Debugf("client %s did not answer the query in time", c.ID())
			m.addClientInhibitor(c, gettext.Tr("Not responding"))
		}
	}
	m.queryEndSessionComplete()
}

func (m *Manager) queryEndSessionComplete() {
	if m.queryCompleted {
		return
	}
	logger.Debug("query end session complete")
	m.queryCompleted = true
	m.queryTimer.stop()
	m.queryTimer = nil
	m.endSessionOrShowConfirmation()
}

func (m *Manager) endSessionOrShowConfirmation() {
	if !m.isLogoutInhibited() {
		m.endPhase()
		return
	}

	action := m.logoutType
	if action == ActionNone {
		action = ActionLogout
		m.logoutType = action
	}
	m.showInhibitorDialog(action, inhibitor.FlagLogout)
	m.confirming = true
	m.confirmTimer = m.startTimer(m.timeouts.confirm, func() {
		logger.Info("confirmation timed out, proceed with", action)
		m.confirmTimer = nil
		m.dialog.Close()
		m.onInhibitorDialogResponse(Response{Action: action})
	})
}

// addClientInhibitor holds the logout on behalf of c until it answers or
// the session is canceled.
func (m *Manager) addClientInhibitor(c client.Client, reason string) {
	appID := c.AppID()
	if appID == "" {
		appID = c.AppName()
	}
	var busName string
	if dc, ok := c.(*client.DBusClient); ok {
		busName = dc.BusName()
	}
	inh := inhibitor.NewForClient(c.ID(), appID, inhibitor.FlagLogout, reason, busName, m.newCookie())
	m.inhibitors.Add(inh.ID(), inh)
}

func (m *Manager) removeClientInhibitors(clientID string) {
	m.inhibitors.ForeachRemove(func(_ string, inh *inhibitor.Inhibitor) bool {
		return inh.ClientID() == clientID
	})
}

func (m *Manager) cancelEndSession() {
	if m.phase < app.PhaseQueryEndSession {
		return
	}
	logger.Info("end session canceled")

	m.closeDialog()
	m.inhibitors.ForeachRemove(func(_ string, inh *inhibitor.Inhibitor) bool {
		return inh.ClientID() != ""
	})
	m.clients.Foreach(func(_ string, c client.Client) bool {
		if err := c.CancelEndSession(); err != nil {
			logger.Debugf("cancel end session of %s: %v", c.ID(), err)
		}
		return true
	})

	m.logoutMode = LogoutModeNormal
	m.logoutType = ActionNone
	m.setPhase(app.PhaseRunning)
	m.startPhase()
}

func (m *Manager) doPhaseEndSession() {
	m.emitSignal("SessionOver")

	var flags client.EndSessionFlag
	if m.logoutMode == LogoutModeForce {
		flags |= client.EndSessionFlagForceful
	}
	if m.cfg.AutoSaveSession() {
		flags |= client.EndSessionFlagSave
	}

	m.clients.Foreach(func(_ string, c client.Client) bool {
		if err := c.EndSession(flags); err != nil {
			logger.Debugf("end session of %s: %v", c.ID(), err)
			return true
		}
		m.queryClients = append(m.queryClients, c)
		return true
	})

	if len(m.queryClients) == 0 {
		m.endPhase()
		return
	}
	m.phaseTimer = m.startTimer(m.timeouts.phase, m.onPhaseTimeout)
}

func (m *Manager) endSessionPhase2() {
	next := m.nextQueryClients
	m.nextQueryClients = nil
	for _, c := range next {
		if err := c.EndSession(client.EndSessionFlagLast); err != nil {
			logger.Debugf("end session phase 2 of %s: %v", c.ID(), err)
			continue
		}
		m.queryClients = append(m.queryClients, c)
	}
	if len(m.queryClients) == 0 {
		m.endPhase()
	}
}

func removeClient(list []client.Client, c client.Client) ([]client.Client, bool) {
	for i, item := range list {
		if item == c {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, false
}

func (m *Manager) onClientEndSessionResponse(c client.Client, isOK, doLast, cancel bool, reason string) {
	if m.phase < app.PhaseQueryEndSession {
		logger.Debugf("ignore end session response of %s in phase %s", c.ID(), m.phase)
		return
	}
	if cancel {
		m.cancelEndSession()
		return
	}

	var queried bool
	m.queryClients, queried = removeClient(m.queryClients, c)

	if !isOK && m.logoutMode != LogoutModeForce {
		if reason == "" {
			reason = gettext.Tr("Not responding")
		}
		m.addClientInhibitor(c, reason)
	} else {
		m.removeClientInhibitors(c.ID())
	}

	if !queried {
		return
	}

	switch m.phase {
	case app.PhaseQueryEndSession:
		if len(m.queryClients) == 0 {
			m.queryEndSessionComplete()
		}
	case app.PhaseEndSession:
		if doLast {
			m.nextQueryClients = append(m.nextQueryClients, c)
		}
		if len(m.queryClients) > 0 || m.isLogoutInhibited() {
			return
		}
		if len(m.nextQueryClients) > 0 {
			m.endSessionPhase2()
		} else {
			m.endPhase()
		}
	}
}

func (m *Manager) maybeSaveSession() {
	if m.sys.IsLoginSession() {
		return
	}
	if m.phase != app.PhaseRunning && m.phase != app.PhaseEndSession {
		return
	}
	if m.saver == nil {
		return
	}

	if !m.cfg.AutoSaveSession() {
		if err := m.saver.Clear(); err != nil {
			logger.Warning("clear saved session:", err)
		}
		return
	}

	var clients []sessionsave.Client
	m.clients.Foreach(func(_ string, c client.Client) bool {
		clients = append(clients, c)
		return true
	})
	if err := m.saver.Save(clients); err != nil {
		logger.Warning("save session:", err)
	}
}

// requestEndSession starts the end-session sequence from the running
// phase.
func (m *Manager) requestEndSession(action Action, mode LogoutMode) {
	if m.phase != app.PhaseRunning {
		logger.Debugf("ignore %s request in phase %s", action, m.phase)
		return
	}
	m.logoutType = action
	m.logoutMode = mode
	m.endPhase()
}

func (m *Manager) userLogout(mode LogoutMode) {
	if mode == LogoutModeNormal && m.cfg.LogoutPrompt() {
		m.showLogoutDialog()
		return
	}
	m.requestEndSession(ActionLogout, mode)
}

func (m *Manager) requestSuspend() {
	if m.isInhibited(inhibitor.FlagSuspend) {
		m.showInhibitorDialog(ActionSuspend, inhibitor.FlagSuspend)
		return
	}
	m.doSuspend()
}

func (m *Manager) doSuspend() {
	if m.cfg.PreferHybridSleep() && m.sys.CanHybridSleep() {
		m.sys.HybridSleep()
		return
	}
	m.sys.Suspend()
}

func (m *Manager) requestHibernate() {
	if m.isInhibited(inhibitor.FlagSuspend) {
		m.showInhibitorDialog(ActionHibernate, inhibitor.FlagSuspend)
		return
	}
	m.sys.Hibernate()
}

func (m *Manager) requestSwitchUser() {
	if m.cfg.DisableUserSwitching() || !m.sys.CanSwitchUser() {
		logger.Info("user switching is not available")
		return
	}
	if m.isInhibited(inhibitor.FlagSwitchUser) {
		m.showInhibitorDialog(ActionSwitchUser, inhibitor.FlagSwitchUser)
		return
	}
	m.doSwitchUser()
}

func (m *Manager) doSwitchUser() {
	if m.runner == nil {
		return
	}
	if err := m.runner.Run(switchUserCommand, "switch to greeter"); err != nil {
		logger.Warning("switch user:", err)
	}
}

// respondFunc wraps a dialog answer so it is handled on the loop, answers
// from a dialog that was replaced or closed are dropped.
func (m *Manager) respondFunc(handler func(Response)) func(Response) {
	m.dialogSerial++
	serial := m.dialogSerial
	m.dialogOpen = true
	return func(resp Response) {
		m.loop.post(func() {
			if serial != m.dialogSerial || !m.dialogOpen {
				logger.Debug("drop stale dialog response")
				return
			}
			m.dialogOpen = false
			handler(resp)
		})
	}
}

// confirmIfUninhibited accepts the confirmation on the user's behalf once
// the last logout inhibitor is gone.
func (m *Manager) confirmIfUninhibited() {
	if !m.confirming || m.isLogoutInhibited() {
		return
	}
	logger.Debug("no logout inhibitor left, proceed")
	action := m.logoutType
	m.closeDialog()
	m.onInhibitorDialogResponse(Response{Action: action})
}

func (m *Manager) closeDialog() {
	m.confirmTimer.stop()
	m.confirmTimer = nil
	m.confirming = false
	if m.dialogOpen {
		m.dialogOpen = false
		m.dialog.Close()
	}
}

func (m *Manager) showLogoutDialog() {
	m.dialog.ShowLogout(m.respondFunc(m.onActionDialogResponse))
}

func (m *Manager) showShutdownDialog(preferred Action) {
	m.dialog.ShowShutdown(preferred, m.respondFunc(m.onActionDialogResponse))
}

func (m *Manager) showInhibitorDialog(action Action, flag inhibitor.Flag) {
	m.dialog.ShowInhibitors(action, m.inhibitorsFor(flag), m.respondFunc(m.onInhibitorDialogResponse))
}

func (m *Manager) onActionDialogResponse(resp Response) {
	if resp.Canceled {
		return
	}
	switch resp.Action {
	case ActionLogout:
		m.requestEndSession(ActionLogout, LogoutModeNoConfirmation)
	case ActionShutdown, ActionReboot:
		m.requestEndSession(resp.Action, LogoutModeNormal)
	case ActionSuspend:
		m.requestSuspend()
	case ActionHibernate:
		m.requestHibernate()
	case ActionSwitchUser:
		m.requestSwitchUser()
	}
}

func (m *Manager) onInhibitorDialogResponse(resp Response) {
	m.confirmTimer.stop()
	m.confirmTimer = nil
	m.confirming = false
	m.dialogOpen = false

	if resp.Canceled {
		m.cancelEndSession()
		return
	}

	switch resp.Action {
	case ActionLogout, ActionShutdown, ActionReboot:
		if m.phase != app.PhaseQueryEndSession {
			return
		}
		m.logoutMode = LogoutModeForce
		m.endPhase()
	case ActionSuspend:
		m.doSuspend()
	case ActionHibernate:
		m.sys.Hibernate()
	case ActionSwitchUser:
		m.doSwitchUser()
	}
}
