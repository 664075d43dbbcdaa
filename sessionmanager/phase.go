// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sessionmanager

import (
	"syscall"
	"time"

	"github.com/linuxdeepin/dde-session-manager/session/app"
	"github.com/linuxdeepin/dde-session-manager/session/client"
	"github.com/linuxdeepin/go-lib/gettext"
)

func (m *Manager) resetPhaseState() {
	m.pendingApps = nil
	m.queryClients = nil
	m.nextQueryClients = nil
	m.queryCompleted = false
	m.confirming = false
	m.phaseTimer.stop()
	m.phaseTimer = nil
	m.queryTimer.stop()
	m.queryTimer = nil
	m.confirmTimer.stop()
	m.confirmTimer = nil
}

func (m *Manager) startPhase() {
	logger.Debug("start phase", m.phase)
	m.resetPhaseState()

	switch {
	case m.phase.IsStartup():
		m.doPhaseStartup()
	case m.phase == app.PhaseRunning:
		m.doPhaseRunning()
	case m.phase == app.PhaseQueryEndSession:
		m.doPhaseQueryEndSession()
	case m.phase == app.PhaseEndSession:
		m.doPhaseEndSession()
	case m.phase == app.PhaseExit:
		m.doPhaseExit()
	}
}

func (m *Manager) endPhase() {
	logger.Debug("end phase", m.phase)

	switch m.phase {
	case app.PhaseRunning:
		if m.cfg.DisableLogout() && m.logoutMode != LogoutModeForce {
			logger.Info("logout is locked down, stay in running phase")
			return
		}
	case app.PhaseEndSession:
		m.maybeSaveSession()
	case app.PhaseExit:
		m.quit()
		return
	}

	m.setPhase(m.phase + 1)
	m.startPhase()
}

func (m *Manager) doPhaseStartup() {
	for _, a := range m.apps.Items() {
		if a.Phase() == m.phase {
			m.startAppInPhase(a)
		}
	}

	if len(m.pendingApps) > 0 {
		if m.phase < app.PhaseApplication {
			m.phaseTimer = m.startTimer(m.timeouts.phase, m.onPhaseTimeout)
		}
		return
	}
	m.endPhase()
}

func (m *Manager) startAppInPhase(a *app.App) {
	if a.IsDisabled() {
		logger.Debug("skip disabled app", a.ID())
		return
	}
	if a.IsConditionallyDisabled() {
		logger.Debug("skip conditionally disabled app", a.ID())
		return
	}

	if delay := a.AutostartDelay(); delay > 0 {
		logger.Debugf("start %s in %d seconds", a.ID(), delay)
		m.startTimer(time.Duration(delay)*time.Second, func() {
			if a.IsDisabled() || m.phase >= app.PhaseQueryEndSession {
				return
			}
			m.startApp(a)
		})
		return
	}

	if !m.startApp(a) {
		return
	}
	if m.phase < app.PhaseApplication {
		m.pendingApps = append(m.pendingApps, a)
	}
}

func (m *Manager) startApp(a *app.App) bool {
	err := a.Start()
	if err != nil {
		logger.Warning(err)
		if m.requiredApps[a.ID()] {
			m.onRequiredAppFailure(a, err.Error())
		}
		return false
	}
	return true
}

func (m *Manager) onRequiredAppFailure(a *app.App, reason string) {
	m.dialog.ShowFailure(a.AppID(), reason)
}

func (m *Manager) onPhaseTimeout() {
	m.phaseTimer = nil

	switch {
	case m.phase.IsStartup():
		for _, a := range m.pendingApps {
			logger.Warningf("application %s is taking too long in phase %s", a.AppID(), m.phase)
			if m.requiredApps[a.ID()] {
				m.onRequiredAppFailure(a, gettext.Tr("Timed out"))
			}
		}
	case m.phase == app.PhaseQueryEndSession, m.phase == app.PhaseEndSession:
		for _, c := range m.queryClients {
			logger.Warningf("client %s (%s) did not answer in phase %s", c.ID(), c.AppID(), m.phase)
		}
	}
	m.endPhase()
}

func (m *Manager) removePending(a *app.App) bool {
	for i, pending := range m.pendingApps {
		if pending == a {
			m.pendingApps = append(m.pendingApps[:i], m.pendingApps[i+1:]...)
			return true
		}
	}
	return false
}

// appEventDuringStartup ends the startup phase once every app it waits
// for has registered, exited or been restarted.
func (m *Manager) appEventDuringStartup(a *app.App) {
	if m.phase >= app.PhaseApplication {
		return
	}
	if !m.removePending(a) {
		return
	}
	if len(m.pendingApps) == 0 {
		m.phaseTimer.stop()
		m.phaseTimer = nil
		m.endPhase()
	}
}

func (m *Manager) restartApp(a *app.App) {
	err := a.Restart()
	if err != nil {
		logger.Warningf("restart %s: %v", a.ID(), err)
		if m.requiredApps[a.ID()] {
			m.onRequiredAppFailure(a, err.Error())
		}
	}
	m.appEventDuringStartup(a)
}

func (m *Manager) onAppExited(a *app.App, code int) {
	logger.Debugf("app %s exited with %d", a.ID(), code)
	if a.Phase() >= app.PhaseApplication {
		return
	}
	if code != 0 && m.requiredApps[a.ID()] && !a.AutoRestart() {
		m.restartApp(a)
		return
	}
	m.appEventDuringStartup(a)
}

func (m *Manager) onAppDied(a *app.App, sig syscall.Signal) {
	logger.Debugf("app %s killed by %v", a.ID(), sig)
	if a.Phase() >= app.PhaseApplication {
		return
	}
	if a.AutoRestart() {
		return
	}
	m.restartApp(a)
}

func (m *Manager) onAppConditionChanged(a *app.App, condition bool) {
	if a.Phase() > m.phase || m.phase >= app.PhaseQueryEndSession {
		return
	}
	c := m.findClientByStartupID(a.StartupID())

	if condition {
		if a.IsRunning() || c != nil {
			logger.Debug("not starting, app still running:", a.ID())
			return
		}
		if !a.IsDisabled() {
			m.startApp(a)
		}
		return
	}

	logger.Debug("stopping app", a.ID())
	if c == nil {
		if err := a.Stop(); err != nil {
			logger.Debug(err)
		}
		return
	}
	m.conditionClients[c.ID()] = true
	if err := c.Stop(); err != nil {
		logger.Warning(err)
	}
}

func (m *Manager) doPhaseRunning() {
	m.clients.SetLocked(false)
	m.apps.SetLocked(false)
	m.setXSMPAccepting(true)
	m.emitSignal("SessionRunning")
	m.updateIdle()
}

func (m *Manager) doPhaseExit() {
	m.clients.Foreach(func(_ string, c client.Client) bool {
		if err := c.Stop(); err != nil {
			logger.Debugf("stop %s: %v", c.ID(), err)
		}
		return true
	})
	m.endPhase()
}
