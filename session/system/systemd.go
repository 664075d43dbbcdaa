// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package system

import (
	"errors"
	"os"

	"github.com/godbus/dbus/v5"
	login1 "github.com/linuxdeepin/go-dbus-factory/system/org.freedesktop.login1"
	"github.com/linuxdeepin/dde-session-manager/session/inhibitor"
)

var errNoSession = errors.New("no login session for this process")

type Systemd struct {
	requestFailedNotifier

	conn      *dbus.Conn
	manager   login1.Manager
	session   login1.Session
	sessionID string
	lock      *inhibitLock
}

func NewSystemd(conn *dbus.Conn) (*Systemd, error) {
	s := &Systemd{
		conn:    conn,
		manager: login1.NewManager(conn),
	}

	sessionPath, err := s.manager.GetSessionByPID(0, uint32(os.Getpid()))
	if err != nil {
		logger.Warning("could not get session for this process, check that pam_systemd is used at login:", err)
	} else {
		s.session, err = login1.NewSession(conn, sessionPath)
		if err != nil {
			return nil, err
		}
		s.sessionID, err = s.session.Id().Get(0)
		if err != nil {
			return nil, err
		}
	}

	s.lock = newInhibitLock(func() (dbus.UnixFD, error) {
		return s.manager.Inhibit(0, inhibitWhat, userName(), inhibitReason, inhibitMode)
	})
	return s, nil
}

func (s *Systemd) can(name string, fn func(dbus.Flags) (string, error)) bool {
	answer, err := fn(0)
	if err != nil {
		logger.Warningf("calling %s failed, check that logind is properly installed: %v", name, err)
		return false
	}
	return canAnswer(answer)
}

func (s *Systemd) CanSwitchUser() bool {
	if s.session == nil {
		return false
	}
	seatInfo, err := s.session.Seat().Get(0)
	if err != nil {
		logger.Warning(err)
		return false
	}
	if seatInfo.Id == "" || seatInfo.Path == "/" {
		return false
	}
	seat, err := login1.NewSeat(s.conn, seatInfo.Path)
	if err != nil {
		logger.Warning(err)
		return false
	}
	canMulti, err := seat.CanMultiSession().Get(0)
	if err != nil {
		logger.Warning(err)
		return false
	}
	return canMulti
}

func (s *Systemd) CanStop() bool {
	return s.can("CanPowerOff", s.manager.CanPowerOff)
}

func (s *Systemd) CanRestart() bool {
	return s.can("CanReboot", s.manager.CanReboot)
}

func (s *Systemd) CanSuspend() bool {
	return s.can("CanSuspend", s.manager.CanSuspend)
}

func (s *Systemd) CanHibernate() bool {
	return s.can("CanHibernate", s.manager.CanHibernate)
}

func (s *Systemd) CanHybridSleep() bool {
	return s.can("CanHybridSleep", s.manager.CanHybridSleep)
}

func (s *Systemd) async(name string, fn func(dbus.Flags, bool) error, reportFailure bool) {
	go func() {
		err := fn(0, true)
		if err == nil {
			return
		}
		logger.Warningf("unable to %s via systemd: %v", name, err)
		if reportFailure {
			s.emitRequestFailed(err)
		}
	}()
}

func (s *Systemd) AttemptStop() {
	logger.Info("attempting to shutdown using systemd")
	s.async("stop system", s.manager.PowerOff, true)
}

func (s *Systemd) AttemptRestart() {
	logger.Info("attempting to restart using systemd")
	s.async("restart system", s.manager.Reboot, true)
}

func (s *Systemd) Suspend() {
	s.async("suspend", s.manager.Suspend, false)
}

func (s *Systemd) Hibernate() {
	s.async("hibernate", s.manager.Hibernate, false)
}

func (s *Systemd) HybridSleep() {
	s.async("hybrid sleep", s.manager.HybridSleep, false)
}

func (s *Systemd) SetSessionIdle(idle bool) {
	if s.session == nil {
		return
	}
	logger.Debug("updating systemd idle status:", idle)
	go func() {
		if err := s.session.SetIdleHint(0, idle); err != nil {
			logger.Warning(err)
		}
	}()
}

func (s *Systemd) IsLoginSession() bool {
	if s.session == nil {
		return false
	}
	class, err := s.session.Class().Get(0)
	if err != nil {
		logger.Warning("could not get session class:", err)
		return false
	}
	return class == "greeter"
}

type sessionState struct {
	id    string
	state string
	typ   string
}

// isLastSession reports whether none of the other sessions is a live
// graphical one.
func isLastSession(ownID string, sessions []sessionState) bool {
	for _, sess := range sessions {
		if sess.id == ownID || sess.state == "closing" {
			continue
		}
		if sess.typ == "x11" || sess.typ == "wayland" {
			return false
		}
	}
	return true
}

func (s *Systemd) IsLastSessionForUser() bool {
	if s.sessionID == "" {
		return false
	}
	details, err := s.manager.ListSessions(0)
	if err != nil {
		logger.Warning(err)
		return false
	}

	uid := uint32(os.Getuid())
	var sessions []sessionState
	for _, detail := range details {
		sess, err := login1.NewSession(s.conn, detail.Path)
		if err != nil {
			continue
		}
		userInfo, err := sess.User().Get(0)
		if err != nil || userInfo.UID != uid {
			continue
		}
		state, err := sess.State().Get(0)
		if err != nil {
			continue
		}
		typ, err := sess.Type().Get(0)
		if err != nil {
			continue
		}
		sessions = append(sessions, sessionState{id: detail.SessionId, state: state, typ: typ})
	}
	return isLastSession(s.sessionID, sessions)
}

func (s *Systemd) AddInhibitor(id string, flags inhibitor.Flag) {
	s.lock.add(id, flags)
}

func (s *Systemd) RemoveInhibitor(id string) {
	s.lock.remove(id)
}

func (s *Systemd) Logout() error {
	if s.session == nil {
		return errNoSession
	}
	return s.session.Terminate(0)
}

func (s *Systemd) Destroy() {
	s.lock.drop()
}
