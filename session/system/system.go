// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package system talks to the OS session tracker, logind or ConsoleKit,
// for power actions and session state.
package system

import (
	"os/user"
	"sync"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/dde-session-manager/session/inhibitor"
	"github.com/linuxdeepin/go-lib/log"
)

var logger = log.NewLogger("dde-session-manager/system")

const (
	inhibitWhat   = "sleep:shutdown"
	inhibitReason = "user session inhibited"
	inhibitMode   = "block"
)

type System interface {
	CanSwitchUser() bool
	CanStop() bool
	CanRestart() bool
	CanSuspend() bool
	CanHibernate() bool
	CanHybridSleep() bool

	// The attempt and sleep calls are asynchronous, failures are reported
	// through ConnectRequestFailed.
	AttemptStop()
	AttemptRestart()
	Suspend()
	Hibernate()
	HybridSleep()

	SetSessionIdle(idle bool)
	IsLoginSession() bool
	IsLastSessionForUser() bool

	AddInhibitor(id string, flags inhibitor.Flag)
	RemoveInhibitor(id string)

	// Logout ends the login session this process belongs to.
	Logout() error
	ConnectRequestFailed(cb func(err error))
	Destroy()
}

// New returns the logind backend when useLogind is set, else ConsoleKit.
// If the preferred one is unavailable the other one is tried.
func New(useLogind bool) (System, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}

	ctors := []func(*dbus.Conn) (System, error){newSystemdSystem, newConsoleKitSystem}
	if !useLogind {
		ctors[0], ctors[1] = ctors[1], ctors[0]
	}

	var firstErr error
	for _, ctor := range ctors {
		sys, err := ctor(conn)
		if err == nil {
			return sys, nil
		}
		logger.Warning(err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func newSystemdSystem(conn *dbus.Conn) (System, error) {
	return NewSystemd(conn)
}

func newConsoleKitSystem(conn *dbus.Conn) (System, error) {
	return NewConsoleKit(conn)
}

// canAnswer interprets the logind style Can* replies.
func canAnswer(s string) bool {
	return s == "yes" || s == "challenge"
}

func userName() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Username
}

type requestFailedNotifier struct {
	mu  sync.Mutex
	cbs []func(err error)
}

func (n *requestFailedNotifier) ConnectRequestFailed(cb func(err error)) {
	n.mu.Lock()
	n.cbs = append(n.cbs, cb)
	n.mu.Unlock()
}

func (n *requestFailedNotifier) emitRequestFailed(err error) {
	n.mu.Lock()
	cbs := append([]func(error){}, n.cbs...)
	n.mu.Unlock()
	for _, cb := range cbs {
		cb(err)
	}
}

// inhibitLock holds one sleep:shutdown block while at least one suspend
// inhibitor is known.
type inhibitLock struct {
	mu      sync.Mutex
	ids     []string
	fd      dbus.UnixFD
	held    bool
	acquire func() (dbus.UnixFD, error)
	release func(fd dbus.UnixFD) error
}

func newInhibitLock(acquire func() (dbus.UnixFD, error)) *inhibitLock {
	return &inhibitLock{
		acquire: acquire,
		release: func(fd dbus.UnixFD) error {
			return syscall.Close(int(fd))
		},
	}
}

func (l *inhibitLock) add(id string, flags inhibitor.Flag) {
	if !flags.Has(inhibitor.FlagSuspend) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.ids) == 0 {
		logger.Debug("adding system inhibitor")
		fd, err := l.acquire()
		if err != nil {
			logger.Warning("unable to inhibit system:", err)
		} else {
			l.fd = fd
			l.held = true
		}
	}
	l.ids = append(l.ids, id)
}

func (l *inhibitLock) remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := -1
	for i, v := range l.ids {
		if v == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	l.ids = append(l.ids[:idx], l.ids[idx+1:]...)
	if len(l.ids) == 0 {
		l.dropLocked()
	}
}

func (l *inhibitLock) dropLocked() {
	if !l.held {
		return
	}
	logger.Debug("dropping system inhibitor")
	if err := l.release(l.fd); err != nil {
		logger.Warning(err)
	}
	l.held = false
	l.fd = -1
}

func (l *inhibitLock) drop() {
	l.mu.Lock()
	l.ids = nil
	l.dropLocked()
	l.mu.Unlock()
}
