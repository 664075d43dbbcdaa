// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package client models the programs connected to the session manager,
// either through the X session management protocol or over D-Bus.
package client

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/dde-session-manager/session/serial"
	"github.com/linuxdeepin/go-lib/keyfile"
	"github.com/linuxdeepin/go-lib/log"
)

var logger = log.NewLogger("dde-session-manager/client")

const (
	dbusPathPrefix = "/org/deepin/dde/SessionManager1/Client"
)

var ErrNotRegistered = errors.New("client is not registered")

type Status uint32

const (
	StatusUnregistered Status = iota
	StatusRegistered
	StatusFinished
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusUnregistered:
		return "Unregistered"
	case StatusRegistered:
		return "Registered"
	case StatusFinished:
		return "Finished"
	case StatusFailed:
		return "Failed"
	}
	return fmt.Sprintf("Status(%d)", uint32(s))
}

type RestartStyle uint32

const (
	RestartNever RestartStyle = iota
	RestartIfRunning
	RestartAnyway
	RestartImmediately
)

type EndSessionFlag uint32

const (
	EndSessionFlagForceful EndSessionFlag = 1 << iota
	EndSessionFlagSave
	EndSessionFlagLast
)

func (f EndSessionFlag) Has(flag EndSessionFlag) bool {
	return f&flag != 0
}

// Handlers receive the events of a client. They may be invoked from the
// transport goroutine.
type Handlers struct {
	Disconnected       func(c Client)
	EndSessionResponse func(c Client, isOK, doLast, cancel bool, reason string)
}

type Client interface {
	ID() string
	Path() dbus.ObjectPath
	AppID() string
	SetAppID(appID string)
	StartupID() string
	Status() Status
	SetStatus(status Status)
	RestartStyleHint() RestartStyle
	UnixProcessID() uint32
	AppName() string

	QueryEndSession(flags EndSessionFlag) error
	EndSession(flags EndSessionFlag) error
	CancelEndSession() error
	Stop() error
	// Save returns nil when the client cannot be restarted.
	Save() (*keyfile.KeyFile, error)

	SetHandlers(h Handlers)
	// Disconnected reports that the transport went away.
	Disconnected()
}

var clientSerial serial.Generator

func newClientPath() dbus.ObjectPath {
	return dbus.ObjectPath(fmt.Sprintf("%s%d", dbusPathPrefix, clientSerial.Next()))
}

type base struct {
	mu        sync.Mutex
	path      dbus.ObjectPath
	startupID string
	appID     string
	status    Status
	handlers  Handlers
}

func newBase(startupID, appID string) base {
	return base{
		path:      newClientPath(),
		startupID: startupID,
		appID:     appID,
		status:    StatusUnregistered,
	}
}

func (b *base) ID() string {
	return string(b.path)
}

func (b *base) Path() dbus.ObjectPath {
	return b.path
}

func (b *base) StartupID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startupID
}

func (b *base) setStartupID(id string) {
	b.mu.Lock()
	b.startupID = id
	b.mu.Unlock()
}

func (b *base) rawAppID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appID
}

func (b *base) SetAppID(appID string) {
	b.mu.Lock()
	b.appID = appID
	b.mu.Unlock()
}

func (b *base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *base) SetStatus(status Status) {
	b.mu.Lock()
	old := b.status
	b.status = status
	b.mu.Unlock()
	if old != status {
		logger.Debugf("client %s status %v -> %v", b.path, old, status)
	}
}

func (b *base) SetHandlers(h Handlers) {
	b.mu.Lock()
	b.handlers = h
	b.mu.Unlock()
}

func (b *base) getHandlers() Handlers {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handlers
}

func (b *base) emitEndSessionResponse(c Client, isOK, doLast, cancel bool, reason string) {
	logger.Debugf("client %s response: ok=%v last=%v cancel=%v reason=%q",
		b.path, isOK, doLast, cancel, reason)
	if h := b.getHandlers().EndSessionResponse; h != nil {
		h(c, isOK, doLast, cancel, reason)
	}
}

func (b *base) emitDisconnected(c Client) {
	if h := b.getHandlers().Disconnected; h != nil {
		h(c)
	}
}
