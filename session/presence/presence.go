// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package presence exports the user's session status.
package presence

import (
	"errors"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/go-lib/dbusutil"
	"github.com/linuxdeepin/go-lib/log"
)

var logger = log.NewLogger("dde-session-manager/presence")

const (
	DBusPath      = "/org/deepin/dde/SessionManager1/Presence"
	dbusInterface = "org.deepin.dde.SessionManager1.Presence"

	screenSaverName      = "org.freedesktop.ScreenSaver"
	screenSaverPath      = "/org/freedesktop/ScreenSaver"
	screenSaverInterface = "org.freedesktop.ScreenSaver"

	maxStatusText = 140
)

var errStatusTextTooLong = errors.New("status text too long")

type Status uint32

const (
	StatusAvailable Status = iota
	StatusInvisible
	StatusBusy
	StatusIdle
)

func (s Status) String() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusInvisible:
		return "invisible"
	case StatusBusy:
		return "busy"
	case StatusIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Service is the part of dbusutil.Service presence needs.
type Service interface {
	Emit(v dbusutil.Implementer, signalName string, values ...interface{}) error
	EmitPropertyChanged(v dbusutil.Implementer, propName string, value interface{}) error
}

type Presence struct {
	service Service

	mu          sync.Mutex
	savedStatus Status
	idleEnabled bool
	idle        bool
	onChanged   func(status Status)

	PropsMu    sync.RWMutex
	Status     uint32
	StatusText string

	//nolint
	signals *struct {
		StatusChanged struct {
			status uint32
		}
		StatusTextChanged struct {
			statusText string
		}
	}
}

// New returns a Presence that reports every status change to onChanged.
func New(service Service, onChanged func(status Status)) *Presence {
	return &Presence{
		service:     service,
		idleEnabled: true,
		onChanged:   onChanged,
	}
}

func (*Presence) GetInterfaceName() string {
	return dbusInterface
}

func (p *Presence) status() Status {
	p.PropsMu.RLock()
	defer p.PropsMu.RUnlock()
	return Status(p.Status)
}

func (p *Presence) CurrentStatus() Status {
	return p.status()
}

func (p *Presence) setStatus(status Status) {
	p.PropsMu.Lock()
	if Status(p.Status) == status {
		p.PropsMu.Unlock()
		return
	}
	p.Status = uint32(status)
	p.PropsMu.Unlock()

	logger.Debug("status changed:", status)
	if p.service != nil {
		err := p.service.EmitPropertyChanged(p, "Status", uint32(status))
		if err != nil {
			logger.Warning(err)
		}
		err = p.service.Emit(p, "StatusChanged", uint32(status))
		if err != nil {
			logger.Warning(err)
		}
	}
	if p.onChanged != nil {
		p.onChanged(status)
	}
}

func (p *Presence) setStatusText(text string) error {
	if len(text) > maxStatusText {
		return errStatusTextTooLong
	}
	p.PropsMu.Lock()
	p.StatusText = text
	p.PropsMu.Unlock()

	if p.service != nil {
		err := p.service.EmitPropertyChanged(p, "StatusText", text)
		if err != nil {
			logger.Warning(err)
		}
		err = p.service.Emit(p, "StatusTextChanged", text)
		if err != nil {
			logger.Warning(err)
		}
	}
	return nil
}

// SetIdle is fed by the idle source. Going idle saves the current status
// so that it can be restored afterwards.
func (p *Presence) SetIdle(idle bool) {
	p.mu.Lock()
	p.idle = idle
	enabled := p.idleEnabled
	p.mu.Unlock()

	if idle && !enabled {
		logger.Debug("idle is inhibited, ignoring")
		return
	}
	p.applyIdle(idle)
}

func (p *Presence) applyIdle(idle bool) {
	current := p.status()
	if idle {
		if current == StatusIdle {
			return
		}
		p.mu.Lock()
		p.savedStatus = current
		p.mu.Unlock()
		p.setStatus(StatusIdle)
		return
	}

	if current != StatusIdle {
		return
	}
	p.mu.Lock()
	saved := p.savedStatus
	p.savedStatus = StatusAvailable
	p.mu.Unlock()
	p.setStatus(saved)
}

// SetIdleEnabled turns idle tracking on or off. Disabling it while idle
// restores the saved status, enabling it again picks up a pending idle.
func (p *Presence) SetIdleEnabled(enabled bool) {
	p.mu.Lock()
	if p.idleEnabled == enabled {
		p.mu.Unlock()
		return
	}
	p.idleEnabled = enabled
	idle := p.idle
	p.mu.Unlock()

	logger.Debug("idle enabled:", enabled)
	if !enabled {
		p.applyIdle(false)
	} else if idle {
		p.applyIdle(true)
	}
}

// WatchScreenSaver follows the screensaver ActiveChanged signal.
func (p *Presence) WatchScreenSaver(conn *dbus.Conn, sigLoop *dbusutil.SignalLoop) error {
	err := conn.Object(screenSaverName, screenSaverPath).
		AddMatchSignal(screenSaverInterface, "ActiveChanged").Err
	if err != nil {
		return err
	}
	sigLoop.AddHandler(&dbusutil.SignalRule{
		Name: screenSaverInterface + ".ActiveChanged",
	}, func(sig *dbus.Signal) {
		if len(sig.Body) != 1 {
			return
		}
		active, ok := sig.Body[0].(bool)
		if !ok {
			return
		}
		logger.Debug("screensaver active:", active)
		p.SetIdle(active)
	})
	return nil
}

func (p *Presence) SetStatus(status uint32) *dbus.Error {
	if Status(status) > StatusIdle {
		return dbusutil.ToError(errors.New("invalid status"))
	}
	p.setStatus(Status(status))
	return nil
}

func (p *Presence) SetStatusText(text string) *dbus.Error {
	return dbusutil.ToError(p.setStatusText(text))
}
