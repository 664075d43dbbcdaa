// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"errors"

	"github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/go-lib/dbusutil"
	"github.com/linuxdeepin/go-lib/keyfile"
)

const (
	dbusClientInterface        = "org.deepin.dde.SessionManager1.Client"
	dbusClientPrivateInterface = "org.deepin.dde.SessionManager1.ClientPrivate"
)

var errWrongSender = errors.New("sender is not the registered client")

// Emitter sends D-Bus signals. *dbusutil.Service implements it.
type Emitter interface {
	Emit(v dbusutil.Implementer, signalName string, values ...interface{}) error
}

// DBusClient is a client that registered itself over D-Bus. It is
// exported with the Client and ClientPrivate interfaces.
type DBusClient struct {
	base
	busName string
	pid     uint32
	emitter Emitter
	priv    *clientPrivate
}

type clientPrivate struct {
	c *DBusClient

	//nolint
	signals *struct {
		Stop            struct{}
		QueryEndSession struct {
			flags uint32
		}
		EndSession struct {
			flags uint32
		}
		CancelEndSession struct{}
	}
}

// NewDBusClient creates a client for busName. The pid is looked up once by
// the caller, from the bus daemon.
func NewDBusClient(emitter Emitter, busName string, pid uint32, appID, startupID string) *DBusClient {
	c := &DBusClient{
		base:    newBase(startupID, appID),
		busName: busName,
		pid:     pid,
		emitter: emitter,
	}
	c.priv = &clientPrivate{c: c}
	logger.Debugf("new dbus client %s for %s (pid %d)", c.path, busName, pid)
	return c
}

// Implementers returns the objects to export at Path.
func (c *DBusClient) Implementers() []dbusutil.Implementer {
	return []dbusutil.Implementer{c, c.priv}
}

func (c *DBusClient) BusName() string {
	return c.busName
}

func (*DBusClient) GetInterfaceName() string {
	return dbusClientInterface
}

func (*clientPrivate) GetInterfaceName() string {
	return dbusClientPrivateInterface
}

func (c *DBusClient) AppID() string {
	return c.rawAppID()
}

func (c *DBusClient) RestartStyleHint() RestartStyle {
	return RestartIfRunning
}

func (c *DBusClient) UnixProcessID() uint32 {
	return c.pid
}

func (c *DBusClient) AppName() string {
	return ""
}

func (c *DBusClient) Save() (*keyfile.KeyFile, error) {
	return nil, nil
}

func (c *DBusClient) emit(signal string, values ...interface{}) error {
	if c.busName == "" {
		return ErrNotRegistered
	}
	if c.emitter == nil {
		return nil
	}
	return c.emitter.Emit(c.priv, signal, values...)
}

func (c *DBusClient) Stop() error {
	return c.emit("Stop")
}

func (c *DBusClient) QueryEndSession(flags EndSessionFlag) error {
	return c.emit("QueryEndSession", uint32(flags))
}

func (c *DBusClient) EndSession(flags EndSessionFlag) error {
	return c.emit("EndSession", uint32(flags))
}

func (c *DBusClient) CancelEndSession() error {
	return c.emit("CancelEndSession")
}

func (c *DBusClient) Disconnected() {
	c.emitDisconnected(c)
}

// D-Bus methods of org.deepin.dde.SessionManager1.Client

func (c *DBusClient) GetAppId() (string, *dbus.Error) {
	return c.AppID(), nil
}

func (c *DBusClient) GetStartupId() (string, *dbus.Error) {
	return c.StartupID(), nil
}

func (c *DBusClient) GetRestartStyleHint() (uint32, *dbus.Error) {
	return uint32(c.RestartStyleHint()), nil
}

func (c *DBusClient) GetUnixProcessId() (uint32, *dbus.Error) {
	return c.pid, nil
}

func (c *DBusClient) GetStatus() (uint32, *dbus.Error) {
	return uint32(c.Status()), nil
}

func (c *DBusClient) StopClient() *dbus.Error {
	return dbusutil.ToError(c.Stop())
}

// EndSessionResponse is only accepted from the bus name the client
// registered with.
func (p *clientPrivate) EndSessionResponse(sender dbus.Sender, isOk bool, reason string) *dbus.Error {
	c := p.c
	if string(sender) != c.busName {
		logger.Warningf("EndSessionResponse for %s from %s rejected", c.path, sender)
		return dbusutil.ToError(errWrongSender)
	}
	c.emitEndSessionResponse(c, isOk, false, false, reason)
	return nil
}
