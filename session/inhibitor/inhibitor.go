// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package inhibitor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/dde-session-manager/session/serial"
	"github.com/linuxdeepin/go-lib/dbusutil"
)

const (
	dbusPathPrefix = "/org/deepin/dde/SessionManager1/Inhibitor"
	dbusInterface  = "org.deepin.dde.SessionManager1.Inhibitor"
)

var ErrNotSet = errors.New("value is not set")

type Flag uint32

const (
	FlagLogout Flag = 1 << iota
	FlagSwitchUser
	FlagSuspend
	FlagIdle
	FlagAutomount
)

func (f Flag) Has(flag Flag) bool {
	return f&flag != 0
}

func (f Flag) String() string {
	names := []string{"logout", "switch-user", "suspend", "idle", "automount"}
	var parts []string
	for i, name := range names {
		if f&(1<<uint(i)) != 0 {
			parts = append(parts, name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

var inhibitorSerial serial.Generator

type Inhibitor struct {
	path        dbus.ObjectPath
	appID       string
	clientID    string
	reason      string
	flags       Flag
	busName     string
	cookie      uint32
	toplevelXID uint32
}

func newInhibitor(appID string, toplevelXID uint32, flags Flag, reason, busName string,
	cookie uint32, clientID string) *Inhibitor {
	return &Inhibitor{
		path:        dbus.ObjectPath(fmt.Sprintf("%s%d", dbusPathPrefix, inhibitorSerial.Next())),
		appID:       appID,
		clientID:    clientID,
		reason:      reason,
		flags:       flags,
		busName:     busName,
		cookie:      cookie,
		toplevelXID: toplevelXID,
	}
}

// NewForApp creates the inhibitor of an Inhibit call.
func NewForApp(appID string, toplevelXID uint32, flags Flag, reason, busName string,
	cookie uint32) *Inhibitor {
	return newInhibitor(appID, toplevelXID, flags, reason, busName, cookie, "")
}

// NewForClient creates an inhibitor on behalf of a session client, such as
// the ones added for clients that do not answer an end-session query.
func NewForClient(clientID, appID string, flags Flag, reason, busName string,
	cookie uint32) *Inhibitor {
	return newInhibitor(appID, 0, flags, reason, busName, cookie, clientID)
}

func (inh *Inhibitor) GetInterfaceName() string {
	return dbusInterface
}

func (inh *Inhibitor) Path() dbus.ObjectPath {
	return inh.path
}

func (inh *Inhibitor) ID() string {
	return string(inh.path)
}

func (inh *Inhibitor) AppID() string {
	return inh.appID
}

func (inh *Inhibitor) ClientID() string {
	return inh.clientID
}

func (inh *Inhibitor) Reason() string {
	return inh.reason
}

func (inh *Inhibitor) Flags() Flag {
	return inh.flags
}

func (inh *Inhibitor) BusName() string {
	return inh.busName
}

func (inh *Inhibitor) Cookie() uint32 {
	return inh.cookie
}

func (inh *Inhibitor) ToplevelXID() uint32 {
	return inh.toplevelXID
}

func (inh *Inhibitor) GetAppId() (string, *dbus.Error) {
	return inh.appID, nil
}

func (inh *Inhibitor) GetClientId() (dbus.ObjectPath, *dbus.Error) {
	if inh.clientID == "" {
		return "/", dbusutil.ToError(ErrNotSet)
	}
	return dbus.ObjectPath(inh.clientID), nil
}

func (inh *Inhibitor) GetReason() (string, *dbus.Error) {
	return inh.reason, nil
}

func (inh *Inhibitor) GetFlags() (uint32, *dbus.Error) {
	return uint32(inh.flags), nil
}

func (inh *Inhibitor) GetToplevelXid() (uint32, *dbus.Error) {
	return inh.toplevelXID, nil
}
