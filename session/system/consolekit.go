// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package system

import (
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/dde-session-manager/session/inhibitor"
)

const (
	ckName             = "org.freedesktop.ConsoleKit"
	ckManagerPath      = "/org/freedesktop/ConsoleKit/Manager"
	ckManagerInterface = ckName + ".Manager"
	ckSeatInterface    = ckName + ".Seat"
	ckSessionInterface = ckName + ".Session"
)

type ConsoleKit struct {
	requestFailedNotifier

	conn        *dbus.Conn
	manager     dbus.BusObject
	sessionPath dbus.ObjectPath
	lock        *inhibitLock
}

func NewConsoleKit(conn *dbus.Conn) (*ConsoleKit, error) {
	ck := &ConsoleKit{
		conn:    conn,
		manager: conn.Object(ckName, ckManagerPath),
	}

	err := ck.manager.Call(ckManagerInterface+".GetSessionForUnixProcess", 0,
		uint32(os.Getpid())).Store(&ck.sessionPath)
	if err != nil {
		return nil, err
	}

	ck.lock = newInhibitLock(func() (dbus.UnixFD, error) {
		var fd dbus.UnixFD
		err := ck.manager.Call(ckManagerInterface+".Inhibit", 0,
			inhibitWhat, userName(), inhibitReason, inhibitMode).Store(&fd)
		return fd, err
	})
	return ck, nil
}

func (ck *ConsoleKit) session() dbus.BusObject {
	return ck.conn.Object(ckName, ck.sessionPath)
}

func (ck *ConsoleKit) callBool(method string) bool {
	var b bool
	err := ck.manager.Call(ckManagerInterface+"."+method, 0).Store(&b)
	if err != nil {
		logger.Warningf("calling %s failed: %v", method, err)
		return false
	}
	return b
}

func (ck *ConsoleKit) callString(method string) bool {
	var s string
	err := ck.manager.Call(ckManagerInterface+"."+method, 0).Store(&s)
	if err != nil {
		logger.Warningf("calling %s failed: %v", method, err)
		return false
	}
	return canAnswer(s)
}

func (ck *ConsoleKit) CanSwitchUser() bool {
	var seat dbus.ObjectPath
	err := ck.session().Call(ckSessionInterface+".GetSeatId", 0).Store(&seat)
	if err != nil {
		logger.Warning("calling GetSeatId failed:", err)
		return false
	}
	var canActivate bool
	err = ck.conn.Object(ckName, seat).Call(ckSeatInterface+".CanActivateSessions", 0).Store(&canActivate)
	if err != nil {
		logger.Warning("calling CanActivateSessions failed:", err)
		return false
	}
	return canActivate
}

func (ck *ConsoleKit) CanStop() bool {
	return ck.callBool("CanStop")
}

func (ck *ConsoleKit) CanRestart() bool {
	return ck.callBool("CanRestart")
}

func (ck *ConsoleKit) CanSuspend() bool {
	return ck.callString("CanSuspend")
}

func (ck *ConsoleKit) CanHibernate() bool {
	return ck.callString("CanHibernate")
}

func (ck *ConsoleKit) CanHybridSleep() bool {
	return false
}

func (ck *ConsoleKit) async(method string, reportFailure bool, args ...interface{}) {
	ch := make(chan *dbus.Call, 1)
	ck.manager.Go(ckManagerInterface+"."+method, 0, ch, args...)
	go func() {
		call := <-ch
		if call.Err == nil {
			return
		}
		logger.Warningf("ConsoleKit %s failed: %v", method, call.Err)
		if reportFailure {
			ck.emitRequestFailed(call.Err)
		}
	}()
}

// Restart and Stop work with both ConsoleKit and ConsoleKit2.
func (ck *ConsoleKit) AttemptStop() {
	ck.async("Stop", true)
}

func (ck *ConsoleKit) AttemptRestart() {
	ck.async("Restart", true)
}

func (ck *ConsoleKit) Suspend() {
	ck.async("Suspend", false, true)
}

func (ck *ConsoleKit) Hibernate() {
	ck.async("Hibernate", false, true)
}

func (ck *ConsoleKit) HybridSleep() {
	logger.Warning("hybrid sleep is not supported by ConsoleKit")
}

func (ck *ConsoleKit) SetSessionIdle(idle bool) {
	logger.Debug("updating ConsoleKit idle status:", idle)
	err := ck.session().Call(ckSessionInterface+".SetIdleHint", 0, idle).Err
	if err != nil {
		logger.Warning(err)
	}
}

func (ck *ConsoleKit) IsLoginSession() bool {
	var class string
	err := ck.session().Call(ckSessionInterface+".GetSessionClass", 0).Store(&class)
	if err != nil {
		logger.Warning("calling GetSessionClass failed:", err)
		return false
	}
	return class == "greeter"
}

func (ck *ConsoleKit) IsLastSessionForUser() bool {
	return false
}

func (ck *ConsoleKit) AddInhibitor(id string, flags inhibitor.Flag) {
	ck.lock.add(id, flags)
}

func (ck *ConsoleKit) RemoveInhibitor(id string) {
	ck.lock.remove(id)
}

// Logout is a no-op, the session ends when the session manager exits.
func (ck *ConsoleKit) Logout() error {
	return nil
}

func (ck *ConsoleKit) Destroy() {
	ck.lock.drop()
}
