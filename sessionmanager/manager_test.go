// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sessionmanager

import (
	"errors"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/dde-session-manager/session/app"
	"github.com/linuxdeepin/dde-session-manager/session/inhibitor"
	"github.com/linuxdeepin/go-lib/dbusutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

func TestStartReachesRunning(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true})
	env.startRunning(t)

	assert.Equal(t, 1, env.service.count("SessionRunning"))
	assert.Equal(t, int32(app.PhaseRunning), env.service.prop("Phase"))

	running, dbusErr := env.m.IsSessionRunning()
	assert.Nil(t, dbusErr)
	assert.True(t, running)
}

func TestLogoutWithoutPrompt(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true})
	env.startRunning(t)

	_, conn := env.connectXSMP(t, "")
	assert.Equal(t, 1, conn.count("RegisterClientReply"))

	assert.Nil(t, env.m.Logout(uint32(LogoutModeNormal)))
	env.waitPhase(t, app.PhaseExit)

	assert.Eventually(t, func() bool {
		return env.sys.count("Logout") == 1
	}, waitFor, tick)
	assert.Equal(t, 1, env.quitCount())
	assert.Equal(t, 1, env.service.count("SessionOver"))
	assert.Equal(t, 1, conn.count("Die"))
	assert.Zero(t, env.sys.count("AttemptStop"))
}

func TestLogoutPromptsFirst(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true, Prompt: true})
	env.startRunning(t)

	assert.Nil(t, env.m.Logout(uint32(LogoutModeNormal)))
	env.run(func() {})
	assert.Equal(t, app.PhaseRunning, env.phase())

	env.dialog.mu.Lock()
	env.dialog.logoutAnswer = &Response{Action: ActionLogout}
	env.dialog.mu.Unlock()

	assert.Nil(t, env.m.Logout(uint32(LogoutModeNormal)))
	env.waitPhase(t, app.PhaseExit)
	assert.Equal(t, 1, env.sys.count("Logout"))
}

func TestInhibitedLogoutShowsDialog(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true}, func(o *managerOptions) {
		o.timeouts.confirm = time.Minute
	})
	env.startRunning(t)

	cookie, dbusErr := env.m.Inhibit(":1.7", "org.example.Editor", 0, "unsaved document",
		uint32(inhibitor.FlagLogout))
	require.Nil(t, dbusErr)
	require.NotZero(t, cookie)

	assert.Nil(t, env.m.Logout(uint32(LogoutModeNoConfirmation)))

	var call inhibitorDialogCall
	require.Eventually(t, func() bool {
		var ok bool
		call, ok = env.dialog.lastInhibitorCall()
		return ok
	}, waitFor, tick)
	assert.Equal(t, ActionLogout, call.action)
	require.Len(t, call.inhibitors, 1)
	assert.Equal(t, "org.example.Editor", call.inhibitors[0].AppID())
	assert.Equal(t, app.PhaseQueryEndSession, env.phase())
	assert.Zero(t, env.sys.count("Logout"))

	call.respond(Response{Canceled: true})
	env.waitPhase(t, app.PhaseRunning)
	assert.Zero(t, env.sys.count("Logout"))
	assert.Equal(t, 2, env.service.count("SessionRunning"))

	assert.Nil(t, env.m.Logout(uint32(LogoutModeForce)))
	env.waitPhase(t, app.PhaseExit)
	assert.Eventually(t, func() bool {
		return env.sys.count("Logout") == 1
	}, waitFor, tick)
}

func TestInhibitorDialogAccept(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true}, func(o *managerOptions) {
		o.timeouts.confirm = time.Minute
	})
	env.startRunning(t)

	_, dbusErr := env.m.Inhibit(":1.7", "org.example.Editor", 0, "unsaved document",
		uint32(inhibitor.FlagLogout))
	require.Nil(t, dbusErr)
	assert.Nil(t, env.m.RequestReboot())

	var call inhibitorDialogCall
	require.Eventually(t, func() bool {
		var ok bool
		call, ok = env.dialog.lastInhibitorCall()
		return ok
	}, waitFor, tick)
	assert.Equal(t, ActionReboot, call.action)

	call.respond(Response{Action: ActionReboot})
	env.waitPhase(t, app.PhaseExit)
	assert.Eventually(t, func() bool {
		return env.sys.count("AttemptRestart") == 1
	}, waitFor, tick)
	assert.Zero(t, env.sys.count("Logout"))
	assert.Zero(t, env.quitCount())
}

func TestConfirmationTimesOut(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true})
	env.startRunning(t)

	_, dbusErr := env.m.Inhibit(":1.7", "org.example.Editor", 0, "busy", uint32(inhibitor.FlagLogout))
	require.Nil(t, dbusErr)
	assert.Nil(t, env.m.RequestShutdown())

	env.waitPhase(t, app.PhaseExit)
	assert.Eventually(t, func() bool {
		return env.sys.count("AttemptStop") == 1
	}, waitFor, tick)

	env.dialog.mu.Lock()
	closed := env.dialog.closed
	env.dialog.mu.Unlock()
	assert.NotZero(t, closed)
}

func TestConfirmationProceedsWhenUninhibited(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true}, func(o *managerOptions) {
		o.timeouts.confirm = time.Minute
	})
	env.startRunning(t)

	cookie, dbusErr := env.m.Inhibit(":1.7", "org.example.Editor", 0, "busy", uint32(inhibitor.FlagLogout))
	require.Nil(t, dbusErr)
	assert.Nil(t, env.m.Logout(uint32(LogoutModeNoConfirmation)))
	require.Eventually(t, func() bool {
		_, ok := env.dialog.lastInhibitorCall()
		return ok
	}, waitFor, tick)

	assert.Nil(t, env.m.Uninhibit(cookie))
	env.waitPhase(t, app.PhaseExit)
	assert.Eventually(t, func() bool {
		return env.sys.count("Logout") == 1
	}, waitFor, tick)
}

func TestDBusClientLeavingDuringEndSession(t *testing.T) {
	// a long phase timeout proves the session does not wait for it
	env := newTestEnv(t, Settings{Logind: true}, withPhaseTimeout(time.Minute))
	env.startRunning(t)

	const busName = ":1.42"
	dbusClient := env.registerDBus(t, busName, "org.example.Viewer")
	assert.True(t, env.service.isExported(dbusClient.Path()))

	_, xsmpConn := env.connectXSMP(t, "")

	env.service.setOnEmit(func(_ dbusutil.Implementer, name string, _ []interface{}) {
		switch name {
		case "QueryEndSession":
			respondDBus(dbusClient, true, "")
		case "EndSession":
			env.m.loop.post(func() {
				env.m.onNameLost(busName)
			})
		}
	})

	assert.Nil(t, env.m.Logout(uint32(LogoutModeNoConfirmation)))
	env.waitPhase(t, app.PhaseExit)
	assert.Eventually(t, func() bool {
		return env.sys.count("Logout") == 1
	}, time.Second, tick)
	assert.Equal(t, 1, xsmpConn.count("Die"))

	env.run(func() {
		_, ok := env.m.clients.Lookup(string(dbusClient.Path()))
		assert.False(t, ok)
	})
}

func TestLastClientLeavingDuringQuery(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true}, func(o *managerOptions) {
		o.timeouts.phase = time.Minute
		o.timeouts.query = time.Minute
	})
	env.startRunning(t)

	const busName = ":1.43"
	env.registerDBus(t, busName, "org.example.Editor")
	env.service.setOnEmit(func(_ dbusutil.Implementer, name string, _ []interface{}) {
		if name == "QueryEndSession" {
			env.m.loop.post(func() {
				env.m.onNameLost(busName)
			})
		}
	})

	assert.Nil(t, env.m.Logout(uint32(LogoutModeNoConfirmation)))
	env.waitPhase(t, app.PhaseExit)
	assert.Eventually(t, func() bool {
		return env.quitCount() == 1
	}, time.Second, tick)
	assert.Equal(t, 0, env.service.count("EndSession"))
}

func TestQueryTimeoutAddsInhibitor(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true}, func(o *managerOptions) {
		o.timeouts.confirm = time.Minute
	})
	env.startRunning(t)

	dbusClient := env.registerDBus(t, ":1.50", "org.example.Slow")

	assert.Nil(t, env.m.Logout(uint32(LogoutModeNoConfirmation)))

	var call inhibitorDialogCall
	require.Eventually(t, func() bool {
		var ok bool
		call, ok = env.dialog.lastInhibitorCall()
		return ok
	}, waitFor, tick)
	require.Len(t, call.inhibitors, 1)
	assert.Equal(t, dbusClient.ID(), call.inhibitors[0].ClientID())
	assert.Equal(t, "org.example.Slow", call.inhibitors[0].AppID())

	inhibited, dbusErr := env.m.IsInhibited(uint32(inhibitor.FlagLogout))
	assert.Nil(t, dbusErr)
	assert.True(t, inhibited)

	call.respond(Response{Canceled: true})
	env.waitPhase(t, app.PhaseRunning)

	inhibited, dbusErr = env.m.IsInhibited(uint32(inhibitor.FlagLogout))
	assert.Nil(t, dbusErr)
	assert.False(t, inhibited)
}

func TestLateResponseRemovesInhibitor(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true}, func(o *managerOptions) {
		o.timeouts.confirm = time.Minute
	})
	env.startRunning(t)

	dbusClient := env.registerDBus(t, ":1.51", "org.example.Slow")

	assert.Nil(t, env.m.Logout(uint32(LogoutModeNoConfirmation)))
	require.Eventually(t, func() bool {
		_, ok := env.dialog.lastInhibitorCall()
		return ok
	}, waitFor, tick)

	respondDBus(dbusClient, true, "")
	// the last inhibitor is gone, the confirmation is accepted and the
	// silent client holds the end session phase until the timeout
	env.waitPhase(t, app.PhaseExit)
}

func TestInhibitValidation(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true})
	env.startRunning(t)

	_, dbusErr := env.m.Inhibit(":1.7", "", 0, "reason", uint32(inhibitor.FlagIdle))
	assert.NotNil(t, dbusErr)
	_, dbusErr = env.m.Inhibit(":1.7", "org.example.App", 0, "", uint32(inhibitor.FlagIdle))
	assert.NotNil(t, dbusErr)
	_, dbusErr = env.m.Inhibit(":1.7", "org.example.App", 0, "reason", 0)
	assert.NotNil(t, dbusErr)

	cookie, dbusErr := env.m.Inhibit(":1.7", "org.example.App", 0, "reason",
		uint32(inhibitor.FlagIdle|inhibitor.FlagSuspend))
	require.Nil(t, dbusErr)
	assert.Equal(t, uint32(inhibitor.FlagIdle|inhibitor.FlagSuspend), env.service.prop("InhibitedActions"))

	paths, dbusErr := env.m.GetInhibitors()
	assert.Nil(t, dbusErr)
	assert.Len(t, paths, 1)
	assert.Equal(t, 1, env.service.count("InhibitorAdded"))

	inhibited, _ := env.m.IsInhibited(uint32(inhibitor.FlagSuspend))
	assert.True(t, inhibited)
	inhibited, _ = env.m.IsInhibited(uint32(inhibitor.FlagLogout))
	assert.False(t, inhibited)

	env.sys.mu.Lock()
	assert.Len(t, env.sys.inhibitors, 1)
	env.sys.mu.Unlock()

	assert.NotNil(t, env.m.Uninhibit(cookie+1))
	assert.Nil(t, env.m.Uninhibit(cookie))
	assert.Equal(t, uint32(0), env.service.prop("InhibitedActions"))
	assert.Equal(t, 1, env.service.count("InhibitorRemoved"))

	env.sys.mu.Lock()
	assert.Empty(t, env.sys.inhibitors)
	env.sys.mu.Unlock()
}

func TestInhibitorsDroppedWithBusName(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true})
	env.startRunning(t)

	_, dbusErr := env.m.Inhibit(":1.7", "org.example.App", 0, "reason", uint32(inhibitor.FlagIdle))
	require.Nil(t, dbusErr)
	_, dbusErr = env.m.Inhibit(":1.8", "org.example.Other", 0, "reason", uint32(inhibitor.FlagIdle))
	require.Nil(t, dbusErr)

	env.run(func() {
		env.m.onNameLost(":1.7")
	})
	paths, _ := env.m.GetInhibitors()
	assert.Len(t, paths, 1)
}

func TestForcedLogoutCannotBeInhibited(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true})
	env.run(func() {
		env.m.logoutMode = LogoutModeForce
		_, err := env.m.inhibit(":1.7", "org.example.App", 0, "reason", inhibitor.FlagLogout)
		assert.Error(t, err)
	})
}

func TestLogoutErrors(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true})

	logoutErr := func(mode LogoutMode) error {
		var err error
		env.run(func() {
			err = env.m.logout(mode)
		})
		return err
	}

	assert.ErrorIs(t, logoutErr(LogoutModeNormal), &Error{Kind: ErrNotInRunning})

	env.startRunning(t)
	assert.ErrorIs(t, logoutErr(LogoutMode(7)), &Error{Kind: ErrInvalidOption})

	env.run(func() {
		env.m.cfg.(*Settings).NoLogout = true
	})
	assert.ErrorIs(t, logoutErr(LogoutModeNormal), &Error{Kind: ErrLockedDown})
	assert.NotNil(t, env.m.Shutdown())
	can, dbusErr := env.m.CanShutdown()
	assert.Nil(t, dbusErr)
	assert.False(t, can)
}

func TestRegisterClientErrors(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true}, func(o *managerOptions) {
		o.timeouts.confirm = time.Minute
	})
	env.startRunning(t)

	path, dbusErr := env.m.RegisterClient(":1.9", "org.example.App", "10fixed")
	require.Nil(t, dbusErr)
	assert.NotEmpty(t, path)

	paths, _ := env.m.GetClients()
	assert.Equal(t, []dbus.ObjectPath{path}, paths)
	assert.Equal(t, 1, env.service.count("ClientAdded"))

	_, dbusErr = env.m.RegisterClient(":1.10", "org.example.App", "10fixed")
	assert.NotNil(t, dbusErr)

	assert.NotNil(t, env.m.UnregisterClient("/org/deepin/dde/SessionManager1/Client999"))
	assert.Nil(t, env.m.UnregisterClient(path))

	_, dbusErr = env.m.Inhibit(":1.7", "org.example.Editor", 0, "busy", uint32(inhibitor.FlagLogout))
	require.Nil(t, dbusErr)
	assert.Nil(t, env.m.Logout(uint32(LogoutModeNoConfirmation)))
	env.waitPhase(t, app.PhaseQueryEndSession)

	var err error
	env.run(func() {
		_, err = env.m.registerClient(":1.11", 0, "org.example.Late", "")
	})
	var smErr *Error
	require.True(t, errors.As(err, &smErr))
	assert.Equal(t, ErrNotInRunning, smErr.Kind)
}

func TestXSMPRegistrationUnknownPreviousID(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true})
	env.startRunning(t)

	conn := &fakeXSMPConn{}
	c := env.m.NewXSMPConnection(conn)
	require.NotNil(t, c)
	assert.False(t, c.RegisterClientRequest("10unknown"))
	assert.Zero(t, conn.count("RegisterClientReply"))
}

func TestXSMPRejectedWhileEnding(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true})
	env.run(func() {
		env.m.phase = app.PhaseEndSession
	})

	conn := &fakeXSMPConn{}
	assert.Nil(t, env.m.NewXSMPConnection(conn))
	assert.Equal(t, 1, conn.count("Close"))
}

func TestSetenvOnlyDuringInitialization(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true})
	assert.Nil(t, env.m.Setenv("FOO", "bar"))

	env.startRunning(t)
	assert.NotNil(t, env.m.Setenv("FOO", "bar"))
	assert.NotNil(t, env.m.InitializationError("boom", true))
	assert.Zero(t, env.quitCount())
}

func TestSuspendPrefersHybridSleep(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true, HybridSleepFirst: true})
	env.sys.canHybrid = true
	env.startRunning(t)

	env.run(env.m.requestSuspend)
	assert.Equal(t, 1, env.sys.count("HybridSleep"))
	assert.Zero(t, env.sys.count("Suspend"))

	env.sys.canHybrid = false
	env.run(env.m.requestSuspend)
	assert.Equal(t, 1, env.sys.count("Suspend"))
}

func TestInhibitedSuspendAsks(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true})
	env.startRunning(t)

	_, dbusErr := env.m.Inhibit(":1.7", "org.example.Player", 0, "playing", uint32(inhibitor.FlagSuspend))
	require.Nil(t, dbusErr)

	env.run(env.m.requestSuspend)
	call, ok := env.dialog.lastInhibitorCall()
	require.True(t, ok)
	assert.Equal(t, ActionSuspend, call.action)
	assert.Zero(t, env.sys.count("Suspend"))

	call.respond(Response{Action: ActionSuspend})
	assert.Eventually(t, func() bool {
		return env.sys.count("Suspend") == 1
	}, waitFor, tick)
	assert.Equal(t, app.PhaseRunning, env.phase())
}

func TestShutdownDialogKeepsAction(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true, Prompt: true})
	env.startRunning(t)

	assert.Nil(t, env.m.Reboot())
	env.waitPhase(t, app.PhaseExit)

	env.dialog.mu.Lock()
	assert.Equal(t, []Action{ActionReboot}, env.dialog.shutdownCalls)
	env.dialog.mu.Unlock()
	assert.Eventually(t, func() bool {
		return env.sys.count("AttemptRestart") == 1
	}, waitFor, tick)
}

func TestRequestFailedQuits(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true})
	env.sys.mu.Lock()
	cb := env.sys.requestFailed
	env.sys.mu.Unlock()
	require.NotNil(t, cb)

	cb(errors.New("denied"))
	assert.Eventually(t, func() bool {
		return env.quitCount() == 1
	}, waitFor, tick)
}

func TestLockedDownLogoutStaysRunning(t *testing.T) {
	env := newTestEnv(t, Settings{Logind: true, NoLogout: true})
	env.startRunning(t)

	env.run(func() {
		env.m.onXSMPLogoutRequest(false)
		env.m.requestEndSession(ActionLogout, LogoutModeNormal)
	})
	assert.Equal(t, app.PhaseRunning, env.phase())
}

func TestErrorName(t *testing.T) {
	err := newError(ErrNotInRunning, "not %s", "running")
	assert.Equal(t, "not running", err.Error())
	assert.Equal(t, "org.deepin.dde.SessionManager1.Error.NotInRunning", err.Name())
	assert.True(t, errors.Is(err, &Error{Kind: ErrNotInRunning}))
	assert.False(t, errors.Is(err, &Error{Kind: ErrLockedDown}))
}

func TestIsBlacklisted(t *testing.T) {
	cfg := &Settings{Blacklist: []string{"tracker-", "orca"}}
	assert.True(t, isBlacklisted(cfg, "/etc/xdg/autostart/tracker-miner-fs.desktop"))
	assert.True(t, isBlacklisted(cfg, "/etc/xdg/autostart/orca-autostart.desktop"))
	assert.False(t, isBlacklisted(cfg, "/etc/xdg/autostart/dde-dock.desktop"))
	assert.False(t, isBlacklisted(&Settings{}, "/etc/xdg/autostart/orca-autostart.desktop"))
}
