// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package app

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/go-lib/appinfo"
	"github.com/linuxdeepin/go-lib/appinfo/desktopappinfo"
)

const sessionClientStartMethod = "org.deepin.dde.SessionClient1.Start"

// Process is a spawned child.
type Process interface {
	Pid() int
	Signal(sig os.Signal) error
	// Wait blocks until the child is gone. signaled is true when sig
	// terminated it, otherwise code is the exit status.
	Wait() (code int, sig syscall.Signal, signaled bool, err error)
}

// Launcher runs the Exec line of a desktop entry with env added to the
// session environment.
type Launcher interface {
	Spawn(info *desktopappinfo.DesktopAppInfo, env []string) (Process, error)
}

// Activator starts an application through its bus name.
type Activator interface {
	Activate(busName string, path dbus.ObjectPath, args string) error
}

type execLauncher struct{}

type execProcess struct {
	cmd *exec.Cmd
}

func (execLauncher) Spawn(info *desktopappinfo.DesktopAppInfo, env []string) (Process, error) {
	ctx := appinfo.NewAppLaunchContext(nil)
	ctx.SetEnv(append(os.Environ(), env...))
	cmd, err := info.StartCommand(nil, ctx)
	if err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *execProcess) Wait() (int, syscall.Signal, bool, error) {
	err := p.cmd.Wait()
	state := p.cmd.ProcessState
	if state == nil {
		return -1, 0, false, err
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -1, ws.Signal(), true, nil
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return -1, 0, false, err
	}
	return state.ExitCode(), 0, false, nil
}

// busActivator calls Start on the session client interface without
// waiting for the reply.
type busActivator struct {
	conn *dbus.Conn
}

func NewBusActivator(conn *dbus.Conn) Activator {
	return &busActivator{conn: conn}
}

func (a *busActivator) Activate(busName string, path dbus.ObjectPath, args string) error {
	if a.conn == nil {
		return errors.New("no session bus connection")
	}
	ch := make(chan *dbus.Call, 1)
	a.conn.Object(busName, path).Go(sessionClientStartMethod, 0, ch, args)
	go func() {
		call := <-ch
		if call.Err != nil {
			logger.Warningf("activate %s failed: %v", busName, call.Err)
		} else {
			logger.Debugf("activated %s", busName)
		}
	}()
	return nil
}
