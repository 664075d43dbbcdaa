// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package sessionwatcher follows whether the user's local graphical
// session is the active one on its seat.
package sessionwatcher

import (
	"github.com/linuxdeepin/dde-session-manager/loader"
	"github.com/linuxdeepin/go-lib/log"
)

var (
	logger = log.NewLogger("dde-session-manager/sessionwatcher")
)

const moduleName = "sessionwatcher"

type Daemon struct {
	*loader.ModuleBase
	manager *Manager
}

func init() {
	loader.Register(NewDaemon(logger))
}

func NewDaemon(logger *log.Logger) *Daemon {
	var d = new(Daemon)
	d.ModuleBase = loader.NewModuleBase(moduleName, d, logger)
	return d
}

func (*Daemon) GetDependencies() []string {
	return []string{}
}

// ConnectActiveChanged calls cb with the current state and on every change.
// It does nothing when the module is not running.
func (d *Daemon) ConnectActiveChanged(cb func(active bool)) {
	if d.manager == nil {
		return
	}
	d.manager.connectActiveChanged(cb)
}

// Get returns the registered module.
func Get() *Daemon {
	d, _ := loader.GetModule(moduleName).(*Daemon)
	return d
}

func (d *Daemon) Start() error {
	if d.manager != nil {
		return nil
	}
	service := loader.GetService()

	var err error
	d.manager, err = newManager(service)
	if err != nil {
		return err
	}

	d.manager.initUserSessions()

	err = service.Export(dbusPath, d.manager)
	if err != nil {
		return err
	}

	err = service.RequestName(dbusServiceName)
	if err != nil {
		return err
	}

	return nil
}

func (d *Daemon) Stop() error {
	if d.manager == nil {
		return nil
	}

	service := loader.GetService()
	err := service.StopExport(d.manager)
	if err != nil {
		logger.Warning("StopExport error:", err)
	}
	d.manager.destroy()
	d.manager = nil
	return nil
}
