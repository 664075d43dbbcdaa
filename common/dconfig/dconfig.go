// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package dconfig reads typed values from the DConfig service and follows
// their changes.
package dconfig

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	configmanager "github.com/linuxdeepin/go-dbus-factory/org.desktopspec.ConfigManager"
	"github.com/linuxdeepin/go-lib/dbusutil"
	"github.com/linuxdeepin/go-lib/dbusutil/proxy"
)

var errNotInited = errors.New("dconfig is not initialized")

type DConfig struct {
	systemConn *dbus.Conn
	manager    configmanager.Manager
	sigLoop    *dbusutil.SignalLoop

	mu         sync.Mutex
	callbacks  map[string][]func(value interface{})
	signalOnce sync.Once
}

func NewDConfig(appID, name, subPath string) (*DConfig, error) {
	systemConn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}

	path, err := configmanager.NewConfigManager(systemConn).AcquireManager(0, appID, name, subPath)
	if err != nil {
		return nil, err
	}
	manager, err := configmanager.NewManager(systemConn, path)
	if err != nil {
		return nil, err
	}

	return &DConfig{
		systemConn: systemConn,
		manager:    manager,
		callbacks:  make(map[string][]func(interface{})),
	}, nil
}

func (d *DConfig) Value(key string) (interface{}, error) {
	if d == nil || d.manager == nil {
		return nil, errNotInited
	}
	v, err := d.manager.Value(0, key)
	if err != nil {
		return nil, err
	}
	return v.Value(), nil
}

// Bool returns def when the key is missing or has another type.
func (d *DConfig) Bool(key string, def bool) bool {
	v, err := d.Value(key)
	if err != nil {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func (d *DConfig) Strings(key string, def []string) []string {
	v, err := d.Value(key)
	if err != nil {
		return def
	}
	return toStrings(v, def)
}

func toStrings(v interface{}, def []string) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []dbus.Variant:
		result := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.Value().(string)
			if !ok {
				return def
			}
			result = append(result, s)
		}
		return result
	case []interface{}:
		result := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return def
			}
			result = append(result, s)
		}
		return result
	}
	return def
}

func (d *DConfig) SetValue(key string, value interface{}) error {
	if d == nil || d.manager == nil {
		return errNotInited
	}
	err := d.manager.SetValue(0, key, dbus.MakeVariant(value))
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// ConnectChanged calls cb with the new value of key whenever it changes.
func (d *DConfig) ConnectChanged(key string, cb func(value interface{})) {
	if d == nil || d.manager == nil {
		return
	}
	d.mu.Lock()
	d.callbacks[key] = append(d.callbacks[key], cb)
	d.mu.Unlock()

	d.signalOnce.Do(func() {
		d.sigLoop = dbusutil.NewSignalLoop(d.systemConn, 10)
		d.sigLoop.Start()
		d.manager.InitSignalExt(d.sigLoop, true)
		_, err := d.manager.ConnectValueChanged(d.handleValueChanged)
		if err != nil {
			logger.Warning(err)
		}
	})
}

func (d *DConfig) handleValueChanged(key string) {
	d.mu.Lock()
	cbs := append([]func(interface{}){}, d.callbacks[key]...)
	d.mu.Unlock()
	if len(cbs) == 0 {
		return
	}
	value, err := d.Value(key)
	if err != nil {
		logger.Warning(err)
		return
	}
	for _, cb := range cbs {
		cb(value)
	}
}

func (d *DConfig) Destroy() {
	if d == nil || d.manager == nil {
		return
	}
	d.manager.RemoveHandler(proxy.RemoveAllHandlers)
	if d.sigLoop != nil {
		d.sigLoop.Stop()
	}
}
