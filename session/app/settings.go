// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package app

import (
	"sync"

	gio "github.com/linuxdeepin/go-gir/gio-2.0"
	"github.com/linuxdeepin/go-lib/gsettings"
	"github.com/linuxdeepin/go-lib/strv"
	"github.com/linuxdeepin/go-lib/utils"
)

// SettingsSource reads boolean GSettings keys for GSettings conditions.
type SettingsSource interface {
	// Bool reports ok false when the schema or key does not exist.
	Bool(schema, key string) (value bool, ok bool)
	Watch(schema, key string, cb func(value bool))
}

type gioSettings struct {
	mu       sync.Mutex
	settings map[string]*gio.Settings
}

func NewGioSettings() SettingsSource {
	return &gioSettings{settings: make(map[string]*gio.Settings)}
}

func (s *gioSettings) get(schema, key string) *gio.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	gs, ok := s.settings[schema]
	if !ok {
		var err error
		gs, err = utils.CheckAndNewGSettings(schema)
		if err != nil {
			logger.Debug(err)
			gs = nil
		}
		s.settings[schema] = gs
	}
	if gs == nil {
		return nil
	}
	if !strv.Strv(gs.ListKeys()).Contains(key) {
		logger.Warningf("gsettings key %s %s could not be found", schema, key)
		return nil
	}
	return gs
}

func (s *gioSettings) Bool(schema, key string) (bool, bool) {
	gs := s.get(schema, key)
	if gs == nil {
		return false, false
	}
	return gs.GetBoolean(key), true
}

func (s *gioSettings) Watch(schema, key string, cb func(bool)) {
	gs := s.get(schema, key)
	if gs == nil {
		return
	}
	gsettings.ConnectChanged(schema, key, func(string) {
		cb(gs.GetBoolean(key))
	})
}
