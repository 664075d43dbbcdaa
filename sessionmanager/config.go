// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sessionmanager

import (
	"strings"
	"sync"

	"github.com/linuxdeepin/dde-session-manager/common/dconfig"
)

const (
	dconfigAppID = "org.deepin.dde.session-manager"
	dconfigName  = "org.deepin.dde.session-manager"

	keyAutoSaveSession      = "autoSaveSession"
	keyLogoutPrompt         = "logoutPrompt"
	keyDisableLogout        = "disableLogout"
	keyDisableUserSwitching = "disableUserSwitching"
	keyAutostartBlacklist   = "autostartBlacklist"
	keyUseLogind            = "useLogind"
	keyPreferHybridSleep    = "preferHybridSleep"
)

type Config interface {
	AutoSaveSession() bool
	LogoutPrompt() bool
	DisableLogout() bool
	DisableUserSwitching() bool
	AutostartBlacklist() []string
	UseLogind() bool
	PreferHybridSleep() bool
}

// Settings is a fixed Config, also the defaults used without DConfig.
type Settings struct {
	AutoSave         bool
	Prompt           bool
	NoLogout         bool
	NoUserSwitching  bool
	Blacklist        []string
	Logind           bool
	HybridSleepFirst bool
}

var defaultSettings = Settings{
	Prompt: true,
	Logind: true,
}

func (s *Settings) AutoSaveSession() bool        { return s.AutoSave }
func (s *Settings) LogoutPrompt() bool           { return s.Prompt }
func (s *Settings) DisableLogout() bool          { return s.NoLogout }
func (s *Settings) DisableUserSwitching() bool   { return s.NoUserSwitching }
func (s *Settings) AutostartBlacklist() []string { return s.Blacklist }
func (s *Settings) UseLogind() bool              { return s.Logind }
func (s *Settings) PreferHybridSleep() bool      { return s.HybridSleepFirst }

type dconfigConfig struct {
	dc *dconfig.DConfig

	mu        sync.Mutex
	blacklist []string
}

// newDConfigConfig falls back to the defaults for every key when DConfig
// cannot be reached.
func newDConfigConfig() *dconfigConfig {
	dc, err := dconfig.NewDConfig(dconfigAppID, dconfigName, "")
	if err != nil {
		logger.Warning("DConfig unavailable, using defaults:", err)
		dc = nil
	}
	c := &dconfigConfig{dc: dc}
	c.blacklist = dc.Strings(keyAutostartBlacklist, defaultSettings.Blacklist)
	dc.ConnectChanged(keyAutostartBlacklist, func(interface{}) {
		list := dc.Strings(keyAutostartBlacklist, defaultSettings.Blacklist)
		logger.Debug("autostart blacklist changed:", list)
		c.mu.Lock()
		c.blacklist = list
		c.mu.Unlock()
	})
	return c
}

func (c *dconfigConfig) AutoSaveSession() bool {
	return c.dc.Bool(keyAutoSaveSession, defaultSettings.AutoSave)
}

func (c *dconfigConfig) LogoutPrompt() bool {
	return c.dc.Bool(keyLogoutPrompt, defaultSettings.Prompt)
}

func (c *dconfigConfig) DisableLogout() bool {
	return c.dc.Bool(keyDisableLogout, defaultSettings.NoLogout)
}

func (c *dconfigConfig) DisableUserSwitching() bool {
	return c.dc.Bool(keyDisableUserSwitching, defaultSettings.NoUserSwitching)
}

func (c *dconfigConfig) AutostartBlacklist() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blacklist
}

func (c *dconfigConfig) UseLogind() bool {
	return c.dc.Bool(keyUseLogind, defaultSettings.Logind)
}

func (c *dconfigConfig) PreferHybridSleep() bool {
	return c.dc.Bool(keyPreferHybridSleep, defaultSettings.HybridSleepFirst)
}

func (c *dconfigConfig) destroy() {
	c.dc.Destroy()
}

// isBlacklisted matches the blacklist entries as substrings of the file
// name.
func isBlacklisted(cfg Config, file string) bool {
	for _, item := range cfg.AutostartBlacklist() {
		if item != "" && strings.Contains(file, item) {
			return true
		}
	}
	return false
}
