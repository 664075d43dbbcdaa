// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sessionmanager

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/linuxdeepin/dde-session-manager/common/sessiondirs"
	"github.com/linuxdeepin/dde-session-manager/session/app"
	"github.com/linuxdeepin/go-lib/keyfile"
	"github.com/linuxdeepin/go-lib/utils"
	"golang.org/x/xerrors"
)

const (
	sessionGroup          = "DDE Session"
	keySessionName        = "Name"
	keyRequiredComponents = "RequiredComponents"
	sessionFileSuffix     = ".session"
	desktopFileSuffix     = ".desktop"
)

func findSessionFile(name string) string {
	for _, dir := range sessiondirs.SessionDirs() {
		file := filepath.Join(dir, name+sessionFileSuffix)
		if utils.IsFileExist(file) {
			return file
		}
	}
	return ""
}

type sessionInfo struct {
	name               string
	requiredComponents []string
}

func loadSessionFile(file string) (*sessionInfo, error) {
	kf := keyfile.NewKeyFile()
	err := kf.LoadFromFile(file)
	if err != nil {
		return nil, xerrors.Errorf("load session %s: %w", file, err)
	}
	var info sessionInfo
	info.name, _ = kf.GetString(sessionGroup, keySessionName)
	info.requiredComponents, err = kf.GetStringList(sessionGroup, keyRequiredComponents)
	if err != nil {
		return nil, xerrors.Errorf("session %s has no required components: %w", file, err)
	}
	return &info, nil
}

// loadSession adds the required components of the named session, the
// saved session when autosave is on and everything in the autostart
// directories.
func (m *Manager) loadSession(name string) error {
	var loadErr error
	file := findSessionFile(name)
	if file == "" {
		loadErr = xerrors.Errorf("session %q not found", name)
	} else {
		info, err := loadSessionFile(file)
		if err != nil {
			loadErr = err
		} else {
			logger.Infof("load session %s (%s)", name, info.name)
			for _, component := range info.requiredComponents {
				m.addRequiredComponent(component)
			}
		}
	}

	if m.cfg.AutoSaveSession() {
		m.addAutostartAppsFromDir(sessiondirs.SavedSessionDir())
	}
	for _, dir := range sessiondirs.AutostartDirs() {
		m.addAutostartAppsFromDir(dir)
	}
	return loadErr
}

func (m *Manager) addRequiredComponent(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	file := sessiondirs.FindDesktopFileForAppName(name, false, true)
	if file == "" {
		logger.Warningf("no desktop file for required component %s", name)
		m.dialog.ShowFailure(name, "Unable to find desktop file")
		return
	}
	m.addAutostartApp(file, name, true)
}

func (m *Manager) addAutostartAppsFromDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warning(err)
		}
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, desktopFileSuffix) {
			continue
		}
		if isBlacklisted(m.cfg, name) {
			logger.Debug("skip blacklisted autostart file", name)
			continue
		}
		m.addAutostartApp(filepath.Join(dir, name), "", false)
	}
}

func (m *Manager) findAppProviding(service string) *app.App {
	a, _ := m.apps.Find(func(_ string, a *app.App) bool {
		return a.Provides(service)
	})
	return a
}

// addAutostartApp returns false when another app already plays the role
// of this one. Provides and required are merged into that app.
func (m *Manager) addAutostartApp(file, provides string, required bool) bool {
	if provides != "" {
		if dup := m.findAppProviding(provides); dup != nil {
			logger.Debugf("%s is already provided by %s", provides, dup.ID())
			if required {
				m.requiredApps[dup.ID()] = true
			}
			return false
		}
	}

	a, err := app.New(file, m.appCtx)
	if err != nil {
		logger.Warning(err)
		return false
	}
	if provides != "" {
		a.AddProvides(provides)
	}
	if !m.appendApp(a, provides, required) {
		a.Dispose()
		return false
	}
	return true
}

func (m *Manager) mergeInto(dup *app.App, provides string, required bool) {
	if provides != "" {
		dup.AddProvides(provides)
	}
	if required {
		m.requiredApps[dup.ID()] = true
	}
}

func (m *Manager) appendApp(a *app.App, provides string, required bool) bool {
	id := a.ID()
	if id == "" {
		return false
	}
	if dup, ok := m.apps.Lookup(id); ok {
		logger.Debug("app already added:", id)
		m.mergeInto(dup, provides, required)
		return false
	}
	if dup := m.findAppByAppID(a.AppID()); dup != nil {
		logger.Debugf("app id %s already added from %s", a.AppID(), dup.ID())
		m.mergeInto(dup, provides, required)
		return false
	}

	a.SetHandlers(app.Handlers{
		Exited: func(a *app.App, code int) {
			m.loop.post(func() {
				m.onAppExited(a, code)
			})
		},
		Died: func(a *app.App, sig syscall.Signal) {
			m.loop.post(func() {
				m.onAppDied(a, sig)
			})
		},
		ConditionChanged: func(a *app.App, condition bool) {
			m.loop.post(func() {
				m.onAppConditionChanged(a, condition)
			})
		},
	})
	if !m.apps.Add(id, a) {
		return false
	}
	if required {
		m.requiredApps[id] = true
	}
	return true
}
