// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package sessiondirs resolves the directories the session manager reads
// desktop entries from and keeps its saved session in.
package sessiondirs

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/linuxdeepin/go-lib/utils"
	"github.com/linuxdeepin/go-lib/xdg/basedir"
)

const (
	appDirName        = "dde-session-manager"
	savedSessionName  = "saved-session"
	tmpSessionName    = "saved-session.new"
	sessionsDirName   = "sessions"
	desktopFileSuffix = ".desktop"
)

var (
	mu                sync.Mutex
	overrideAutostart []string
	configDirOverride string
)

// SetAutostartDirs replaces the standard autostart directories, nil
// restores them.
func SetAutostartDirs(dirs []string) {
	mu.Lock()
	overrideAutostart = dirs
	mu.Unlock()
}

// SetUserConfigDir redirects everything below the user config dir.
func SetUserConfigDir(dir string) {
	mu.Lock()
	configDirOverride = dir
	mu.Unlock()
}

func UserConfigDir() string {
	mu.Lock()
	dir := configDirOverride
	mu.Unlock()
	if dir != "" {
		return dir
	}
	return basedir.GetUserConfigDir()
}

func StandardAutostartDirs() []string {
	dirs := []string{filepath.Join(UserConfigDir(), "autostart")}
	for _, dir := range basedir.GetSystemConfigDirs() {
		dirs = append(dirs, filepath.Join(dir, "autostart"))
	}
	return dirs
}

func AutostartDirs() []string {
	mu.Lock()
	override := overrideAutostart
	mu.Unlock()
	if len(override) != 0 {
		return append([]string(nil), override...)
	}
	return StandardAutostartDirs()
}

func AppDirs() []string {
	dirs := []string{filepath.Join(basedir.GetUserDataDir(), "applications")}
	for _, dir := range basedir.GetSystemDataDirs() {
		dirs = append(dirs, filepath.Join(dir, "applications"))
	}
	return dirs
}

// SessionDirs lists where <name>.session definitions are looked up.
func SessionDirs() []string {
	dirs := []string{filepath.Join(basedir.GetUserDataDir(), appDirName, sessionsDirName)}
	for _, dir := range basedir.GetSystemDataDirs() {
		dirs = append(dirs, filepath.Join(dir, appDirName, sessionsDirName))
	}
	return dirs
}

// DesktopDirs combines application, autostart and optionally the saved
// session directory. The standard autostart dirs are still searched when
// autostart has been overridden.
func DesktopDirs(includeSavedSession, autostartFirst bool) []string {
	apps := AppDirs()
	autostart := AutostartDirs()

	mu.Lock()
	overridden := len(overrideAutostart) != 0
	mu.Unlock()
	var standard []string
	if overridden {
		standard = StandardAutostartDirs()
	}

	var result []string
	if autostartFirst {
		if includeSavedSession {
			result = append(result, SavedSessionDir())
		}
		result = append(result, autostart...)
		result = append(result, standard...)
		result = append(result, apps...)
	} else {
		result = append(result, apps...)
		result = append(result, standard...)
		result = append(result, autostart...)
		if includeSavedSession {
			result = append(result, SavedSessionDir())
		}
	}
	return result
}

// FindDesktopFile returns the first <name>.desktop found in dirs, the
// gnome- vendor prefix is tried as well.
func FindDesktopFile(name string, dirs []string) string {
	for _, candidate := range []string{name + desktopFileSuffix, "gnome-" + name + desktopFileSuffix} {
		for _, dir := range dirs {
			path := filepath.Join(dir, candidate)
			if utils.IsFileExist(path) {
				return path
			}
		}
	}
	return ""
}

// DesktopFileName gives an app id the form of a desktop file basename,
// which is the form apps loaded from desktop entries are known by.
func DesktopFileName(appID string) string {
	if appID == "" || strings.HasSuffix(appID, desktopFileSuffix) {
		return appID
	}
	return appID + desktopFileSuffix
}

func FindDesktopFileForAppName(name string, includeSavedSession, autostartFirst bool) string {
	if name == "" {
		return ""
	}
	return FindDesktopFile(name, DesktopDirs(includeSavedSession, autostartFirst))
}

func SavedSessionDir() string {
	return filepath.Join(UserConfigDir(), appDirName, savedSessionName)
}

// EnsureSavedSessionDir creates the saved session directory if needed.
func EnsureSavedSessionDir() (string, error) {
	dir := SavedSessionDir()
	return dir, os.MkdirAll(dir, 0755)
}

// EmptyTmpSessionDir returns the temporary save directory, created and
// emptied.
func EmptyTmpSessionDir() (string, error) {
	dir := filepath.Join(UserConfigDir(), appDirName, tmpSessionName)
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		_ = os.RemoveAll(filepath.Join(dir, entry.Name()))
	}
	return dir, nil
}
