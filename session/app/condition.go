// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package app

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/linuxdeepin/dde-session-manager/common/sessiondirs"
	"github.com/linuxdeepin/go-lib/utils"
)

type conditionKind int

const (
	conditionUnknown conditionKind = iota
	conditionIfExists
	conditionUnlessExists
	conditionGSettings
	conditionIfSession
	conditionUnlessSession
)

func cutWord(s string) (word, rest string) {
	s = strings.TrimLeft(s, " \t")
	idx := strings.IndexAny(s, " \t")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimLeft(s[idx:], " \t")
}

// parseCondition splits an AutostartCondition value into its kind and key.
// The key is empty for unknown conditions.
func parseCondition(s string) (conditionKind, string) {
	word, key := cutWord(s)
	kind := conditionUnknown
	switch {
	case strings.EqualFold(word, "if-exists"):
		kind = conditionIfExists
	case strings.EqualFold(word, "unless-exists"):
		kind = conditionUnlessExists
	case strings.EqualFold(word, "GSettings"):
		kind = conditionGSettings
	case strings.EqualFold(word, "DDE"), strings.EqualFold(word, "GNOME3"):
		word, key = cutWord(key)
		if strings.EqualFold(word, "if-session") {
			kind = conditionIfSession
		} else if strings.EqualFold(word, "unless-session") {
			kind = conditionUnlessSession
		}
	}
	if kind == conditionUnknown || key == "" {
		return conditionUnknown, ""
	}
	return kind, key
}

func conditionFilePath(key string) string {
	return filepath.Join(sessiondirs.UserConfigDir(), key)
}

func splitSettingsKey(key string) (schema, name string, ok bool) {
	parts := strings.Fields(key)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// evalCondition returns whether the condition currently holds.
func (a *App) evalCondition(kind conditionKind, key string) bool {
	switch kind {
	case conditionIfExists:
		return utils.IsFileExist(conditionFilePath(key))
	case conditionUnlessExists:
		return !utils.IsFileExist(conditionFilePath(key))
	case conditionGSettings:
		schema, name, ok := splitSettingsKey(key)
		if !ok || a.ctx.Settings == nil {
			return false
		}
		value, ok := a.ctx.Settings.Bool(schema, name)
		return ok && value
	case conditionIfSession:
		return a.sessionName() == key
	case conditionUnlessSession:
		return a.sessionName() != key
	}
	return false
}

type conditionWatcher interface {
	stop()
}

type fileWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	// dir is the closest existing ancestor of path being watched
	dir  string
	done chan struct{}
}

func nearestExistingDir(path string) string {
	dir := filepath.Dir(path)
	for !utils.IsDir(dir) {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return dir
}

func isAncestor(dir, path string) bool {
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}

// rearm moves the watch to the closest existing ancestor of path.
func (fw *fileWatcher) rearm() error {
	dir := nearestExistingDir(fw.path)
	if dir == fw.dir {
		return nil
	}
	err := fw.watcher.Add(dir)
	if err != nil {
		return err
	}
	if fw.dir != "" {
		// the old directory may be gone together with its watch
		_ = fw.watcher.Remove(fw.dir)
	}
	fw.dir = dir
	return nil
}

// watchFile calls cb with the new existence state of path whenever it is
// created or removed, including through its parent directories.
func watchFile(path string, cb func(exists bool)) (*fileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	fw := &fileWatcher{watcher: w, path: path, done: make(chan struct{})}
	err = fw.rearm()
	if err != nil {
		_ = w.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				name := filepath.Clean(ev.Name)
				if name == path {
					switch {
					case ev.Has(fsnotify.Create):
						cb(true)
					case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
						cb(false)
					}
					continue
				}
				if !isAncestor(name, path) {
					continue
				}
				if err := fw.rearm(); err != nil {
					logger.Warningf("condition watch %s: %v", path, err)
				}
				cb(utils.IsFileExist(path))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warning("condition watch:", err)
			case <-fw.done:
				return
			}
		}
	}()
	return fw, nil
}

func (fw *fileWatcher) stop() {
	close(fw.done)
	_ = fw.watcher.Close()
}

type settingsWatcher struct {
	stopped chan struct{}
}

func (sw *settingsWatcher) stop() {
	close(sw.stopped)
}

// setupConditionMonitor evaluates the condition once and starts watching
// it. Apps disabled outright are not watched.
func (a *App) setupConditionMonitor() {
	if a.conditionString == "" || a.IsDisabled() {
		return
	}
	kind, key := parseCondition(a.conditionString)
	if kind == conditionUnknown {
		return
	}

	a.mu.Lock()
	a.condition = a.evalCondition(kind, key)
	a.mu.Unlock()

	switch kind {
	case conditionIfExists, conditionUnlessExists:
		path := filepath.Clean(conditionFilePath(key))
		w, err := watchFile(path, func(exists bool) {
			if kind == conditionIfExists {
				a.setCondition(exists)
			} else {
				a.setCondition(!exists)
			}
		})
		if err != nil {
			logger.Warningf("unable to watch %s for %s: %v", path, a.appID, err)
			return
		}
		a.watcher = w
	case conditionGSettings:
		schema, name, ok := splitSettingsKey(key)
		if !ok || a.ctx.Settings == nil {
			return
		}
		sw := &settingsWatcher{stopped: make(chan struct{})}
		a.ctx.Settings.Watch(schema, name, func(value bool) {
			select {
			case <-sw.stopped:
				return
			default:
			}
			a.setCondition(value)
		})
		a.watcher = sw
	}
}

func (a *App) setCondition(value bool) {
	a.mu.Lock()
	changed := value != a.condition
	a.condition = value
	h := a.handlers.ConditionChanged
	a.mu.Unlock()

	if !changed {
		return
	}
	logger.Debugf("app %s condition changed to %v", a.appID, value)
	if h != nil {
		h(a, value)
	}
}

// SessionNameChanged re-evaluates session conditions.
func (a *App) SessionNameChanged() {
	kind, key := parseCondition(a.conditionString)
	if kind == conditionIfSession || kind == conditionUnlessSession {
		a.setCondition(a.evalCondition(kind, key))
	}
}
