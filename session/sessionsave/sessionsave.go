// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package sessionsave commits the saved session directory.
package sessionsave

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/linuxdeepin/dde-session-manager/common/sessiondirs"
	"github.com/linuxdeepin/dde-session-manager/session/client"
	"github.com/linuxdeepin/go-lib/appinfo/desktopappinfo"
	"github.com/linuxdeepin/go-lib/keyfile"
	"github.com/linuxdeepin/go-lib/log"
	"github.com/linuxdeepin/go-lib/multierr"
	"github.com/linuxdeepin/go-lib/strv"
	"golang.org/x/xerrors"
)

var logger = log.NewLogger("dde-session-manager/sessionsave")

const desktopSuffix = ".desktop"

// Client is the part of a session client that can be persisted.
type Client interface {
	AppID() string
	StartupID() string
	Save() (*keyfile.KeyFile, error)
}

// DiscardRunner runs the discard command of a superseded entry.
type DiscardRunner interface {
	Run(cmd, description string) error
}

type Saver struct {
	runner DiscardRunner
}

func New(runner DiscardRunner) *Saver {
	return &Saver{runner: runner}
}

// Save writes every client that can be restarted into a fresh directory
// and then replaces the saved session with it.
func (s *Saver) Save(clients []Client) error {
	logger.Debug("saving session")
	tmpDir, err := sessiondirs.EmptyTmpSessionDir()
	if err != nil {
		return xerrors.Errorf("prepare temporary session dir: %w", err)
	}

	discards, err := s.writeClients(tmpDir, clients)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return err
	}

	savedDir := sessiondirs.SavedSessionDir()
	err = s.clearDir(savedDir, discards)
	if err != nil {
		logger.Warning("failed to clear old saved session:", err)
	}
	err = os.RemoveAll(savedDir)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return xerrors.Errorf("remove saved session dir: %w", err)
	}
	err = os.Rename(tmpDir, savedDir)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return xerrors.Errorf("commit saved session dir: %w", err)
	}
	return nil
}

func (s *Saver) writeClients(dir string, clients []Client) (strv.Strv, error) {
	var discards strv.Strv
	for _, c := range clients {
		kf, err := c.Save()
		if err != nil {
			logger.Warningf("client %s failed to save: %v", c.AppID(), err)
			continue
		}
		if kf == nil {
			continue
		}

		name := sessiondirs.DesktopFileName(c.AppID())
		path := filepath.Join(dir, name)
		if name == "" || fileExists(path) {
			name = sessiondirs.DesktopFileName(c.StartupID())
			path = filepath.Join(dir, name)
		}
		if name == "" {
			logger.Warning("client has neither app id nor startup id, not saved")
			continue
		}

		err = kf.SaveToFile(path)
		if err != nil {
			return nil, xerrors.Errorf("write %s: %w", path, err)
		}
		logger.Debug("saved client to", path)

		discard, _ := kf.GetString(desktopappinfo.MainSection, client.KeyDiscardExec)
		if discard != "" {
			discards, _ = discards.Add(discard)
		}
	}
	return discards, nil
}

// Clear wipes the saved session, running every discard command.
func (s *Saver) Clear() error {
	logger.Debug("clearing saved session")
	return s.clearDir(sessiondirs.SavedSessionDir(), nil)
}

func (s *Saver) clearDir(dir string, keep strv.Strv) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var errs error
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if strings.HasSuffix(entry.Name(), desktopSuffix) {
			s.discard(path, keep)
		}
		err = os.RemoveAll(path)
		if err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (s *Saver) discard(path string, keep strv.Strv) {
	kf := keyfile.NewKeyFile()
	err := kf.LoadFromFile(path)
	if err != nil {
		logger.Warning(err)
		return
	}
	cmd, _ := kf.GetString(desktopappinfo.MainSection, client.KeyDiscardExec)
	if cmd == "" || keep.Contains(cmd) {
		return
	}
	logger.Debugf("running discard command %q", cmd)
	err = s.runner.Run(cmd, "discard saved state of "+filepath.Base(path))
	if err != nil {
		logger.Warning(err)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
