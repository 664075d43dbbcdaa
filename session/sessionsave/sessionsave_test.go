// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sessionsave

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/linuxdeepin/dde-session-manager/common/sessiondirs"
	"github.com/linuxdeepin/dde-session-manager/session/client"
	"github.com/linuxdeepin/go-lib/appinfo/desktopappinfo"
	"github.com/linuxdeepin/go-lib/keyfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	appID     string
	startupID string
	discard   string
	noSave    bool
	err       error
}

func (c *fakeClient) AppID() string     { return c.appID }
func (c *fakeClient) StartupID() string { return c.startupID }

func (c *fakeClient) Save() (*keyfile.KeyFile, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.noSave {
		return nil, nil
	}
	kf := keyfile.NewKeyFile()
	kf.SetString(desktopappinfo.MainSection, "Exec", c.appID)
	kf.SetString(desktopappinfo.MainSection, client.KeyStartupID, c.startupID)
	if c.discard != "" {
		kf.SetString(desktopappinfo.MainSection, client.KeyDiscardExec, c.discard)
	}
	return kf, nil
}

type fakeRunner struct {
	cmds []string
}

func (r *fakeRunner) Run(cmd, description string) error {
	r.cmds = append(r.cmds, cmd)
	return nil
}

func setup(t *testing.T) (*Saver, *fakeRunner) {
	sessiondirs.SetUserConfigDir(t.TempDir())
	t.Cleanup(func() { sessiondirs.SetUserConfigDir("") })
	runner := &fakeRunner{}
	return New(runner), runner
}

func savedNames(t *testing.T) []string {
	entries, err := os.ReadDir(sessiondirs.SavedSessionDir())
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSaveWritesEntries(t *testing.T) {
	s, runner := setup(t)

	err := s.Save([]Client{
		&fakeClient{appID: "editor", startupID: "s1"},
		&fakeClient{appID: "editor", startupID: "s2"},
		&fakeClient{appID: "viewer", startupID: "s3", noSave: true},
		&fakeClient{appID: "broken", startupID: "s4", err: errors.New("no")},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"editor.desktop", "s2.desktop"}, savedNames(t))
	assert.Empty(t, runner.cmds)
}

func TestSaveKeepsDesktopSuffixOnce(t *testing.T) {
	s, _ := setup(t)

	err := s.Save([]Client{
		&fakeClient{appID: "panel.desktop", startupID: "s1"},
		&fakeClient{appID: "panel", startupID: "s2"},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"panel.desktop", "s2.desktop"}, savedNames(t))
}

func TestSaveRunsDiscardForDroppedEntries(t *testing.T) {
	s, runner := setup(t)

	require.NoError(t, s.Save([]Client{
		&fakeClient{appID: "a", startupID: "1", discard: "rm a"},
		&fakeClient{appID: "b", startupID: "2", discard: "rm b"},
	}))
	assert.Empty(t, runner.cmds)

	require.NoError(t, s.Save([]Client{
		&fakeClient{appID: "a", startupID: "1", discard: "rm a"},
	}))
	assert.Equal(t, []string{"rm b"}, runner.cmds)
	assert.Equal(t, []string{"a.desktop"}, savedNames(t))

	_, err := os.Stat(filepath.Join(filepath.Dir(sessiondirs.SavedSessionDir()), "saved-session.new"))
	assert.True(t, os.IsNotExist(err))
}

func TestClear(t *testing.T) {
	s, runner := setup(t)

	require.NoError(t, s.Save([]Client{
		&fakeClient{appID: "a", startupID: "1", discard: "rm a"},
		&fakeClient{appID: "b", startupID: "2"},
	}))
	require.NoError(t, s.Clear())
	assert.Equal(t, []string{"rm a"}, runner.cmds)
	assert.Empty(t, savedNames(t))
}

func TestClearWithoutSavedSession(t *testing.T) {
	s, runner := setup(t)
	assert.NoError(t, s.Clear())
	assert.Empty(t, runner.cmds)
}
