// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sessiondirs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindDesktopFile(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir2, "foo.desktop"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir1, "gnome-bar.desktop"), nil, 0644))

	assert.Equal(t, filepath.Join(dir2, "foo.desktop"), FindDesktopFile("foo", []string{dir1, dir2}))
	assert.Equal(t, filepath.Join(dir1, "gnome-bar.desktop"), FindDesktopFile("bar", []string{dir1, dir2}))
	assert.Equal(t, "", FindDesktopFile("baz", []string{dir1, dir2}))
}

func TestDesktopDirsOrder(t *testing.T) {
	cfg := t.TempDir()
	SetUserConfigDir(cfg)
	defer SetUserConfigDir("")
	SetAutostartDirs([]string{"/override"})
	defer SetAutostartDirs(nil)

	dirs := DesktopDirs(true, true)
	require.NotEmpty(t, dirs)
	assert.Equal(t, SavedSessionDir(), dirs[0])
	assert.Equal(t, "/override", dirs[1])

	dirs = DesktopDirs(true, false)
	assert.Equal(t, SavedSessionDir(), dirs[len(dirs)-1])
	assert.Contains(t, dirs, "/override")
	assert.Contains(t, dirs, filepath.Join(cfg, "autostart"))
}

func TestEmptyTmpSessionDir(t *testing.T) {
	cfg := t.TempDir()
	SetUserConfigDir(cfg)
	defer SetUserConfigDir("")

	dir, err := EmptyTmpSessionDir()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale.desktop"), nil, 0644))

	dir, err = EmptyTmpSessionDir()
	require.NoError(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDesktopFileName(t *testing.T) {
	assert.Equal(t, "panel.desktop", DesktopFileName("panel"))
	assert.Equal(t, "panel.desktop", DesktopFileName("panel.desktop"))
	assert.Equal(t, "org.example.App.desktop", DesktopFileName("org.example.App"))
	assert.Equal(t, "", DesktopFileName(""))
}
