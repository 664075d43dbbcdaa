// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package dconfig

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
)

func TestToStrings(t *testing.T) {
	def := []string{"def"}
	assert.Equal(t, []string{"a", "b"}, toStrings([]string{"a", "b"}, def))
	assert.Equal(t, []string{"a"}, toStrings([]dbus.Variant{dbus.MakeVariant("a")}, def))
	assert.Equal(t, []string{"x"}, toStrings([]interface{}{"x"}, def))
	assert.Equal(t, def, toStrings([]dbus.Variant{dbus.MakeVariant(1)}, def))
	assert.Equal(t, def, toStrings(42, def))
}

func TestNilDConfigDefaults(t *testing.T) {
	var d *DConfig
	assert.True(t, d.Bool("autoSaveSession", true))
	assert.Equal(t, []string{"x"}, d.Strings("autostartBlacklist", []string{"x"}))
	assert.Error(t, d.SetValue("k", true))
	d.ConnectChanged("k", func(interface{}) {})
	d.Destroy()
}
