// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sessionmanager

import (
	"github.com/linuxdeepin/go-lib/dbusutil"
)

func (v *Manager) GetExportedMethods() dbusutil.ExportedMethods {
	return dbusutil.ExportedMethods{
		{
			Name:    "CanShutdown",
			Fn:      v.CanShutdown,
			OutArgs: []string{"canShutdown"},
		},
		{
			Name:    "GetClients",
			Fn:      v.GetClients,
			OutArgs: []string{"clients"},
		},
		{
			Name:    "GetInhibitors",
			Fn:      v.GetInhibitors,
			OutArgs: []string{"inhibitors"},
		},
		{
			Name:    "Inhibit",
			Fn:      v.Inhibit,
			InArgs:  []string{"appId", "toplevelXid", "reason", "flags"},
			OutArgs: []string{"cookie"},
		},
		{
			Name:   "InitializationError",
			Fn:     v.InitializationError,
			InArgs: []string{"message", "fatal"},
		},
		{
			Name:    "IsAutostartConditionHandled",
			Fn:      v.IsAutostartConditionHandled,
			InArgs:  []string{"condition"},
			OutArgs: []string{"handled"},
		},
		{
			Name:    "IsInhibited",
			Fn:      v.IsInhibited,
			InArgs:  []string{"flags"},
			OutArgs: []string{"isInhibited"},
		},
		{
			Name:    "IsSessionRunning",
			Fn:      v.IsSessionRunning,
			OutArgs: []string{"running"},
		},
		{
			Name:   "Logout",
			Fn:     v.Logout,
			InArgs: []string{"mode"},
		},
		{
			Name: "Reboot",
			Fn:   v.Reboot,
		},
		{
			Name:    "RegisterClient",
			Fn:      v.RegisterClient,
			InArgs:  []string{"appId", "clientStartupId"},
			OutArgs: []string{"clientId"},
		},
		{
			Name: "RequestReboot",
			Fn:   v.RequestReboot,
		},
		{
			Name: "RequestShutdown",
			Fn:   v.RequestShutdown,
		},
		{
			Name:   "Setenv",
			Fn:     v.Setenv,
			InArgs: []string{"variable", "value"},
		},
		{
			Name: "Shutdown",
			Fn:   v.Shutdown,
		},
		{
			Name:   "Uninhibit",
			Fn:     v.Uninhibit,
			InArgs: []string{"inhibitCookie"},
		},
		{
			Name:   "UnregisterClient",
			Fn:     v.UnregisterClient,
			InArgs: []string{"clientId"},
		},
	}
}
