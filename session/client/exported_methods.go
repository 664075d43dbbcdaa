// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"github.com/linuxdeepin/go-lib/dbusutil"
)

func (v *DBusClient) GetExportedMethods() dbusutil.ExportedMethods {
	return dbusutil.ExportedMethods{
		{
			Name:    "GetAppId",
			Fn:      v.GetAppId,
			OutArgs: []string{"appId"},
		},
		{
			Name:    "GetRestartStyleHint",
			Fn:      v.GetRestartStyleHint,
			OutArgs: []string{"hint"},
		},
		{
			Name:    "GetStartupId",
			Fn:      v.GetStartupId,
			OutArgs: []string{"startupId"},
		},
		{
			Name:    "GetStatus",
			Fn:      v.GetStatus,
			OutArgs: []string{"status"},
		},
		{
			Name:    "GetUnixProcessId",
			Fn:      v.GetUnixProcessId,
			OutArgs: []string{"pid"},
		},
		{
			Name: "Stop",
			Fn:   v.StopClient,
		},
	}
}

func (v *clientPrivate) GetExportedMethods() dbusutil.ExportedMethods {
	return dbusutil.ExportedMethods{
		{
			Name:   "EndSessionResponse",
			Fn:     v.EndSessionResponse,
			InArgs: []string{"isOk", "reason"},
		},
	}
}
