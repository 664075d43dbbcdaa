// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package inhibitor

import (
	"github.com/linuxdeepin/go-lib/dbusutil"
)

func (v *Inhibitor) GetExportedMethods() dbusutil.ExportedMethods {
	return dbusutil.ExportedMethods{
		{
			Name:    "GetAppId",
			Fn:      v.GetAppId,
			OutArgs: []string{"appId"},
		},
		{
			Name:    "GetClientId",
			Fn:      v.GetClientId,
			OutArgs: []string{"clientId"},
		},
		{
			Name:    "GetFlags",
			Fn:      v.GetFlags,
			OutArgs: []string{"flags"},
		},
		{
			Name:    "GetReason",
			Fn:      v.GetReason,
			OutArgs: []string{"reason"},
		},
		{
			Name:    "GetToplevelXid",
			Fn:      v.GetToplevelXid,
			OutArgs: []string{"xid"},
		},
	}
}
