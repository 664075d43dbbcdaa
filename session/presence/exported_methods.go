// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package presence

import (
	"github.com/linuxdeepin/go-lib/dbusutil"
)

func (v *Presence) GetExportedMethods() dbusutil.ExportedMethods {
	return dbusutil.ExportedMethods{
		{
			Name:   "SetStatus",
			Fn:     v.SetStatus,
			InArgs: []string{"status"},
		},
		{
			Name:   "SetStatusText",
			Fn:     v.SetStatusText,
			InArgs: []string{"text"},
		},
	}
}
