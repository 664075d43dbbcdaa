// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package dconfig

import "github.com/linuxdeepin/go-lib/log"

var logger = log.NewLogger("dde-session-manager/dconfig")
