// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sessionmanager

import (
	"github.com/linuxdeepin/dde-session-manager/session/inhibitor"
)

type Action int

const (
	ActionNone Action = iota
	ActionLogout
	ActionShutdown
	ActionReboot
	ActionSuspend
	ActionHibernate
	ActionSwitchUser
)

func (a Action) String() string {
	switch a {
	case ActionLogout:
		return "logout"
	case ActionShutdown:
		return "shutdown"
	case ActionReboot:
		return "reboot"
	case ActionSuspend:
		return "suspend"
	case ActionHibernate:
		return "hibernate"
	case ActionSwitchUser:
		return "switch-user"
	}
	return "none"
}

// Response is what the user picked in a dialog. For the inhibitor dialog
// Action is the action that was shown.
type Response struct {
	Action   Action
	Canceled bool
}

// Dialog shows the confirmation and failure dialogs. respond may be called
// from any goroutine, at most once per Show call.
type Dialog interface {
	ShowLogout(respond func(Response))
	// ShowShutdown offers the power actions with preferred selected.
	ShowShutdown(preferred Action, respond func(Response))
	ShowInhibitors(action Action, inhibitors []*inhibitor.Inhibitor, respond func(Response))
	ShowFailure(appName, reason string)
	Close()
}

// XSMPServer accepts XSMP connections and hands them to
// Manager.NewXSMPConnection.
type XSMPServer interface {
	Start() error
	Stop()
}

// headlessDialog is used when no dialog frontend is available. Logout and
// shutdown prompts are confirmed with the requested action, inhibitors are
// only logged so the confirmation timeout decides.
type headlessDialog struct{}

func (d *headlessDialog) ShowLogout(respond func(Response)) {
	respond(Response{Action: ActionLogout})
}

func (d *headlessDialog) ShowShutdown(preferred Action, respond func(Response)) {
	respond(Response{Action: preferred})
}

func (d *headlessDialog) ShowInhibitors(action Action, inhibitors []*inhibitor.Inhibitor, respond func(Response)) {
	for _, inh := range inhibitors {
		logger.Infof("%s inhibited by %s: %s", action, inh.AppID(), inh.Reason())
	}
}

func (d *headlessDialog) ShowFailure(appName, reason string) {
	logger.Warningf("%s failed: %s", appName, reason)
}

func (d *headlessDialog) Close() {}
