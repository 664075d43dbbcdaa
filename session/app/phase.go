// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package app

type Phase int32

const (
	PhaseStartup Phase = iota
	PhaseEarlyInitialization
	PhasePreDisplayServer
	PhaseDisplayServer
	PhaseInitialization
	PhaseWindowManager
	PhasePanel
	PhaseDesktop
	PhaseApplication
	PhaseRunning
	PhaseQueryEndSession
	PhaseEndSession
	PhaseExit
)

var phaseNames = []string{
	"Startup",
	"EarlyInitialization",
	"PreDisplayServer",
	"DisplayServer",
	"Initialization",
	"WindowManager",
	"Panel",
	"Desktop",
	"Application",
	"Running",
	"QueryEndSession",
	"EndSession",
	"Exit",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "Unknown"
	}
	return phaseNames[p]
}

// IsStartup reports whether p is one of the phases apps are started in.
func (p Phase) IsStartup() bool {
	return p >= PhaseEarlyInitialization && p <= PhaseApplication
}

// ParsePhase maps the X-GNOME-Autostart-Phase value, anything unknown is
// the application phase.
func ParsePhase(s string) Phase {
	for i := PhaseEarlyInitialization; i < PhaseApplication; i++ {
		if phaseNames[i] == s {
			return i
		}
	}
	return PhaseApplication
}
