// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package app

import (
	"errors"

	"golang.org/x/xerrors"
)

var (
	ErrRestartLimit = errors.New("component tried to restart too many times")
	ErrNotRunning   = errors.New("not running")
)

type StartFailure struct {
	AppID string
	Err   error
}

func (e *StartFailure) Error() string {
	return "unable to start " + e.AppID + ": " + e.Err.Error()
}

func (e *StartFailure) Unwrap() error {
	return e.Err
}

type StopFailure struct {
	AppID string
	Err   error
}

func (e *StopFailure) Error() string {
	return "unable to stop " + e.AppID + ": " + e.Err.Error()
}

func (e *StopFailure) Unwrap() error {
	return e.Err
}

func startFailure(appID string, format string, args ...interface{}) error {
	return &StartFailure{AppID: appID, Err: xerrors.Errorf(format, args...)}
}
