// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sessionmanager

import "fmt"

const dbusErrorPrefix = dbusInterface + ".Error."

type ErrorKind int

const (
	ErrGeneral ErrorKind = iota
	ErrNotInInitialization
	ErrNotInRunning
	ErrAlreadyRegistered
	ErrNotRegistered
	ErrInvalidOption
	ErrLockedDown
)

var errorKindNames = map[ErrorKind]string{
	ErrGeneral:             "General",
	ErrNotInInitialization: "NotInInitialization",
	ErrNotInRunning:        "NotInRunning",
	ErrAlreadyRegistered:   "AlreadyRegistered",
	ErrNotRegistered:       "NotRegistered",
	ErrInvalidOption:       "InvalidOption",
	ErrLockedDown:          "LockedDown",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is returned by the manager's bus methods. Name makes
// dbusutil.ToError use a dedicated error name per kind.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Name() string {
	return dbusErrorPrefix + e.Kind.String()
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}
