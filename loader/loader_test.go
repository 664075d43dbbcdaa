// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package loader

import (
	"strings"
	"sync"
	"testing"

	"github.com/linuxdeepin/go-lib/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testModule struct {
	*ModuleBase
	dependencies string
	started      *[]string
	mu           *sync.Mutex
}

func newTestModule(name, dependencies string, started *[]string, mu *sync.Mutex) *testModule {
	m := &testModule{
		dependencies: dependencies,
		started:      started,
		mu:           mu,
	}
	m.ModuleBase = NewModuleBase(name, m, log.NewLogger(name))
	return m
}

func (m *testModule) GetDependencies() []string {
	if m.dependencies == "" {
		return nil
	}
	return strings.Split(m.dependencies, " ")
}

func (m *testModule) Start() error {
	m.mu.Lock()
	*m.started = append(*m.started, m.Name())
	m.mu.Unlock()
	return nil
}

func (m *testModule) Stop() error {
	m.mu.Lock()
	*m.started = append(*m.started, "-"+m.Name())
	m.mu.Unlock()
	return nil
}

func position(list []string, name string) int {
	for i, v := range list {
		if v == name {
			return i
		}
	}
	return -1
}

func Test_EnableModulesOrder(t *testing.T) {
	var started []string
	var mu sync.Mutex
	l := newLoader()
	l.AddModule(newTestModule("sessionmanager", "sessionwatcher", &started, &mu))
	l.AddModule(newTestModule("sessionwatcher", "", &started, &mu))

	err := l.EnableModules([]string{"sessionmanager"}, nil, EnableFlagNone)
	require.NoError(t, err)
	require.Len(t, started, 2)
	assert.True(t, position(started, "sessionwatcher") < position(started, "sessionmanager"))
	assert.True(t, l.GetModule("sessionmanager").IsEnable())
}

func Test_EnableModulesErrors(t *testing.T) {
	var started []string
	var mu sync.Mutex

	l := newLoader()
	for i, dep := range []string{"2", "3", "1"} {
		name := string(rune('1' + i))
		l.AddModule(newTestModule(name, dep, &started, &mu))
	}
	err := l.EnableModules([]string{"1"}, nil, EnableFlagNone)
	assert.Equal(t, &EnableError{Code: ErrorCircleDependencies}, err)

	l = newLoader()
	l.AddModule(newTestModule("a", "missing", &started, &mu))
	err = l.EnableModules([]string{"a"}, nil, EnableFlagNone)
	assert.Equal(t, &EnableError{ModuleName: "missing", Code: ErrorMissingModule}, err)

	l = newLoader()
	l.AddModule(newTestModule("a", "", &started, &mu))
	err = l.EnableModules([]string{"a"}, []string{"a"}, EnableFlagNone)
	assert.Equal(t, &EnableError{ModuleName: "a", Code: ErrorConflict}, err)
}

func Test_EnableModulesIgnoreMissing(t *testing.T) {
	var started []string
	var mu sync.Mutex
	l := newLoader()
	l.AddModule(newTestModule("a", "", &started, &mu))
	err := l.EnableModules([]string{"a", "ghost"}, nil, EnableFlagIgnoreMissingModule)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, started)
}

func Test_ModuleBaseEnableTwice(t *testing.T) {
	var started []string
	var mu sync.Mutex
	m := newTestModule("a", "", &started, &mu)
	require.NoError(t, m.Enable(true))
	assert.Error(t, m.Enable(true))
	require.NoError(t, m.Enable(false))
	assert.Error(t, m.Enable(false))

	require.NoError(t, m.Enable(true))
	m.WaitEnable()
	assert.Equal(t, []string{"a", "-a", "a"}, started)
}

func Test_StopAllReverseOrder(t *testing.T) {
	var events []string
	var mu sync.Mutex
	l := newLoader()
	l.AddModule(newTestModule("sessionmanager", "sessionwatcher", &events, &mu))
	l.AddModule(newTestModule("sessionwatcher", "", &events, &mu))
	l.AddModule(newTestModule("idle", "", &events, &mu))

	require.NoError(t, l.EnableModules([]string{"sessionmanager"}, nil, EnableFlagNone))
	l.StopAll()

	require.Len(t, events, 4)
	assert.True(t, position(events, "-sessionmanager") < position(events, "-sessionwatcher"))
	assert.Equal(t, -1, position(events, "-idle"))
	assert.False(t, l.GetModule("sessionwatcher").IsEnable())
}
