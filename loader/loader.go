// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package loader

import (
	"fmt"
	"sync"
	"time"

	"github.com/linuxdeepin/go-lib/dbusutil"
	"github.com/linuxdeepin/go-lib/log"
)

type EnableFlag int

const (
	EnableFlagNone EnableFlag = 1 << iota
	EnableFlagIgnoreMissingModule
	EnableFlagForceStart
)

func (flags EnableFlag) HasFlag(flag EnableFlag) bool {
	return flags&flag != 0
}

const (
	ErrorNoDependencies int = iota
	ErrorCircleDependencies
	ErrorMissingModule
	ErrorInternalError
	ErrorConflict
)

type EnableError struct {
	ModuleName string
	Code       int
	detail     string
}

func (e *EnableError) Error() string {
	switch e.Code {
	case ErrorNoDependencies:
		return fmt.Sprintf("%s's dependencies is not meet, %s is need", e.ModuleName, e.detail)
	case ErrorCircleDependencies:
		return "dependency circle"
	case ErrorMissingModule:
		return fmt.Sprintf("%s is missing", e.ModuleName)
	case ErrorInternalError:
		return fmt.Sprintf("%s started failed: %s", e.ModuleName, e.detail)
	case ErrorConflict:
		return fmt.Sprintf("trying to enable disabled module(%s)", e.ModuleName)
	}
	return fmt.Sprintf("unknown enable error %d for %s", e.Code, e.ModuleName)
}

type Loader struct {
	modules Modules
	log     *log.Logger
	lock    sync.Mutex
	service *dbusutil.Service
	// enable order of the last EnableModules, stopped in reverse
	order []string
}

func newLoader() *Loader {
	return &Loader{
		modules: Modules{},
		log:     log.NewLogger("dde-session-manager/loader"),
	}
}

func (l *Loader) SetLogLevel(pri log.Priority) {
	l.log.SetLogLevel(pri)

	l.lock.Lock()
	defer l.lock.Unlock()
	for _, module := range l.modules {
		module.SetLogLevel(pri)
	}
}

func (l *Loader) AddModule(m Module) {
	l.lock.Lock()
	defer l.lock.Unlock()
	name := m.Name()
	if _, exist := l.modules[name]; exist {
		l.log.Debug("Register", name, "is already registered")
		return
	}
	l.log.Debug("Register module:", name)
	l.modules[name] = m
}

func (l *Loader) DeleteModule(name string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	delete(l.modules, name)
}

func (l *Loader) List() []Module {
	l.lock.Lock()
	defer l.lock.Unlock()
	modules := make([]Module, 0, len(l.modules))
	for _, m := range l.modules {
		modules = append(modules, m)
	}
	return modules
}

func (l *Loader) GetModule(name string) Module {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.modules[name]
}

func (l *Loader) waitDependencies(module Module) {
	for _, dependencyName := range module.GetDependencies() {
		if dep := l.modules[dependencyName]; dep != nil {
			dep.WaitEnable()
		}
	}
}

func (l *Loader) EnableModules(enablingModules []string, disableModules []string, flag EnableFlag) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	startTime := time.Now()
	builder := NewDAGBuilder(l, enablingModules, disableModules, flag)
	dag, err := builder.Execute()
	if err != nil {
		return err
	}
	l.log.Infof("build dag done, cost %s", time.Since(startTime))

	nodes, ok := dag.TopologicalDag()
	if !ok {
		return &EnableError{Code: ErrorCircleDependencies}
	}
	l.log.Infof("topo sort done, cost add up to %s", time.Since(startTime))

	var enabling []Module
	for _, node := range nodes {
		module := l.modules[node.ID]
		if module == nil {
			// missing module ignored by the builder
			continue
		}
		enabling = append(enabling, module)
		l.order = append(l.order, module.Name())
	}

	var wg sync.WaitGroup
	for _, module := range enabling {
		wg.Add(1)
		go func(module Module) {
			defer wg.Done()
			name := module.Name()
			begin := time.Now()
			l.waitDependencies(module)
			l.log.Info("module", name, "wait done, cost", time.Since(begin))

			err := module.Enable(true)
			if err != nil {
				l.log.Errorf("enable module %s failed: %s, cost %s", name, err, time.Since(begin))
				return
			}
			l.log.Infof("enable module %s done cost %s", name, time.Since(begin))
		}(module)
	}
	wg.Wait()

	l.log.Infof("enable modules done, cost add up to %s", time.Since(startTime))
	return nil
}

// StopAll disables the enabled modules, dependents before their
// dependencies.
func (l *Loader) StopAll() {
	l.lock.Lock()
	order := l.order
	l.order = nil
	l.lock.Unlock()

	stopped := make(map[string]bool)
	stop := func(module Module) {
		name := module.Name()
		if stopped[name] || !module.IsEnable() {
			return
		}
		stopped[name] = true
		if err := module.Enable(false); err != nil {
			l.log.Warningf("disable module %s failed: %v", name, err)
		}
	}
	for i := len(order) - 1; i >= 0; i-- {
		if module := l.GetModule(order[i]); module != nil {
			stop(module)
		}
	}
	for _, module := range l.List() {
		stop(module)
	}
}
