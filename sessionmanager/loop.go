// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sessionmanager

import (
	"sync"
)

// eventLoop runs every state transition of the manager on one goroutine.
// post never blocks, the queue grows as needed.
type eventLoop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	started bool
	stopped bool
	done    chan struct{}
}

func newEventLoop() *eventLoop {
	l := &eventLoop{
		done: make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *eventLoop) start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.stopped {
		return
	}
	l.started = true
	go l.run()
}

func (l *eventLoop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.stopped {
			l.cond.Wait()
		}
		if l.stopped {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}

func (l *eventLoop) post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		logger.Debug("event loop stopped, drop event")
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.cond.Signal()
}

// call posts fn and waits until it has run. It must not be used from the
// loop goroutine. It returns false without running fn when the loop is not
// running.
func (l *eventLoop) call(fn func()) bool {
	ch := make(chan struct{})
	l.mu.Lock()
	if !l.started || l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, func() {
		defer close(ch)
		fn()
	})
	l.mu.Unlock()
	l.cond.Signal()

	select {
	case <-ch:
		return true
	case <-l.done:
		return false
	}
}

// flush returns once everything posted before it has run.
func (l *eventLoop) flush() {
	l.call(func() {})
}

func (l *eventLoop) stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.queue = nil
	started := l.started
	l.mu.Unlock()
	l.cond.Broadcast()
	if started {
		<-l.done
	}
}
