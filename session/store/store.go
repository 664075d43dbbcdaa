// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package store is the keyed collection the session manager keeps its
// clients, inhibitors and applications in.
package store

import (
	"sync"

	"github.com/linuxdeepin/go-lib/log"
)

var logger = log.NewLogger("dde-session-manager/store")

type EventType int

const (
	EventAdded EventType = iota
	EventRemoved
)

func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	}
	return "unknown"
}

type Handler func(ev EventType, id string)

type Store[T any] struct {
	name     string
	mu       sync.Mutex
	items    map[string]T
	locked   bool
	handlers map[int]Handler
	nextHID  int
}

func New[T any](name string) *Store[T] {
	return &Store[T]{
		name:     name,
		items:    make(map[string]T),
		handlers: make(map[int]Handler),
	}
}

// Connect registers a handler for added and removed notifications and
// returns an id usable with Disconnect.
func (s *Store[T]) Connect(handler Handler) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHID++
	s.handlers[s.nextHID] = handler
	return s.nextHID
}

func (s *Store[T]) Disconnect(handlerID int) {
	s.mu.Lock()
	delete(s.handlers, handlerID)
	s.mu.Unlock()
}

func (s *Store[T]) emit(ev EventType, id string) {
	s.mu.Lock()
	handlers := make([]Handler, 0, len(s.handlers))
	for i := 1; i <= s.nextHID; i++ {
		if h, ok := s.handlers[i]; ok {
			handlers = append(handlers, h)
		}
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(ev, id)
	}
}

// Add fails when the store is locked or the id is already present.
func (s *Store[T]) Add(id string, item T) bool {
	s.mu.Lock()
	if s.locked {
		s.mu.Unlock()
		logger.Warningf("%s: unable to add %s, store is locked", s.name, id)
		return false
	}
	if _, ok := s.items[id]; ok {
		s.mu.Unlock()
		logger.Warningf("%s: %s is already present", s.name, id)
		return false
	}
	s.items[id] = item
	s.mu.Unlock()

	logger.Debugf("%s: added %s", s.name, id)
	s.emit(EventAdded, id)
	return true
}

func (s *Store[T]) Remove(id string) bool {
	s.mu.Lock()
	_, ok := s.items[id]
	if ok {
		delete(s.items, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	logger.Debugf("%s: removed %s", s.name, id)
	s.emit(EventRemoved, id)
	return true
}

func (s *Store[T]) Lookup(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	return item, ok
}

func (s *Store[T]) snapshot() ([]string, []T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.items))
	items := make([]T, 0, len(s.items))
	for id, item := range s.items {
		ids = append(ids, id)
		items = append(items, item)
	}
	return ids, items
}

// Find returns the first item the predicate accepts, the order is undefined.
func (s *Store[T]) Find(pred func(id string, item T) bool) (T, bool) {
	ids, items := s.snapshot()
	for i, id := range ids {
		if pred(id, items[i]) {
			return items[i], true
		}
	}
	var zero T
	return zero, false
}

// Foreach stops when fn returns false.
func (s *Store[T]) Foreach(fn func(id string, item T) bool) {
	ids, items := s.snapshot()
	for i, id := range ids {
		if !fn(id, items[i]) {
			return
		}
	}
}

// ForeachRemove removes every item the predicate accepts. Removed is
// emitted for each of them once the whole pass is done.
func (s *Store[T]) ForeachRemove(pred func(id string, item T) bool) int {
	ids, items := s.snapshot()
	var matched []string
	for i, id := range ids {
		if pred(id, items[i]) {
			matched = append(matched, id)
		}
	}

	var removed []string
	s.mu.Lock()
	for _, id := range matched {
		if _, ok := s.items[id]; ok {
			delete(s.items, id)
			removed = append(removed, id)
		}
	}
	s.mu.Unlock()

	for _, id := range removed {
		logger.Debugf("%s: removed %s", s.name, id)
		s.emit(EventRemoved, id)
	}
	return len(removed)
}

func (s *Store[T]) Clear() {
	s.ForeachRemove(func(string, T) bool { return true })
}

func (s *Store[T]) SetLocked(locked bool) {
	s.mu.Lock()
	s.locked = locked
	s.mu.Unlock()
}

func (s *Store[T]) IsLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

func (s *Store[T]) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store[T]) Items() []T {
	_, items := s.snapshot()
	return items
}
