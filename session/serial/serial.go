// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package serial hands out the numbers used in client, inhibitor and
// application object paths.
package serial

import (
	"math"
	"sync"
)

// Generator yields 1, 2, 3 ... and wraps back to 1 once the positive
// int32 range is used up, so 0 and negative values never appear.
type Generator struct {
	mu   sync.Mutex
	next uint32
}

func (g *Generator) Next() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.next == 0 {
		g.next = 1
	}
	v := g.next
	if v >= math.MaxInt32 {
		g.next = 1
	} else {
		g.next = v + 1
	}
	return v
}

// Reset sets the value the next call returns, used by tests.
func (g *Generator) Reset(next uint32) {
	g.mu.Lock()
	g.next = next
	g.mu.Unlock()
}
