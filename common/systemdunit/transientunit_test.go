// SPDX-FileCopyrightText: 2025 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package systemdunit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransientUnitProperties(t *testing.T) {
	u := &TransientUnit{
		UnitName:    "x.service",
		Description: "discard",
		Command:     "rm -f '/tmp/a b'",
	}
	props := u.properties()
	require.Len(t, props, 3)
	u.Environment = []string{"A=1"}
	assert.Len(t, u.properties(), 4)
}

func TestRunnerUnitNames(t *testing.T) {
	r := NewRunner(nil, "dde-session-discard")
	a := r.nextUnitName()
	b := r.nextUnitName()
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^dde-session-discard-\d+-1\.service$`, a)
}

func TestRunnerFallback(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")
	r := NewRunner(nil, "test")
	require.NoError(t, r.Run("touch "+marker, "test"))

	assert.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
}
