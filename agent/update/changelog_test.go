// Copyright 2024 Anapaya Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package update_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/netfab/switchd/agent/state"
	"github.com/netfab/switchd/agent/update"
	"github.com/netfab/switchd/pkg/log"
)

type recordingLogger struct {
	mtx     sync.Mutex
	level   log.Level
	entries [][]any
}

func (l *recordingLogger) New(...any) log.Logger { return l }
func (l *recordingLogger) Info(string, ...any)   {}
func (l *recordingLogger) Error(string, ...any)  {}

func (l *recordingLogger) Debug(msg string, ctx ...any) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.entries = append(l.entries, append([]any{msg}, ctx...))
}

func (l *recordingLogger) Enabled(lvl log.Level) bool { return lvl >= l.level }

func TestChangeLogger(t *testing.T) {
	old := state.NewSwitchState()
	old.Publish()
	next := old
	state.ModifyPorts(&next).Add(state.NewPort(state.PortFields{ID: 1, Name: "eth1/1/1"}))
	state.ModifyPorts(&next).Add(state.NewPort(state.PortFields{ID: 2, Name: "eth1/2/1"}))
	next.Publish()
	delta := state.NewStateDelta(old, next)

	l := &recordingLogger{level: log.DebugLevel}
	update.ChangeLogger{Logger: l}.StateUpdated(context.Background(), delta)
	assert.Equal(t, [][]any{{"State changed", "generation", next.Generation(),
		"category", "ports", "added", 2, "changed", 0, "removed", 0}}, l.entries)

	quiet := &recordingLogger{level: log.InfoLevel}
	update.ChangeLogger{Logger: quiet}.StateUpdated(context.Background(), delta)
	assert.Empty(t, quiet.entries)
}
