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

package update

import (
	"context"

	"github.com/netfab/switchd/agent/state"
	"github.com/netfab/switchd/pkg/log"
)

// ChangeLogger is an Observer that logs the changes of every commit per
// category at debug level.
type ChangeLogger struct {
	// Logger defaults to the logger of the context.
	Logger log.Logger
}

func (l ChangeLogger) StateUpdated(ctx context.Context, delta *state.StateDelta) {
	logger := l.Logger
	if logger == nil {
		logger = log.FromCtx(ctx)
	}
	if !logger.Enabled(log.DebugLevel) {
		return
	}
	gen := delta.NewState().Generation()
	for _, c := range delta.Summary() {
		logger.Debug("State changed", "generation", gen, "category", c.Category,
			"added", c.Added, "changed", c.Changed, "removed", c.Removed)
	}
}
