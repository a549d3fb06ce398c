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

package env_test

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfab/switchd/private/config"
	"github.com/netfab/switchd/private/env"
)

func TestGeneralValidate(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	tests := map[string]struct {
		cfg   env.General
		valid bool
	}{
		"no id":          {cfg: env.General{}},
		"no config dir":  {cfg: env.General{ID: "sw1"}, valid: true},
		"config dir":     {cfg: env.General{ID: "sw1", ConfigDir: dir}, valid: true},
		"missing dir":    {cfg: env.General{ID: "sw1", ConfigDir: filepath.Join(dir, "x")}},
		"file as config": {cfg: env.General{ID: "sw1", ConfigDir: file}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSamples(t *testing.T) {
	var buf bytes.Buffer
	config.WriteSample(&buf, nil, config.CtxMap{config.ID: "sw1"},
		&env.General{}, &env.Metrics{}, &env.Tracing{})

	var cfg struct {
		General env.General `toml:"general"`
		Metrics env.Metrics `toml:"metrics"`
		Tracing env.Tracing `toml:"tracing"`
	}
	require.NoError(t, toml.NewDecoder(&buf).DisallowUnknownFields().Decode(&cfg))
	assert.Equal(t, "sw1", cfg.General.ID)
	assert.Equal(t, "/etc/switchd/switch.yml", cfg.General.SwitchConfig())
	assert.Empty(t, cfg.Metrics.Prometheus)

	var defaults env.Tracing
	defaults.InitDefaults()
	assert.Equal(t, defaults, cfg.Tracing)
}

func TestNewTracerDisabled(t *testing.T) {
	cfg := env.Tracing{}
	cfg.InitDefaults()
	tracer, closer, err := cfg.NewTracer("sw1")
	require.NoError(t, err)
	assert.NotNil(t, tracer)
	assert.NoError(t, closer.Close())
}

func TestServePrometheus(t *testing.T) {
	assert.NoError(t, (&env.Metrics{}).ServePrometheus(context.Background()))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- (&env.Metrics{Prometheus: addr}).ServePrometheus(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
