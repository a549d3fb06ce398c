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

package config_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfab/switchd/private/config"
)

type portSection struct {
	config.NoDefaulter
	Speed int `toml:"speed"`
}

func (s *portSection) Validate() error {
	if s.Speed < 0 {
		return assert.AnError
	}
	return nil
}

func (s *portSection) Sample(dst io.Writer, _ config.Path, ctx config.CtxMap) {
	config.WriteString(dst, "# Port of "+ctx[config.ID]+"\nspeed = 100000\n")
}

func (s *portSection) ConfigName() string { return "port" }

func TestWriteSample(t *testing.T) {
	var buf bytes.Buffer
	config.WriteSample(&buf, config.Path{"switch"}, config.CtxMap{config.ID: "sw1"},
		&portSection{})
	assert.Equal(t, "\n[switch.port]\n    # Port of sw1\n    speed = 100000\n", buf.String())

	var decoded struct {
		Switch struct {
			Port portSection `toml:"port"`
		} `toml:"switch"`
	}
	require.NoError(t, toml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 100000, decoded.Switch.Port.Speed)
}

func TestValidateAll(t *testing.T) {
	assert.NoError(t, config.ValidateAll(&portSection{Speed: 1}, config.NoValidator{}))
	assert.ErrorIs(t, config.ValidateAll(&portSection{Speed: -1}), assert.AnError)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}

	var cfg portSection
	require.NoError(t, config.LoadFile(write("ok.toml", "speed = 25000\n"), &cfg))
	assert.Equal(t, 25000, cfg.Speed)

	assert.Error(t, config.LoadFile(write("unknown.toml", "sped = 1\n"), &cfg))
	assert.Error(t, config.LoadFile(filepath.Join(dir, "missing.toml"), &cfg))
}

func TestPathExtend(t *testing.T) {
	base := make(config.Path, 1, 4)
	base[0] = "a"
	b := base.Extend("b")
	c := base.Extend("c")
	assert.Equal(t, config.Path{"a", "b"}, b)
	assert.Equal(t, config.Path{"a", "c"}, c)
}
