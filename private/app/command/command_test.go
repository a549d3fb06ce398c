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

package command_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfab/switchd/private/app/command"
	"github.com/netfab/switchd/private/config"
)

type sampler string

func (s sampler) Sample(dst io.Writer, _ config.Path, _ config.CtxMap) {
	config.WriteString(dst, string(s))
}

func newRoot() *cobra.Command {
	root := &cobra.Command{Use: "switchd"}
	root.AddCommand(
		command.NewSample(root, sampler("[general]\nid = \"sw1\"\n")),
		command.NewVersion(root),
		command.NewGendocs(root),
	)
	return root
}

func run(t *testing.T, args ...string) string {
	root := newRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestSample(t *testing.T) {
	assert.Equal(t, "[general]\nid = \"sw1\"\n", run(t, "sample"))
}

func TestVersion(t *testing.T) {
	assert.NotEmpty(t, run(t, "version"))
}

func TestGendocs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "docs")
	run(t, "gendocs", dir)
	for _, name := range []string{"switchd.md", "switchd_sample.md", "switchd_version.md"} {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Contains(t, string(raw), "---\ntitle: ")
	}
	_, err := os.Stat(filepath.Join(dir, "switchd_gendocs.md"))
	assert.True(t, os.IsNotExist(err), "hidden commands are not documented")
}
