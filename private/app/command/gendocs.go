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

package command

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

// NewGendocs returns a hidden command that writes the markdown reference of
// the whole command tree to a directory.
func NewGendocs(pather Pather) *cobra.Command {
	return &cobra.Command{
		Use:     "gendocs <directory>",
		Short:   "Generate the command reference",
		Args:    cobra.ExactArgs(1),
		Hidden:  true,
		Example: fmt.Sprintf("  %s gendocs /tmp/docs", pather.CommandPath()),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			root.DisableAutoGenTag = true
			if err := os.MkdirAll(args[0], 0o755); err != nil {
				return fmt.Errorf("creating directory: %w", err)
			}
			prepend := func(file string) string {
				name := strings.TrimSuffix(filepath.Base(file), ".md")
				return fmt.Sprintf("---\ntitle: %s\n---\n\n", strings.ReplaceAll(name, "_", " "))
			}
			link := func(name string) string { return name }
			if err := doc.GenMarkdownTreeCustom(root, args[0], prepend, link); err != nil {
				return fmt.Errorf("generating documentation: %w", err)
			}
			return nil
		},
	}
}
