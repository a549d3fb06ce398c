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

// Package command contains the subcommands shared by the switch binaries.
package command

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/netfab/switchd/private/config"
	"github.com/netfab/switchd/private/env"
)

// Pather returns the command path of a command. *cobra.Command implements it.
type Pather interface {
	CommandPath() string
}

// NewSample returns a command that prints a sample of cfg.
func NewSample(pather Pather, cfg config.Sampler) *cobra.Command {
	return &cobra.Command{
		Use:   "sample",
		Short: "Display sample configuration file",
		Example: fmt.Sprintf("  %[1]s sample > config.toml\n  %[1]s --config config.toml",
			pather.CommandPath()),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Sample(cmd.OutOrStdout(), nil, nil)
			return nil
		},
	}
}

// NewVersion returns a command that prints the version of the binary.
func NewVersion(pather Pather) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) error {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	_, err = fmt.Fprintf(w, "%s\n%s\n", exe, env.VersionInfo())
	return err
}
