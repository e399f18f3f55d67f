/*
Copyright 2024 EscherCloud.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cmd assembles the agent's command hierarchy.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/eschercloudai/site-agent/pkg/constants"
)

// newRootCommand returns the root command and all its subordinates.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   constants.Application,
		Short: "Marketplace site agent.",
		Long: `Marketplace site agent.

The agent connects a site's resource management backend to the
marketplace control plane: it executes orders, keeps team membership
and limits converged, and reports usage for billing.  All configuration
lives in a single YAML file, see the run command for details.`,
	}

	commands := []*cobra.Command{
		newRunCommand(),
		newDiagnoseCommand(),
		newVersionCommand(),
	}

	cmd.AddCommand(commands...)

	return cmd
}

// Generate creates a hierarchy of cobra commands for the application.  It can
// also be used to walk the structure and generate HTML documentation for example.
func Generate() *cobra.Command {
	return newRootCommand()
}
