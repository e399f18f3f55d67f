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

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/eschercloudai/site-agent/pkg/config"
)

// diagnoseOptions are the flags for the diagnose command.
type diagnoseOptions struct {
	configPath string
	timeout    time.Duration
}

func newDiagnoseCommand() *cobra.Command {
	o := &diagnoseOptions{}

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Check backend connectivity for every offering.",
		Long: `Check backend connectivity for every offering.

Loads the configuration, connects each offering's backend and prints
its health report.  Exits non-zero if any offering is unhealthy, so
this doubles as a deployment smoke test.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.diagnose(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&o.configPath, "config", "/etc/site-agent/config.yaml", "Path to the agent configuration file.")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 30*time.Second, "Per-offering diagnostic deadline.")

	return cmd
}

func (o *diagnoseOptions) diagnose(ctx context.Context) error {
	file, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	asm, err := assemble(file)
	if err != nil {
		return err
	}

	defer asm.Close()

	var result *multierror.Error

	for _, r := range asm.runtimes {
		offering := r.offering

		fmt.Printf("offering %s (%s):\n", offering.Name, offering.UUID)

		offeringCtx, cancel := context.WithTimeout(ctx, o.timeout)

		if err := offering.Driver.Ping(offeringCtx); err != nil {
			fmt.Printf("  backend unreachable: %v\n", err)

			result = multierror.Append(result, fmt.Errorf("offering %s: %w", offering.Name, err))

			cancel()

			continue
		}

		report, err := offering.Driver.Diagnostics(offeringCtx)

		cancel()

		if err != nil {
			fmt.Printf("  diagnostics failed: %v\n", err)

			result = multierror.Append(result, fmt.Errorf("offering %s: %w", offering.Name, err))

			continue
		}

		fmt.Printf("  backend ok\n%s\n", report)
	}

	return result.ErrorOrNil()
}
