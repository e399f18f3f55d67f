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
	"errors"
	"net/http"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/oklog/run"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eschercloudai/site-agent/pkg/config"
	"github.com/eschercloudai/site-agent/pkg/constants"
	"github.com/eschercloudai/site-agent/pkg/server"
	"github.com/eschercloudai/site-agent/pkg/supervisor"
)

// runOptions are the flags for the run command.
type runOptions struct {
	configPath string
	logLevel   string

	server server.Options
}

func (o *runOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.configPath, "config", "/etc/site-agent/config.yaml", "Path to the agent configuration file.")
	cmd.Flags().StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn or error.")

	o.server.AddFlags(cmd.Flags())
}

// logger builds the process wide structured logger.
func (o *runOptions) logger() (logr.Logger, error) {
	level, err := zap.ParseAtomicLevel(o.logLevel)
	if err != nil {
		return logr.Logger{}, err
	}

	config := zap.NewProductionConfig()
	config.Level = level

	zapLogger, err := config.Build()
	if err != nil {
		return logr.Logger{}, err
	}

	return zapr.NewLogger(zapLogger), nil
}

func newRunCommand() *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent.",
		Long: `Run the agent.

Starts the processing lanes for every configured offering plus a small
HTTP endpoint serving health probes and Prometheus metrics.  The
process runs until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd.Context())
		},
	}

	o.addFlags(cmd)

	return cmd
}

func (o *runOptions) run(ctx context.Context) error {
	log, err := o.logger()
	if err != nil {
		return err
	}

	log.Info("service starting", "application", constants.Application, "version", constants.Version, "revision", constants.Revision)

	file, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	srv := &server.Server{
		Options: o.server,
		Log:     log,
	}

	if err := srv.SetupOpenTelemetry(ctx); err != nil {
		return err
	}

	asm, err := assemble(file)
	if err != nil {
		return err
	}

	defer asm.Close()

	var group run.Group

	group.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	httpServer := srv.GetServer()

	group.Add(
		func() error {
			log.Info("listening", "address", httpServer.Addr)

			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			return nil
		},
		func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			//nolint:contextcheck
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.Error(err, "server shutdown failed")
			}
		},
	)

	superCtx, cancel := context.WithCancel(logr.NewContext(ctx, log))

	group.Add(
		func() error {
			srv.MarkReady()

			return supervisor.New(asm.Entries()...).Run(superCtx)
		},
		func(error) {
			cancel()
		},
	)

	err = group.Run()

	var signalError run.SignalError

	if errors.As(err, &signalError) {
		log.Info("shutting down", "signal", signalError.Signal.String())

		return nil
	}

	return err
}
