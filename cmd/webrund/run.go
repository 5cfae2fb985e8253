// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/webrun-dev/webrun/internal/log"
	"github.com/webrun-dev/webrun/internal/orchcheckpoint"
	"github.com/webrun-dev/webrun/internal/orchestrator"
	"github.com/webrun-dev/webrun/internal/orchmetrics"
	"github.com/webrun-dev/webrun/internal/project"
	"github.com/webrun-dev/webrun/internal/store/memory"
	"github.com/webrun-dev/webrun/internal/store/sqlite"
	"github.com/webrun-dev/webrun/internal/tabtransport"
)

func newRunCommand() *cobra.Command {
	var (
		tabWS         string
		dbPath        string
		checkpointDir string
		timeout       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <project.yaml>",
		Short: "Run a recorded project once and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tabWS == "" {
				return errors.New("--tab-ws is required: the worker-tab bridge WebSocket URL")
			}

			proj, err := project.LoadFile(args[0])
			if err != nil {
				return fmt.Errorf("loading project: %w", err)
			}

			logger := log.WithComponent(log.New(log.FromEnv()), "run")

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			transport, err := tabtransport.Dial(ctx, tabtransport.Config{URL: tabWS, Logger: logger})
			if err != nil {
				return fmt.Errorf("dialing worker-tab bridge: %w", err)
			}
			defer transport.Close()

			opts := []orchestrator.Option{
				orchestrator.WithLogger(logger),
				orchestrator.WithMetrics(orchmetrics.New(nil)),
			}

			if dbPath != "" {
				st, err := sqlite.New(sqlite.Config{Path: dbPath, WAL: true})
				if err != nil {
					return fmt.Errorf("opening store: %w", err)
				}
				defer st.Close()
				opts = append(opts, orchestrator.WithStore(st))
			} else {
				opts = append(opts, orchestrator.WithStore(memory.New()))
			}

			if checkpointDir != "" {
				mgr, err := orchcheckpoint.NewManager(checkpointDir)
				if err != nil {
					return fmt.Errorf("creating checkpoint manager: %w", err)
				}
				opts = append(opts, orchestrator.WithCheckpoints(mgr))
			}

			o := orchestrator.New(transport, opts...)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				if _, ok := <-sigCh; ok {
					logger.Warn("interrupt received, stopping run")
					o.Stop()
				}
			}()
			defer signal.Stop(sigCh)

			result, err := o.Start(ctx, proj)
			if err != nil {
				return fmt.Errorf("running project: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "status: %s\n", result.Status)
			fmt.Fprintf(cmd.OutOrStdout(), "steps: %d passed, %d failed, %d skipped (%.1f%% pass rate)\n",
				result.Passed, result.Failed, result.Skipped, result.PassRate)
			fmt.Fprintf(cmd.OutOrStdout(), "duration: %dms\n", result.DurationMs)
			if result.ErrorMessage != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "error: %s\n", result.ErrorMessage)
			}

			if result.Status == orchestrator.ExecFailed {
				return fmt.Errorf("run failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tabWS, "tab-ws", "", "WebSocket URL of the worker-tab bridge (required)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path for persisting the run (default: in-memory, not persisted)")
	cmd.Flags().StringVar(&checkpointDir, "checkpoint-dir", "", "Directory for crash-recovery checkpoints (default: disabled)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Overall run timeout")

	return cmd
}
