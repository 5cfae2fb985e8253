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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/webrun-dev/webrun/internal/log"
	"github.com/webrun-dev/webrun/internal/orchestrator"
	"github.com/webrun-dev/webrun/internal/orchmetrics"
	"github.com/webrun-dev/webrun/internal/project"
	"github.com/webrun-dev/webrun/internal/store"
	"github.com/webrun-dev/webrun/internal/store/sqlite"
	"github.com/webrun-dev/webrun/internal/tabtransport"
)

func newServeCommand() *cobra.Command {
	var (
		listenAddr    string
		dbPath        string
		shutdownGrace time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an HTTP service that accepts and executes projects on demand",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.WithComponent(log.New(log.FromEnv()), "serve")

			st, err := sqlite.New(sqlite.Config{Path: dbPath, WAL: true})
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer st.Close()

			registry := prometheus.NewRegistry()
			metrics := orchmetrics.New(registry)

			svc := &service{
				store:   st,
				metrics: metrics,
				logger:  logger,
			}

			mux := http.NewServeMux()
			mux.HandleFunc("/healthz", svc.handleHealth)
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			mux.HandleFunc("/runs", svc.handleRun)

			httpServer := &http.Server{
				Addr:        listenAddr,
				Handler:     mux,
				ReadTimeout: 10 * time.Second,
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logger.Info("webrund serve listening", "addr", listenAddr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
					return
				}
				errCh <- nil
			}()

			select {
			case sig := <-sigCh:
				logger.Info("received signal, shutting down", "signal", sig.String())
				cancel()
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer shutdownCancel()
				return httpServer.Shutdown(shutdownCtx)
			case err := <-errCh:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:8090", "HTTP listen address")
	cmd.Flags().StringVar(&dbPath, "db", "webrun.db", "SQLite database path")
	cmd.Flags().DurationVar(&shutdownGrace, "shutdown-grace", 10*time.Second, "Graceful shutdown timeout")

	return cmd
}

// service holds the long-lived collaborators the HTTP handlers share. Each
// run gets its own Orchestrator and Transport; only the store and metrics
// registry are shared.
type service struct {
	store   store.TestRunStore
	metrics *orchmetrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
}

func (s *service) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// runRequest is the body of a POST /runs request: a project file path
// already resident on the service host, and the worker-tab bridge to drive
// it through.
type runRequest struct {
	ProjectPath string `json:"project_path"`
	TabWS       string `json:"tab_ws"`
}

func (s *service) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ProjectPath == "" || req.TabWS == "" {
		http.Error(w, "project_path and tab_ws are required", http.StatusBadRequest)
		return
	}

	proj, err := project.LoadFile(req.ProjectPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("loading project: %v", err), http.StatusBadRequest)
		return
	}

	requestLogger := log.WithRequestID(s.logger, uuid.New().String())

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		http.Error(w, "a run is already in progress", http.StatusConflict)
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	transport, err := tabtransport.Dial(ctx, tabtransport.Config{URL: req.TabWS, Logger: requestLogger})
	if err != nil {
		http.Error(w, fmt.Sprintf("dialing worker-tab bridge: %v", err), http.StatusBadGateway)
		return
	}
	defer transport.Close()

	o := orchestrator.New(transport,
		orchestrator.WithStore(s.store),
		orchestrator.WithMetrics(s.metrics),
		orchestrator.WithLogger(requestLogger),
	)

	result, err := o.Start(ctx, proj)
	if err != nil {
		http.Error(w, fmt.Sprintf("running project: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
