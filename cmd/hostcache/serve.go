// Copyright 2023-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
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
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type serveFlags struct {
	http string
}

func newServeCmd(gf *globalFlags) *cobra.Command {
	sf := new(serveFlags)
	serveCmd := &cobra.Command{
		Use:   "serve [-c config_file] [--http addr]",
		Short: "Serve lookups and metrics over HTTP.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(gf.c)
			if err != nil {
				return err
			}
			defer a.Close()
			addr := a.cfg.API.HTTP
			if len(sf.http) > 0 {
				addr = sf.http
			}
			if len(addr) == 0 {
				return errors.New("no http address is configured")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a, addr)
		},
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
	}
	serveCmd.Flags().StringVar(&sf.http, "http", "", "http listen address, overrides api.http")
	return serveCmd
}

func serve(ctx context.Context, a *app, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           newAPIHandler(a.service, a.registry, a.logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errChan := make(chan error, 1)
	go func() {
		a.logger.Info("starting api http server", zap.String("addr", addr))
		errChan <- httpServer.ListenAndServe()
	}()
	select {
	case err := <-errChan:
		return fmt.Errorf("api http server exited, %w", err)
	case <-ctx.Done():
	}
	a.logger.Info("shutting down api http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down api http server, %w", err)
	}
	return nil
}
