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
	"io"
	"net/netip"
	"strings"

	"github.com/bufbuild/hostcache"
	"github.com/bufbuild/hostcache/cache"
	"github.com/bufbuild/hostcache/config"
	"github.com/bufbuild/hostcache/internal/mlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type globalFlags struct {
	c string
}

func newRootCmd() *cobra.Command {
	gf := new(globalFlags)
	rootCmd := &cobra.Command{
		Use:   "hostcache",
		Short: "Resolve host names through a caching resolver.",
	}
	rootCmd.PersistentFlags().StringVarP(&gf.c, "config", "c", "", "config file")

	resolveCmd := &cobra.Command{
		Use:   "resolve [-c config_file] host...",
		Short: "Resolve host names to addresses.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(gf.c)
			if err != nil {
				return err
			}
			defer a.Close()
			return runResolve(cmd.Context(), a.service, args, cmd.OutOrStdout())
		},
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
	}
	reverseCmd := &cobra.Command{
		Use:   "reverse [-c config_file] addr...",
		Short: "Resolve addresses to host names.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(gf.c)
			if err != nil {
				return err
			}
			defer a.Close()
			return runReverse(cmd.Context(), a.service, args, cmd.OutOrStdout())
		},
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
	}
	rootCmd.AddCommand(resolveCmd, reverseCmd, newServeCmd(gf))
	return rootCmd
}

// app is a service built from a config file, along with what it needs.
type app struct {
	logger   *zap.Logger
	service  *hostcache.Service
	registry *prometheus.Registry
	closer   io.Closer
	cfg      *config.Config
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %w", err)
	}
	logger, err := mlog.NewLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger, %w", err)
	}
	zap.ReplaceGlobals(logger)

	registry := newMetricsReg()
	metrics, err := cache.NewMetrics(prometheus.WrapRegistererWithPrefix("hostcache_", registry))
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics, %w", err)
	}
	options, err := hostcache.ConfigOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid config, %w", err)
	}
	res, closer, err := cfg.NewResolver(logger)
	if err != nil {
		return nil, err
	}
	options = append(options, hostcache.WithLogger(logger), hostcache.WithMetrics(metrics))
	service, err := hostcache.New(res, options...)
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("failed to init service, %w", err)
	}
	return &app{
		logger:   logger,
		service:  service,
		registry: registry,
		closer:   closer,
		cfg:      cfg,
	}, nil
}

func (a *app) Close() error {
	err := errors.Join(a.service.Close(), a.closer.Close())
	_ = a.logger.Sync()
	return err
}

func newMetricsReg() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	return reg
}

// runResolve resolves all hosts concurrently and prints one line per host,
// in the order given.
func runResolve(ctx context.Context, service *hostcache.Service, hosts []string, out io.Writer) error {
	lines := make([]string, len(hosts))
	failed := make([]bool, len(hosts))
	var grp errgroup.Group
	for i, host := range hosts {
		grp.Go(func() error {
			addrs, err := service.Resolve(ctx, host)
			if err != nil {
				lines[i], failed[i] = fmt.Sprintf("%s\terror: %v", host, err), true
				return nil
			}
			texts := make([]string, len(addrs))
			for j, addr := range addrs {
				texts[j] = addr.String()
			}
			lines[i] = host + "\t" + strings.Join(texts, ",")
			return nil
		})
	}
	_ = grp.Wait()
	return printResults(out, lines, failed)
}

func runReverse(ctx context.Context, service *hostcache.Service, args []string, out io.Writer) error {
	lines := make([]string, len(args))
	failed := make([]bool, len(args))
	var grp errgroup.Group
	for i, arg := range args {
		grp.Go(func() error {
			addr, err := netip.ParseAddr(arg)
			var name string
			if err == nil {
				name, err = service.ReverseResolve(ctx, addr)
			}
			if err != nil {
				lines[i], failed[i] = fmt.Sprintf("%s\terror: %v", arg, err), true
				return nil
			}
			lines[i] = arg + "\t" + name
			return nil
		})
	}
	_ = grp.Wait()
	return printResults(out, lines, failed)
}

func printResults(out io.Writer, lines []string, failed []bool) error {
	var failures int
	for i, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
		if failed[i] {
			failures++
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d lookups failed", failures, len(lines))
	}
	return nil
}
