// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command reqx sends requests to a JSON admin API from the command
// line, using the client settings of package config.
//
//	reqx --base-url https://admin.example.com/api get /system/user/page -p page=1
//	reqx post /system/user/create -d '{"username":"ops"}'
//	reqx sse /notice/stream --max 10
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gogama/reqx"
	"github.com/gogama/reqx/config"
	"github.com/gogama/reqx/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// app holds the flags shared by all commands and the client they
// build.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath  string
	baseURL     string
	token       string
	timeout     time.Duration
	logLevel    string
	metricsAddr string
	headers     []string
	params      []string
	envelope    bool

	logger        *zap.Logger
	client        *reqx.Client
	closer        io.Closer
	metricsServer *http.Server
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "reqx",
		Short:         "Send requests to a JSON admin API",
		Long:          "reqx sends requests to a JSON admin API, canceling duplicate requests still in flight.",
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "YAML or TOML configuration file")
	flags.StringVar(&a.baseURL, "base-url", "", "base URL relative request URLs are resolved against")
	flags.StringVar(&a.token, "token", "", "bearer token")
	flags.DurationVar(&a.timeout, "timeout", 0, "timeout of each attempt (default from configuration)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (default from configuration)")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.StringArrayVarP(&a.headers, "header", "H", nil, `request header as "Key: Value" (repeatable)`)
	flags.StringArrayVarP(&a.params, "param", "p", nil, `query parameter as "key=value" (repeatable)`)
	flags.BoolVarP(&a.envelope, "envelope", "e", false, "unwrap the {code, message, data} envelope and print data")

	root.AddCommand(
		getCmd(a),
		bodyCmd(a, http.MethodPost),
		bodyCmd(a, http.MethodPut),
		deleteCmd(a),
		sseCmd(a),
	)

	return root
}

// run wraps f with the setup and teardown of the client.
func (a *app) run(f func(ctx context.Context, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer a.teardown()
		if err := a.setup(); err != nil {
			return err
		}
		return f(cmd.Context(), args)
	}
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.baseURL != "" {
		cfg.BaseURL = a.baseURL
	}
	if a.token != "" {
		cfg.Auth.Token, cfg.Auth.TokenFile = a.token, ""
	}
	if a.timeout > 0 {
		cfg.Timeout = config.Duration(a.timeout)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err = cfg.Validate(); err != nil {
		return err
	}

	if a.logger, err = cfg.NewLogger(); err != nil {
		return err
	}
	if a.client, a.closer, err = cfg.NewClient(a.logger); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	handlers := &reqx.HandlerGroup{}
	metrics.NewCollector(reg).Install(handlers)
	a.client.Handlers = handlers

	if a.metricsAddr != "" {
		return a.serveMetrics(reg)
	}
	return nil
}

func (a *app) serveMetrics(reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", a.metricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	a.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	a.logger.Info("Serving metrics", zap.String("addr", ln.Addr().String()))
	return nil
}

// teardown releases whatever setup managed to create.
func (a *app) teardown() {
	if a.logger == nil {
		return
	}
	if a.client != nil {
		if n := a.client.CancelAllRequest(); n > 0 {
			a.logger.Info("Canceled in-flight requests", zap.Int("count", n))
		}
		a.client.CloseIdleConnections()
	}
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = a.metricsServer.Shutdown(ctx)
		cancel()
	}
	if a.closer != nil {
		if err := a.closer.Close(); err != nil {
			a.logger.Warn("Failed to close token source", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// requestParts parses the --param and --header flags.
func (a *app) requestParts() (url.Values, http.Header, error) {
	query := make(url.Values)
	for _, p := range a.params {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, nil, fmt.Errorf("invalid parameter %q, want key=value", p)
		}
		query.Add(k, v)
	}
	header := make(http.Header)
	for _, h := range a.headers {
		k, v, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, nil, fmt.Errorf(`invalid header %q, want "Key: Value"`, h)
		}
		header.Add(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	return query, header, nil
}

func (a *app) options() ([]reqx.RequestOption, error) {
	query, header, err := a.requestParts()
	if err != nil {
		return nil, err
	}
	opts := []reqx.RequestOption{reqx.WithQuery(query)}
	for k, vs := range header {
		for _, v := range vs {
			opts = append(opts, reqx.WithHeader(k, v))
		}
	}
	return opts, nil
}
