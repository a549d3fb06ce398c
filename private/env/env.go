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

// Package env contains the configuration sections and startup helpers that
// all switch daemons share.
//
// SIGHUP is captured from process start on. Daemons that reload their
// configuration consume it via SighupC.
package env

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"

	"github.com/netfab/switchd/pkg/log"
	"github.com/netfab/switchd/pkg/private/serrors"
	"github.com/netfab/switchd/private/config"
)

// SwitchConfigFile is the name of the declarative switch configuration in
// the config directory.
const SwitchConfigFile = "switch.yml"

const (
	scrapeTimeout   = time.Minute
	shutdownTimeout = 5 * time.Second
)

var sighupC = make(chan os.Signal, 1)

func init() {
	signal.Notify(sighupC, syscall.SIGHUP)
}

// SighupC returns the channel on which SIGHUPs are delivered.
func SighupC() <-chan os.Signal {
	return sighupC
}

var (
	_ config.Config = (*General)(nil)
	_ config.Config = (*Metrics)(nil)
	_ config.Config = (*Tracing)(nil)
)

// General is the [general] section.
type General struct {
	config.NoDefaulter
	// ID is the name of the switch instance. It is the tracing service name
	// and is exported as metric label.
	ID string `toml:"id,omitempty"`
	// ConfigDir is the directory of the declarative switch configuration.
	ConfigDir string `toml:"config_dir,omitempty"`
}

func (cfg *General) Validate() error {
	if cfg.ID == "" {
		return serrors.New("no element id specified")
	}
	if cfg.ConfigDir == "" {
		return nil
	}
	info, err := os.Stat(cfg.ConfigDir)
	if err != nil {
		return serrors.Wrap("checking config_dir", err)
	}
	if !info.IsDir() {
		return serrors.New("config_dir is not a directory", "dir", cfg.ConfigDir)
	}
	return nil
}

func (cfg *General) Sample(dst io.Writer, _ config.Path, ctx config.CtxMap) {
	config.WriteString(dst, fmt.Sprintf(generalSample, ctx[config.ID]))
}

func (cfg *General) ConfigName() string {
	return "general"
}

// SwitchConfig returns the path of the declarative switch configuration.
func (cfg *General) SwitchConfig() string {
	return filepath.Join(cfg.ConfigDir, SwitchConfigFile)
}

// Metrics is the [metrics] section.
type Metrics struct {
	config.NoDefaulter
	config.NoValidator
	// Prometheus is the address the metrics are exported on. Metrics are not
	// exported if it is empty.
	Prometheus string `toml:"prometheus,omitempty"`
}

func (cfg *Metrics) Sample(dst io.Writer, _ config.Path, _ config.CtxMap) {
	config.WriteString(dst, metricsSample)
}

func (cfg *Metrics) ConfigName() string {
	return "metrics"
}

// ServePrometheus serves /metrics until ctx is done. It returns immediately
// if no address is configured.
func (cfg *Metrics) ServePrometheus(ctx context.Context) error {
	if cfg.Prometheus == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer,
			promhttp.HandlerOpts{Timeout: scrapeTimeout})))
	server := &http.Server{
		Addr:              cfg.Prometheus,
		Handler:           mux,
		ReadHeaderTimeout: scrapeTimeout,
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer log.HandlePanic()
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	log.Info("Exporting prometheus metrics", "addr", cfg.Prometheus)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return serrors.Wrap("serving prometheus metrics", err)
	}
	return nil
}

// Tracing is the [tracing] section.
type Tracing struct {
	config.NoValidator
	// Enabled enables tracing.
	Enabled bool `toml:"enabled,omitempty"`
	// Debug samples every trace.
	Debug bool `toml:"debug,omitempty"`
	// Agent is the address of the jaeger agent the spans are reported to.
	Agent string `toml:"agent,omitempty"`
}

func (cfg *Tracing) InitDefaults() {
	if cfg.Agent == "" {
		cfg.Agent = net.JoinHostPort(jaeger.DefaultUDPSpanServerHost,
			strconv.Itoa(jaeger.DefaultUDPSpanServerPort))
	}
}

func (cfg *Tracing) Sample(dst io.Writer, _ config.Path, _ config.CtxMap) {
	config.WriteString(dst, tracingSample)
}

func (cfg *Tracing) ConfigName() string {
	return "tracing"
}

// NewTracer creates the tracer of service id. If tracing is disabled, the
// tracer and closer are no-ops.
func (cfg *Tracing) NewTracer(id string) (opentracing.Tracer, io.Closer, error) {
	c := jaegercfg.Configuration{
		ServiceName: id,
		Disabled:    !cfg.Enabled,
		Reporter:    &jaegercfg.ReporterConfig{LocalAgentHostPort: cfg.Agent},
	}
	if cfg.Debug {
		c.Sampler = &jaegercfg.SamplerConfig{Type: jaeger.SamplerTypeConst, Param: 1}
	}
	return c.NewTracer()
}

// LogAppStarted logs the startup banner. It must be called after the logging
// is set up.
func LogAppStarted(svcType, elemID string) error {
	host, err := os.Hostname()
	if err != nil {
		return serrors.Wrap("determining hostname", err)
	}
	log.Info(fmt.Sprintf("=====================> Service started %s %s\n%s\n  Host:          %s",
		svcType, elemID, VersionInfo(), host), "pid", os.Getpid())
	return nil
}

// LogAppStopped logs the shutdown banner.
func LogAppStopped(svcType, elemID string) {
	log.Info(fmt.Sprintf("=====================> Service stopped %s %s", svcType, elemID))
}
