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

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/opentracing/opentracing-go"
	"golang.org/x/sync/errgroup"

	"github.com/netfab/switchd/agent/aclnexthop"
	"github.com/netfab/switchd/agent/api"
	"github.com/netfab/switchd/agent/config"
	"github.com/netfab/switchd/agent/hwsync"
	"github.com/netfab/switchd/agent/hwsync/asicsim"
	"github.com/netfab/switchd/agent/portsync"
	"github.com/netfab/switchd/agent/state"
	"github.com/netfab/switchd/agent/swconfig"
	"github.com/netfab/switchd/agent/update"
	"github.com/netfab/switchd/agent/warmboot"
	"github.com/netfab/switchd/pkg/log"
	"github.com/netfab/switchd/pkg/metrics"
	"github.com/netfab/switchd/pkg/private/processmetrics"
	"github.com/netfab/switchd/pkg/private/prom"
	"github.com/netfab/switchd/pkg/private/serrors"
	"github.com/netfab/switchd/private/app/launcher"
	"github.com/netfab/switchd/private/env"
	"github.com/netfab/switchd/private/periodic"
	"github.com/netfab/switchd/private/storage/cleaner"
	"github.com/netfab/switchd/qsfp"
	"github.com/netfab/switchd/qsfp/executor"
	"github.com/netfab/switchd/qsfp/i2cio"
	"github.com/netfab/switchd/qsfp/module"
	"github.com/netfab/switchd/qsfp/module/moduletest"
)

const (
	configUpdateName = "Applying switch config"
	shutdownTimeout  = 3 * time.Second
)

var globalCfg config.Config

func main() {
	application := launcher.Application{
		TOMLConfig: &globalCfg,
		ShortName:  "Switch Agent",
		Main:       realMain,
	}
	application.Run()
}

func realMain(ctx context.Context) error {
	tracer, closer, err := globalCfg.Tracing.NewTracer(globalCfg.General.ID)
	if err != nil {
		return serrors.Wrap("initializing tracer", err)
	}
	defer closer.Close()
	opentracing.SetGlobalTracer(tracer)
	if err := processmetrics.Init(); err != nil {
		log.Info("Process metrics not available", "err", err)
	}

	swCfg, err := swconfig.Load(globalCfg.SwitchConfig())
	if err != nil {
		return serrors.Wrap("loading switch config", err)
	}

	store, err := warmboot.New(ctx, globalCfg.State.WarmBootDB, nil)
	if err != nil {
		return serrors.Wrap("opening warm-boot database", err)
	}
	defer store.Close()
	initial, err := restoreState(ctx, store)
	if err != nil {
		return err
	}

	asic := asicsim.New(globalCfg.Hardware.TableCapacities())
	synchronizer := &hwsync.Synchronizer{
		Dataplane: asic,
		Metrics:   hwsync.NewMetrics(),
	}
	// The simulated dataplane starts empty. Replay the restored state.
	initial.Publish()
	if err := synchronizer.Apply(ctx, state.NewStateDelta(state.NewSwitchState(), initial)); err != nil {
		log.Error("Programming restored state", "err", err)
	}
	updater := update.New(initial,
		update.WithApplier(synchronizer),
		update.WithMetrics(update.NewMetrics()),
		update.WithLogger(log.New("component", "updater")),
	)

	groupCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, errCtx := errgroup.WithContext(groupCtx)
	abort := abortGroup(stop, g)

	var exec executor.Executor = executor.Inline{}
	if globalCfg.QSFP.Executor == config.ExecutorSerialized {
		serialized := executor.NewSerialized(4 * len(globalCfg.QSFP.Transceivers))
		g.Go(func() error {
			defer log.HandlePanic()
			return serialized.Run(errCtx)
		})
		g.Go(func() error {
			defer log.HandlePanic()
			<-errCtx.Done()
			return serialized.Close()
		})
		exec = serialized
	}
	mgr, err := qsfp.NewManager(transceiverSlots(globalCfg.QSFP),
		qsfp.WithExecutor(exec),
		qsfp.WithModuleConfig(globalCfg.QSFP.ModuleConfig()),
		qsfp.WithParallelism(globalCfg.QSFP.Parallelism),
		qsfp.WithMetrics(qsfp.NewMetrics()),
		qsfp.WithLogger(log.New("component", "qsfp")),
	)
	if err != nil {
		return abort(serrors.Wrap("creating transceiver manager", err))
	}

	updater.Register("aclnexthop", &aclnexthop.Handler{
		Submitter: updater,
		Logger:    log.New("component", "aclnexthop"),
	})
	updater.Register("portsync", &portsync.Observer{Syncer: mgr})
	updater.Register("logger", &update.ChangeLogger{Logger: log.New("component", "changelog")})

	g.Go(func() error {
		defer log.HandlePanic()
		return updater.Run(errCtx)
	})
	defer updater.Close()

	if err := updater.Update(errCtx, configUpdateName, swconfig.Apply(swCfg)); err != nil {
		return abort(serrors.Wrap("applying switch config", err))
	}
	reload := func(ctx context.Context) error {
		cfg, err := swconfig.Load(globalCfg.SwitchConfig())
		if err != nil {
			return serrors.Wrap("loading switch config", err)
		}
		return updater.Update(ctx, configUpdateName, swconfig.Apply(cfg))
	}

	refreshRunner := periodic.Start(mgr,
		globalCfg.QSFP.RefreshInterval.Duration, globalCfg.QSFP.RefreshInterval.Duration)

	persister := &warmboot.Persister{
		Store:  store,
		Source: updater,
		Saved: metrics.NewPromCounter(prom.NewCounterVec("switchd", "warmboot",
			"saves_total", "Total number of warm-boot snapshot saves.",
			[]string{prom.LabelResult})),
	}
	persistRunner := periodic.Start(persister,
		globalCfg.State.PersistInterval.Duration, globalCfg.State.PersistInterval.Duration)

	keep := globalCfg.State.KeepSnapshots
	pruner := cleaner.New(func(ctx context.Context) (int, error) {
		return store.Prune(ctx, keep)
	}, "warmboot", cleaner.Metrics{
		DeletedTotal: metrics.NewPromCounter(prom.NewCounterVec("switchd", "warmboot",
			"pruned_snapshots_total", "Total number of pruned warm-boot snapshots.", nil)),
	})
	pruneRunner := periodic.Start(pruner, 10*globalCfg.State.PersistInterval.Duration,
		globalCfg.State.PersistInterval.Duration)

	g.Go(func() error {
		defer log.HandlePanic()
		for {
			select {
			case <-errCtx.Done():
				return nil
			case <-env.SighupC():
				log.Info("Received SIGHUP, reloading switch config")
				if err := reload(errCtx); err != nil {
					log.Error("Reloading switch config", "err", err)
				}
			}
		}
	})

	if globalCfg.API.Addr != "" {
		server := &api.Server{
			State:        updater,
			Hardware:     asic,
			Transceivers: mgr,
			Reload:       reload,
		}
		log.Info("Exposing API", "addr", globalCfg.API.Addr)
		mgmtServer := &http.Server{
			Addr:    globalCfg.API.Addr,
			Handler: api.Handler(server),
		}
		g.Go(func() error {
			defer log.HandlePanic()
			<-errCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return mgmtServer.Shutdown(shutdownCtx)
		})
		g.Go(func() error {
			defer log.HandlePanic()
			err := mgmtServer.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return serrors.Wrap("serving service management API", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer log.HandlePanic()
		return globalCfg.Metrics.ServePrometheus(errCtx)
	})

	err = g.Wait()
	refreshRunner.Kill()
	persistRunner.Stop()
	pruneRunner.Kill()
	finalCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if perr := persister.Persist(finalCtx); perr != nil {
		log.Error("Persisting final state", "err", perr)
	}
	return err
}

// abortGroup returns a function that cancels the group context, waits for the
// goroutines already started in g and returns the error it is passed.
func abortGroup(stop context.CancelFunc, g *errgroup.Group) func(error) error {
	return func(err error) error {
		stop()
		if werr := g.Wait(); werr != nil {
			log.Error("Stopping after startup failure", "err", werr)
		}
		return err
	}
}

// restoreState returns the state of the latest snapshot. Without usable
// snapshot, or on cold boot, all snapshots are dropped and an empty state is
// returned.
func restoreState(ctx context.Context, store *warmboot.Store) (*state.SwitchState, error) {
	if !globalCfg.State.ColdBoot {
		snap, err := store.Latest(ctx)
		switch {
		case err == nil:
			log.Info("Restored warm-boot state", "generation", snap.Generation,
				"written", snap.Written)
			return snap.State, nil
		case errors.Is(err, warmboot.ErrNotFound):
			log.Info("No warm-boot state found, starting cold")
			return state.NewSwitchState(), nil
		default:
			log.Error("Discarding unusable warm-boot state", "err", err)
		}
	}
	if _, err := store.Prune(ctx, 0); err != nil {
		return nil, serrors.Wrap("discarding warm-boot state", err)
	}
	return state.NewSwitchState(), nil
}

func transceiverSlots(cfg config.QSFP) map[qsfp.TransceiverID]module.IO {
	slots := make(map[qsfp.TransceiverID]module.IO, len(cfg.Transceivers))
	for _, t := range cfg.Transceivers {
		id := qsfp.TransceiverID(t.ID)
		if !cfg.Simulated {
			slots[id] = i2cio.New(t.Bus)
			continue
		}
		page0 := moduletest.Optical()
		if t.Media == config.MediaCopper {
			page0 = moduletest.Copper()
		}
		io := moduletest.New(page0)
		io.SetPresent(!t.Absent)
		slots[id] = io
	}
	return slots
}
