package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/onvif-integration/internal/pkg/bridge"
	"github.com/anicoll/onvif-integration/internal/pkg/config"
	"github.com/anicoll/onvif-integration/internal/pkg/contxt"
	"github.com/anicoll/onvif-integration/internal/pkg/metric"
	"github.com/anicoll/onvif-integration/internal/pkg/mqtt"
	"github.com/anicoll/onvif-integration/internal/pkg/onvif"
	"github.com/anicoll/onvif-integration/internal/pkg/server"
	"github.com/anicoll/onvif-integration/pkg/tap"
)

const (
	shutdownTimeout = 5 * time.Second
	reloadTimeout   = 30 * time.Second
)

// options carries everything run needs besides the context. Tests inject a
// mock service and leave the optional pieces empty.
type options struct {
	service    BridgeService
	loader     *config.Loader
	handler    http.Handler
	statusAddr string
	cronSpec   string
}

func OnvifCommand(ctx *cli.Context) error {
	loader := config.NewLoader(ctx.String("config"))
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if level := ctx.String("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if window := ctx.Duration("debounce-window"); window > 0 {
		cfg.Bridge.DebounceWindow = window
	}

	logCfg := zap.NewProductionConfig()
	logCfg.Level, err = zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	logger := zap.Must(logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)))
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	registry := prometheus.NewRegistry()
	metrics := metric.New(registry)
	hub := tap.NewHub[bridge.Event](64)

	transport := mqtt.New(paho_mqtt.NewClient(mqtt.ClientOptions(&cfg.Mqtt)), &cfg.Mqtt, metrics)
	group := bridge.NewSubscriptionGroup(onvif.NewClient(), metrics)
	pipeline := bridge.NewPipeline(transport, hub, metrics, cfg.Mqtt.HomeAssistant, cfg.Api.Templates)
	svc := bridge.New(cfg, group, pipeline, transport, metrics)

	return run(ctx.Context, options{
		service:    svc,
		loader:     loader,
		handler:    server.New(hub, svc, registry).Handler(),
		statusAddr: ctx.String("status-addr"),
		cronSpec:   ctx.String("resubscribe-cron"),
	})
}

func run(ctx context.Context, opts options) error {
	logger := zap.L()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := cron.New()
	if opts.cronSpec != "" {
		if _, err := scheduler.AddFunc(opts.cronSpec, func() {
			if err := opts.service.Rebuild(contxt.NewContext(reloadTimeout)); err != nil && !errors.Is(err, bridge.ErrClosed) {
				logger.Error("scheduled resubscribe failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("invalid resubscribe cron %q: %w", opts.cronSpec, err)
		}
	}

	if err := opts.service.Start(ctx); err != nil {
		return err
	}

	if opts.loader != nil {
		opts.loader.Watch(func(cfg *config.Config) {
			if err := opts.service.Reload(contxt.NewContext(reloadTimeout), cfg); err != nil {
				logger.Error("config reload failed", zap.Error(err))
			}
		})
	}

	scheduler.Start()
	defer scheduler.Stop()

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		<-ctx.Done()
		opts.service.Shutdown(contxt.NewContext(shutdownTimeout))
		return ctx.Err()
	})

	if opts.handler != nil && opts.statusAddr != "" {
		srv := &http.Server{
			Handler: opts.handler,
			Addr:    opts.statusAddr,
			// No write timeout: /events holds its connection open.
			ReadHeaderTimeout: 10 * time.Second,
		}
		eg.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			return srv.Shutdown(contxt.NewContext(shutdownTimeout))
		})
	}

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
