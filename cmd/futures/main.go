package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/adapter/enum"
	"cryptofutures/internal/api"
	"cryptofutures/internal/errors"
	"cryptofutures/internal/exchange/binance"
	"cryptofutures/internal/exchange/paper"
	"cryptofutures/internal/ops"
	"cryptofutures/internal/order"
	"cryptofutures/pkg/exception"

	"github.com/gin-gonic/gin"
	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (empty = paper venue defaults)")
	venue := flag.String("venue", "", "Venue override: paper or binance")
	listen := flag.String("listen", "", "Operator API listen address override")
	profile := flag.Bool("profile", false, "Enable pyroscope profiling")
	watch := flag.String("watch", "", "Comma separated symbols whose mark price is logged")
	flag.Parse()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		logs.Errorf("config load failed, err: %+v", err)
		os.Exit(1)
	}
	if len(*venue) != 0 {
		cfg.Venue = *venue
	}
	if len(*listen) != 0 {
		cfg.API.Listen = *listen
	}
	if *profile {
		cfg.Profiling.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		logs.Errorf("config invalid, err: %+v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, splitSymbols(*watch)); err != nil {
		logs.Errorf("futures stopped, err: %+v", err)
		os.Exit(1)
	}
	logs.Info("futures stopped")
}

func run(ctx context.Context, cfg ops.Config, watch []string) error {
	if cfg.Profiling.Enabled {
		profiler, err := startProfiler(cfg.Profiling)
		if err != nil {
			return errors.Wrap(err, "start pyroscope")
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	exchange, opts, closeExchange, err := newExchange(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeExchange()

	use, err := order.NewUsecase(exchange, cfg.Order)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.API.Listen,
		Handler:           api.New(use, opts...).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		err := use.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil || ctx.Err() != nil {
			return err
		}

		select {
		case <-sys.Shutdown():
			return nil
		default:
			// the venue closed its user stream for good
			return exception.ErrStreamGiveUp
		}
	})
	eg.Go(func() error {
		logs.Infof("operator api listening on %s", cfg.API.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "operator api")
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	for _, symbol := range watch {
		unsubscribe, err := use.SubscribePrice(ctx, symbol, func(p adapter.Price) {
			logs.Infof("%s mark price %v", p.Symbol, p.Price)
		})
		if err != nil {
			logs.Errorf("watch %s, err: %+v", symbol, err)
			continue
		}
		defer unsubscribe()
	}

	return eg.Wait()
}

func newExchange(ctx context.Context, cfg ops.Config) (order.Exchange, []api.Option, func(), error) {
	switch cfg.Platform() {
	case enum.PlatformBinanceFutures:
		futures, err := binance.New(ctx, cfg.Binance)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "binance futures")
		}
		return futures, nil, futures.Close, nil
	case enum.PlatformPaper:
		venue := paper.New(cfg.Paper)
		return venue, []api.Option{api.WithSimulator(venue)}, func() {}, nil
	default:
		return nil, nil, nil, errors.Wrapf(exception.ErrUnsupportedPlatform, "venue %q", cfg.Venue)
	}
}

func startProfiler(cfg ops.ProfilingConfig) (*pyroscope.Profiler, error) {
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		Tags:            cfg.Tags,
		Logger:          profilerLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}

type profilerLogger struct{}

func (profilerLogger) Infof(format string, args ...interface{})  { logs.Infof(format, args...) }
func (profilerLogger) Debugf(_ string, _ ...interface{})         {}
func (profilerLogger) Errorf(format string, args ...interface{}) { logs.Errorf(format, args...) }

func splitSymbols(s string) []string {
	var symbols []string
	for _, symbol := range strings.Split(s, ",") {
		if symbol = strings.ToUpper(strings.TrimSpace(symbol)); len(symbol) != 0 {
			symbols = append(symbols, symbol)
		}
	}
	return symbols
}
