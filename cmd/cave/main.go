// Command cave runs the viewpoint pipeline of a projection room: it reads
// body frames from the configured feed, follows the selected viewer and
// serves the calibration and monitoring API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/banshee-data/cave.view/internal/calibration"
	"github.com/banshee-data/cave.view/internal/config"
	"github.com/banshee-data/cave.view/internal/db"
	"github.com/banshee-data/cave.view/internal/environment"
	"github.com/banshee-data/cave.view/internal/feed"
	"github.com/banshee-data/cave.view/internal/fsutil"
	"github.com/banshee-data/cave.view/internal/monitor"
	"github.com/banshee-data/cave.view/internal/monitoring"
	"github.com/banshee-data/cave.view/internal/timeutil"
	"github.com/banshee-data/cave.view/internal/version"
	"github.com/banshee-data/cave.view/internal/viewpoint"
)

var (
	configPath  = flag.String("config", "", "Path to a cave config JSON file; built-in defaults when empty")
	listen      = flag.String("listen", "", "HTTP listen address (overrides listen_address)")
	grpcListen  = flag.String("grpc-listen", "", "gRPC health listen address (overrides grpc_address)")
	dbPath      = flag.String("db", "", "Calibration database path (overrides database_path)")
	feedKind    = flag.String("feed", "", "Detection feed: serial, udp, pcap or synthetic (overrides feed_kind)")
	plotDir     = flag.String("plot-dir", "", "Write eye trace plots here on shutdown and enable POST /api/plots")
	logLevel    = flag.String("log", "ops", "Log streams written to stderr: ops, diag or trace")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

// overrides are command-line values that replace config file settings.
type overrides struct {
	Listen     string
	GRPCListen string
	DB         string
	Feed       string
}

func loadConfig(path string, o overrides) (*config.CaveConfig, error) {
	cfg := config.EmptyCaveConfig()
	if path != "" {
		loaded, err := config.LoadCaveConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	set := func(dst **string, v string) {
		if v != "" {
			*dst = &v
		}
	}
	set(&cfg.ListenAddress, o.Listen)
	set(&cfg.GRPCAddress, o.GRPCListen)
	set(&cfg.DatabasePath, o.DB)
	set(&cfg.FeedKind, o.Feed)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// logWriters enables the ops stream and, with rising verbosity, the diag and
// trace streams.
func logWriters(level string, w io.Writer) (monitoring.LogWriters, error) {
	switch level {
	case "ops":
		return monitoring.LogWriters{Ops: w}, nil
	case "diag":
		return monitoring.LogWriters{Ops: w, Diag: w}, nil
	case "trace":
		return monitoring.LogWriters{Ops: w, Diag: w, Trace: w}, nil
	}
	return monitoring.LogWriters{}, fmt.Errorf("unknown log level %q", level)
}

// executorFunc adapts a function to calibration.Executor.
type executorFunc func(ctx context.Context, fn func(*environment.Environment)) error

func (f executorFunc) Do(ctx context.Context, fn func(*environment.Environment)) error {
	return f(ctx, fn)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// traceSink logs every camera output at trace level; no renderer runs in
// this process.
var traceSink = viewpoint.RenderSinkFunc(func(out viewpoint.CameraOutput) {
	monitoring.Tracef("render: %s display %d eye %v uncalibrated=%v",
		out.Camera, out.Display, out.Position, out.Uncalibrated)
})

func run(ctx context.Context, cfg *config.CaveConfig, plots string) error {
	clock := timeutil.RealClock{}

	database, err := db.NewDB(cfg.GetDatabasePath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	envOpts, err := environment.OptionsFromCave(cfg)
	if err != nil {
		return err
	}
	env := environment.New(envOpts)

	handoff := feed.NewHandoff()
	source, err := feed.NewSource(cfg, clock)
	if err != nil {
		return err
	}

	var pipeline *viewpoint.Pipeline
	store := calibration.NewStore(database, clock)
	calibrator := calibration.NewCalibrator(
		executorFunc(func(ctx context.Context, fn func(*environment.Environment)) error { return pipeline.Do(ctx, fn) }),
		calibration.WithStore(store),
		calibration.WithFile(fsutil.OSFileSystem{}, cfg.GetCalibrationFile()),
		calibration.WithClock(clock),
	)
	pipeline, err = viewpoint.New(viewpoint.ConfigFromCave(cfg), env, handoff, calibrator.Sink(traceSink), clock)
	if err != nil {
		return err
	}

	trace := monitor.NewEyeTrace(0)
	pipeline.OnSample(trace.Add)
	var plotter *monitor.TracePlotter
	if plots != "" {
		plotter = monitor.NewTracePlotter(fsutil.OSFileSystem{}, plots)
	}

	mux := monitor.NewServer(monitor.Options{
		Pipeline:   pipeline,
		Calibrator: calibrator,
		Store:      store,
		FeedStats:  handoff.Stats,
		Trace:      trace,
		Plotter:    plotter,
		Clock:      clock,
	}).ServeMux()
	backupDir := filepath.Join(filepath.Dir(cfg.GetDatabasePath()), "backups")
	if err := database.AttachAdminRoutes(mux, backupDir); err != nil {
		return err
	}
	server := &http.Server{
		Addr:              cfg.GetListenAddress(),
		Handler:           monitor.LoggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	health := monitor.NewHealth(pipeline.Healthy)
	grpcServer := grpc.NewServer()
	health.Register(grpcServer)
	grpcLis, err := net.Listen("tcp", cfg.GetGRPCAddress())
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCanceled(pipeline.Run(ctx, clock.NewTicker(cfg.GetFrameInterval())))
	})
	g.Go(func() error {
		monitoring.Opsf("cave: %s feed starting", cfg.GetFeedKind())
		if err := source.Run(ctx, handoff); ignoreCanceled(err) != nil {
			return fmt.Errorf("feed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		from, err := calibrator.Restore(ctx)
		if err != nil {
			return ignoreCanceled(err)
		}
		if from == "" {
			monitoring.Opsf("cave: no stored calibration, cameras uncalibrated")
		}
		return nil
	})
	g.Go(func() error {
		return ignoreCanceled(health.Run(ctx, clock.NewTicker(time.Second)))
	})
	g.Go(func() error {
		monitoring.Opsf("cave: grpc health on %s", grpcLis.Addr())
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		monitoring.Opsf("cave: http on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				monitoring.Logf("HTTP server force close error: %v", err)
			}
		}
		grpcServer.GracefulStop()
		return nil
	})

	err = g.Wait()

	if plotter != nil {
		files, perr := plotter.Plot(trace.Samples(), "shutdown-"+time.Now().UTC().Format("20060102T150405"))
		switch {
		case errors.Is(perr, monitor.ErrNoSamples):
			monitoring.Opsf("cave: no eye samples to plot")
		case perr != nil:
			monitoring.Opsf("cave: failed to write plots: %v", perr)
		default:
			monitoring.Opsf("cave: wrote %d plots to %s", len(files), plotter.Dir())
		}
	}
	return err
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.Get())
		return
	}

	writers, err := logWriters(*logLevel, os.Stderr)
	if err != nil {
		log.Fatal(err)
	}
	monitoring.SetLogWriters(writers)

	cfg, err := loadConfig(*configPath, overrides{
		Listen:     *listen,
		GRPCListen: *grpcListen,
		DB:         *dbPath,
		Feed:       *feedKind,
	})
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	monitoring.Opsf("cave: %s", version.Get())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *plotDir); err != nil {
		monitoring.Opsf("cave: %v", err)
		stop()
		os.Exit(1)
	}
	monitoring.Opsf("cave: graceful shutdown complete")
}
