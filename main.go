package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/STJr/SRB2-sub004/internal/auth"
	configpkg "github.com/STJr/SRB2-sub004/internal/config"
	"github.com/STJr/SRB2-sub004/internal/httpapi"
	"github.com/STJr/SRB2-sub004/internal/inspect"
	"github.com/STJr/SRB2-sub004/internal/logging"
	"github.com/STJr/SRB2-sub004/internal/replay"
	"github.com/STJr/SRB2-sub004/internal/simulation"
)

const (
	adminWindow     = time.Minute
	adminBurst      = 10
	adminTokenTTL   = 24 * time.Hour
	sweepInterval   = time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := configpkg.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	issueFor := flag.String("issue-token", "", "print an admin token for the given subject and exit")
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid flags: %v", err)
	}

	if *issueFor != "" {
		token, err := issueAdminToken(cfg.AdminSecret, *issueFor, time.Now)
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("configure logging: %v", err)
	}
	logging.ReplaceGlobals(logger)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("replay service stopped", logging.Error(err))
	}
}

// issueAdminToken mints a token granting every admin scope.
func issueAdminToken(secret, subject string, now func() time.Time) (string, error) {
	signer, err := auth.NewSigner(secret, 0)
	if err != nil {
		return "", fmt.Errorf("DEMO_ADMIN_SECRET: %w", err)
	}
	return signer.WithClock(now).Issue(subject, auth.ScopeExport+" "+auth.ScopeUpload, adminTokenTTL)
}

// service wires the replay stores to their HTTP and gRPC surfaces.
type service struct {
	cfg        *configpkg.Config
	log        *logging.Logger
	started    time.Time
	startupErr error

	locator  *replay.Locator
	records  *replay.Records
	cleaner  *replay.Cleaner
	monitor  *simulation.TickMonitor
	watcher  *httpapi.Watcher
	inspect  *inspect.Service
	handlers *httpapi.HandlerSet
}

func newService(cfg *configpkg.Config, logger *logging.Logger) (*service, error) {
	if logger == nil {
		logger = logging.L()
	}
	s := &service{
		cfg:     cfg,
		log:     logger,
		started: time.Now(),
		locator: replay.NewLocator(cfg.Home, cfg.Extension, cfg.Archives),
		records: replay.NewRecords(cfg.Home, cfg.Extension, logger.Component("records")),
		monitor: simulation.NewTickMonitor(),
	}
	//1.- A missing replay tree is reported through /readyz instead of aborting startup.
	if err := os.MkdirAll(s.records.Root(), 0o755); err != nil {
		s.startupErr = fmt.Errorf("replay directory: %w", err)
		logger.Error("replay directory unavailable", logging.String("path", s.records.Root()), logging.Error(err))
	}
	s.cleaner = replay.NewCleaner(s.records.Root(), cfg.Extension, replay.RetentionPolicy{
		MaxRecordings: cfg.RetainMax,
		MaxAge:        cfg.RetainAge,
	}, logger.Component("retention"))

	s.watcher = httpapi.NewWatcher(httpapi.WatchOptions{
		Source:         s.locator,
		TicRate:        cfg.TicRate,
		PingInterval:   cfg.PingInterval,
		MaxWatchers:    cfg.MaxWatchers,
		AllowedOrigins: cfg.AllowedOrigins,
		Limiter:        httpapi.NewSlidingWindowLimiter(cfg.WatchWindow, cfg.WatchBurst, nil),
		Monitor:        s.monitor,
		Logger:         logger,
	})

	opts := httpapi.Options{
		Logger:      logger,
		Readiness:   s,
		Records:     s.records,
		Source:      s.locator,
		RateLimiter: httpapi.NewSlidingWindowLimiter(adminWindow, adminBurst, nil),
		Storage:     s.cleaner.Stats,
		Monitor:     s.monitor,
		Watcher:     s.watcher,
		MaxUploadKB: cfg.MaxDemoKB,
	}
	if strings.TrimSpace(cfg.AdminSecret) != "" {
		signer, err := auth.NewSigner(cfg.AdminSecret, 2*time.Second)
		if err != nil {
			return nil, err
		}
		opts.Authorizer = signer
	} else {
		logger.Warn("admin endpoints disabled: DEMO_ADMIN_SECRET not set")
	}
	s.handlers = httpapi.NewHandlerSet(opts)

	inspector, err := inspect.NewService(s.locator,
		inspect.WithTicRate(cfg.TicRate),
		inspect.WithMonitor(s.monitor),
		inspect.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	s.inspect = inspector
	return s, nil
}

// StartupError implements httpapi.ReadinessProvider.
func (s *service) StartupError() error { return s.startupErr }

// Uptime implements httpapi.ReadinessProvider.
func (s *service) Uptime() time.Duration { return time.Since(s.started) }

func (s *service) routes() http.Handler {
	mux := http.NewServeMux()
	s.handlers.Register(mux)
	return logging.HTTPTraceMiddleware(s.log)(mux)
}

func (s *service) grpcServer() (*grpc.Server, error) {
	opts, err := configureGRPCSecurity(s.cfg, s.log)
	if err != nil {
		return nil, err
	}
	server := grpc.NewServer(opts...)
	inspect.Register(server, s.inspect)
	return server, nil
}

func run(ctx context.Context, cfg *configpkg.Config, logger *logging.Logger) error {
	svc, err := newService(cfg, logger)
	if err != nil {
		return err
	}
	go svc.cleaner.Run(ctx, sweepInterval)

	errCh := make(chan error, 2)
	tlsEnabled := cfg.TLSCertPath != ""
	endpoints := endpointsFor(cfg.HTTPAddr, cfg.GRPCAddr, tlsEnabled)
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: svc.routes(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("replay HTTP listening", logging.String("url", endpoints.HTTP), logging.String("watch", endpoints.Watch))
		var err error
		if tlsEnabled {
			err = httpServer.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		grpcServer, err = svc.grpcServer()
		if err != nil {
			return err
		}
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		go func() {
			logger.Info("replay inspection listening", logging.String("address", endpoints.Inspect))
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down replay service")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if grpcServer != nil {
		//1.- Ghost streams may outlive the grace period; force them closed then.
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
	}
	return httpServer.Shutdown(shutdownCtx)
}
