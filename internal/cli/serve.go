package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/dbgen/internal/config"
	"github.com/roach88/dbgen/internal/objstore"
	"github.com/roach88/dbgen/internal/s3api"
	"github.com/roach88/dbgen/internal/telemetry"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	flags *config.Config

	// Now overrides the process start time (for testing).
	Now func() time.Time

	// Ready, if set, is called with the S3 listener address once the
	// server accepts connections (for testing).
	Ready func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts, flags: config.Default(), Now: time.Now})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve generated data over the S3 protocol",
		Long: `Serve a template's data as a read-only S3 bucket.

Objects are not stored: each GET regenerates the requested file from its
seed. Every table has one object per file plus a <table>-schema.sql object.

Example:
  dbgen serve -i shop.cue --files 16 --total-rows 10000000
  aws --endpoint-url http://127.0.0.1:9000 s3 ls s3://dbgen/`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	addGenerationFlags(cmd, opts.flags)
	f := cmd.Flags()
	f.StringVar(&opts.flags.Serve.Listen, "listen", opts.flags.Serve.Listen, "S3 listen address")
	f.StringVar(&opts.flags.Serve.MetricsListen, "metrics-listen", "", "Prometheus metrics listen address (empty disables)")
	f.StringVar(&opts.flags.Serve.Bucket, "bucket", opts.flags.Serve.Bucket, "bucket name")
	f.Float64Var(&opts.flags.Serve.RateLimit, "rate-limit", 0, "requests per second (0 = unlimited)")
	f.IntVar(&opts.flags.Serve.RateBurst, "rate-burst", 0, "request burst size")
	f.StringVar(&opts.flags.Telemetry.Exporter, "trace-exporter", opts.flags.Telemetry.Exporter, "trace exporter (none|stdout|otlp)")
	f.StringVar(&opts.flags.Telemetry.OTLPEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint for traces")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := resolveConfig(cmd, opts.RootOptions, opts.flags)
	if err != nil {
		return err
	}
	tmpl, err := loadTemplate(cfg)
	if err != nil {
		return err
	}
	start := opts.Now()
	plan, f, err := planRun(cfg, start)
	if err != nil {
		return err
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:  "dbgen",
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		Writer:       cmd.ErrOrStderr(),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize tracing", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Error("error shutting down tracing", "error", err)
		}
	}()

	slog.Info("building catalog", "files", len(plan.Files), "tables", len(tmpl.Tables))
	st, err := objstore.New(ctx, tmpl.Tables, start.Truncate(time.Second), objstore.Config{
		Bucket:         cfg.Serve.Bucket,
		Plan:           plan,
		Format:         f,
		TemplateDigest: tmpl.Digest,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to build catalog", err)
	}

	gin.SetMode(gin.ReleaseMode)
	server := s3api.New(st,
		s3api.WithServiceName("dbgen"),
		s3api.WithRateLimit(cfg.Serve.RateLimit, cfg.Serve.RateBurst),
	)

	ln, err := net.Listen("tcp", cfg.Serve.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s3api.Serve(gctx, ln, server.Handler())
	})
	if cfg.Serve.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s3api.MetricsHandler())
		g.Go(func() error {
			return s3api.ListenAndServe(gctx, cfg.Serve.MetricsListen, mux)
		})
	}

	addr := ln.Addr().String()
	fmt.Fprintf(cmd.OutOrStdout(), "Serving s3://%s at http://%s (%d objects)\n", st.Bucket(), addr, len(st.Objects()))
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")
	if opts.Ready != nil {
		opts.Ready(addr)
	}

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	slog.Info("server stopped gracefully")
	return nil
}
