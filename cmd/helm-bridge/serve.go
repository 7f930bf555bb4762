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
	"os/signal"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/helm-bridge/pkg/api"
	"github.com/Mindburn-Labs/helm-bridge/pkg/auth"
	"github.com/Mindburn-Labs/helm-bridge/pkg/bootstrap"
	"github.com/Mindburn-Labs/helm-bridge/pkg/config"
	"github.com/Mindburn-Labs/helm-bridge/pkg/observability"
)

const shutdownTimeout = 10 * time.Second

func runServeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	cfg := config.Load()
	var addr string
	cmd.StringVar(&addr, "addr", ":"+cfg.Port, "Listen address")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, addr, stdout, stderr); err != nil {
		_, _ = fmt.Fprintf(stderr, "%sError:%s %v\n", ColorRed, ColorReset, err)
		return 1
	}
	return 0
}

// serve runs the API until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, addr string, stdout, stderr io.Writer) error {
	setupLogging(stderr, cfg.LogLevel)
	fmt.Fprintf(stdout, "%sHELM Bridge starting...%s\n", ColorBold+ColorBlue, ColorReset)

	otelCfg := observability.DefaultConfig()
	otelCfg.Enabled = cfg.OTELEnabled
	otelCfg.Endpoint = cfg.OTELEndpoint
	otelCfg.Insecure = true

	if cfg.LiteMode() {
		fmt.Fprintf(stdout, "ℹ️  DATABASE_URL not set. Using %sLite Mode%s (SQLite under %s).\n", ColorBold+ColorCyan, ColorReset, cfg.DataDir)
	}
	n, err := openNode(ctx, cfg, otelCfg)
	if err != nil {
		return err
	}
	defer func() { _ = n.Close() }()

	checkBootstrap(ctx, n)

	keys, err := loadKeySet(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("jwt keyset: %w", err)
	}
	limiter := api.NewGlobalRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer limiter.Close()

	handler := api.NewServer(n.proc, n.metrics).Handler(api.Options{
		Validator:   auth.NewJWTValidator(keys, cfg.JWTIssuer),
		RateLimiter: limiter,
		CORSOrigins: cfg.CORSOrigins,
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	fmt.Fprintf(stdout, "🔑 Receipt signer: %s%s%s\n", ColorBold+ColorGreen, n.proc.SignerKey(), ColorReset)
	log.Printf("[helm-bridge] program %s on chain %d", n.deployment.ProgramID, n.deployment.Chain)
	log.Printf("[helm-bridge] ready: http://%s", ln.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("[helm-bridge] shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

// checkBootstrap warns when the config record is missing or names another
// core bridge than the profile. Serving continues either way.
func checkBootstrap(ctx context.Context, n *node) {
	rec, err := n.bootstrap.Load(ctx)
	switch {
	case errors.Is(err, bootstrap.ErrNotInitialized):
		log.Printf("[helm-bridge] warning: program not initialized, run `helm-bridge init`")
	case err != nil:
		log.Printf("[helm-bridge] warning: failed to read config record: %v", err)
	case rec.CoreBridgeProgram != n.deployment.CoreBridgeProgram:
		log.Printf("[helm-bridge] warning: config record trusts core bridge %s, profile names %s",
			rec.CoreBridgeProgram, n.deployment.CoreBridgeProgram)
	}
}

