package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/TimMatthis/auzguard/pkg/api"
	"github.com/TimMatthis/auzguard/pkg/audit"
	"github.com/TimMatthis/auzguard/pkg/auth"
	"github.com/TimMatthis/auzguard/pkg/config"
	"github.com/TimMatthis/auzguard/pkg/connector"
	"github.com/TimMatthis/auzguard/pkg/observability"
	"github.com/TimMatthis/auzguard/pkg/orchestrator"
	"github.com/TimMatthis/auzguard/pkg/policy"
	"github.com/TimMatthis/auzguard/pkg/store"
)

// ANSI colors, matching the teacher's CLI banner style.
const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorBlue  = "\033[34m"
	colorGreen = "\033[32m"
	colorGray  = "\033[37m"
)

func main() {
	os.Exit(run())
}

func run() int {
	fmt.Fprintf(os.Stdout, "%sauzguard gateway starting...%s\n", colorBold+colorBlue, colorReset)

	ctx := context.Background()
	cfg := config.Load()

	st, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer func() { _ = st.Close() }()
	log.Printf("[auzguard] store: connected (%s)", cfg.DatabaseDriver)

	snapshot, err := store.NewSnapshotStore(ctx, st)
	if err != nil {
		log.Fatalf("failed to load initial snapshot: %v", err)
	}
	log.Println("[auzguard] snapshot: loaded")

	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.TelemetryEnabled
	if cfg.OTLPEndpoint != "" {
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	}
	provider, err := observability.New(ctx, obsCfg)
	if err != nil {
		log.Fatalf("failed to init observability: %v", err)
	}
	defer func() { _ = provider.Shutdown(context.Background()) }()
	log.Printf("[auzguard] observability: %v", cfg.TelemetryEnabled)

	validator := auth.NewJWTValidator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	if validator == nil {
		log.Println("[auzguard] WARNING: JWT_SECRET unset; all authenticated routes will fail closed")
	}

	engine := policy.NewEngine()
	auditLog := audit.NewLog(cfg.HashSalt)
	conn := connector.NewConnector(cfg.StubModelGarden)
	orch := orchestrator.New(engine, auditLog, conn).WithPersister(st)

	server := api.NewServer(snapshot, st, orch, auditLog, engine)
	if cfg.S3AuditBucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			log.Printf("[auzguard] WARNING: evidence-pack S3 upload disabled, failed to load AWS config: %v", err)
		} else {
			s3Client := s3.NewFromConfig(awsCfg)
			server = server.WithExporter(audit.NewExporter(auditLog, s3Client, cfg.S3AuditBucket))
			log.Printf("[auzguard] audit export: s3 upload enabled (bucket=%s)", cfg.S3AuditBucket)
		}
	}
	mux := http.NewServeMux()
	server.Routes(mux)

	limiter := auth.NewActorLimiter(50, 100)
	handler := auth.RequestIDMiddleware(
		auth.CORSMiddleware(nil)(
			auth.NewMiddleware(validator)(
				limiter.RateLimitMiddleware(mux),
			),
		),
	)

	addr := ":" + cfg.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("[auzguard] ready: http://localhost%s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
		}
	}()

	fmt.Fprintf(os.Stdout, "%spress ctrl+c to stop%s\n", colorGray, colorReset)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Fprintf(os.Stdout, "%sshutting down%s\n", colorGreen, colorReset)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[auzguard] shutdown error: %v", err)
		return 1
	}
	return 0
}
