package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"rdx-auth/internal/audit"
	auditrepo "rdx-auth/internal/audit/repository"
	authcoderepo "rdx-auth/internal/authcode/repository"
	authcodesvc "rdx-auth/internal/authcode/service"
	"rdx-auth/internal/config"
	"rdx-auth/internal/db"
	"rdx-auth/internal/devcode"
	healthhandler "rdx-auth/internal/health/handler"
	identityhandler "rdx-auth/internal/identity/handler"
	identitysvc "rdx-auth/internal/identity/service"
	"rdx-auth/internal/notify"
	"rdx-auth/internal/security"
	"rdx-auth/internal/server"
	"rdx-auth/internal/server/middleware"
	sessionrepo "rdx-auth/internal/session/repository"
	sessionsvc "rdx-auth/internal/session/service"
	"rdx-auth/internal/telemetry/otel"
	userhandler "rdx-auth/internal/user/handler"
	userrepo "rdx-auth/internal/user/repository"
	verificationrepo "rdx-auth/internal/verification/repository"
	verificationsvc "rdx-auth/internal/verification/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "rdx-auth", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	privateKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("JWT_PRIVATE_KEY: %v", err)
	}
	publicKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("JWT_PUBLIC_KEY: %v", err)
	}
	tokens := security.NewTokenProvider(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	hasher := security.NewHasher(cfg.BcryptCost)

	users := userrepo.NewPostgresRepository(database)
	challenges := verificationrepo.NewPostgresRepository(database)
	sessions := sessionrepo.NewPostgresRepository(database)
	authCodes := authcoderepo.NewPostgresRepository(database)
	auditLogs := auditrepo.NewPostgresRepository(database)

	var devStore devcode.Store
	if cfg.CodeReturnToClient {
		devStore = devcode.NewMemoryStore()
	}

	auditor := audit.NewLogger(auditLogs, middleware.ClientIP)
	verifier := verificationsvc.NewEngine(
		challenges, users, buildNotifier(cfg), devStore, auditor,
		cfg.VerificationTTL(), cfg.VerificationMaxAttempts,
	)
	resolver := identitysvc.NewResolver(users)
	coordinator := sessionsvc.NewCoordinator(sessions, tokens, resolver, cfg.RefreshTTL())
	broker := authcodesvc.NewBroker(authCodes, cfg.OAuthClientList(), cfg.CodeTTL())
	auth := identitysvc.NewAuthService(users, coordinator, broker, hasher, auditor)

	router := server.NewRouter(server.Deps{
		Users:      userhandler.NewHandler(auth, verifier, devStore),
		Auth:       identityhandler.NewHandler(auth, resolver, tokens),
		Health:     healthhandler.NewHandler(database),
		Meter:      providers.MeterProvider.Meter("rdx-auth/http"),
		CORSOrigin: cfg.CORSOrigin,
		DevRoutes:  cfg.CodeReturnToClient,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}

// buildNotifier wires SMTP and SMS senders from config. Channels without
// credentials fall back to log-only delivery so dev setups still work.
func buildNotifier(cfg *config.Config) *notify.Router {
	if cfg.SMTPHost == "" && cfg.SMSAPIKey == "" {
		return notify.RouterForDev()
	}
	var email notify.EmailSender = notify.LogSender{}
	if cfg.SMTPHost != "" {
		email = notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
	}
	var sms notify.SMSSender = notify.LogSender{}
	if cfg.SMSAPIKey != "" {
		sms = notify.NewSMSClient(cfg.SMSAPIKey, cfg.SMSBaseURL, cfg.SMSSender)
	}
	return notify.NewRouter(email, sms)
}
