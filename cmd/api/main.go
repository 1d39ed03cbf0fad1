package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/fredSavings/pkg/config"
	"github.com/mcclellann/fredSavings/pkg/logger"
	"github.com/mcclellann/fredSavings/pkg/metrics"
	"github.com/mcclellann/fredSavings/pkg/notify"
	"github.com/mcclellann/fredSavings/pkg/proofs"
	"github.com/mcclellann/fredSavings/pkg/society"
	"github.com/mcclellann/fredSavings/pkg/store"
	"github.com/mcclellann/fredSavings/pkg/tracing"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// statusRecorder captures the response code for metrics and access logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// requestLogging attaches a request-scoped logger and records the request counter.
func requestLogging(base zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := routeTemplate(r)
			log := base.With().
				Str("request_id", uuid.NewString()).
				Str("method", r.Method).
				Str("route", route).
				Logger()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(logger.WithContext(r.Context(), log)))

			metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
			log.Info().
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Msg("request handled")
		})
	}
}

// newRouter registers every API route on a gorilla/mux router.
func newRouter(server *Server, log zerolog.Logger, tracer trace.Tracer) *mux.Router {
	router := mux.NewRouter()
	router.Use(tracing.Middleware(tracer))
	router.Use(requestLogging(log))

	router.HandleFunc("/register", server.registerHandler).Methods("POST")
	router.HandleFunc("/login", server.loginHandler).Methods("POST")

	router.HandleFunc("/members", server.listMembersHandler).Methods("GET")
	router.HandleFunc("/members/{id}/activate", server.activateMemberHandler).Methods("POST")
	router.HandleFunc("/members/{id}/dashboard", server.memberDashboardHandler).Methods("GET")

	router.HandleFunc("/installments", server.listInstallmentsHandler).Methods("GET")
	router.HandleFunc("/installments", server.submitInstallmentHandler).Methods("POST")
	router.HandleFunc("/installments/{id}/review", server.reviewInstallmentHandler).Methods("POST")
	router.HandleFunc("/late-fee", server.lateFeeHandler).Methods("GET")

	router.HandleFunc("/deposits", server.listDepositsHandler).Methods("GET")
	router.HandleFunc("/deposits", server.createDepositHandler).Methods("POST")
	router.HandleFunc("/deposits/{id}", server.updateDepositHandler).Methods("PUT")
	router.HandleFunc("/deposits/{id}", server.deleteDepositHandler).Methods("DELETE")

	router.HandleFunc("/distributions/preview", server.previewDistributionHandler).Methods("POST")
	router.HandleFunc("/distributions", server.applyDistributionHandler).Methods("POST")
	router.HandleFunc("/distributions", server.listDistributionsHandler).Methods("GET")

	router.HandleFunc("/dashboard", server.dashboardHandler).Methods("GET")
	router.HandleFunc("/reports", server.reportHandler).Methods("GET")

	router.HandleFunc("/settings/{key}", server.getSettingHandler).Methods("GET")
	router.HandleFunc("/settings/{key}", server.putSettingHandler).Methods("PUT")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return router
}

type proofBackend interface {
	proofs.Store
	Close() error
}

// newProofStore uses GCS when a bucket is configured and the local directory otherwise.
func newProofStore(ctx context.Context, cfg *config.Config) (proofBackend, error) {
	if cfg.ProofBucket != "" {
		return proofs.NewGCSStore(ctx, cfg.ProofBucket, cfg.MaxProofBytes)
	}
	return proofs.NewLocalStore(cfg.ProofDir, cfg.MaxProofBytes)
}

func newMailer(cfg *config.Config, log zerolog.Logger) (notify.Mailer, func()) {
	if cfg.SendgridAPIKey == "" {
		return notify.NewConsoleMailer(cfg.AppName, log), func() {}
	}
	sg := notify.NewSendgridMailer(cfg.SendgridAPIKey, mail.Address{Name: cfg.AppName, Address: cfg.MailFrom}, cfg.AppName, log)
	return sg, sg.Wait
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	tracer, shutdownTracing, err := tracing.Init(ctx, cfg.OTELServiceName, cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("flushing traces")
		}
	}()

	// Initialize SQLite Store
	sqliteStore, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize SQLite store: %w", err)
	}
	defer sqliteStore.Close()

	proofStore, err := newProofStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize proof storage: %w", err)
	}
	defer proofStore.Close()

	mailer, waitMail := newMailer(cfg, log)
	defer waitMail()

	svc := society.NewService(sqliteStore, proofStore, mailer, log.With().Str("component", "society").Logger())
	svc.SetAdminInbox(cfg.AdminEmail)
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		admin, err := svc.EnsureAdmin(society.Registration{Name: cfg.AdminName, Email: cfg.AdminEmail, Password: cfg.AdminPassword})
		if err != nil {
			return fmt.Errorf("failed to bootstrap admin: %w", err)
		}
		log.Info().Str("member_id", admin.ID.String()).Msg("admin account ready")
	}

	server := NewServer(svc, sqliteStore, cfg.MaxProofBytes)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(server, log, tracer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Realized interest moves as deposits mature; keep owner totals current.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n := svc.RefreshDepositOwners()
				log.Debug().Int("owners", n).Msg("deposit owner totals refreshed")
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("server starting")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogFormat, cfg.LogLevel).With().Str("app", cfg.AppName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
