package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	alertapp "tankwatch-cloud/internal/alerts/application"
	alertrepo "tankwatch-cloud/internal/alerts/infrastructure/postgres"
	alerthttp "tankwatch-cloud/internal/alerts/interfaces/http"
	alertnotify "tankwatch-cloud/internal/alerts/notify"
	analyticsapp "tankwatch-cloud/internal/analytics/application"
	analyticsinterfaces "tankwatch-cloud/internal/analytics/interfaces"
	apihttp "tankwatch-cloud/internal/api/http"
	"tankwatch-cloud/internal/auth"
	"tankwatch-cloud/internal/observability/metrics"
	"tankwatch-cloud/internal/synclog"
	telemetryapp "tankwatch-cloud/internal/telemetry/application"
	telemetry "tankwatch-cloud/internal/telemetry/domain"
	telemetrypostgres "tankwatch-cloud/internal/telemetry/infrastructure/postgres"
	"tankwatch-cloud/internal/telemetry/interfaces/webhook"
	"tankwatch-cloud/internal/vendorclient"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)

	locationRepo := telemetrypostgres.NewLocationRepository(db)
	assetRepo := telemetrypostgres.NewAssetRepository(db)
	readingRepo := telemetrypostgres.NewReadingRepository(db)
	syncLogRepo := synclog.NewRepository(db)

	engine, err := analyticsapp.NewEngine(assetRepo, readingRepo,
		analyticsapp.WithWindowDays(cfg.WindowDays),
		analyticsapp.WithConcurrency(cfg.RecalcConcurrency),
		analyticsapp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("analytics engine error: %v", err)
	}

	thresholds, err := alertapp.LoadThresholds(cfg.ThresholdsFile)
	if err != nil {
		logger.Fatalf("alert thresholds error: %v", err)
	}
	alertBroker := alerthttp.NewSSEBroker()
	alertNotifiers := []alertapp.Notifier{alertBroker}
	if cfg.AlertWebhookURL != "" {
		webhookNotifier, err := alertnotify.NewWebhookNotifier(cfg.AlertWebhookURL, alertnotify.WithLogger(logger))
		if err != nil {
			logger.Fatalf("alert webhook error: %v", err)
		}
		alertNotifiers = append(alertNotifiers, webhookNotifier)
	}
	alertService, err := alertapp.NewService(
		alertrepo.NewAlertRepository(db),
		assetRepo,
		thresholds,
		alertapp.WithNotifier(alertnotify.NewMultiNotifier(alertNotifiers...)),
	)
	if err != nil {
		logger.Fatalf("alert service error: %v", err)
	}

	orchestrator, err := telemetryapp.NewOrchestrator(
		telemetry.NewNormalizer(),
		locationRepo,
		assetRepo,
		readingRepo,
		telemetryapp.WithEngine(engine),
		telemetryapp.WithAlertEvaluator(alertService),
		telemetryapp.WithRecorder(syncLogRepo),
		telemetryapp.WithLogger(logger),
		telemetryapp.WithConcurrency(cfg.IngestConcurrency),
	)
	if err != nil {
		logger.Fatalf("orchestrator error: %v", err)
	}

	ingestHandler, err := webhook.NewIngestHandler(orchestrator, logger)
	if err != nil {
		logger.Fatalf("ingest handler error: %v", err)
	}
	recalcHandler, err := analyticsinterfaces.NewRecalculateHandler(engine, syncLogRepo, logger)
	if err != nil {
		logger.Fatalf("recalculate handler error: %v", err)
	}
	alertHandler, err := alerthttp.NewHandler(alertService)
	if err != nil {
		logger.Fatalf("alert handler error: %v", err)
	}

	scheduler, err := analyticsapp.NewScheduler(engine, syncLogRepo, cfg.RecalcDailyAt, logger)
	if err != nil {
		logger.Fatalf("scheduler error: %v", err)
	}
	go scheduler.Start(context.Background())

	if cfg.VendorBaseURL != "" {
		vendor, err := vendorclient.NewClient(cfg.VendorBaseURL, cfg.VendorToken)
		if err != nil {
			logger.Fatalf("vendor client error: %v", err)
		}
		poller, err := vendorclient.NewPoller(vendor, orchestrator, cfg.VendorPollInterval, logger)
		if err != nil {
			logger.Fatalf("vendor poller error: %v", err)
		}
		go poller.Start(context.Background())
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/ingest/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	ingestAuth := auth.NewIngestAuthMiddleware([]byte(cfg.IngestToken))

	mux := http.NewServeMux()
	mux.Handle("/ingest/telemetry", ingestAuth.Wrap(ingestHandler))
	mux.Handle("/jobs/recalculate", recalcHandler)
	mux.Handle("/api/v1/locations", apihttp.NewLocationsHandler(db))
	mux.Handle("/api/v1/locations/", apihttp.NewLocationsHandler(db))
	mux.Handle("/api/v1/assets", apihttp.NewAssetsHandler(db))
	mux.Handle("/api/v1/assets/", apihttp.NewAssetsHandler(db))
	mux.Handle("/api/v1/alerts", alertHandler)
	mux.Handle("/api/v1/alerts/stream", alerthttp.NewStreamHandler(alertBroker))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL        string
	HTTPAddr           string
	WindowDays         int
	IngestConcurrency  int
	RecalcConcurrency  int
	RecalcDailyAt      string
	ThresholdsFile     string
	AlertWebhookURL    string
	VendorBaseURL      string
	VendorToken        string
	VendorPollInterval time.Duration
	JWTSecret          string
	IngestToken        string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:        getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		WindowDays:         getenvIntDefault("CONSUMPTION_WINDOW_DAYS", 7),
		IngestConcurrency:  getenvIntDefault("INGEST_CONCURRENCY", 4),
		RecalcConcurrency:  getenvIntDefault("RECALC_CONCURRENCY", 4),
		RecalcDailyAt:      getenvDefault("RECALC_DAILY_AT", "02:30"),
		ThresholdsFile:     getenvDefault("ALERT_THRESHOLDS_FILE", ""),
		AlertWebhookURL:    getenvDefault("ALERT_WEBHOOK_URL", ""),
		VendorBaseURL:      getenvDefault("VENDOR_BASE_URL", ""),
		VendorToken:        getenvDefault("VENDOR_TOKEN", ""),
		VendorPollInterval: getenvDuration("VENDOR_POLL_INTERVAL", 15*time.Minute),
		JWTSecret:          getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		IngestToken:        getenvDefault("INGEST_TOKEN", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	if cfg.IngestToken == "" {
		log.Fatal("INGEST_TOKEN is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
