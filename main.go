package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"plant-downtime/internal/audit"
	"plant-downtime/internal/auth"
	"plant-downtime/internal/config"
	"plant-downtime/internal/downtime/application"
	"plant-downtime/internal/downtime/infrastructure/cache"
	"plant-downtime/internal/downtime/infrastructure/memory"
	"plant-downtime/internal/downtime/infrastructure/xlsx"
	downtimehttp "plant-downtime/internal/downtime/interfaces/http"
	downtimetelegram "plant-downtime/internal/downtime/interfaces/telegram"
	"plant-downtime/internal/observability/metrics"
	"plant-downtime/internal/telegram"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const sessionTTL = 30 * time.Minute

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Printf("env file: %v", err)
	}
	if len(os.Args) > 1 && os.Args[1] == "token" {
		issueToken(os.Args[2:])
		return
	}
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plant := config.DefaultPlant()
	if cfg.PlantConfig != "" {
		loaded, err := config.LoadPlant(cfg.PlantConfig)
		if err != nil {
			logger.Fatalf("plant config error: %v", err)
		}
		plant = loaded
	}
	if cfg.TopNReasons > 0 {
		plant.TopNReasons = cfg.TopNReasons
	}
	if err := plant.Validate(); err != nil {
		logger.Fatalf("plant config error: %v", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatalf("timezone %q: %v", cfg.Timezone, err)
	}

	var db *sql.DB
	var auditLog audit.Logger
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		auditRepo := audit.NewRepository(db)
		if err := auditRepo.EnsureSchema(ctx); err != nil {
			logger.Fatalf("audit schema error: %v", err)
		}
		auditLog = auditRepo
	}
	metrics.Init(db, logger)

	workbook, err := xlsx.Open(cfg.WorkbookPath, xlsx.Sheets{
		Downtime: plant.DowntimeSheet,
		Groups:   plant.GroupsSheet,
		Roles:    plant.RolesSheet,
	})
	if err != nil {
		logger.Fatalf("workbook error: %v", err)
	}

	downtimeCache, err := cache.New(workbook, cache.WithMaxAge(cfg.CacheMaxAge), cache.WithLogger(logger))
	if err != nil {
		logger.Fatalf("cache error: %v", err)
	}
	if err := downtimeCache.Refresh(ctx); err != nil {
		logger.Printf("downtime cache: initial refresh failed: %v", err)
	}
	downtimeCache.Start(ctx, cfg.CacheRefreshInterval)

	reports, err := application.NewReportService(downtimeCache, loc,
		application.WithTopN(plant.TopNReasons),
		application.WithReportLogger(logger),
	)
	if err != nil {
		logger.Fatalf("report service error: %v", err)
	}
	status, err := application.NewStatusService(plant.Registry, downtimeCache)
	if err != nil {
		logger.Fatalf("status service error: %v", err)
	}
	records, err := application.NewRecordService(plant.Registry, workbook, downtimeCache, downtimeCache, loc, systemClock{}, auditLog, logger)
	if err != nil {
		logger.Fatalf("record service error: %v", err)
	}
	roles, err := application.NewRoleService(workbook, plant.Roles(), auditLog, logger)
	if err != nil {
		logger.Fatalf("role service error: %v", err)
	}
	if err := roles.Reload(ctx); err != nil {
		logger.Printf("roles: initial load failed: %v", err)
	}

	if cfg.BotToken != "" {
		bot, err := telegram.NewClient(cfg.BotAPIURL, cfg.BotToken)
		if err != nil {
			logger.Fatalf("bot client error: %v", err)
		}
		handler, err := downtimetelegram.NewHandler(downtimetelegram.Deps{
			Bot:       bot,
			Reports:   reports,
			Status:    status,
			Records:   records,
			Roles:     roles,
			Groups:    workbook,
			Active:    downtimeCache,
			Refresher: downtimeCache,
			Registry:  plant.Registry,
			Sessions:  memory.NewSessionStore(sessionTTL),
			Location:  loc,
			Logger:    logger,
		})
		if err != nil {
			logger.Fatalf("chat handler error: %v", err)
		}
		go handler.Run(ctx, bot)

		if len(cfg.StatusReportAt) > 0 {
			broadcaster, err := application.NewStatusBroadcaster(status, roles, bot, plant.AdminRole, logger)
			if err != nil {
				logger.Fatalf("broadcaster error: %v", err)
			}
			scheduler, err := application.NewScheduler(broadcaster, cfg.StatusReportAt, loc, logger)
			if err != nil {
				logger.Fatalf("scheduler error: %v", err)
			}
			scheduler.Start(ctx)
		}
	} else {
		logger.Printf("BOT_TOKEN not set, chat bot disabled")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if downtimeCache.IsStale() {
			http.Error(w, "stale", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var root http.Handler = mux
	if cfg.JWTSecret != "" {
		apiHandler, err := downtimehttp.NewHandler(reports, status, downtimeCache, auditLog, cfg.PDFFontPath, logger)
		if err != nil {
			logger.Fatalf("reports api error: %v", err)
		}
		apiHandler.Register(mux)
		broker := downtimehttp.NewStatusBroker()
		downtimehttp.NewStatusPublisher(status, broker, cfg.StreamInterval, logger).Start(ctx)
		mux.Handle("/api/v1/lines/stream", downtimehttp.NewStreamHandler(broker, logger))

		policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
		root = auth.NewMiddleware([]byte(cfg.JWTSecret), policy, cfg.PlantID).Wrap(mux)
	} else {
		logger.Printf("AUTH_JWT_SECRET not set, reports api disabled")
	}

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(root, logger)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal(err)
	}
}

type appConfig struct {
	BotToken             string
	BotAPIURL            string
	WorkbookPath         string
	Timezone             string
	CacheRefreshInterval time.Duration
	CacheMaxAge          time.Duration
	TopNReasons          int
	StatusReportAt       []string
	StreamInterval       time.Duration
	HTTPAddr             string
	JWTSecret            string
	PlantID              string
	DatabaseURL          string
	PDFFontPath          string
	PlantConfig          string
}

func loadConfig() appConfig {
	cfg := appConfig{
		BotToken:             getenvDefault("BOT_TOKEN", ""),
		BotAPIURL:            getenvDefault("BOT_API_URL", telegram.DefaultBaseURL),
		WorkbookPath:         getenvDefault("WORKBOOK_PATH", "downtime.xlsx"),
		Timezone:             getenvDefault("PLANT_TIMEZONE", "Europe/Moscow"),
		CacheRefreshInterval: getenvDuration("CACHE_REFRESH_INTERVAL", 300*time.Second),
		CacheMaxAge:          getenvDuration("CACHE_MAX_AGE", 900*time.Second),
		TopNReasons:          getenvIntDefault("TOP_N_REASONS", 0),
		StreamInterval:       getenvDuration("STATUS_STREAM_INTERVAL", 5*time.Second),
		HTTPAddr:             getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:            getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		PlantID:              getenvDefault("PLANT_ID", ""),
		DatabaseURL:          getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		PDFFontPath:          getenvDefault("PDF_FONT_PATH", ""),
		PlantConfig:          getenvDefault("PLANT_CONFIG", ""),
	}
	times, err := application.ParseDailyTimes(getenvDefault("STATUS_REPORT_AT", "08:00,20:00"))
	if err != nil {
		log.Fatalf("STATUS_REPORT_AT: %v", err)
	}
	cfg.StatusReportAt = times
	return cfg
}

// issueToken prints a signed API token: plant-downtime token -role admin -subject ops.
func issueToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	role := fs.String("role", string(auth.RoleViewer), "viewer, operator or admin")
	subject := fs.String("subject", "api", "token subject")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	_ = fs.Parse(args)

	secret := getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", ""))
	if secret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	token, err := auth.IssueJWT([]byte(secret), getenvDefault("PLANT_ID", ""), *subject, auth.Role(*role), *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(token)
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

// getenvDuration accepts Go durations ("5m") or plain seconds ("300").
func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
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

// Hijack lets the websocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("http: hijack not supported")
	}
	return hijacker.Hijack()
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
