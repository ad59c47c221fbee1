package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"thesis_tracker/tracker/auth"
	"thesis_tracker/tracker/migrations"
	"thesis_tracker/tracker/seed"
	"thesis_tracker/tracker/services"
	"thesis_tracker/tracker/storage"
	"thesis_tracker/utils/logging"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type S3Env struct {
	Endpoint  string `env:"ENDPOINT"`
	Region    string `env:"REGION" envDefault:"us-east-1"`
	Bucket    string `env:"BUCKET"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	UseSsl    bool   `env:"USE_SSL" envDefault:"true"`
}

type KeycloakEnv struct {
	ServerUrl     string `env:"SERVER_URL"`
	Realm         string `env:"REALM" envDefault:"thesis-tracker"`
	AdminUsername string `env:"ADMIN_USER"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
	SkipTlsVerify bool   `env:"SKIP_TLS_VERIFY"`
}

type TrackerEnv struct {
	PublicHostname string   `env:"PUBLIC_HOSTNAME" envDefault:"localhost"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	DatabaseUri string `env:"DATABASE_URI"`
	SqlitePath  string `env:"SQLITE_PATH"`

	LogDir string `env:"LOG_DIR" envDefault:"./logs"`

	JwtSecret     string        `env:"JWT_SECRET,required"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	AdminEmail    string        `env:"ADMIN_MAIL,required"`
	AdminPassword string        `env:"ADMIN_PASSWORD,required"`

	IdentityProvider string      `env:"IDENTITY_PROVIDER" envDefault:"basic"`
	Keycloak         KeycloakEnv `envPrefix:"KEYCLOAK_"`

	StorageBackend    string `env:"STORAGE_BACKEND" envDefault:"disk"`
	ShareDir          string `env:"SHARE_DIR" envDefault:"./data"`
	S3                S3Env  `envPrefix:"S3_"`

	SubmissionRateLimit int `env:"SUBMISSION_RATE_LIMIT" envDefault:"0"`
}

func loadEnvFile(envFile string) error {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("error loading .env file '%v': %w", envFile, err)
	}
	return nil
}

/**
 * ===========================================================================
 * ==== All variables used by the thesis tracker must be loaded here.     ====
 * ==== This keeps the data flow clear so that a user can see what        ====
 * ==== variables are exposed, and how the values are propagated through  ====
 * ==== the system.                                                       ====
 * ===========================================================================
 */
func loadEnv() (*TrackerEnv, error) {
	cfg := &TrackerEnv{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.DatabaseUri == "" && cfg.SqlitePath == "" {
		return nil, errors.New("must specify one of DATABASE_URI or SQLITE_PATH")
	}
	if cfg.IdentityProvider != "basic" && cfg.IdentityProvider != "keycloak" {
		return nil, fmt.Errorf("invalid IDENTITY_PROVIDER '%v', must be 'basic' or 'keycloak'", cfg.IdentityProvider)
	}
	if cfg.IdentityProvider == "keycloak" && cfg.Keycloak.ServerUrl == "" {
		return nil, errors.New("must specify KEYCLOAK_SERVER_URL when IDENTITY_PROVIDER=keycloak")
	}
	if cfg.StorageBackend == "s3" && cfg.S3.Bucket == "" {
		return nil, errors.New("must specify S3_BUCKET when STORAGE_BACKEND=s3")
	}

	return cfg, nil
}

func (cfg *TrackerEnv) postgresDsn() (string, error) {
	parts, err := url.Parse(cfg.DatabaseUri)
	if err != nil {
		return "", fmt.Errorf("error parsing db uri: %w", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port()), nil
}

func initDb(cfg *TrackerEnv) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if cfg.DatabaseUri != "" {
		dsn, err := cfg.postgresDsn()
		if err != nil {
			return nil, err
		}
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(cfg.SqlitePath)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("error opening database connection: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return nil, fmt.Errorf("error migrating db schema: %w", err)
	}

	slog.Info("database ready", "dialect", db.Dialector.Name())

	return db, nil
}

func initIdentityProvider(cfg *TrackerEnv, db *gorm.DB, auditLog auth.AuditLogger) (auth.IdentityProvider, error) {
	if cfg.IdentityProvider == "keycloak" {
		provider, err := auth.NewKeycloakIdentityProvider(db, auditLog, auth.KeycloakArgs{
			KeycloakServerUrl:     cfg.Keycloak.ServerUrl,
			Realm:                 cfg.Keycloak.Realm,
			KeycloakAdminUsername: cfg.Keycloak.AdminUsername,
			KeycloakAdminPassword: cfg.Keycloak.AdminPassword,
			AdminEmail:            cfg.AdminEmail,
			AdminPassword:         cfg.AdminPassword,
			PublicHostname:        cfg.PublicHostname,
			SkipTlsVerify:         cfg.Keycloak.SkipTlsVerify,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating keycloak identity provider: %w", err)
		}
		return provider, nil
	}

	provider, err := auth.NewBasicIdentityProvider(db, auditLog, auth.BasicProviderArgs{
		Secret:        []byte(cfg.JwtSecret),
		TokenTTL:      cfg.TokenTTL,
		AdminEmail:    cfg.AdminEmail,
		AdminPassword: cfg.AdminPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating basic identity provider: %w", err)
	}
	return provider, nil
}

func initStorage(cfg *TrackerEnv) (storage.Storage, error) {
	if cfg.StorageBackend == "s3" {
		return storage.NewS3Storage(storage.S3Args{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSsl,
		})
	}

	if err := os.MkdirAll(cfg.ShareDir, 0777); err != nil {
		return nil, fmt.Errorf("error creating share dir: %w", err)
	}
	return storage.NewSharedDisk(cfg.ShareDir), nil
}

// The reason we have a separate runApp function is because the defer calls don't
// run if we exit with log.Fatalf, so instead we return an err here and fail outside
func runApp() error {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	seedFile := flag.String("seed", "", "Yaml file of accounts to create on startup.")
	port := flag.Int("port", 8000, "Port to run server on")

	flag.Parse()

	if *envFile != "" {
		if err := loadEnvFile(*envFile); err != nil {
			return err
		}
	}

	cfg, err := loadEnv()
	if err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := os.MkdirAll(cfg.LogDir, 0777); err != nil {
		return fmt.Errorf("error creating log dir: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(cfg.LogDir, "thesis_tracker.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	defer logFile.Close()

	auditLog, err := os.OpenFile(filepath.Join(cfg.LogDir, "audit.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		return fmt.Errorf("error opening audit log file: %w", err)
	}
	defer auditLog.Close()

	logging.InitLogging(logFile, "thesis_tracker")

	db, err := initDb(cfg)
	if err != nil {
		return err
	}

	identityProvider, err := initIdentityProvider(cfg, db, auth.NewAuditLogger(auditLog))
	if err != nil {
		return err
	}

	store, err := initStorage(cfg)
	if err != nil {
		return fmt.Errorf("error initializing attachment storage: %w", err)
	}
	slog.Info("attachment storage ready", "location", store.Location())

	if *seedFile != "" {
		accounts, err := seed.Load(*seedFile)
		if err != nil {
			return err
		}
		if _, err := seed.Apply(accounts, identityProvider); err != nil {
			return err
		}
	}

	tracker := services.NewThesisTracker(db, store, identityProvider, services.Options{
		SubmissionLimit: cfg.SubmissionRateLimit,
	})

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Location", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300, // Cache preflight response for 5 minutes
	}))
	r.Mount(services.ApiPrefix, tracker.Routes())
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: r,
	}

	// srv.Shutdown lets in flight requests finish, including attachment uploads.
	idleConnsClosed := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutdown signal received", "code", logging.SYSTEM)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("HTTP server Shutdown", "err", err)
		}
		close(idleConnsClosed)
	}()

	slog.Info("starting server", "port", *port, "code", logging.SYSTEM)
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve returned error: %w", err)
	}

	<-idleConnsClosed
	slog.Info("server stopped", "code", logging.SYSTEM)
	return nil
}

func main() {
	if err := runApp(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}
