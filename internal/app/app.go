// Package app assembles stores and services from configuration. Both the API
// server and the operator CLI start here.
package app

import (
	"context"
	"path/filepath"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"transit/internal/attendance"
	"transit/internal/auth"
	"transit/internal/config"
	"transit/internal/handler"
	"transit/internal/httpmiddleware"
	"transit/internal/logger"
	"transit/internal/roster"
	"transit/internal/store"
)

// LedgerFile is the file-backend ledger inside DATA_DIR.
const LedgerFile = "Attendance.csv"

type App struct {
	Config config.App
	Loc    *time.Location
	Log    *charmlog.Logger

	Roster *roster.Roster
	Scans  *attendance.Service
	Auth   *auth.Authenticator

	// DB and Redis are nil unless the configuration needs them.
	DB    *store.DB
	Redis *store.Redis
}

// Build connects the configured backends. Callers must Close the result.
func Build(ctx context.Context, cfg config.App) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Loc: loc, Log: logger.Default()}

	if cfg.RedisAddr != "" {
		a.Redis, err = store.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
	}

	var (
		rosterStore roster.Store
		ledger      attendance.Ledger
	)
	switch cfg.StorageBackend {
	case "postgres":
		a.DB, err = store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := store.Migrate(ctx, a.DB.Pool); err != nil {
			a.Close()
			return nil, err
		}
		rosterStore = roster.NewPostgresStore(a.DB.Pool)
		ledger = attendance.NewRepository(a.DB.Pool, loc)
	default:
		fs, err := roster.NewFileStore(cfg.DataDir)
		if err != nil {
			a.Close()
			return nil, err
		}
		rosterStore = fs
		if ledger, err = attendance.NewFileLedger(filepath.Join(cfg.DataDir, LedgerFile), loc,
			attendance.WithLedgerLogger(a.Log.With("component", "ledger"))); err != nil {
			a.Close()
			return nil, err
		}
	}

	var ropts []roster.Option
	if cfg.HashCredential {
		ropts = append(ropts, roster.WithCredentialHasher(auth.HashCredential))
	}
	a.Roster = roster.New(rosterStore, ropts...)

	var locker attendance.Locker
	switch cfg.ScanLock {
	case "none":
		locker = attendance.NoLock{}
		a.Log.Warn("SCAN_LOCK=none: concurrent scans for one rider can share a slot")
	case "redis":
		locker = attendance.NewRedisLocker(a.Redis.Client, cfg.ScanLockTTL)
	default:
		locker = attendance.NewMemoryLocker()
	}
	a.Scans = attendance.NewService(ledger,
		attendance.WithLocker(locker),
		attendance.WithLocation(loc),
		attendance.WithLogger(a.Log.With("component", "scans")),
	)
	a.Auth = auth.NewAuthenticator(a.Roster,
		auth.WithDeviceBinding(cfg.DeviceBinding),
		auth.WithDriverMode(auth.DriverMode(cfg.DriverAuth)),
		auth.WithAuthLogger(a.Log.With("component", "auth")),
	)
	return a, nil
}

// Router builds the HTTP surface, including the login rate limiter.
func (a *App) Router() (*gin.Engine, error) {
	checks := map[string]handler.HealthCheck{}
	if a.DB != nil {
		checks["db"] = a.DB.Healthy
	}
	var limiterClient *redis.Client
	if a.Redis != nil {
		checks["redis"] = a.Redis.Healthy
		limiterClient = a.Redis.Client
	}
	lim, err := httpmiddleware.NewLimiter(a.Config.LoginRateLimit, limiterClient)
	if err != nil {
		return nil, err
	}
	h := handler.New(handler.Deps{
		Roster:        a.Roster,
		Authenticator: a.Auth,
		Scans:         a.Scans,
		JWTIssuer:     a.Config.JWTIssuer,
		JWTSigningKey: a.Config.JWTSigningKey,
		SessionTTL:    a.Config.SessionTTL,
		Checks:        checks,
	})
	return handler.NewRouter(h, handler.RouterOptions{
		LoginLimit: httpmiddleware.GinMiddleware(lim),
		AccessLog:  !a.Config.IsProduction(),
	}), nil
}

func (a *App) Close() {
	if err := a.Redis.Close(); err != nil {
		a.Log.Warn("close redis", "err", err)
	}
	a.DB.Close()
}
