// Package app wires the ava server runtime: config, logging, storage
// backends, the auth HTTP API, the janitor and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"ava/cmd/identity"
	"ava/cmd/identity/ids"
	authapi "ava/cmd/internal/auth/api"
	"ava/cmd/internal/auth/recovery"
	"ava/cmd/internal/auth/session"
	"ava/cmd/internal/metrics"
	"ava/cmd/internal/notify"
	"ava/cmd/security/password"
	"ava/cmd/security/token"
)

// App is the ava server runtime. It owns the DB pool, the Redis client and
// the notifier connection, and closes them after the HTTP server stops.
type App struct {
	cfg Config
	log Logger

	metrics *metrics.Registry

	pool     *pgxpool.Pool
	rdb      *redis.Client
	notifier io.Closer

	auth    *authapi.Handler
	janitor *Janitor
}

// backends are the stores selected for this process.
type backends struct {
	users    identity.Store
	sessions session.Store
	codes    recovery.Store
	auditor  authapi.Auditor
}

// New constructs a fully wired App. Without AVA_DATABASE_URL every store is
// in-memory; the recovery backend may still be Redis.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	a := &App{cfg: cfg, log: log, metrics: metrics.New()}
	if err := a.wire(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("session config: %w", err)
	}
	tokens, err := session.NewJWTGenerator(sessCfg)
	if err != nil {
		return err
	}
	digests, err := token.NewHasherFromEnv(a.cfg.RequireTokenHMAC)
	if err != nil {
		return fmt.Errorf("token hasher: %w", err)
	}

	pwCfg, err := password.FromEnv()
	if err != nil {
		return fmt.Errorf("password config: %w", err)
	}
	passwords, err := password.NewHasher(pwCfg)
	if err != nil {
		return err
	}

	recCfg, err := recovery.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	notifyCfg, err := notify.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	sender, closer, err := notify.New(notifyCfg, a.log, a.metrics.NotifyDeliveries)
	if err != nil {
		return err
	}
	a.notifier = closer

	b, err := a.openBackends(ctx, recCfg)
	if err != nil {
		return err
	}

	sessions := session.NewService(b.sessions, tokens, digests)
	rec, err := recovery.NewService(recCfg, b.codes, b.users, passwords, pwCfg, sender, recovery.WithLogger(a.log))
	if err != nil {
		return err
	}

	a.auth, err = authapi.NewHandler(a.log, authapi.LoadConfigFromEnv(), authapi.Deps{
		Users:     b.users,
		Passwords: passwords,
		Policy:    pwCfg,
		Sessions:  sessions,
		Recovery:  rec,
	}, authapi.WithAuditor(b.auditor), authapi.WithMetrics(a.metrics))
	if err != nil {
		return err
	}

	a.janitor = NewJanitor(a.log, a.cfg.JanitorInterval, a.metrics)
	a.janitor.Add("sessions", sessions)
	a.janitor.Add("recovery_codes", rec)

	a.log.Info("app.wired",
		"db_enabled", a.pool != nil,
		"recovery_backend", recCfg.Backend,
		"notify_transport", notifyCfg.Transport,
		"token_hmac", digests.HMAC(),
	)
	return nil
}

func (a *App) openBackends(ctx context.Context, recCfg recovery.Config) (backends, error) {
	var b backends

	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")

		users := identity.NewMemoryStore()
		sessions := session.NewMemoryStore()
		users.OnDelete(func(id ids.UserID) {
			_, _ = sessions.DeleteAllForUser(context.Background(), id)
		})
		b = backends{users: users, sessions: sessions, auditor: authapi.NopAuditor{}}

		if recCfg.Backend == recovery.BackendPostgres {
			a.log.Warn("recovery.backend.fallback", "from", recovery.BackendPostgres, "to", recovery.BackendMemory)
			recCfg.Backend = recovery.BackendMemory
		}
		if recCfg.Backend == recovery.BackendMemory {
			codes := recovery.NewMemoryStore(users)
			users.OnDelete(func(id ids.UserID) { _ = codes.Delete(context.Background(), id) })
			b.codes = codes
		}
	} else {
		pool, err := NewDBPool(ctx, a.cfg)
		if err != nil {
			return backends{}, fmt.Errorf("db: %w", err)
		}
		a.pool = pool
		a.log.Info("db.enabled.postgres_store", "schema", a.cfg.DBSchema)

		users, err := identity.NewPostgresStore(pool, identity.WithSchema(a.cfg.DBSchema))
		if err != nil {
			return backends{}, err
		}
		sessions, err := session.NewPostgresStore(pool, a.cfg.DBSchema)
		if err != nil {
			return backends{}, err
		}
		auditor, err := authapi.NewPostgresAuditor(pool, a.cfg.DBSchema)
		if err != nil {
			return backends{}, err
		}
		b = backends{users: users, sessions: sessions, auditor: auditor}

		switch recCfg.Backend {
		case recovery.BackendPostgres:
			codes, err := recovery.NewPostgresStore(pool, a.cfg.DBSchema)
			if err != nil {
				return backends{}, err
			}
			b.codes = codes
		case recovery.BackendMemory:
			b.codes = recovery.NewMemoryStore(users)
		}
	}

	if recCfg.Backend == recovery.BackendRedis {
		rdb, err := NewRedisClient(ctx, recCfg.RedisAddr, recCfg.RedisPass, recCfg.RedisDB)
		if err != nil {
			return backends{}, fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
		b.codes = recovery.NewRedisStore(rdb, b.users, recCfg.Retention)
	}

	if b.codes == nil {
		return backends{}, fmt.Errorf("recovery: unsupported backend %q", recCfg.Backend)
	}
	return b, nil
}

// Run starts the HTTP server and the janitor and blocks until ctx is done or
// the server fails.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		a.janitor.Run(janitorCtx)
	}()

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.pool != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		runErr = errors.Join(runErr, err)
	}

	stopJanitor()
	<-janitorDone
	a.close()

	a.log.Info("server.stopped")
	return runErr
}

func (a *App) close() {
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.log.Error("notify.close.fail", "err", err)
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
