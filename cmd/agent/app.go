package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"field-agent/internal/auth"
	"field-agent/internal/calls"
	"field-agent/internal/config"
	"field-agent/internal/history"
	"field-agent/internal/inbound"
	"field-agent/internal/keepawake"
	"field-agent/internal/push"
	"field-agent/internal/sessionstore"
	"field-agent/internal/tracking"
	"field-agent/pkg/logger"
	"field-agent/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// app owns every long-lived component of the agent process.
type app struct {
	cfg config.Config
	log *slog.Logger

	db  *sql.DB
	rdb *redis.Client

	auth       *auth.Manager
	store      sessionstore.Store
	dispatcher *push.Dispatcher
	daemon     *tracking.Daemon
	machine    *calls.Machine
	history    *history.Service
	presenter  *inbound.LogPresenter
	router     *inbound.Router
}

func buildApp(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.closeBackends()
		}
	}()

	if a.auth, err = auth.NewManager(cfg.Auth); err != nil {
		return nil, fmt.Errorf("auth init: %w", err)
	}

	if cfg.UsesPostgres() {
		if a.db, err = utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{}); err != nil {
			return nil, fmt.Errorf("postgres init: %w", err)
		}
	}
	if cfg.UsesRedis() {
		a.rdb, err = utils.OpenRedis(ctx, utils.RedisConfig{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("redis init: %w", err)
		}
	}

	if a.store, err = a.openStore(ctx); err != nil {
		return nil, err
	}

	var historyRepo history.Repository = history.NewMemoryRepo()
	if a.db != nil {
		pg := history.NewPostgresRepo(a.db)
		if err = pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		historyRepo = pg
	}
	a.history = history.NewService(historyRepo, log)

	caps := tracking.ParseCapabilities(cfg.Device.Capabilities)

	a.dispatcher = push.NewDispatcher(push.NewClient(cfg.Push.Timeout), push.DispatcherOptions{
		Workers: int64(cfg.Push.Workers),
		Timeout: 2 * cfg.Push.Timeout,
		Log:     logger.Component(log, "push"),
	})

	a.daemon = tracking.NewDaemon(tracking.Options{
		Store:        a.store,
		Pusher:       a.dispatcher,
		Lock:         a.keepAwake("tracking"),
		Capabilities: caps,
		Log:          log,
	})

	callLog := logger.Component(log, "calls")
	a.machine = calls.New(calls.Options{
		Lock: a.keepAwake("call"),
		Notifier: calls.Notifiers{
			a.history,
			calls.NotifierFunc(func(_ context.Context, s calls.Signal) {
				callLog.Info("call signal", "kind", s.Kind, "call_id", s.Session.CallID, "caller", s.Session.CallerName)
			}),
		},
		Log:               callLog,
		RejectWhileActive: cfg.Device.RejectWhileActive,
	})

	a.presenter = &inbound.LogPresenter{Log: logger.Component(log, "notifications")}
	a.router = &inbound.Router{
		Calls:        a.machine,
		Tracking:     a.daemon,
		Presenter:    a.presenter,
		Capabilities: caps,
		Log:          logger.Component(log, "inbound"),
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) (sessionstore.Store, error) {
	var opts []sessionstore.Option
	switch a.cfg.Store.Driver {
	case "file":
		opts = append(opts, sessionstore.WithPath(a.cfg.Store.Path))
	case "redis":
		opts = append(opts, sessionstore.WithRedisClient(a.rdb))
	case "postgres":
		opts = append(opts, sessionstore.WithDB(a.db))
	}
	store, err := sessionstore.NewStore(sessionstore.Driver(a.cfg.Store.Driver), opts...)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}
	if se, ok := store.(sessionstore.SchemaEnsurer); ok {
		if err := se.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (a *app) keepAwake(name string) keepawake.Lock {
	if a.cfg.Device.KeepAwakeDriver == "redis" && a.rdb != nil {
		return keepawake.NewRedis(a.rdb, name, a.log)
	}
	return keepawake.NewLocal(name, a.log)
}

// shutdown is the abnormal-exit path: tracking halts without the offline push
// so that the next start resumes it, and any live call is dropped silently.
func (a *app) shutdown(ctx context.Context) {
	if _, err := a.daemon.Stop(ctx, false); err != nil {
		a.log.Error("tracking stop failed", "err", err)
	}
	a.machine.Close()
	if err := a.history.Close(ctx); err != nil {
		a.log.Warn("call history not drained at shutdown", "err", err)
	}
	if err := a.dispatcher.Close(ctx); err != nil {
		a.log.Warn("pushes still in flight at shutdown", "err", err)
	}
	a.log.Info("push totals", "stats", a.dispatcher.Stats())
	a.closeBackends()
}

func (a *app) closeBackends() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
