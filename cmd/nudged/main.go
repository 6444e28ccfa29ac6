// nudged is the notification scheduling daemon: it scans a task database
// for due-soon and overdue tasks on cron cycles and dispatches consolidated
// reminders over websocket and email.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"nudge/internal/cache"
	"nudge/internal/config"
	"nudge/internal/consolidate"
	"nudge/internal/dedup"
	"nudge/internal/engine"
	"nudge/internal/eventbus"
	"nudge/internal/store"
	"nudge/internal/transport/mail"
	"nudge/internal/transport/push"
	"nudge/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./nudged.yaml", "path to config file (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	defer logSvc.Close()
	log = log.With(logx.String("comp", "nudged"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	busyTimeout, _ := config.ParseDurationOrDefault("store.busy_timeout", cfg.Store.BusyTimeout, 5*time.Second)
	db, err := store.Open(store.Config{Path: cfg.Store.Path, BusyTimeout: busyTimeout},
		log.With(logx.String("comp", "store")))
	if err != nil {
		return err
	}
	defer db.Close()

	backend, closeBackend, err := openCacheBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeBackend()

	results := cache.NewResultCache(backend, log.With(logx.String("comp", "cache")))

	retention, _ := config.ParseDurationOrDefault("engine.dedup_retention", cfg.Engine.DedupRetention, 2*time.Hour)
	dedupStore := dedup.New(backend, dedup.Config{Retention: retention},
		log.With(logx.String("comp", "dedup")))

	var pusher push.Pusher = push.Nop{}
	var httpSrv *http.Server
	if cfg.Push.Enabled {
		hub := push.NewHub(log.With(logx.String("comp", "push")))
		defer hub.Close()
		pusher = hub

		listen := cfg.Push.Listen
		if listen == "" {
			listen = ":8090"
		}
		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		httpSrv = &http.Server{Addr: listen, Handler: mux}
		go func() {
			log.Info("websocket listener up", logx.String("addr", listen))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("websocket listener failed", logx.Err(err))
			}
		}()
	}

	var mailer mail.Mailer = mail.Nop{}
	if cfg.Mail.Enabled {
		m, err := mail.NewSMTP(mail.Config{
			Host:           cfg.Mail.Host,
			Port:           cfg.Mail.Port,
			Username:       cfg.Mail.Username,
			Password:       cfg.Mail.Password,
			From:           cfg.Mail.From,
			SendsPerMinute: cfg.Mail.SendsPerMinute,
		}, log.With(logx.String("comp", "mail")))
		if err != nil {
			return err
		}
		mailer = m
	}

	bus := eventbus.New()

	eng, err := engine.New(engine.Deps{
		Tasks:  db,
		Users:  db,
		Result: results,
		Dedup:  dedupStore,
		Pusher: pusher,
		Mailer: mailer,
		Locale: localeFor(cfg.Engine.Locale),
		Bus:    bus,
		Log:    log.With(logx.String("comp", "engine")),
	}, policyFrom(cfg))
	if err != nil {
		return err
	}
	if err := eng.Start(ctx); err != nil {
		return err
	}

	// Hot reload: logging and engine policy apply live; cron specs and
	// transport wiring take effect on restart.
	sub := cfgm.Subscribe(8)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				logSvc.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File:    logx.FileConfig{Enabled: newCfg.Logging.File.Enabled, Path: newCfg.Logging.File.Path},
				})
				eng.Apply(policyFrom(newCfg))
				log.Info("config reloaded")
			}
		}
	}()
	go func() {
		if err := cfgm.Watch(ctx); err != nil {
			log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info("nudged started", logx.String("config", cfgPath))

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	eng.Stop(stopCtx)
	if httpSrv != nil {
		_ = httpSrv.Shutdown(stopCtx)
	}
	log.Info("nudged stopped")
	return nil
}

func openCacheBackend(ctx context.Context, cfg *config.Config, log logx.Logger) (cache.Backend, func(), error) {
	switch cfg.Cache.Backend {
	case "redis":
		r := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := r.Ping(pingCtx); err != nil {
			_ = r.Close()
			return nil, nil, fmt.Errorf("redis at %s: %w", cfg.Cache.Redis.Addr, err)
		}
		log.Info("cache backend: redis", logx.String("addr", cfg.Cache.Redis.Addr))
		return r, func() { _ = r.Close() }, nil
	default:
		log.Warn("cache backend: in-memory (dedup state will not survive restarts)")
		return cache.NewMemory(), func() {}, nil
	}
}

func policyFrom(cfg *config.Config) engine.Policy {
	d := engine.DefaultPolicy()
	horizon, _ := config.ParseDurationOrDefault("engine.reminder_horizon", cfg.Engine.ReminderHorizon, d.ReminderHorizon)
	remCD, _ := config.ParseDurationOrDefault("engine.reminder_cooldown", cfg.Engine.ReminderCooldown, d.ReminderCooldown)
	ovdCD, _ := config.ParseDurationOrDefault("engine.overdue_cooldown", cfg.Engine.OverdueCooldown, d.OverdueCooldown)
	ttl, _ := config.ParseDurationOrDefault("engine.cache_ttl", cfg.Engine.CacheTTL, d.CacheTTL)
	quantum, _ := config.ParseDurationOrDefault("engine.cache_quantum", cfg.Engine.CacheQuantum, d.CacheQuantum)

	return engine.Policy{
		ReminderSpec:     cfg.Engine.ReminderSpec,
		OverdueSpec:      cfg.Engine.OverdueSpec,
		SweepSpec:        cfg.Engine.SweepSpec,
		ReminderHorizon:  horizon,
		ReminderCooldown: remCD,
		OverdueCooldown:  ovdCD,
		CacheTTL:         ttl,
		CacheQuantum:     quantum,
	}
}

func localeFor(name string) consolidate.Locale {
	if name == "en" {
		return consolidate.English{}
	}
	return consolidate.Arabic{}
}
