package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"

	"attendance-service/internal/config"
	attendanceGet "attendance-service/internal/http-server/handlers/attendance/get"
	attendanceOverride "attendance-service/internal/http-server/handlers/attendance/override"
	attendanceReset "attendance-service/internal/http-server/handlers/attendance/reset"
	courseAttendance "attendance-service/internal/http-server/handlers/courses/attendance"
	coursePerformance "attendance-service/internal/http-server/handlers/courses/performance"
	eventJoin "attendance-service/internal/http-server/handlers/events/join"
	eventLeave "attendance-service/internal/http-server/handlers/events/leave"
	sessionExport "attendance-service/internal/http-server/handlers/sessions/export"
	sessionFinalize "attendance-service/internal/http-server/handlers/sessions/finalize"
	sessionRecalculate "attendance-service/internal/http-server/handlers/sessions/recalculate"
	sessionStatistics "attendance-service/internal/http-server/handlers/sessions/statistics"
	"attendance-service/internal/lock"
	"attendance-service/internal/notify"
	"attendance-service/internal/policy"
	"attendance-service/internal/scheduler"
	svc "attendance-service/internal/service"
	"attendance-service/internal/storage/memory"
	"attendance-service/internal/storage/postgres"
	"attendance-service/pkg/handlers/slogpretty"
	"attendance-service/pkg/middleware/mwLogger"
	"attendance-service/pkg/sl"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

const migrateTimeout = 30 * time.Second

type storage interface {
	svc.PresenceStore
	svc.ReportStore
	svc.RosterLookup
	svc.CourseLookup
	policy.SettingsProvider
	policy.CourseDirectory
	Close() error
}

type locker interface {
	lock.Locker
	Close() error
}

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting attendance service", slog.String("env", cfg.Env))
	log.Debug("Debug messages are enabled")

	store, err := setupStorage(log, cfg.StoragePath)
	if err != nil {
		log.Error("Failed to init storage", sl.Err(err))
		os.Exit(1)
	}

	var (
		locks locker
		sinks = []notify.Sink{notify.NewLogSink(log)}
	)
	if cfg.Redis.Address != "" {
		redisLock, err := lock.NewRedisLock(cfg.Redis.Address)
		if err != nil {
			log.Error("Failed to init redis lock", sl.Err(err))
			os.Exit(1)
		}
		locks = redisLock
		sinks = append(sinks, notify.NewRedisSink(redisLock.Client(), cfg.Redis.Channel))
	} else {
		log.Warn("Redis address is empty, using in-process locks")
		locks = lock.NewLocal()
	}

	dispatcher := notify.NewDispatcher(log, cfg.Attendance.NotificationQueueSize, cfg.Attendance.NotificationTimeout, sinks...)

	registry := policy.NewRegistry(log, store, store, policy.Thresholds{
		GraceMinutes:     cfg.Attendance.DefaultGraceMinutes,
		ThresholdPercent: cfg.Attendance.DefaultThresholdPercent,
	})

	service := svc.New(log, svc.Deps{
		Presence: store,
		Reports:  store,
		Rosters:  store,
		Courses:  store,
		Locker:   locks,
		Registry: registry,
		Policy:   policy.New(cfg.Attendance.PostSessionGrace),
		Notifier: dispatcher,
	}, svc.Options{
		LockTTL:         cfg.Attendance.LockTTL,
		LockRetry:       cfg.Attendance.LockRetry,
		Workers:         cfg.Attendance.Workers,
		ReconnectWindow: cfg.Attendance.ReconnectWindow,
		EventTTL:        cfg.Attendance.EventTTL,
	})

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(log, service, cfg.Scheduler.Spec, cfg.Scheduler.Lookback, cfg.Scheduler.Delay)
		if err != nil {
			log.Error("Failed to init scheduler", sl.Err(err))
			os.Exit(1)
		}
		sched.Start()
		log.Info("Scheduler started", slog.String("spec", cfg.Scheduler.Spec))
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(mwLogger.New(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	// Presence events
	router.Post("/events/join", eventJoin.New(log, service))
	router.Post("/events/leave", eventLeave.New(log, service))

	// Attendance
	router.Get("/sessions/{type}/{id}/attendance/{user}", attendanceGet.New(log, service))
	router.Put("/sessions/{type}/{id}/attendance/{user}", attendanceOverride.New(log, service))
	router.Delete("/sessions/{type}/{id}/attendance/{user}/override", attendanceReset.New(log, service))

	// Sessions
	router.Post("/sessions/{type}/{id}/finalize", sessionFinalize.New(log, service))
	router.Post("/sessions/{type}/{id}/recalculate", sessionRecalculate.New(log, service))
	router.Get("/sessions/{type}/{id}/statistics", sessionStatistics.New(log, service))
	router.Get("/sessions/{type}/{id}/export", sessionExport.New(log, service))

	// Courses
	router.Get("/courses/{id}/attendance", courseAttendance.New(log, service))
	router.Get("/courses/{id}/performance", coursePerformance.New(log, service))

	serv := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	serverErrCh := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", slog.String("addr", cfg.Address))
		if err := serv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		} else {
			serverErrCh <- nil
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			log.Error("HTTP server stopped unexpectedly", sl.Err(err))
		} else {
			log.Info("HTTP server stopped gracefully")
		}
	}

	shutdownTimeout := cfg.HTTPServer.ShutdownTimeout

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("Shutting down HTTP server", slog.String("timeout", shutdownTimeout.String()))

	if err := serv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", sl.Err(err))
	} else {
		log.Info("Server shutdown complete")
	}

	if sched != nil {
		if err := sched.Stop(ctx); err != nil {
			log.Error("Scheduler did not stop in time", sl.Err(err))
		} else {
			log.Info("Scheduler stopped")
		}
	}

	// Drain notifications before the redis client goes away.
	if err := dispatcher.Close(); err != nil {
		log.Error("Failed to close notifications", sl.Err(err))
	}

	if err := store.Close(); err != nil {
		log.Error("Failed to close storage", sl.Err(err))
	} else {
		log.Info("Storage closed")
	}

	if err := locks.Close(); err != nil {
		log.Error("Failed to close locker", sl.Err(err))
	} else {
		log.Info("Locker closed")
	}

	log.Info("Shutdown finished, server stopped")
}

func setupStorage(log *slog.Logger, storagePath string) (storage, error) {
	if storagePath == "" {
		log.Warn("Storage path is empty, using in-memory storage")
		return memory.New(), nil
	}

	pg, err := postgres.New(storagePath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()

	if err := pg.Migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, err
	}

	return pg, nil
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
