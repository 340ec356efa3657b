package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/moviebook/internal/booking"
	"github.com/iliyamo/moviebook/internal/catalog"
	"github.com/iliyamo/moviebook/internal/config"
	"github.com/iliyamo/moviebook/internal/database"
	"github.com/iliyamo/moviebook/internal/handler"
	"github.com/iliyamo/moviebook/internal/logger"
	"github.com/iliyamo/moviebook/internal/middleware"
	"github.com/iliyamo/moviebook/internal/queue"
	"github.com/iliyamo/moviebook/internal/repository"
	"github.com/iliyamo/moviebook/internal/router"
	"github.com/iliyamo/moviebook/internal/snapshot"
	"github.com/iliyamo/moviebook/internal/tmdb"
	"github.com/iliyamo/moviebook/internal/web"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}
	log := logger.New(cfg.Env, cfg.LogLevel)
	if envErr != nil {
		log.Debug("no .env file, using process environment")
	}
	if !cfg.TMDBConfigured() {
		log.Warn("TMDB_API_KEY is not set; movie data will come from the snapshot cache only")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbSettings := database.Settings{User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName}
	if cfg.DBAutoMigrate {
		if err := database.Migrate(dbSettings, log); err != nil {
			log.WithError(err).Fatal("migrate database")
		}
	}
	db, err := database.Open(dbSettings)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()

	redisCfg, err := config.LoadRedisConfig()
	if err != nil {
		log.WithError(err).Fatal("redis config")
	}
	cacheCfg, err := config.LoadCacheConfig()
	if err != nil {
		log.WithError(err).Fatal("cache config")
	}
	rlCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		log.WithError(err).Fatal("rate limit config")
	}
	rdb := config.NewRedisClient(redisCfg)
	if rdb == nil {
		log.WithField("addr", redisCfg.Addr).Warn("redis unavailable; rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}

	var pub queue.Publisher = queue.NopPublisher{}
	if cfg.RabbitEnabled {
		rp, err := queue.NewRabbitPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.WithError(err).Warn("rabbitmq unavailable; booking events disabled")
		} else {
			pub = rp
			go func() {
				if err := queue.StartBookingConsumer(ctx, cfg.RabbitURL, cfg.RabbitQueue, cfg.BookingLogPath, log); err != nil && !errors.Is(err, context.Canceled) {
					log.WithError(err).Error("booking consumer stopped")
				}
			}()
		}
	}
	defer pub.Close()

	client, err := tmdb.New(tmdb.Options{
		BaseURL: cfg.TMDBBaseURL,
		APIKey:  cfg.TMDBAPIKey,
		Timeout: cfg.TMDBTimeout,
		CAFile:  cfg.TMDBCAFile,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("tmdb client")
	}
	movies := catalog.New(client, snapshot.New(cfg.SnapshotDir, log), log)

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	bookings := booking.NewService(repository.NewBookingRepo(db), pub, log)

	renderer, err := web.NewRenderer()
	if err != nil {
		log.WithError(err).Fatal("load templates")
	}

	e := echo.New()
	e.HideBanner = true
	e.Renderer = renderer
	e.HTTPErrorHandler = handler.ErrorHandler(e, log)
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			entry := log.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"request_id": middleware.GetRequestID(c),
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request")
				return nil
			}
			entry.Info("request")
			return nil
		},
	}))

	router.Register(e, router.Handlers{
		Pages:     handler.NewPageHandler(movies),
		Movies:    handler.NewMovieHandler(movies, bookings, log),
		Auth:      handler.NewAuthHandler(cfg, users, tokens, log),
		Dashboard: handler.NewDashboardHandler(movies, bookings, log),
		API:       handler.NewAPIHandler(movies),
		DB:        db,
	}, router.Middleware{
		Session: &middleware.Session{
			Secret:    cfg.JWTSecret,
			AccessTTL: cfg.AccessTTL,
			Secure:    cfg.CookieSecure,
			Tokens:    tokens,
			Users:     users,
			Log:       log,
		},
		RateLimit: middleware.NewTokenBucket(rlCfg, rdb, log),
		Cache:     middleware.NewRedisCache(cacheCfg, rdb, log),
	})

	addr := ":" + cfg.Port
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown")
	}
}
