package main

import (
	"database/sql"
	"net/http"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"cumbria_stays/internal/adapters/freetobook"
	server "cumbria_stays/internal/adapters/http_server"
	"cumbria_stays/internal/adapters/observability"
	redisad "cumbria_stays/internal/adapters/redis"
	"cumbria_stays/internal/app"
	"cumbria_stays/internal/shared"
	mysqlrepo "cumbria_stays/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	properties := mysqlrepo.NewPropertyRepo(db)
	bookings := mysqlrepo.NewBookingRepo(db)
	users := mysqlrepo.NewUserRepo(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	avail := app.NewAvailabilityService(bookings, cache, cfg.CacheTTL)
	bookingSvc := app.NewBookingService(bookings, properties, users, avail)
	propertySvc := app.NewPropertyService(properties, bookings, users, cache, cfg.CacheTTL)
	external := freetobook.New(cfg.FTBBase, cfg.ExternalRPS)

	// http
	srv := server.New(users)
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Properties: propertySvc,
		Bookings:   bookingSvc,
		Avail:      avail,
		External:   external,
	})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
