package main

import (
	"context"
	"database/sql"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"cumbria_stays/internal/adapters/observability"
	"cumbria_stays/internal/domain"
	"cumbria_stays/internal/shared"
	mysqlrepo "cumbria_stays/internal/storage/mysql"
)

type seedUser struct {
	email    string
	fullName string
	roles    []string
}

type seedProperty struct {
	title    string
	price    float64
	location string
	rules    string
	features string
}

var seedUsers = []seedUser{
	{"host1@cumbria.local", "Host One", []string{domain.RoleHost}},
	{"host2@cumbria.local", "Host Two", []string{domain.RoleHost}},
	{"host3@cumbria.local", "Host Three", []string{domain.RoleHost}},
	{"guest1@cumbria.local", "Guest One", nil},
	{"guest2@cumbria.local", "Guest Two", nil},
	{"support@cumbria.local", "Support Desk", []string{domain.RoleSupport}},
	{"admin@cumbria.local", "Site Admin", []string{domain.RoleAdmin}},
}

var seedProperties = []seedProperty{
	{"Seaside Cottage", 145, "Whitehaven", "No parties after 10pm", "Sea view, WiFi, log burner"},
	{"Fell View", 152, "Keswick", "No pets", "Hill view, WiFi, heater"},
	{"Town Studio", 95, "Kendal", "No smoking", "Kitchenette, WiFi"},
	{"Lakeside Retreat", 200, "Windermere", "Quiet hours 10pm-7am", "Lake view, BBQ"},
	{"Forest Cabin", 120, "Grizedale", "No outside fire", "Fireplace, WiFi"},
	{"Heritage Home", 148, "Cockermouth", "No loud music", "Courtyard, WiFi"},
	{"Riverside Den", 152, "Appleby", "Max 4 guests", "River view, parking"},
	{"Sunset Villa", 210, "St Bees", "Pool rules apply", "Pool, WiFi, kitchen"},
	{"Cliff House", 230, "Maryport", "No pets", "Cliff view, WiFi"},
	{"Garden Bungalow", 110, "Penrith", "No smoking inside", "Garden, WiFi"},
}

func main() {
	ctx := context.Background()
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv)
	log.Info().Int("workers", cfg.SeedWorkers).Msg("seeder starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	users := mysqlrepo.NewUserRepo(db)
	properties := mysqlrepo.NewPropertyRepo(db)

	// users first; properties reference hosts
	for _, u := range seedUsers {
		if err := users.UpsertUser(ctx, u.email, u.fullName, true); err != nil {
			log.Fatal().Err(err).Str("user", u.email).Msg("seed user failed")
		}
		for _, role := range u.roles {
			if err := users.GrantRole(ctx, u.email, role); err != nil {
				log.Fatal().Err(err).Str("user", u.email).Str("role", role).Msg("grant role failed")
			}
		}
	}
	log.Info().Int("count", len(seedUsers)).Msg("users seeded")

	hosts := []string{"host1@cumbria.local", "host2@cumbria.local", "host3@cumbria.local"}
	sem := semaphore.NewWeighted(int64(cfg.SeedWorkers))
	var wg sync.WaitGroup

	for i, sp := range seedProperties {
		sp := sp
		host := hosts[i%len(hosts)]

		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			if taken, err := properties.TitleExists(ctx, sp.title, ""); err != nil {
				log.Warn().Err(err).Str("title", sp.title).Msg("title check failed")
				return
			} else if taken {
				log.Info().Str("title", sp.title).Msg("already seeded, skipping")
				return
			}

			p := domain.Property{
				ID:            uuid.NewString(),
				Title:         sp.title,
				PricePerNight: sp.price,
				Location:      sp.location,
				Host:          host,
				Features:      sp.features,
				Rules:         sp.rules,
			}
			if err := properties.Insert(ctx, p); err != nil {
				log.Warn().Err(err).Str("title", sp.title).Msg("seed property failed")
				return
			}
			log.Info().Str("title", sp.title).Str("host", host).Msg("property seeded")
		}()
	}

	wg.Wait()
	log.Info().Msg("seeding completed")
}
