// cmd/server/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/nvarela/turnero/internal/api/webhook"
	"github.com/nvarela/turnero/internal/availability"
	"github.com/nvarela/turnero/internal/booking"
	"github.com/nvarela/turnero/internal/bot"
	"github.com/nvarela/turnero/internal/calendar"
	"github.com/nvarela/turnero/internal/config"
	"github.com/nvarela/turnero/internal/db"
	"github.com/nvarela/turnero/internal/messaging"
	"github.com/nvarela/turnero/internal/ratelimit"
	"github.com/nvarela/turnero/internal/reminder"
	"github.com/nvarela/turnero/internal/session"
	"github.com/nvarela/turnero/internal/store"
	"github.com/nvarela/turnero/internal/tenant"
)

const shutdownTimeout = 30 * time.Second

func setupLogger(environment string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.App.Environment)

	registry, err := tenant.LoadRegistry(cfg.TenantsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load tenant registry")
	}
	log.Info().Int("tenants", len(registry.All())).Msg("Tenant registry loaded")

	database, err := db.New(cfg.Database.Filename)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer database.Close()

	sessions, err := newSessionStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to session store")
	}

	var messenger messaging.Messenger
	if cfg.Twilio.AccountSID != "" {
		messenger = messaging.NewTwilioMessenger(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken)
	} else {
		log.Warn().Msg("No Twilio credentials, outbound messages disabled")
		messenger = logMessenger{}
	}

	bookings := store.NewSQLStore(database)
	events := calendar.NewStore(database)
	engine := availability.NewEngine(events, nil)

	conversations := bot.New(
		sessions, engine,
		booking.NewCommitter(events, bookings),
		booking.NewCanceller(events, bookings),
		bookings, messenger, nil,
		bot.Config{
			SlotGranularity: cfg.Bot.SlotGranularity(),
			LookaheadDays:   cfg.Bot.LookaheadDays,
			MenuKeywords:    cfg.Bot.MenuKeywords,
			CancelKeywords:  cfg.Bot.CancelKeywords,
		},
	)
	limiter := ratelimit.New(nil)
	defer limiter.Close()
	webhook.InitHandlers(conversations, registry, limiter)

	server := newServer(cfg)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Reminders.Enabled {
		windows := make([]reminder.Window, len(cfg.Reminders.Windows))
		for i, w := range cfg.Reminders.Windows {
			windows[i] = reminder.Window{
				Label: w.Label,
				Lead:  time.Duration(w.LeadHours) * time.Hour,
			}
		}
		sweeper := reminder.NewSweeper(registry, bookings, sessions, messenger, nil, windows, cfg.Reminders.Band())

		scheduler, err := reminder.NewScheduler(log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create scheduler")
		}
		sweep := func() { sweeper.Sweep(log.Logger.WithContext(context.Background())) }
		if err := scheduler.AddJob("reminder-sweep", cfg.Reminders.Crontab, sweep,
			gocron.WithSingletonMode(gocron.LimitModeReschedule)); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule reminder sweep")
		}
		scheduler.Start()
		if cfg.Reminders.RunOnStartup {
			go sweep()
		}

		g.Go(func() error {
			<-ctx.Done()
			log.Info().Msg("Stopping scheduler")
			return scheduler.Stop()
		})
	}

	// Run server
	g.Go(func() error {
		log.Info().Int("port", cfg.App.Port).Msg("Starting server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Wait for interrupt signal
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info().Msg("Shutting down server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server terminated with error")
		os.Exit(1)
	}
}

func newSessionStore(cfg *config.Config) (session.Store, error) {
	if cfg.Bot.UseInMemorySessions {
		return session.NewMemoryStore(cfg.Bot.SessionTTL()), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("error reaching redis at %s: %w", cfg.Redis.Addr, err)
	}
	return session.NewRedisStore(client, cfg.Bot.SessionTTL()), nil
}

// logMessenger stands in when no transport is configured, so local runs
// still show what would have been sent.
type logMessenger struct{}

func (logMessenger) Send(ctx context.Context, from, to, body string) error {
	log.Ctx(ctx).Info().Str("to", to).Str("body", body).Msg("outbound message (dry run)")
	return nil
}
