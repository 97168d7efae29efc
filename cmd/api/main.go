package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/tourbase/experience-bookings/internal/clock"
	"github.com/tourbase/experience-bookings/internal/database"
	"github.com/tourbase/experience-bookings/internal/http/handlers"
	"github.com/tourbase/experience-bookings/internal/integrations/experienceconfig"
	"github.com/tourbase/experience-bookings/internal/platform/mailer"
	"github.com/tourbase/experience-bookings/internal/repo/postgres"
	"github.com/tourbase/experience-bookings/internal/scheduler"
	"github.com/tourbase/experience-bookings/internal/service/reservations"
	"github.com/tourbase/experience-bookings/internal/service/resources"
	"github.com/tourbase/experience-bookings/internal/service/slots"
	"github.com/tourbase/experience-bookings/internal/service/sweep"
	"github.com/tourbase/experience-bookings/internal/service/vouchers"
	"github.com/tourbase/experience-bookings/pkg/config"
	"github.com/tourbase/experience-bookings/pkg/events"
	"github.com/tourbase/experience-bookings/pkg/logger"
	appmw "github.com/tourbase/experience-bookings/pkg/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MinConns, cfg.Database.MaxConns, cfg.Database.MaxLifetime)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	bus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	redisClient := newRedisClient(cfg)
	defer redisClient.Close()

	clk := clock.NewSystem()

	// Repositories
	slotRepo := postgres.NewSlotRepo(pool)
	reservationRepo := postgres.NewReservationRepo(pool)
	voucherRepo := postgres.NewVoucherRepo(pool)
	resourceRepo := postgres.NewResourceRepo(pool)

	// Scheduler with durable one-shot jobs
	jobStore := scheduler.NewPGJobStore(pool)
	sched := scheduler.New(jobStore, clk, cfg.Booking.PollInterval)

	// Services
	expConfig := experienceconfig.NewClient(cfg.Experiences.URL, cfg.Experiences.Timeout, redisClient, cfg.Experiences.CacheTTL)
	slotFactory := slots.NewFactory(slotRepo, expConfig, bus)
	reservationSvc := reservations.NewService(reservationRepo, slotRepo, bus, clk, cfg.Booking.HoldTTL)
	voucherSvc := vouchers.NewService(voucherRepo, sched, newMailer(cfg), bus, clk)
	registry := resources.NewRegistry(resourceRepo, clk)
	sweeper := sweep.NewSweeper(reservationRepo, bus, clk, cfg.Booking.SweepInterval)

	sched.RegisterHandler(vouchers.JobKind, voucherSvc.ProcessScheduledDelivery)
	sweeper.EnsureScheduled(ctx, sched)

	// Router
	r := chi.NewRouter()
	r.Use(appmw.RequestID)
	r.Use(appmw.ServiceName("experience-bookings"))
	r.Use(appmw.Logging)
	r.Use(appmw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/v1", func(r chi.Router) {
		r.Mount("/slots", handlers.NewSlotHandler(slotFactory, reservationSvc).Routes())
		r.Mount("/reservations", handlers.NewReservationHandler(reservationSvc).Routes())
		r.Mount("/resources", handlers.NewResourceHandler(registry).Routes())
		r.Mount("/vouchers", handlers.NewVoucherHandler(voucherSvc).Routes())
	})
	r.Mount("/internal", handlers.NewInternalHandler(sweeper, voucherSvc).Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := sched.Start(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

func newRedisClient(cfg *config.Config) *redis.Client {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Warn("Invalid Redis URL, using defaults", "error", err)
		opts = &redis.Options{Addr: "localhost:6379"}
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return redis.NewClient(opts)
}

// newMailer picks the delivery backend: dev mode logs emails, a
// MailerSend key selects the API client, anything else goes over SMTP.
func newMailer(cfg *config.Config) mailer.Service {
	switch {
	case cfg.Email.DevMode:
		return mailer.NewDevMailer()
	case cfg.Email.MailerSendKey != "":
		return mailer.NewMailer(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.FromEmail)
	default:
		return mailer.NewSMTPMailer(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.FromEmail,
			cfg.Email.SMTPUser, cfg.Email.SMTPPass, cfg.Email.SMTPUseTLS)
	}
}
