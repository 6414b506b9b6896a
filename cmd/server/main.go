package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"poll-service/config"
	"poll-service/internal/api"
	"poll-service/internal/broadcast"
	"poll-service/internal/repository"
	"poll-service/internal/service"
	"poll-service/internal/socket"
	"poll-service/pkg/consul"
	"poll-service/pkg/resilience"
	"poll-service/pkg/zap"
)

func main() {
	cfg, err := config.Read()
	if err != nil {
		panic(err)
	}

	log := zap.NewLogger(cfg.LogLevel)
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
	db, err := repository.Connect(connectCtx, cfg.Mongo)
	if err != nil {
		connectCancel()
		log.Fatalf("mongo connect: %v", err)
	}
	if err := repository.EnsureIndexes(connectCtx, db); err != nil {
		connectCancel()
		log.Fatalf("mongo indexes: %v", err)
	}
	connectCancel()
	log.Infof("connected to mongo database %s", cfg.Mongo.Database)

	policy := resiliencePolicy(cfg.Resilience)
	storeExec := resilience.NewExecutor("mongo", policy, log,
		resilience.WithClassifier(repository.TransientStore))
	busExec := resilience.NewExecutor("redis", policy, log)

	pollRepo := repository.NewPollRepository(db.Collection(repository.CollectionPolls), storeExec)
	participantRepo := repository.NewParticipantRepository(db.Collection(repository.CollectionParticipants), storeExec)
	voteRepo := repository.NewVoteRepository(db.Collection(repository.CollectionVotes), storeExec)

	bus := broadcast.NewRedisBus(cfg.Redis, busExec, log)
	defer bus.Close()

	pollService := service.NewPollService(pollRepo, participantRepo, voteRepo, bus,
		cfg.Auth.HostTokenSecret, cfg.Poll.Retention, log)
	voteService := service.NewVoteService(pollRepo, participantRepo, voteRepo, bus, log)
	participantService := service.NewParticipantService(pollRepo, participantRepo, bus, log)

	hub := socket.NewHub(pollService, voteService, participantService, log)
	bus.SetLocalDelivery(hub.EmitLocal)

	go hub.Run()
	go bus.Run(ctx)
	go runHousekeeping(ctx, cfg.Poll, pollService, participantService, log)

	var registry consul.Client
	if cfg.Consul.Enabled {
		registry = consul.NewConsulConn(log, cfg)
		registry.Connect()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(api.RequestLogger(log))

	api.RegisterHealthRouters(r)
	api.RegisterPollRouters(r, pollService)
	api.RegisterSocketRouters(r, hub)

	srv := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		log.Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	if registry != nil {
		registry.Deregister()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server shutdown: %v", err)
	}

	hub.Shutdown()
	cancel()
}

func resiliencePolicy(cfg config.ResilienceConfig) resilience.Policy {
	policy := resilience.DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoff > 0 {
		policy.InitialBackoff = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		policy.MaxBackoff = cfg.MaxBackoff
	}
	if cfg.AttemptTimeout > 0 {
		policy.AttemptTimeout = cfg.AttemptTimeout
	}
	if cfg.BreakerThreshold > 0 {
		policy.BreakerThreshold = cfg.BreakerThreshold
	}
	if cfg.BreakerCooldown > 0 {
		policy.BreakerCooldown = cfg.BreakerCooldown
	}
	return policy
}

// runHousekeeping periodically expires old polls and sweeps participants whose
// connections vanished without a close frame.
func runHousekeeping(
	ctx context.Context,
	cfg config.PollConfig,
	polls service.PollService,
	participants service.ParticipantService,
	log zap.Logger,
) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tickCtx, tickCancel := context.WithTimeout(ctx, cfg.SweepInterval)

			if n, err := polls.DeactivateExpired(tickCtx); err != nil {
				log.Warnf("housekeeping: deactivate expired polls: %v", err)
			} else if n > 0 {
				log.Infof("housekeeping: deactivated %d expired polls", n)
			}

			if n, err := participants.MarkStaleDisconnected(tickCtx, cfg.StaleTimeout); err != nil {
				log.Warnf("housekeeping: stale participant sweep: %v", err)
			} else if n > 0 {
				log.Infof("housekeeping: disconnected %d stale participants", n)
			}

			tickCancel()
		}
	}
}
