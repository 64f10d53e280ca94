package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"

	"github.com/fystack/jackpot-engine/internal/api"
	"github.com/fystack/jackpot-engine/internal/fairness"
	"github.com/fystack/jackpot-engine/internal/jackpot"
	"github.com/fystack/jackpot-engine/internal/metrics"
	"github.com/fystack/jackpot-engine/internal/payout"
	"github.com/fystack/jackpot-engine/internal/rpc/solana"
	"github.com/fystack/jackpot-engine/internal/worker"
	"github.com/fystack/jackpot-engine/pkg/common/config"
	"github.com/fystack/jackpot-engine/pkg/common/constant"
	"github.com/fystack/jackpot-engine/pkg/common/logger"
	"github.com/fystack/jackpot-engine/pkg/events"
	"github.com/fystack/jackpot-engine/pkg/infra"
	"github.com/fystack/jackpot-engine/pkg/kvstore"
	"github.com/fystack/jackpot-engine/pkg/model"
	"github.com/fystack/jackpot-engine/pkg/store/activitystore"
	"github.com/fystack/jackpot-engine/pkg/store/payoutstore"
	"github.com/fystack/jackpot-engine/pkg/store/roomstore"
	"golang.org/x/sync/errgroup"
)

// app is everything serve starts, in the order it has to stop.
type app struct {
	rooms   *jackpot.Manager
	workers *worker.Manager
	server  *api.Server
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("Config loaded", "environment", cfg.Environment, "rooms", cfg.Rooms.Names())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	return a.run(ctx)
}

// bootstrap wires the stores, the event stream, the rooms and the payout
// pipeline. On error every resource opened so far is closed again.
func bootstrap(ctx context.Context, cfg config.Config) (_ *app, err error) {
	workers := worker.NewManager()
	defer func() {
		if err != nil {
			_ = workers.Stop()
		}
	}()

	if cfg.HTTP.AdminToken == "" {
		logger.Warn("http.admin_token not set, admin routes are open")
	}

	kv, err := kvstore.NewFromConfig(cfg.KVStore)
	if err != nil {
		return nil, fmt.Errorf("open kvstore: %w", err)
	}

	activity, err := activitystore.New(ctx, cfg, kv)
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("open activity store: %w", err)
	}
	// activity may live in postgres, close it before the kv store it could share
	workers.AddResource("activity store", activity)
	workers.AddResource("kvstore", kv)

	emitter, err := buildEmitter(cfg, workers)
	if err != nil {
		return nil, err
	}

	var solanaAPI solana.SolanaAPI
	var beaconSource fairness.BlockhashSource
	if len(cfg.Solana.Nodes) > 0 {
		client, err := solana.NewFromConfig(cfg.Solana)
		if err != nil {
			return nil, fmt.Errorf("create solana client: %w", err)
		}
		workers.AddCloseFunc("solana client", client.Close)
		solanaAPI = client
		beaconSource = client
	}

	executor, err := payout.NewFromConfig(cfg, solanaAPI)
	if err != nil {
		return nil, fmt.Errorf("create payout executor: %w", err)
	}

	var failures worker.FailureQueue
	if cfg.Payout.ManualReview {
		rc, err := infra.NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		workers.AddResource("redis", rc)
		failures = worker.NewRedisFailureQueue(rc)
	}

	collector := metrics.NewCollector("jackpot")
	drawer := buildDrawer(cfg.Fairness, beaconSource, cfg.Solana)
	store := roomstore.NewRoomStore(kv)
	payouts := payoutstore.NewPayoutStore(kv)

	// rooms notify the worker, and the worker mirrors results back to rooms
	var payoutWorker *worker.PayoutWorker
	onPayout := func(p *model.Payout) { payoutWorker.Notify(p) }

	rooms := make([]*jackpot.Room, 0, len(cfg.Rooms.Items))
	for _, name := range cfg.Rooms.Names() {
		rc, err := cfg.Rooms.Get(name)
		if err != nil {
			return nil, err
		}
		room, err := jackpot.NewRoom(rc, jackpot.RoomDeps{
			Store:    store,
			Activity: activity,
			Emitter:  emitter,
			Drawer:   drawer,
			Metrics:  collector,
			OnPayout: onPayout,
		})
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	manager := jackpot.NewManager(rooms...)

	payoutWorker = worker.NewPayoutWorker(ctx, worker.PayoutDeps{
		Store:        payouts,
		Executor:     executor,
		Rooms:        manager,
		Emitter:      emitter,
		FailureQueue: failures,
		Metrics:      collector,
		Config:       cfg.Payout,
	})
	workers.AddWorkers(payoutWorker)

	server := api.NewServer(api.Deps{
		Rooms:    manager,
		Admin:    jackpot.NewAdminService(manager, activity),
		Activity: activity,
		Payouts:  payouts,
		Retrier:  payoutWorker,
		Metrics:  collector,
		Config:   cfg.HTTP,
		Version:  version,
	})

	return &app{rooms: manager, workers: workers, server: server}, nil
}

// buildEmitter connects to NATS when a url is configured. Without one events
// are dropped, which is fine for local runs.
func buildEmitter(cfg config.Config, workers *worker.Manager) (events.Emitter, error) {
	if cfg.NATS.URL == "" {
		logger.Warn("nats.url not set, jackpot events are not published")
		return events.NewNoopEmitter(), nil
	}

	nc, err := infra.GetNATSConnection(cfg.NATS, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	prefix := cfg.NATS.SubjectPrefix
	if prefix == "" {
		prefix = constant.EventSubjectPrefix
	}
	queue, err := infra.NewNATsMessageQueue(nc, infra.StreamOptions{
		Name:     constant.EventStreamName,
		Subjects: []string{prefix + ".>"},
	})
	if err != nil {
		nc.Close()
		return nil, err
	}
	emitter := events.NewEmitter(queue, prefix)
	workers.AddCloseFunc("event emitter", emitter.Close)
	workers.AddCloseFunc("nats", nc.Close)
	return emitter, nil
}

func buildDrawer(cfg config.FairnessConfig, src fairness.BlockhashSource, sc config.SolanaConfig) fairness.Drawer {
	if cfg.Mode == "insecure" {
		logger.Warn("Insecure drawer selected, draws are not verifiable")
		return fairness.NewInsecureDrawer(rand.Uint64())
	}
	if cfg.Beacon == "solana" && src != nil {
		return fairness.NewCommitRevealDrawer(fairness.NewSolanaBeacon(src, sc.Timeout))
	}
	return fairness.NewCommitRevealDrawer(fairness.RoundBeacon{})
}

// run blocks until ctx is done or the HTTP server fails, then stops the
// rooms first so no new payout is created while the worker winds down.
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.rooms.Start(gctx)
	a.workers.Start()
	g.Go(func() error {
		return a.server.Run(gctx)
	})

	logger.Info("Jackpot engine is running... Press Ctrl+C to stop")
	err := g.Wait()

	a.rooms.Stop()
	if stopErr := a.workers.Stop(); stopErr != nil {
		err = errors.Join(err, stopErr)
	}
	logger.Info("Jackpot engine stopped")
	return err
}
