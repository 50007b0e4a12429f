package main

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"langswap/internal/auth"
	"langswap/internal/calls"
	"langswap/internal/config"
	"langswap/internal/invitations"
	"langswap/internal/matches"
	"langswap/internal/presence"
	"langswap/internal/realtime"
	"langswap/internal/reporting"
	"langswap/internal/rooms"
	"langswap/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// app is the dependency graph shared by the subcommands. Fields are
// concrete so routes.go can hand them to handlers without type assertions.
type app struct {
	cfg config.Config
	log *slog.Logger

	db  *sql.DB
	rdb *redis.Client

	tokens   *auth.Manager
	dir      matches.Directory
	tracker  *presence.Tracker
	registry *rooms.Registry
	sessions *calls.Manager
	invites  *invitations.Manager
	reports  *reporting.Service

	hub      *realtime.Hub
	relay    *realtime.Relay
	notifier *realtime.Notifier
}

type stores struct {
	dir      matches.Directory
	presence presence.Repository
	rooms    rooms.Repository
	calls    calls.Repository
	invites  invitations.Repository
	reports  reporting.Repository
	limiter  realtime.ConnLimiter
}

func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	tokens, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, tokens: tokens}

	var st stores
	if cfg.UsesMemoryStore() {
		st = memoryStores(cfg, log)
	} else {
		st, err = a.openExternalStores(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.dir = st.dir
	a.tracker = presence.NewTracker(st.presence)
	a.registry = rooms.NewRegistry(st.rooms, st.dir, rooms.Options{StrictAccess: cfg.Signal.StrictRoomAccess, Logger: log})
	a.sessions = calls.NewManager(st.calls, a.registry, log)

	opts := realtime.Options{
		StoreTimeout:   cfg.Signal.StoreTimeout,
		LeaveTimeout:   cfg.Signal.LeaveTimeout,
		AllowedOrigins: cfg.Signal.AllowedOrigins,
		Limiter:        st.limiter,
		Logger:         log,
	}
	a.hub = realtime.NewHub()
	a.notifier = realtime.NewNotifier(a.hub, a.tracker, opts)
	a.relay = realtime.NewRelay(a.hub, a.registry, a.sessions, a.tracker, st.dir, opts)
	a.invites = invitations.NewManager(st.invites, st.dir, a.registry, a.tracker, a.notifier, log)
	a.reports = reporting.NewService(st.reports)
	return a, nil
}

func (a *app) openExternalStores(ctx context.Context) (stores, error) {
	db, err := utils.OpenPostgres(ctx, "pgx", a.cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxOpenConns: a.cfg.DB.MaxOpenConns})
	if err != nil {
		a.log.Error("postgres init failed", "err", err)
		return stores{}, err
	}
	a.db = db

	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{
		Addr:     a.cfg.RedisAddr(),
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err != nil {
		a.log.Error("redis init failed", "err", err)
		return stores{}, err
	}
	a.rdb = rdb

	callsRepo := calls.NewPostgresRepo(db)
	invitesRepo := invitations.NewPostgresRepo(db)
	st := stores{
		dir:      matches.NewPostgresDirectory(db),
		presence: presence.NewRedisRepo(rdb, "ls:"),
		rooms:    rooms.NewPostgresRepo(db),
		calls:    callsRepo,
		invites:  invitesRepo,
		reports:  reporting.NewSourceRepo(callsRepo, invitesRepo),
	}
	// NewConnSlots returns a nil pointer for "no cap"; keep the interface nil too.
	if slots := utils.NewConnSlots(rdb, a.cfg.Signal.MaxConnsPerUser, 2*time.Hour); slots != nil {
		st.limiter = slots
	}
	return st, nil
}

// memoryStores backs a single-process dev server. The directory is seeded
// with one demo pair so the flows work without the account service.
func memoryStores(cfg config.Config, log *slog.Logger) stores {
	dir := matches.NewMemoryDirectory()
	dir.PutUser(matches.User{ID: "demo-ana", Username: "ana"})
	dir.PutUser(matches.User{ID: "demo-ben", Username: "ben"})
	dir.PutMatch(matches.Match{
		ID:        "demo-match",
		User1ID:   "demo-ana",
		User2ID:   "demo-ben",
		Status:    matches.MatchStatusActive,
		CreatedAt: time.Now().UTC(),
	})
	log.Warn("using in-memory stores; state is lost on restart", "demo_match_id", "demo-match")

	callsRepo := calls.NewMemoryRepo()
	invitesRepo := invitations.NewMemoryRepo()
	st := stores{
		dir:      dir,
		presence: presence.NewMemoryRepo(),
		rooms:    rooms.NewMemoryRepo(),
		calls:    callsRepo,
		invites:  invitesRepo,
		reports:  reporting.NewSourceRepo(callsRepo, invitesRepo),
	}
	if cfg.Signal.MaxConnsPerUser > 0 {
		st.limiter = realtime.NewLocalLimiter(cfg.Signal.MaxConnsPerUser)
	}
	return st
}

// sweepLoop expires overdue invitations and prunes old answered ones until
// ctx is done.
func (a *app) sweepLoop(ctx context.Context, every, retention time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sctx, cancel := context.WithTimeout(ctx, every)
			if _, err := a.invites.SweepExpired(sctx, retention, false); err != nil {
				a.log.Warn("invitation sweep failed", "err", err)
			}
			cancel()
		}
	}
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
