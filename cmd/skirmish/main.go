// Package main provides the skirmish exhibition runner. It wires the full
// encounter stack from configuration, stages a bout between archetype
// fighters in auto mode, and lets the engine's own timers drive it to the
// end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/arena"
	"github.com/cory-johannsen/skirmish/internal/config"
	"github.com/cory-johannsen/skirmish/internal/game/condition"
	"github.com/cory-johannsen/skirmish/internal/game/dice"
	"github.com/cory-johannsen/skirmish/internal/game/duel"
	"github.com/cory-johannsen/skirmish/internal/game/encounter"
	"github.com/cory-johannsen/skirmish/internal/game/roster"
	"github.com/cory-johannsen/skirmish/internal/narrator"
	"github.com/cory-johannsen/skirmish/internal/observability"
	"github.com/cory-johannsen/skirmish/internal/scripting"
	"github.com/cory-johannsen/skirmish/internal/server"
	"github.com/cory-johannsen/skirmish/internal/storage/postgres"
)

// fighter is the actor reference staged into exhibition encounters.
type fighter struct {
	id   string
	name string
}

func (f fighter) ID() string   { return f.id }
func (f fighter) Name() string { return f.name }

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	sessionID := flag.String("session", "exhibition", "session id for the staged bout")
	groupID := flag.String("group", "arena", "group id for the staged bout")
	fighters := flag.Int("fighters", 2, "number of archetype fighters to stage")
	damageExpr := flag.String("damage", "1d6", "damage dice expression for exhibition attacks")
	watch := flag.Bool("watch", false, "keep hosting the watchdog after the bout ends")
	noDB := flag.Bool("no-db", false, "run without PostgreSQL; summaries are not persisted")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	if *fighters < 2 {
		logger.Fatal("a bout needs at least two fighters", zap.Int("fighters", *fighters))
	}
	damage, err := dice.Parse(*damageExpr)
	if err != nil {
		logger.Fatal("parsing damage expression", zap.String("expr", *damageExpr), zap.Error(err))
	}

	logger.Info("starting skirmish",
		zap.Int("fighters", *fighters),
		zap.String("narrator", cfg.Narrator.Mode),
		zap.Bool("watch", *watch),
	)

	ctx := context.Background()

	roller := dice.NewLoggedRoller(dice.NewCryptoSource(), logger)

	// Load condition definitions; a missing directory falls back to the
	// built-in set.
	conds := condition.DefaultRegistry()
	if info, statErr := os.Stat(cfg.Content.ConditionsDir); statErr == nil && info.IsDir() {
		condStart := time.Now()
		conds, err = condition.LoadDirectory(cfg.Content.ConditionsDir)
		if err != nil {
			logger.Fatal("loading condition definitions", zap.Error(err))
		}
		logger.Info("loaded condition definitions",
			zap.Int("count", len(conds.All())),
			zap.Duration("elapsed", time.Since(condStart)),
		)
	} else {
		logger.Warn("conditions dir not found, using built-ins",
			zap.String("dir", cfg.Content.ConditionsDir))
	}

	archetypes, err := roster.LoadArchetypes(cfg.Content.ArchetypesDir)
	if err != nil {
		logger.Fatal("loading archetypes", zap.Error(err))
	}
	if len(archetypes) == 0 {
		logger.Fatal("no archetypes found", zap.String("dir", cfg.Content.ArchetypesDir))
	}
	logger.Info("loaded archetypes", zap.Int("count", len(archetypes)))

	stats := roster.NewRoster(archetypes, roller)
	executor := duel.NewExecutor(roller, damage)

	// Narration flows through a feed for the stdout play-by-play with a
	// structured copy via zap, optionally styled by Claude first.
	feed := narrator.NewFeed(cfg.Narrator.FeedBuffer)
	narr := narrator.NewTee(feed, narrator.NewLogNarrator(logger))
	if cfg.Narrator.Mode == "claude" {
		narr = narrator.NewClaudeNarrator(narrator.ClaudeConfig{
			APIKey:    cfg.Narrator.APIKey,
			Model:     cfg.Narrator.Model,
			MaxTokens: cfg.Narrator.MaxTokens,
			Timeout:   cfg.Narrator.Timeout,
		}, narr, logger)
		logger.Info("claude narration enabled", zap.String("model", cfg.Narrator.Model))
	}
	go func() {
		for ev := range feed.Events() {
			fmt.Printf("[round %d] %s\n", ev.Round, ev.Line)
		}
	}()

	// Connect to PostgreSQL for the encounter audit trail.
	var pool *postgres.Pool
	var summaries *postgres.SummaryRepository
	var sink arena.SummarySink
	if !*noDB {
		dbStart := time.Now()
		pool, err = postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		summaries = postgres.NewSummaryRepository(pool.DB())
		sink = summaries
	}

	// Initialise scripting when the script root is present. Encounter hooks
	// live under <scripts_dir>/encounter and load into the bout's group VM.
	var scripts *scripting.Manager
	if info, statErr := os.Stat(cfg.Content.ScriptsDir); statErr == nil && info.IsDir() {
		scriptStart := time.Now()
		scripts = scripting.NewManager(roller, logger)
		encounterDir := filepath.Join(cfg.Content.ScriptsDir, "encounter")
		if _, statErr := os.Stat(encounterDir); statErr == nil {
			if err := scripts.LoadGroup(*groupID, encounterDir, scripting.DefaultInstructionLimit); err != nil {
				logger.Fatal("loading encounter scripts", zap.String("dir", encounterDir), zap.Error(err))
			}
			logger.Info("encounter scripts loaded",
				zap.String("group", *groupID),
				zap.String("dir", encounterDir),
				zap.Duration("elapsed", time.Since(scriptStart)),
			)
		}
	}

	tun := arena.Tunables{
		TurnTimeout:      cfg.Encounter.TurnTimeout,
		AutoActDelay:     cfg.Encounter.AutoActDelay,
		MinTurnGap:       cfg.Encounter.MinTurnGap,
		RoundCooldown:    cfg.Encounter.RoundCooldown,
		MaxRounds:        cfg.Encounter.MaxRounds,
		IdleAfter:        cfg.Encounter.IdleAfter,
		GroupCapacity:    cfg.Encounter.GroupCapacity,
		StaleAfter:       cfg.Encounter.StaleAfter,
		RateLimitWindow:  cfg.Encounter.RateLimitWindow,
		RateLimitMax:     cfg.Encounter.RateLimitMax,
		MediaWaitTimeout: cfg.Encounter.MediaWaitTimeout,
		StatsTimeout:     cfg.Encounter.StatsTimeout,
		KnockoutCooldown: cfg.Encounter.KnockoutCooldown,
		WatchdogInterval: cfg.Encounter.WatchdogInterval,
		FleeDestination:  cfg.Encounter.FleeDestination,
	}

	mgr := arena.NewManager(logger, tun, roller, conds, stats, executor, narr, nil, sink, nil, scripts)
	mgr.WireScripting(func(groupID, msg string) {
		fmt.Printf("[%s] %s\n", groupID, msg)
	})
	watchdog := arena.NewWatchdog(mgr, logger)

	// Stage the bout: one fighter per archetype, round-robin when the
	// roster is smaller than the requested count.
	participants := make([]arena.Participant, 0, *fighters)
	seen := make(map[string]int)
	for i := 0; i < *fighters; i++ {
		arch := archetypes[i%len(archetypes)]
		seen[arch.Name]++
		name := arch.Name
		if seen[arch.Name] > 1 {
			name = fmt.Sprintf("%s %d", arch.Name, seen[arch.Name])
		}
		f := fighter{id: fmt.Sprintf("fighter-%d", i+1), name: name}
		if err := stats.Assign(f.id, arch.ID); err != nil {
			logger.Fatal("assigning archetype", zap.String("fighter", f.id), zap.Error(err))
		}
		participants = append(participants, arena.Participant{
			Ref:  f,
			Kind: encounter.KindHostile,
			Mode: encounter.ModeAuto,
		})
	}

	if _, _, err := mgr.CreateEncounter(*sessionID, *groupID, participants); err != nil {
		logger.Fatal("creating encounter", zap.Error(err))
	}
	if err := mgr.RollInitiative(ctx, *sessionID); err != nil {
		logger.Fatal("rolling initiative", zap.Error(err))
	}
	bout, ok := mgr.Get(*sessionID)
	if !ok {
		logger.Fatal("bout vanished after initiative", zap.String("session", *sessionID))
	}

	// Wire lifecycle. Stop order matters: the watchdog stops first, then
	// the manager flushes its encounters, then the pool closes.
	lifecycle := server.NewLifecycle(logger)
	if pool != nil {
		lifecycle.Add("postgres", &server.FuncService{
			StartFn: func() error {
				for {
					time.Sleep(30 * time.Second)
					if err := pool.Health(ctx, 5*time.Second); err != nil {
						logger.Warn("database health check failed", zap.Error(err))
						continue
					}
					stat := pool.Stat()
					logger.Debug("database healthy",
						zap.Int32("acquired", stat.AcquiredConns()),
						zap.Int32("idle", stat.IdleConns()),
						zap.Int32("total", stat.TotalConns()))
				}
			},
			StopFn: func() {
				pool.Close()
			},
		})
	}
	arenaStop := make(chan struct{})
	lifecycle.Add("arena", &server.FuncService{
		StartFn: func() error {
			<-arenaStop
			return nil
		},
		StopFn: func() {
			mgr.Shutdown()
			close(arenaStop)
		},
	})
	lifecycle.Add("watchdog", watchdog)

	logger.Info("skirmish initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("session", *sessionID),
		zap.Int("combatants", len(participants)),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		for !bout.Ended() {
			time.Sleep(200 * time.Millisecond)
		}
		printStandings(bout)
		if summaries != nil {
			printRecorded(ctx, summaries, *sessionID)
		}
		logger.Info("bout finished",
			zap.String("reason", string(bout.EndReason())),
			zap.Int("rounds", bout.Round()),
			zap.Duration("elapsed", time.Since(start)),
		)
		if !*watch {
			cancel()
		}
	}()

	if err := lifecycle.Run(runCtx); err != nil {
		logger.Fatal("runner error", zap.Error(err))
	}

	if scripts != nil {
		scripts.Close()
	}
	feed.Close()
	if n := feed.Dropped(); n > 0 {
		logger.Warn("narration events dropped", zap.Int("count", n))
	}
}

// printStandings writes the final roster state to stdout.
func printStandings(e *encounter.Encounter) {
	fmt.Printf("\n%s after %d rounds\n", e.EndReason(), e.Round())
	for _, c := range e.Combatants() {
		status := "standing"
		if c.Incapacitated() {
			status = "down"
		}
		fmt.Printf("  %-20s %3d/%3d HP  %s\n", c.Name, c.CurrentHP, c.MaxHP, status)
	}
}

// printRecorded shows the audit trail rows once the asynchronous summary
// write has landed.
func printRecorded(ctx context.Context, repo *postgres.SummaryRepository, sessionID string) {
	deadline := time.Now().Add(3 * time.Second)
	for {
		rows, err := repo.BySession(ctx, sessionID)
		if err == nil && len(rows) > 0 {
			break
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}

	recent, err := repo.ListRecent(ctx, 5)
	if err != nil {
		fmt.Printf("could not read recorded bouts: %v\n", err)
		return
	}
	fmt.Printf("\nlast %d recorded bouts:\n", len(recent))
	for _, sum := range recent {
		fmt.Printf("  %s  %-18s %2d rounds  survivors: %s\n",
			sum.EndedAt.Format(time.RFC3339), sum.Reason, sum.Rounds,
			strings.Join(sum.Survivors, ", "))
	}
}
