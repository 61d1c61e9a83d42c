package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	configloader "github.com/foxseedlab/modbot/external/config"
	discordimpl "github.com/foxseedlab/modbot/external/discord"
	snapshotimpl "github.com/foxseedlab/modbot/external/snapshot"
	webhookimpl "github.com/foxseedlab/modbot/external/webhook"
	"github.com/foxseedlab/modbot/internal/config"
	"github.com/foxseedlab/modbot/internal/discord"
	"github.com/foxseedlab/modbot/internal/incident"
	"github.com/foxseedlab/modbot/internal/session"
	"github.com/foxseedlab/modbot/internal/snapshot"
	"github.com/foxseedlab/modbot/internal/store"
	"github.com/samber/do/v2"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const (
	discordConnectTimeout  = 20 * time.Second
	snapshotCommandTimeout = 30 * time.Second
)

func main() {
	app := &cli.Command{
		Name:   "modbot",
		Usage:  "Relay private reports between users and guild staff",
		Action: runAction,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Start the bot",
				Action: runAction,
			},
			{
				Name:  "snapshot",
				Usage: "Inspect or rewrite the persisted state",
				Commands: []*cli.Command{
					{
						Name:   "show",
						Usage:  "Print the stored snapshot in the current schema",
						Action: showSnapshot,
					},
					{
						Name:   "migrate",
						Usage:  "Rewrite the stored snapshot in the current schema",
						Action: migrateSnapshot,
					},
				},
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		slog.Error("modbot exited with error", "error", err)
		os.Exit(1)
	}
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	store.RegisterDI(injector)
	snapshotimpl.RegisterDI(injector)
	snapshot.RegisterDI(injector)
	discordimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	incident.RegisterDI(injector)
	session.RegisterDI(injector)

	return injector
}

func bootstrap() do.Injector {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "snapshot_backend", cfg.SnapshotBackend)

	slog.Info("startup: building dependency graph")
	return setupDI(cfg)
}

func shutdown(injector do.Injector) {
	if errs := injector.Shutdown(); errs != nil {
		slog.Error("dependency shutdown failed", "error", errs)
	}
}

func runAction(ctx context.Context, _ *cli.Command) error {
	injector := bootstrap()
	defer shutdown(injector)

	slog.Info("startup: launching discord bot")
	return runBot(ctx, injector)
}

func runBot(ctx context.Context, injector do.Injector) error {
	persister, err := do.Invoke[*snapshot.Persister](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve snapshot persister: %w", err)
	}
	dc, err := do.Invoke[discord.Client](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve discord client: %w", err)
	}
	manager, err := do.Invoke[*session.Manager](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve session manager: %w", err)
	}

	if err := persister.Restore(ctx); err != nil {
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, discordConnectTimeout)
	defer cancel()

	slog.Info("startup: connecting to discord gateway")
	if err := dc.Connect(connectCtx); err != nil {
		return fmt.Errorf("discord connect failed: %w", err)
	}
	slog.Info("startup: discord connected")
	defer func() {
		if err := dc.Close(); err != nil {
			slog.Error("discord close failed", "error", err)
		}
	}()

	botUserID, err := dc.GetBotUserID()
	if err != nil {
		return fmt.Errorf("failed to resolve bot user id: %w", err)
	}
	manager.SetBotUserID(botUserID)

	defs := session.SlashCommandDefinitions()
	if err := dc.UpsertSlashCommands(defs); err != nil {
		return fmt.Errorf("failed to upsert slash commands: %w", err)
	}

	dc.RegisterMessageHandler(manager.HandleMessage)
	dc.RegisterThreadUpdateHandler(manager.HandleThreadUpdate)
	dc.RegisterTypingHandler(manager.HandleTyping)
	dc.RegisterInteractionHandler(manager.HandleInteraction)
	dc.RegisterGuildJoinHandler(manager.HandleGuildJoin)
	slog.Info("discord handlers registered", "commands", len(defs))

	manager.AnnounceReady()

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		slog.Info("startup: entering discord run loop")
		return dc.Run(gctx)
	})
	g.Go(func() error {
		return persister.Run(gctx)
	})

	err = g.Wait()
	slog.Info("shutting down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func loadSnapshot(ctx context.Context, injector do.Injector) (snapshot.Backend, []byte, error) {
	backend, err := do.Invoke[snapshot.Backend](injector)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve snapshot backend: %w", err)
	}
	raw, err := backend.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	return backend, raw, nil
}

func showSnapshot(ctx context.Context, _ *cli.Command) error {
	injector := bootstrap()
	defer shutdown(injector)

	ctx, cancel := context.WithTimeout(ctx, snapshotCommandTimeout)
	defer cancel()

	_, raw, err := loadSnapshot(ctx, injector)
	if err != nil {
		return err
	}
	doc, err := snapshot.Decode(raw)
	if err != nil {
		return err
	}
	out, err := snapshot.Encode(doc)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}

func migrateSnapshot(ctx context.Context, _ *cli.Command) error {
	injector := bootstrap()
	defer shutdown(injector)

	ctx, cancel := context.WithTimeout(ctx, snapshotCommandTimeout)
	defer cancel()

	backend, raw, err := loadSnapshot(ctx, injector)
	if err != nil {
		return err
	}
	legacy := snapshot.IsLegacy(raw)
	doc, err := snapshot.Decode(raw)
	if err != nil {
		return err
	}
	out, err := snapshot.Encode(doc)
	if err != nil {
		return err
	}
	if err := backend.Save(ctx, out); err != nil {
		return fmt.Errorf("failed to save migrated snapshot: %w", err)
	}
	slog.Info("snapshot migrated", "legacy", legacy, "reports", len(doc.Reports), "guilds", len(doc.Guilds))
	return nil
}
