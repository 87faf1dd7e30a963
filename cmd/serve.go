package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/deskbot/internal/bus"
	"github.com/nextlevelbuilder/deskbot/internal/coalesce"
	"github.com/nextlevelbuilder/deskbot/internal/config"
	"github.com/nextlevelbuilder/deskbot/internal/delivery"
	"github.com/nextlevelbuilder/deskbot/internal/flagstore"
	"github.com/nextlevelbuilder/deskbot/internal/handoff"
	"github.com/nextlevelbuilder/deskbot/internal/httpapi"
	"github.com/nextlevelbuilder/deskbot/internal/orchestrator"
	"github.com/nextlevelbuilder/deskbot/internal/providers"
	"github.com/nextlevelbuilder/deskbot/internal/relay"
	"github.com/nextlevelbuilder/deskbot/internal/retrieval"
	"github.com/nextlevelbuilder/deskbot/internal/sessions"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and answer pipeline",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flags, err := flagstore.New(cfg.HandoffStatePath())
	if err != nil {
		slog.Error("init handoff store", "error", err)
		os.Exit(1)
	}

	client := providers.NewClient(providers.Config{
		APIKey:     cfg.Provider.APIKey,
		APIBase:    cfg.Provider.APIBase,
		ChatModel:  cfg.Provider.ChatModel,
		EmbedModel: cfg.Provider.EmbedModel,
		Timeout:    time.Duration(cfg.Provider.TimeoutSec) * time.Second,
	})

	corpus, err := retrieval.OpenCorpus(cfg.CorpusPath(), client, cfg.Answer.SearchLimit)
	if err != nil {
		slog.Error("open corpus", "error", err)
		os.Exit(1)
	}
	defer corpus.Close()

	channel := delivery.NewLineClient(cfg.Channel.APIBase, cfg.Channel.Token,
		time.Duration(cfg.Channel.TimeoutSec)*time.Second)

	history := sessions.NewHistory(cfg.SessionTTL(), cfg.Sessions.MaxTurns)
	machine := handoff.NewMachine(flags, history, channel, handoff.Vocabulary{
		Request: cfg.Handoff.RequestWords,
		Release: cfg.Handoff.ReleaseWords,
	})
	binder := relay.NewBinder(channel, cfg.RelayTTL())

	orch := orchestrator.New(
		orchestrator.Options{
			SimThreshold:  cfg.Answer.SimThreshold,
			Margin:        cfg.Answer.Margin,
			MaxReplyRunes: cfg.Answer.MaxReplyRunes,
			StaffGroupID:  cfg.Channel.StaffGroupID,
		},
		machine, history, corpus, client, channel, channel, binder,
		bus.NewDeduper(5*time.Minute),
		coalesce.Options{
			Window:       cfg.CoalesceWindow(),
			MaxFragments: cfg.Coalesce.MaxFragments,
			MaxChars:     cfg.Coalesce.MaxChars,
		},
	)
	defer orch.Stop()

	events := bus.New(256)
	server := httpapi.NewServer(events, cfg.Server.WebhookToken, cfg.Server.RateLimitRPM)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		events.Consume(gctx, orch.HandleEvent)
		return nil
	})
	g.Go(func() error {
		return server.ListenAndServe(cfg.Server.Host, cfg.Server.Port)
	})
	if age := cfg.AutoRelease(); age > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if released := machine.ReleaseStale(age); len(released) > 0 {
						slog.Info("handoff: auto-released stale suspensions", "users", released)
					}
				}
			}
		})
	}
	g.Go(func() error {
		err := config.Watch(gctx, cfgPath, func(next *config.Config) {
			orch.SetPolicy(next.Answer.SimThreshold, next.Answer.Margin)
		})
		if err == context.Canceled {
			return nil
		}
		return err
	})

	slog.Info("deskbot started", "version", Version, "config", cfgPath)
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("deskbot exited", "error", err)
		os.Exit(1)
	}
	slog.Info("deskbot stopped")
}
