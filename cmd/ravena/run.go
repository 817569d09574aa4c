package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/ravenabot/ravena/internal/api"
	"github.com/ravenabot/ravena/internal/biz"
	"github.com/ravenabot/ravena/internal/biz/domain"
	"github.com/ravenabot/ravena/internal/biz/usecase"
	"github.com/ravenabot/ravena/internal/conf"
	"github.com/ravenabot/ravena/internal/data"
	"github.com/ravenabot/ravena/internal/server"
	"github.com/ravenabot/ravena/internal/service"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Connect every configured bot session and serve until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "texts",
				Usage:   "Load user-facing texts from `FILE`",
				EnvVars: []string{"TEXTS_CONFIG_PATH"},
			},
		},
		Action: func(c *cli.Context) error {
			cfg := conf.LoadFromEnv()
			if path := c.String("texts"); path != "" {
				texts, err := conf.LoadTextsConfig(path)
				if err != nil {
					return fmt.Errorf("failed to load texts: %w", err)
				}
				cfg.Texts = texts
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return run(c.Context, cfg, newLogger(cfg.Debug, cfg.LogLevel))
		},
	}
}

func run(ctx context.Context, cfg *conf.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize repository layer
	var aiClient *data.OpenAIClient
	if cfg.OpenAI.APIKey != "" {
		aiClient = data.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model)
		log.Info().Str("model", cfg.OpenAI.Model).Msg("OpenAI client enabled")
	}
	repos, err := data.NewRepositories(cfg.DBPath, aiClient)
	if err != nil {
		return fmt.Errorf("failed to create repositories: %w", err)
	}
	defer repos.Close()
	log.Info().Str("path", cfg.DBPath).Msg("Database opened")

	// Initialize usecase layer
	texts := cfg.Texts
	if texts == nil {
		texts = conf.DefaultTextsConfig()
	}
	serviceTexts := texts.ServiceTexts()

	tasks := usecase.NewTasks(log)
	history := usecase.NewHistoryUsecase(usecase.DefaultHistorySize)
	uc := &biz.Usecases{
		Groups:  usecase.NewGroupConfigUsecase(repos.Group, log),
		Filter:  usecase.NewFilterUsecase(repos.Classifier, cfg.ToFilterConfig(), tasks, log),
		History: history,
		Ranking: usecase.NewRankingUsecase(repos.Ranking),
		Invites: usecase.NewInviteUsecase(repos.PendingJoin, cfg.ToInviteConfig(), log),
		Mention: usecase.NewMentionUsecase(repos.LLM, history, texts.MentionTexts(), tasks, log),
		Admins:  usecase.NewAdminUsecase(cfg.SuperAdmins),
		Tasks:   tasks,
	}
	defer uc.Invites.Close()

	if err := uc.Groups.LoadAll(ctx); err != nil {
		return err
	}

	// Initialize service layer
	registry, err := service.NewRegistry()
	if err != nil {
		return err
	}
	if err := service.RegisterBuiltins(registry, uc.Ranking, repos.LLM, serviceTexts); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	management := service.NewManagement(uc.Groups, uc.Admins, serviceTexts, log)
	dispatcher := service.NewDispatcher(registry, management, uc.Groups, uc.Admins, service.DispatcherConfig{
		Texts:         serviceTexts,
		NotifyUnknown: cfg.NotifyUnknown,
	}, log)

	fleet := service.NewFleet(cfg.ShutdownTimeout, log)
	monitor := service.NewStabilityMonitor(fleet.Sessions, cfg.Monitor.Threshold, cfg.Monitor.Interval, tasks, log)
	load := service.NewLoadReporter(fleet, cfg.LogsChatID, cfg.LoadReportInterval, serviceTexts.LoadReportTitle, log)
	router := service.NewRouter(uc, dispatcher, monitor, load, serviceTexts, log)

	if cfg.NATSURL != "" {
		bus, err := data.NewLivenessBus(cfg.NATSURL, log)
		if err != nil {
			return err
		}
		defer bus.Close()
		if err := shareLiveness(bus, monitor, log); err != nil {
			return err
		}
	}

	// Initialize sessions
	sessions := make([]*server.LarkSession, 0, len(cfg.Instances))
	for _, inst := range cfg.Instances {
		info := domain.SessionInfo{ID: inst.ID, PhoneNumber: inst.Phone, Aliases: inst.Aliases, Prefix: cfg.DefaultPrefix}
		sess := server.NewLarkSession(info, server.LarkConfig{AppID: inst.AppID, AppSecret: inst.AppSecret}, log)
		// handlers see the counting wrapper so replies show up in the load report
		wrapped := load.Wrap(sess)
		sess.Bind(router, wrapped)
		if err := sess.Start(ctx); err != nil {
			log.Error().Err(err).Str("session_id", inst.ID).Msg("Failed to start session")
			continue
		}
		if err := fleet.Add(wrapped); err != nil {
			sess.Shutdown(ctx)
			return err
		}
		sessions = append(sessions, sess)
	}
	if len(sessions) == 0 {
		return fmt.Errorf("no session could be started")
	}
	peers := fleet.PeerNumbers()
	for _, sess := range sessions {
		sess.SetPeers(peers)
	}

	monitor.Start(ctx)
	load.Start(ctx)

	var apiServer *api.Server
	if cfg.APIPort > 0 {
		apiServer = api.NewServer(fleet, uc.Groups, uc.History, cfg.APIPort, log)
		go func() {
			if err := apiServer.Start(); err != nil {
				log.Error().Err(err).Msg("API server error")
			}
		}()
	}

	log.Info().Int("sessions", len(sessions)).Str("version", version).Msg("ravena started")
	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout+5*time.Second)
	defer cancel()

	if apiServer != nil {
		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("API server did not stop cleanly")
		}
	}
	monitor.Stop()
	load.Stop()
	fleet.Shutdown(shutdownCtx)
	router.Wait()

	log.Info().Msg("Bye")
	return nil
}

// shareLiveness publishes local group traffic to other processes and feeds
// theirs into the local monitor
func shareLiveness(bus *data.LivenessBus, monitor *service.StabilityMonitor, log zerolog.Logger) error {
	self := uuid.NewString()
	if host, err := os.Hostname(); err == nil {
		self = host + "-" + self
	}

	monitor.SetRelay(func(e *domain.Event) {
		err := bus.Publish(data.Observation{
			ChatID:   e.ChatID(),
			AuthorID: e.AuthorID,
			SeenBy:   self,
			SeenAt:   e.Timestamp,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to publish observation")
		}
	})
	return bus.Subscribe(self, func(o data.Observation) {
		monitor.ObserveRemote(o.ChatID, o.AuthorID, o.SeenAt)
	})
}
