// Package main provides the bot entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	apidiscord "github.com/osa030/voxbox/internal/api/discord"
	"github.com/osa030/voxbox/internal/api/status"
	"github.com/osa030/voxbox/internal/app/filter"
	"github.com/osa030/voxbox/internal/app/guild"
	"github.com/osa030/voxbox/internal/app/notification"
	"github.com/osa030/voxbox/internal/app/voice"
	"github.com/osa030/voxbox/internal/infra/config"
	"github.com/osa030/voxbox/internal/infra/discord"
	"github.com/osa030/voxbox/internal/infra/logger"
	"github.com/osa030/voxbox/internal/infra/youtube"
)

var (
	app        = kingpin.New("voxbox", "voxbox Discord music bot")
	configPath = app.Flag("config", "Path to config file").Default("config/voxbox.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	registerCmd    = app.Command("register", "Register slash commands and exit")
	unregisterCmd  = app.Command("unregister", "Delete slash commands and exit")
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	app.Command("start", "Start the bot (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	switch command {
	case registerCmd.FullCommand():
		err = withSession(cfg, func(s *discordgo.Session) error {
			return apidiscord.Register(s, s.State.User.ID, cfg.Discord.GuildID)
		})
	case unregisterCmd.FullCommand():
		err = withSession(cfg, func(s *discordgo.Session) error {
			return apidiscord.Unregister(s, s.State.User.ID, cfg.Discord.GuildID)
		})
	default:
		err = run(cfg)
	}
	if err != nil {
		zlog.Error().Msgf("Bot error: %v", err)
		os.Exit(1)
	}
}

// newSession creates the gateway session with the intents the bot needs.
func newSession(cfg *config.Config) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create discord session")
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	return s, nil
}

// withSession opens a gateway session, runs fn and closes the session.
func withSession(cfg *config.Config, fn func(s *discordgo.Session) error) error {
	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	if err := s.Open(); err != nil {
		return errors.Wrap(err, "failed to open discord session")
	}
	defer s.Close()
	return fn(s)
}

// run executes the main bot logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	session, err := newSession(cfg)
	if err != nil {
		return err
	}

	// Announcements fan out to the text channel and the status history
	notifier := notification.NewManager(cfg.SendTimeout())
	defer notifier.Close()
	recorder := notification.NewRecorder(cfg.Notification.HistorySize)
	announcerID := notifier.Subscribe(discord.NewAnnouncer(session))
	notifier.Subscribe(recorder)
	notifier.Subscribe(notification.StreamFunc(func(_ context.Context, a *notification.Announcement) error {
		zlog.Info().Msgf("announcement: guild=%s channel=%s kind=%s seq=%d", a.GuildID, a.ChannelID, a.Kind, a.SequenceNo)
		return nil
	}))
	zlog.Debug().Msgf("announcement subscribers: count=%d", notifier.SubscriberCount())

	voiceRegistry := voice.NewRegistry(discord.NewConnector(session, cfg.Playback.FFmpegPath))
	guildMgr, err := guild.NewManager(cfg, voiceRegistry, youtube.NewClient(), notifier)
	if err != nil {
		return errors.Wrap(err, "failed to create guild manager")
	}

	handler := apidiscord.NewHandler(cfg, guildMgr)
	session.AddHandler(handler.OnInteractionCreate)
	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		zlog.Info().Msgf("Logged in as %s#%s: guilds=%d", r.User.Username, r.User.Discriminator, len(r.Guilds))
	})

	if err := session.Open(); err != nil {
		return errors.Wrap(err, "failed to open discord session")
	}

	if !cfg.Discord.SkipRegister {
		if err := apidiscord.Register(session, session.State.User.ID, cfg.Discord.GuildID); err != nil {
			_ = session.Close()
			return err
		}
	}

	serverErrCh := make(chan error, 1)
	var server *http.Server
	if cfg.Status.Enabled {
		server = &http.Server{
			Addr:              cfg.Status.Addr,
			Handler:           status.NewServer(guildMgr, recorder, cfg.Status.Token).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			zlog.Info().Msgf("Starting status server: addr=%s", cfg.Status.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErrCh <- err
			}
		}()
	}

	executeHooks(cfg.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "status server error")
	}

	// Stop playback and leave every voice channel before closing the gateway
	guildMgr.Close()
	notifier.Unsubscribe(announcerID)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zlog.Error().Msgf("Failed to shutdown status server: %v", err)
		}
	}

	if err := session.Close(); err != nil {
		zlog.Error().Msgf("Failed to close discord session: %v", err)
	}

	zlog.Info().Msg("Bot stopped")

	executeHooks(cfg.Hooks.OnStopped, "on_stopped")

	return runErr
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	registered := filter.GetRegistered()
	for _, name := range filter.RegisteredNames() {
		f := registered[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
