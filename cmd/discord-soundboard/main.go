package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/fankserver/discord-soundboard/internal/audio"
	"github.com/fankserver/discord-soundboard/internal/bot"
	"github.com/fankserver/discord-soundboard/internal/config"
	"github.com/fankserver/discord-soundboard/internal/cues"
	mcpserver "github.com/fankserver/discord-soundboard/internal/mcp"
	"github.com/fankserver/discord-soundboard/internal/session"
	"github.com/fankserver/discord-soundboard/internal/soundboard"
)

func main() {
	// Configure logrus
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Debug("Error loading .env file, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	if _, err := os.Stat(cfg.SoundsDir); err != nil {
		logrus.WithField("dir", cfg.SoundsDir).Warn("Sounds directory missing, cues will not play")
	}

	// Set up signal handling with context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer cancel()

	resolver := cues.NewResolver(cfg.SoundsDir, cfg.JoinFile, cfg.LeaveFile, cfg.JoinSounds, cfg.LeaveSounds)
	player := audio.NewPlayer(audio.FFmpegStreamer{}, cfg.Filter(), cfg.PlayCooldown)

	voiceBot, err := bot.New(cfg.Token, cfg.ChannelID)
	if err != nil {
		logrus.WithError(err).Fatal("Error creating bot")
	}

	// The bot implements the dialer, roster and messenger seams; the two
	// managers reference each other, hence the late binds.
	sessions := session.NewManager(session.Options{
		Dialer:            voiceBot,
		Roster:            voiceBot,
		Cues:              resolver,
		Player:            player,
		JoinDelay:         cfg.JoinDelay,
		LeaveGrace:        cfg.LeaveGrace,
		GreetEveryArrival: cfg.GreetEveryArrival,
	})
	board := soundboard.New(soundboard.Options{
		Messenger: voiceBot,
		Library:   resolver,
		Sessions:  sessions,
		Player:    player,
		Debounce:  cfg.RebuildDebounce,
		PageSize:  cfg.PageSize,
	})
	sessions.SetBoard(board)
	voiceBot.Bind(sessions, board)

	controlServer := mcpserver.NewServer(voiceBot, sessions, board, resolver, player)
	go func() {
		if err := controlServer.Start(ctx); err != nil {
			logrus.WithError(err).Error("MCP server error")
		}
	}()

	if err := voiceBot.Connect(); err != nil {
		logrus.WithError(err).Fatal("Error connecting to Discord")
	}
	defer func() {
		if err := voiceBot.Disconnect(); err != nil {
			logrus.WithError(err).Warn("Failed to disconnect bot")
		}
	}()
	logrus.Info("Connected to Discord")

	logrus.Info("Bot is running. Press CTRL-C to exit.")
	<-ctx.Done()

	logrus.Info("Shutting down gracefully...")
	// Deferred functions will handle cleanup
}
