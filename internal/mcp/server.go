// Package mcp exposes a small operator control plane over stdio: inspect
// the bot, list the sound library, trigger playback and refresh the
// soundboard. Playback triggered here still goes through the playback
// controller, so cooldown and preemption apply.
package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/fankserver/discord-soundboard/internal/audio"
	"github.com/fankserver/discord-soundboard/internal/bot"
	"github.com/fankserver/discord-soundboard/internal/cues"
	"github.com/fankserver/discord-soundboard/internal/session"
	"github.com/fankserver/discord-soundboard/internal/soundboard"
)

// Server wraps the MCP server and its tool handlers.
type Server struct {
	bot      *bot.Bot
	sessions *session.Manager
	board    *soundboard.Manager
	cues     *cues.Resolver
	player   *audio.Player

	mcpServer *mcp.Server
}

// EmptyInput is used by tools that take no arguments.
type EmptyInput struct{}

// PlayCueInput names a library cue to play.
type PlayCueInput struct {
	Name string `json:"name" jsonschema:"the library cue name to play"`
}

// NewServer creates the control-plane server and registers its tools.
func NewServer(voiceBot *bot.Bot, sessions *session.Manager, board *soundboard.Manager, resolver *cues.Resolver, player *audio.Player) *Server {
	s := &Server{
		bot:      voiceBot,
		sessions: sessions,
		board:    board,
		cues:     resolver,
		player:   player,
	}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "discord-soundboard",
		Version: "0.1.0",
	}, nil)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_bot_status",
		Description: "Get the bot's connection, session and playback status",
	}, s.handleGetBotStatus)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_cues",
		Description: "List the browsable sound library",
	}, s.handleListCues)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "play_cue",
		Description: "Play a library cue in the active voice session",
	}, s.handlePlayCue)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "refresh_soundboard",
		Description: "Delete and repost the soundboard message",
	}, s.handleRefreshSoundboard)

	return s
}

// Start runs the MCP server over stdio until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	logrus.Info("MCP server started")
	return s.mcpServer.Run(ctx, mcp.NewStdioTransport())
}

func (s *Server) handleGetBotStatus(_ context.Context, _ *mcp.ServerSession, _ *mcp.CallToolParamsFor[EmptyInput]) (*mcp.CallToolResultFor[any], error) {
	channelID := s.bot.ChannelID()

	var sb strings.Builder
	sb.WriteString("Bot Status\n")
	fmt.Fprintf(&sb, "Connected: %v\n", s.bot.Ready())
	fmt.Fprintf(&sb, "Monitored Channel: %s\n", channelID)

	if info, ok := s.sessions.Info(channelID); ok {
		fmt.Fprintf(&sb, "In Voice: true\n")
		fmt.Fprintf(&sb, "Session: %s (since %s)\n", info.ID, info.StartedAt.Format("15:04:05"))
	} else {
		sb.WriteString("In Voice: false\n")
	}
	fmt.Fprintf(&sb, "Playing: %v\n", s.player.Playing())

	if messageID, ok := s.board.Current(channelID); ok {
		fmt.Fprintf(&sb, "Soundboard Message: %s\n", messageID)
	} else {
		sb.WriteString("Soundboard Message: none\n")
	}

	return textResult(sb.String()), nil
}

func (s *Server) handleListCues(_ context.Context, _ *mcp.ServerSession, _ *mcp.CallToolParamsFor[EmptyInput]) (*mcp.CallToolResultFor[any], error) {
	library := s.cues.Library()
	if len(library) == 0 {
		return textResult("No cues found"), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d cue(s):\n", len(library))
	for _, c := range library {
		fmt.Fprintf(&sb, "- %s\n", c.Name)
	}
	return textResult(sb.String()), nil
}

func (s *Server) handlePlayCue(_ context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[PlayCueInput]) (*mcp.CallToolResultFor[any], error) {
	channelID := s.bot.ChannelID()

	conn, ok := s.sessions.Conn(channelID)
	if !ok {
		return textResult("Not connected to a voice channel"), nil
	}
	cue, ok := s.cues.Lookup(params.Arguments.Name)
	if !ok {
		return nil, fmt.Errorf("cue not found: %s", params.Arguments.Name)
	}

	s.player.Play(conn, cue.Path)
	return textResult(fmt.Sprintf("Playing %s", cue.Name)), nil
}

func (s *Server) handleRefreshSoundboard(_ context.Context, _ *mcp.ServerSession, _ *mcp.CallToolParamsFor[EmptyInput]) (*mcp.CallToolResultFor[any], error) {
	channelID := s.bot.ChannelID()

	if !s.sessions.Active(channelID) {
		return textResult("No active session, nothing to refresh"), nil
	}
	s.board.OnSessionStart(channelID)
	return textResult("Soundboard refreshed"), nil
}

func textResult(text string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
