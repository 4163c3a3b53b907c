// Package bot adapts the Discord gateway to the session and soundboard
// managers: it classifies voice-state transitions on the monitored channel,
// forwards chat activity and component interactions, and implements the
// voice dialing, membership and messaging seams the managers depend on.
package bot

import (
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/fankserver/discord-soundboard/internal/session"
	"github.com/fankserver/discord-soundboard/internal/soundboard"
)

// Bot owns the Discord session and routes gateway events.
type Bot struct {
	discord   *discordgo.Session
	channelID string

	sessions *session.Manager
	board    *soundboard.Manager
}

// New creates a Bot watching the given voice channel.
func New(token, channelID string) (*Bot, error) {
	discord, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}

	b := &Bot{
		discord:   discord,
		channelID: channelID,
	}

	// Register handlers
	discord.AddHandler(b.ready)
	discord.AddHandler(b.voiceStateUpdate)
	discord.AddHandler(b.messageCreate)
	discord.AddHandler(b.interactionCreate)

	// Set intents
	discord.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	return b, nil
}

// Bind attaches the managers. The bot is a collaborator of both, so they are
// constructed after it.
func (b *Bot) Bind(sessions *session.Manager, board *soundboard.Manager) {
	b.sessions = sessions
	b.board = board
}

// Connect establishes the gateway connection.
func (b *Bot) Connect() error {
	return b.discord.Open()
}

// Disconnect tears down any active voice session and closes the gateway
// connection.
func (b *Bot) Disconnect() error {
	if b.sessions == nil {
		return b.discord.Close()
	}
	if conn, ok := b.sessions.Conn(b.channelID); ok {
		if err := conn.Disconnect(); err != nil {
			logrus.WithError(err).Debug("Error disconnecting from voice channel")
		}
	}
	return b.discord.Close()
}

// ChannelID returns the monitored voice channel.
func (b *Bot) ChannelID() string {
	return b.channelID
}

// Ready reports whether the gateway connection is up.
func (b *Bot) Ready() bool {
	return b.discord.State.Ready.Version != 0
}

// Dial implements session.Dialer.
func (b *Bot) Dial(channelID string) (session.Conn, error) {
	guildID, err := b.guildFor(channelID)
	if err != nil {
		return nil, err
	}
	vc, err := b.discord.ChannelVoiceJoin(guildID, channelID, false, false)
	if err != nil {
		return nil, fmt.Errorf("error joining voice channel: %w", err)
	}
	return &voiceConn{vc: vc}, nil
}

// Members implements session.Roster from gateway state.
func (b *Bot) Members(channelID string) []session.Participant {
	guildID, err := b.guildFor(channelID)
	if err != nil {
		return nil
	}
	guild, err := b.discord.State.Guild(guildID)
	if err != nil {
		logrus.WithError(err).WithField("guild_id", guildID).Debug("Guild not in state")
		return nil
	}

	var members []session.Participant
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID || vs.UserID == b.discord.State.User.ID {
			continue
		}
		p := session.Participant{ID: vs.UserID}
		if member, err := b.discord.State.Member(guildID, vs.UserID); err == nil && member.User != nil {
			p.Bot = member.User.Bot
		}
		members = append(members, p)
	}
	return members
}

// Send implements soundboard.Messenger.
func (b *Bot) Send(channelID, content string, components []discordgo.MessageComponent) (string, error) {
	msg, err := b.discord.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    content,
		Components: components,
	})
	if err != nil {
		return "", fmt.Errorf("error sending message: %w", err)
	}
	return msg.ID, nil
}

// Edit implements soundboard.Messenger.
func (b *Bot) Edit(channelID, messageID, content string, components []discordgo.MessageComponent) error {
	edit := discordgo.NewMessageEdit(channelID, messageID).SetContent(content)
	edit.Components = &components
	_, err := b.discord.ChannelMessageEditComplex(edit)
	return err
}

// Delete implements soundboard.Messenger. A message that is already gone
// counts as deleted.
func (b *Bot) Delete(channelID, messageID string) error {
	err := b.discord.ChannelMessageDelete(channelID, messageID)
	if restErr, ok := err.(*discordgo.RESTError); ok &&
		restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

func (b *Bot) guildFor(channelID string) (string, error) {
	channel, err := b.discord.State.Channel(channelID)
	if err != nil {
		return "", fmt.Errorf("channel %s not in state: %w", channelID, err)
	}
	return channel.GuildID, nil
}

// Event handlers

func (b *Bot) ready(s *discordgo.Session, _ *discordgo.Ready) {
	logrus.WithFields(logrus.Fields{
		"username": s.State.User.Username,
		"user_id":  s.State.User.ID,
	}).Info("Bot is ready")
}

func (b *Bot) voiceStateUpdate(s *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu.UserID == s.State.User.ID {
		logrus.WithField("channel_id", vsu.ChannelID).Debug("Bot voice state updated")
		return
	}

	joined, left := classifyVoiceUpdate(vsu, b.channelID)
	if !joined && !left {
		return
	}

	p := session.Participant{ID: vsu.UserID, Bot: voiceUpdateFromBot(vsu)}
	if joined {
		b.sessions.HandleJoin(b.channelID, p)
	} else {
		b.sessions.HandleLeave(b.channelID, p)
	}
}

func (b *Bot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == s.State.User.ID {
		return
	}
	// The soundboard lives in the voice channel's own text chat.
	if m.ChannelID != b.channelID {
		return
	}
	if !b.sessions.Active(b.channelID) {
		return
	}
	b.board.OnActivity(b.channelID)
}

func (b *Bot) interactionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent || i.ChannelID != b.channelID {
		return
	}

	customID := i.MessageComponentData().CustomID
	switch customID {
	case soundboard.CustomIDPrev:
		b.ack(s, i)
		b.board.OnPageChange(b.channelID, i.Message.ID, -1)
	case soundboard.CustomIDNext:
		b.ack(s, i)
		b.board.OnPageChange(b.channelID, i.Message.ID, 1)
	default:
		name, ok := soundboard.ParsePlayCustomID(customID)
		if !ok {
			return
		}
		if err := b.board.OnCueSelected(b.channelID, interactionUserID(i), name); err != nil {
			b.notify(s, i, err.Error())
			return
		}
		b.ack(s, i)
	}
}

// ack acknowledges a component interaction without any visible response.
func (b *Bot) ack(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	if err != nil {
		logrus.WithError(err).Debug("Failed to acknowledge interaction")
	}
}

// notify sends an ephemeral notice to the interacting user only.
func (b *Bot) notify(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		logrus.WithError(err).Debug("Failed to send interaction notice")
	}
}

// classifyVoiceUpdate reports whether the update is a join into or a leave
// out of the monitored channel. Moves between unrelated channels are neither.
func classifyVoiceUpdate(vsu *discordgo.VoiceStateUpdate, channelID string) (joined, left bool) {
	wasInChannel := vsu.BeforeUpdate != nil && vsu.BeforeUpdate.ChannelID == channelID
	isInChannel := vsu.ChannelID == channelID
	return isInChannel && !wasInChannel, wasInChannel && !isInChannel
}

func voiceUpdateFromBot(vsu *discordgo.VoiceStateUpdate) bool {
	return vsu.Member != nil && vsu.Member.User != nil && vsu.Member.User.Bot
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
