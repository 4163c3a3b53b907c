// Package soundboard owns the single interactive sound-picker message per
// monitored channel: rebuilt on session start and on chat activity (subject
// to a debounce window), paginated with prev/next buttons, torn down with
// the session.
package soundboard

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/fankserver/discord-soundboard/internal/audio"
	"github.com/fankserver/discord-soundboard/internal/cues"
	"github.com/fankserver/discord-soundboard/internal/session"
)

const (
	// CustomIDPrev and CustomIDNext are the navigation button IDs.
	CustomIDPrev = "soundboard:prev"
	CustomIDNext = "soundboard:next"

	customIDPlayPrefix = "soundboard:play:"

	buttonsPerRow = 5
	maxPageSize   = 20 // 4 button rows + 1 navigation row, Discord's cap
	maxLabelRunes = 80 // Discord button label limit
)

// ErrNotInVoice rejects cue selections from users outside the voice channel.
// Its text is shown to the requester as an ephemeral notice.
var ErrNotInVoice = errors.New("you need to be in the voice channel to play sounds")

// ErrNoSession rejects cue selections while the bot is not connected.
var ErrNoSession = errors.New("not connected to a voice channel")

// Messenger is the message surface the board lives on.
type Messenger interface {
	Send(channelID, content string, components []discordgo.MessageComponent) (messageID string, err error)
	Edit(channelID, messageID, content string, components []discordgo.MessageComponent) error
	Delete(channelID, messageID string) error
}

// Sessions exposes the session facts the board needs: the live connection
// and channel membership.
type Sessions interface {
	Conn(channelID string) (session.Conn, bool)
	IsMember(channelID, userID string) bool
}

// Library lists the browsable cues.
type Library interface {
	Library() []cues.Cue
}

// Player starts cue playback.
type Player interface {
	Play(sink audio.Sink, path string)
}

// Options configures a Manager.
type Options struct {
	Messenger Messenger
	Library   Library
	Sessions  Sessions
	Player    Player

	// Debounce is the minimum spacing between activity-triggered rebuilds.
	Debounce time.Duration
	// PageSize is the number of cue buttons per page, capped at 20.
	PageSize int
}

// Manager is the soundboard lifecycle manager.
type Manager struct {
	opts Options

	mu     sync.Mutex
	boards map[string]*board
}

type board struct {
	mu        sync.Mutex
	messageID string
	cues      []cues.Cue
	page      int
	rebuilds  *rate.Limiter
}

// New creates a soundboard manager.
func New(opts Options) *Manager {
	if opts.PageSize <= 0 || opts.PageSize > maxPageSize {
		opts.PageSize = maxPageSize
	}
	return &Manager{
		opts:   opts,
		boards: make(map[string]*board),
	}
}

// PlayCustomID builds the component custom ID for a cue button. Each button
// carries its own cue name; nothing is captured by reference across renders.
func PlayCustomID(name string) string {
	return customIDPlayPrefix + name
}

// ParsePlayCustomID extracts the cue name from a play button custom ID.
func ParsePlayCustomID(customID string) (string, bool) {
	name, ok := strings.CutPrefix(customID, customIDPlayPrefix)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// OnSessionStart builds a fresh board for the channel. An empty library is a
// no-op.
func (m *Manager) OnSessionStart(channelID string) {
	m.rebuild(channelID, false)
}

// OnActivity rebuilds the board after qualifying chat activity, debounced.
func (m *Manager) OnActivity(channelID string) {
	m.rebuild(channelID, true)
}

// OnSessionEnd deletes the current board message, if any. The record is
// cleared regardless of the deletion outcome.
func (m *Manager) OnSessionEnd(channelID string) {
	b := m.board(channelID)
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.messageID != "" {
		if err := m.opts.Messenger.Delete(channelID, b.messageID); err != nil {
			logrus.WithError(err).WithField("channel_id", channelID).
				Debug("Failed to delete soundboard message")
		}
	}
	b.messageID = ""
	b.cues = nil
	b.page = 0
}

// OnPageChange moves the board to an adjacent page (delta -1 or +1), clamped
// to the valid range, and edits the message in place.
func (m *Manager) OnPageChange(channelID, messageID string, delta int) {
	b := m.board(channelID)
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.messageID == "" || b.messageID != messageID || len(b.cues) == 0 {
		return
	}

	page := b.page + delta
	if page < 0 {
		page = 0
	}
	if max := m.maxPage(b.cues); page > max {
		page = max
	}
	b.page = page

	content, components := m.render(b)
	if err := m.opts.Messenger.Edit(channelID, b.messageID, content, components); err != nil {
		logrus.WithError(err).WithField("channel_id", channelID).
			Warn("Failed to update soundboard page")
	}
}

// OnCueSelected plays the named library cue for a button press. The user
// must currently be in the session's voice channel.
func (m *Manager) OnCueSelected(channelID, userID, name string) error {
	conn, ok := m.opts.Sessions.Conn(channelID)
	if !ok {
		return ErrNoSession
	}
	if !m.opts.Sessions.IsMember(channelID, userID) {
		return ErrNotInVoice
	}

	path, ok := m.cuePath(channelID, name)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"channel_id": channelID,
			"cue":        name,
		}).Warn("Cue selection for unknown cue")
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"channel_id": channelID,
		"user_id":    userID,
		"cue":        name,
	}).Info("Soundboard cue selected")
	m.opts.Player.Play(conn, path)
	return nil
}

// Current returns the live board message ID for a channel, if any.
func (m *Manager) Current(channelID string) (string, bool) {
	b := m.board(channelID)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.messageID, b.messageID != ""
}

func (m *Manager) rebuild(channelID string, debounced bool) {
	b := m.board(channelID)
	b.mu.Lock()
	defer b.mu.Unlock()

	if debounced && !b.rebuilds.Allow() {
		return
	}

	library := m.opts.Library.Library()
	if len(library) == 0 {
		return
	}

	// Replace rather than edit: a rebuild resets pagination and bumps the
	// message to the bottom of the chat.
	if b.messageID != "" {
		if err := m.opts.Messenger.Delete(channelID, b.messageID); err != nil {
			logrus.WithError(err).WithField("channel_id", channelID).
				Debug("Failed to delete previous soundboard message")
		}
		b.messageID = ""
	}

	b.cues = library
	b.page = 0

	content, components := m.render(b)
	messageID, err := m.opts.Messenger.Send(channelID, content, components)
	if err != nil {
		logrus.WithError(err).WithField("channel_id", channelID).
			Warn("Failed to send soundboard message")
		return
	}
	b.messageID = messageID
}

// render builds the message content and button rows for the board's current
// page. Called with the board lock held.
func (m *Manager) render(b *board) (string, []discordgo.MessageComponent) {
	maxPage := m.maxPage(b.cues)
	start := b.page * m.opts.PageSize
	end := start + m.opts.PageSize
	if end > len(b.cues) {
		end = len(b.cues)
	}

	var components []discordgo.MessageComponent
	var row []discordgo.MessageComponent
	for _, cue := range b.cues[start:end] {
		row = append(row, discordgo.Button{
			Label:    truncateLabel(cue.Name),
			Style:    discordgo.SecondaryButton,
			CustomID: PlayCustomID(cue.Name),
		})
		if len(row) == buttonsPerRow {
			components = append(components, discordgo.ActionsRow{Components: row})
			row = nil
		}
	}
	if len(row) > 0 {
		components = append(components, discordgo.ActionsRow{Components: row})
	}

	components = append(components, discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "⬅️ Prev",
				Style:    discordgo.PrimaryButton,
				CustomID: CustomIDPrev,
				Disabled: b.page == 0,
			},
			discordgo.Button{
				Label:    "Next ➡️",
				Style:    discordgo.PrimaryButton,
				CustomID: CustomIDNext,
				Disabled: b.page == maxPage,
			},
		},
	})

	content := fmt.Sprintf("🎵 **Sounds** (page %d/%d), click to play:", b.page+1, maxPage+1)
	return content, components
}

func (m *Manager) cuePath(channelID, name string) (string, bool) {
	b := m.board(channelID)
	b.mu.Lock()
	for _, c := range b.cues {
		if c.Name == name {
			b.mu.Unlock()
			return c.Path, true
		}
	}
	b.mu.Unlock()

	// The board record may predate a library change; fall back to the
	// directory listing.
	for _, c := range m.opts.Library.Library() {
		if c.Name == name {
			return c.Path, true
		}
	}
	return "", false
}

func (m *Manager) maxPage(cueList []cues.Cue) int {
	if len(cueList) == 0 {
		return 0
	}
	return (len(cueList) - 1) / m.opts.PageSize
}

func (m *Manager) board(channelID string) *board {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boards[channelID]
	if !ok {
		b = &board{rebuilds: rate.NewLimiter(rate.Every(m.opts.Debounce), 1)}
		m.boards[channelID] = b
	}
	return b
}

func truncateLabel(name string) string {
	runes := []rune(name)
	if len(runes) <= maxLabelRunes {
		return name
	}
	return string(runes[:maxLabelRunes])
}
