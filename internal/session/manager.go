// Package session owns the voice session lifecycle for each monitored
// channel: connect when the first human arrives, disconnect when the last
// one leaves. All transitions for a channel are serialized on a per-channel
// lock so a rapid join/leave flurry cannot race connect against disconnect.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fankserver/discord-soundboard/internal/audio"
	"github.com/fankserver/discord-soundboard/internal/cues"
)

// Participant is a channel member as reported by the platform.
type Participant struct {
	ID  string
	Bot bool
}

// Conn is the voice connection handle owned by a session.
type Conn interface {
	audio.Sink
	Disconnect() error
}

// Dialer establishes a voice connection to a channel.
type Dialer interface {
	Dial(channelID string) (Conn, error)
}

// Roster answers membership queries for a channel.
type Roster interface {
	Members(channelID string) []Participant
}

// CueSource resolves directional cues for a participant.
type CueSource interface {
	Resolve(userID string, d cues.Direction) string
}

// CuePlayer starts cue playback on a connection.
type CuePlayer interface {
	Play(sink audio.Sink, path string)
	PlayAfter(sink audio.Sink, path string, delay time.Duration)
}

// Board receives session lifecycle hooks for the soundboard message.
type Board interface {
	OnSessionStart(channelID string)
	OnSessionEnd(channelID string)
}

// Options configures a Manager.
type Options struct {
	Dialer Dialer
	Roster Roster
	Cues   CueSource
	Player CuePlayer

	// JoinDelay postpones the arrival cue so the start of the audio path
	// is not clipped right after connecting.
	JoinDelay time.Duration
	// LeaveGrace is the pause between soundboard teardown and disconnect.
	LeaveGrace time.Duration
	// GreetEveryArrival plays an arrival cue for every joining human, not
	// just the one whose arrival started the session.
	GreetEveryArrival bool
}

// Info describes an active session.
type Info struct {
	ID        string
	ChannelID string
	StartedAt time.Time
}

// Manager is the session state machine, keyed by channel ID.
type Manager struct {
	opts  Options
	board Board

	mu       sync.Mutex
	channels map[string]*channelState
}

type channelState struct {
	mu        sync.Mutex
	id        string
	conn      Conn
	startedAt time.Time
}

// NewManager creates a session manager.
func NewManager(opts Options) *Manager {
	return &Manager{
		opts:     opts,
		channels: make(map[string]*channelState),
	}
}

// SetBoard binds the soundboard hooks. The two managers reference each
// other, so the board is attached after construction.
func (m *Manager) SetBoard(board Board) {
	m.board = board
}

// HandleJoin processes a participant arriving in the monitored channel.
func (m *Manager) HandleJoin(channelID string, p Participant) {
	if p.Bot {
		return
	}

	st := m.state(channelID)
	st.mu.Lock()
	defer st.mu.Unlock()

	humans := m.humanCount(channelID)
	log := logrus.WithFields(logrus.Fields{
		"channel_id": channelID,
		"user_id":    p.ID,
		"humans":     humans,
	})

	if st.conn != nil {
		if m.opts.GreetEveryArrival {
			m.opts.Player.PlayAfter(st.conn, m.opts.Cues.Resolve(p.ID, cues.Join), m.opts.JoinDelay)
		}
		return
	}
	if humans != 1 {
		return
	}

	conn, err := m.opts.Dialer.Dial(channelID)
	if err != nil {
		// Stay idle; the next arrival retries.
		log.WithError(err).Warn("Failed to connect to voice channel")
		return
	}

	st.conn = conn
	st.id = uuid.New().String()
	st.startedAt = time.Now()
	log.WithField("session_id", st.id).Info("Voice session started")

	m.opts.Player.PlayAfter(conn, m.opts.Cues.Resolve(p.ID, cues.Join), m.opts.JoinDelay)
	if m.board != nil {
		m.board.OnSessionStart(channelID)
	}
}

// HandleLeave processes a participant leaving the monitored channel.
func (m *Manager) HandleLeave(channelID string, p Participant) {
	if p.Bot {
		return
	}

	st := m.state(channelID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.conn == nil {
		return
	}

	humans := m.humanCount(channelID)
	log := logrus.WithFields(logrus.Fields{
		"channel_id": channelID,
		"user_id":    p.ID,
		"humans":     humans,
	})

	if humans > 0 {
		m.opts.Player.Play(st.conn, m.opts.Cues.Resolve(p.ID, cues.Leave))
		return
	}

	// Last human left: tear down the soundboard, give the farewell path a
	// moment to settle, then disconnect. The session always ends up idle
	// even if the disconnect fails.
	if m.board != nil {
		m.board.OnSessionEnd(channelID)
	}
	if m.opts.LeaveGrace > 0 {
		time.Sleep(m.opts.LeaveGrace)
	}
	if err := st.conn.Disconnect(); err != nil {
		log.WithError(err).Debug("Error disconnecting from voice channel")
	}
	log.WithFields(logrus.Fields{
		"session_id": st.id,
		"duration":   time.Since(st.startedAt).Round(time.Second).String(),
	}).Info("Voice session ended")
	st.conn = nil
	st.id = ""
}

// Conn returns the active connection for a channel, if any. Callers must not
// retain the handle across events.
func (m *Manager) Conn(channelID string) (Conn, bool) {
	st := m.state(channelID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.conn == nil {
		return nil, false
	}
	return st.conn, true
}

// Active reports whether a session is currently established for the channel.
func (m *Manager) Active(channelID string) bool {
	_, ok := m.Conn(channelID)
	return ok
}

// Info returns metadata about the active session for a channel.
func (m *Manager) Info(channelID string) (Info, bool) {
	st := m.state(channelID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.conn == nil {
		return Info{}, false
	}
	return Info{ID: st.id, ChannelID: channelID, StartedAt: st.startedAt}, true
}

// IsMember reports whether the user is currently in the channel.
func (m *Manager) IsMember(channelID, userID string) bool {
	for _, member := range m.opts.Roster.Members(channelID) {
		if member.ID == userID {
			return true
		}
	}
	return false
}

func (m *Manager) humanCount(channelID string) int {
	count := 0
	for _, member := range m.opts.Roster.Members(channelID) {
		if !member.Bot {
			count++
		}
	}
	return count
}

func (m *Manager) state(channelID string) *channelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.channels[channelID]
	if !ok {
		st = &channelState{}
		m.channels[channelID] = st
	}
	return st
}
