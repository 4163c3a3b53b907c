package soundboard

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fankserver/discord-soundboard/internal/audio"
	"github.com/fankserver/discord-soundboard/internal/cues"
	"github.com/fankserver/discord-soundboard/internal/session"
)

const channelID = "voice-channel-1"

type sentMessage struct {
	id         string
	content    string
	components []discordgo.MessageComponent
}

type fakeMessenger struct {
	mu        sync.Mutex
	nextID    int
	sends     []sentMessage
	edits     []sentMessage
	deletes   []string
	deleteErr error
	sendErr   error
}

func (f *fakeMessenger) Send(_, content string, components []discordgo.MessageComponent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.nextID++
	id := fmt.Sprintf("msg-%d", f.nextID)
	f.sends = append(f.sends, sentMessage{id: id, content: content, components: components})
	return id, nil
}

func (f *fakeMessenger) Edit(_, messageID, content string, components []discordgo.MessageComponent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sentMessage{id: messageID, content: content, components: components})
	return nil
}

func (f *fakeMessenger) Delete(_, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, messageID)
	return f.deleteErr
}

type fakeLibrary struct {
	mu   sync.Mutex
	list []cues.Cue
}

func (f *fakeLibrary) set(list ...cues.Cue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.list = list
}

func (f *fakeLibrary) Library() []cues.Cue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list
}

type fakeConn struct{ opus chan []byte }

func (c *fakeConn) Connected() bool         { return true }
func (c *fakeConn) Speaking(bool) error     { return nil }
func (c *fakeConn) OpusSend() chan<- []byte { return c.opus }
func (c *fakeConn) Disconnect() error       { return nil }

type fakeSessions struct {
	conn    session.Conn
	members map[string]bool
}

func (f *fakeSessions) Conn(string) (session.Conn, bool) {
	if f.conn == nil {
		return nil, false
	}
	return f.conn, true
}

func (f *fakeSessions) IsMember(_, userID string) bool { return f.members[userID] }

type fakePlayer struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakePlayer) Play(_ audio.Sink, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
}

type fixture struct {
	manager   *Manager
	messenger *fakeMessenger
	library   *fakeLibrary
	sessions  *fakeSessions
	player    *fakePlayer
}

func newFixture(opts func(*Options)) *fixture {
	messenger := &fakeMessenger{}
	library := &fakeLibrary{}
	sessions := &fakeSessions{
		conn:    &fakeConn{opus: make(chan []byte, 8)},
		members: map[string]bool{"user-a": true},
	}
	player := &fakePlayer{}

	options := Options{
		Messenger: messenger,
		Library:   library,
		Sessions:  sessions,
		Player:    player,
		Debounce:  time.Minute,
		PageSize:  2,
	}
	if opts != nil {
		opts(&options)
	}
	return &fixture{
		manager:   New(options),
		messenger: messenger,
		library:   library,
		sessions:  sessions,
		player:    player,
	}
}

func someCues(names ...string) []cues.Cue {
	list := make([]cues.Cue, len(names))
	for i, name := range names {
		list[i] = cues.Cue{Name: name, Path: "sounds/" + name + ".mp3"}
	}
	return list
}

func navButtons(t *testing.T, components []discordgo.MessageComponent) (prev, next discordgo.Button) {
	t.Helper()
	require.NotEmpty(t, components)
	row, ok := components[len(components)-1].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 2)
	prev, ok = row.Components[0].(discordgo.Button)
	require.True(t, ok)
	next, ok = row.Components[1].(discordgo.Button)
	require.True(t, ok)
	return prev, next
}

func cueButtons(t *testing.T, components []discordgo.MessageComponent) []discordgo.Button {
	t.Helper()
	var buttons []discordgo.Button
	for _, component := range components[:len(components)-1] {
		row, ok := component.(discordgo.ActionsRow)
		require.True(t, ok)
		for _, item := range row.Components {
			button, ok := item.(discordgo.Button)
			require.True(t, ok)
			buttons = append(buttons, button)
		}
	}
	return buttons
}

func TestSessionStartBuildsBoard(t *testing.T) {
	f := newFixture(nil)
	f.library.set(someCues("airhorn", "bruh", "tada")...)

	f.manager.OnSessionStart(channelID)

	require.Len(t, f.messenger.sends, 1)
	sent := f.messenger.sends[0]
	assert.Contains(t, sent.content, "page 1/2")

	buttons := cueButtons(t, sent.components)
	require.Len(t, buttons, 2)
	assert.Equal(t, "airhorn", buttons[0].Label)
	assert.Equal(t, PlayCustomID("airhorn"), buttons[0].CustomID)

	prev, next := navButtons(t, sent.components)
	assert.True(t, prev.Disabled)
	assert.False(t, next.Disabled)

	id, ok := f.manager.Current(channelID)
	require.True(t, ok)
	assert.Equal(t, sent.id, id)
}

func TestSessionStartEmptyLibraryIsNoOp(t *testing.T) {
	f := newFixture(nil)

	f.manager.OnSessionStart(channelID)

	assert.Empty(t, f.messenger.sends)
	_, ok := f.manager.Current(channelID)
	assert.False(t, ok)
}

func TestRebuildDeletesPriorMessage(t *testing.T) {
	f := newFixture(func(o *Options) { o.Debounce = time.Millisecond })
	f.library.set(someCues("airhorn")...)

	f.manager.OnSessionStart(channelID)
	first, _ := f.manager.Current(channelID)

	time.Sleep(10 * time.Millisecond)
	f.manager.OnActivity(channelID)

	require.Len(t, f.messenger.sends, 2)
	assert.Equal(t, []string{first}, f.messenger.deletes)

	second, ok := f.manager.Current(channelID)
	require.True(t, ok)
	assert.NotEqual(t, first, second)
}

func TestRebuildToleratesDeleteFailure(t *testing.T) {
	f := newFixture(func(o *Options) { o.Debounce = time.Millisecond })
	f.library.set(someCues("airhorn")...)
	f.manager.OnSessionStart(channelID)

	f.messenger.deleteErr = errors.New("404 not found")
	time.Sleep(10 * time.Millisecond)
	f.manager.OnActivity(channelID)

	assert.Len(t, f.messenger.sends, 2)
	_, ok := f.manager.Current(channelID)
	assert.True(t, ok)
}

func TestActivityRebuildIsDebounced(t *testing.T) {
	f := newFixture(nil)
	f.library.set(someCues("airhorn")...)

	f.manager.OnActivity(channelID)
	f.manager.OnActivity(channelID)
	f.manager.OnActivity(channelID)

	assert.Len(t, f.messenger.sends, 1)
}

func TestSessionEndDeletesAndClears(t *testing.T) {
	f := newFixture(nil)
	f.library.set(someCues("airhorn")...)
	f.manager.OnSessionStart(channelID)
	id, _ := f.manager.Current(channelID)

	f.manager.OnSessionEnd(channelID)

	assert.Equal(t, []string{id}, f.messenger.deletes)
	_, ok := f.manager.Current(channelID)
	assert.False(t, ok)

	// stale interactions after teardown are ignored
	f.manager.OnPageChange(channelID, id, 1)
	assert.Empty(t, f.messenger.edits)
}

func TestSessionEndWithoutBoardIsNoOp(t *testing.T) {
	f := newFixture(nil)
	f.manager.OnSessionEnd(channelID)
	assert.Empty(t, f.messenger.deletes)
}

func TestPageChangeClampsAndEditsInPlace(t *testing.T) {
	f := newFixture(nil) // page size 2
	f.library.set(someCues("a", "b", "c")...)
	f.manager.OnSessionStart(channelID)
	id, _ := f.manager.Current(channelID)

	// prev at page 0 stays at page 0
	f.manager.OnPageChange(channelID, id, -1)
	require.Len(t, f.messenger.edits, 1)
	assert.Contains(t, f.messenger.edits[0].content, "page 1/2")

	// next moves to the last page
	f.manager.OnPageChange(channelID, id, 1)
	require.Len(t, f.messenger.edits, 2)
	assert.Contains(t, f.messenger.edits[1].content, "page 2/2")
	buttons := cueButtons(t, f.messenger.edits[1].components)
	require.Len(t, buttons, 1)
	assert.Equal(t, "c", buttons[0].Label)
	prev, next := navButtons(t, f.messenger.edits[1].components)
	assert.False(t, prev.Disabled)
	assert.True(t, next.Disabled)

	// next at the last page stays at the last page
	f.manager.OnPageChange(channelID, id, 1)
	require.Len(t, f.messenger.edits, 3)
	assert.Contains(t, f.messenger.edits[2].content, "page 2/2")

	assert.Len(t, f.messenger.sends, 1, "page changes must not recreate the message")
}

func TestPageChangeIgnoresStaleMessage(t *testing.T) {
	f := newFixture(nil)
	f.library.set(someCues("a", "b", "c")...)
	f.manager.OnSessionStart(channelID)

	f.manager.OnPageChange(channelID, "msg-stale", 1)
	assert.Empty(t, f.messenger.edits)
}

func TestCueSelectedPlays(t *testing.T) {
	f := newFixture(nil)
	f.library.set(someCues("airhorn")...)
	f.manager.OnSessionStart(channelID)

	err := f.manager.OnCueSelected(channelID, "user-a", "airhorn")
	require.NoError(t, err)
	assert.Equal(t, []string{"sounds/airhorn.mp3"}, f.player.paths)
}

func TestCueSelectedRejectsNonMember(t *testing.T) {
	f := newFixture(nil)
	f.library.set(someCues("airhorn")...)
	f.manager.OnSessionStart(channelID)

	err := f.manager.OnCueSelected(channelID, "stranger", "airhorn")
	assert.ErrorIs(t, err, ErrNotInVoice)
	assert.Empty(t, f.player.paths)
}

func TestCueSelectedWithoutSession(t *testing.T) {
	f := newFixture(nil)
	f.sessions.conn = nil

	err := f.manager.OnCueSelected(channelID, "user-a", "airhorn")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Empty(t, f.player.paths)
}

func TestCueSelectedUnknownCueIsNoOp(t *testing.T) {
	f := newFixture(nil)
	f.library.set(someCues("airhorn")...)
	f.manager.OnSessionStart(channelID)

	err := f.manager.OnCueSelected(channelID, "user-a", "forged")
	assert.NoError(t, err)
	assert.Empty(t, f.player.paths)
}

func TestCueSelectedFallsBackToLibrary(t *testing.T) {
	// board record predates a new file landing in the sounds directory
	f := newFixture(nil)
	f.library.set(someCues("airhorn")...)
	f.manager.OnSessionStart(channelID)
	f.library.set(someCues("airhorn", "fresh")...)

	err := f.manager.OnCueSelected(channelID, "user-a", "fresh")
	require.NoError(t, err)
	assert.Equal(t, []string{"sounds/fresh.mp3"}, f.player.paths)
}

func TestParsePlayCustomID(t *testing.T) {
	name, ok := ParsePlayCustomID(PlayCustomID("airhorn"))
	require.True(t, ok)
	assert.Equal(t, "airhorn", name)

	_, ok = ParsePlayCustomID(CustomIDNext)
	assert.False(t, ok)

	_, ok = ParsePlayCustomID("soundboard:play:")
	assert.False(t, ok)
}

func TestTruncateLabel(t *testing.T) {
	long := make([]rune, 100)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, []rune(truncateLabel(string(long))), maxLabelRunes)
	assert.Equal(t, "short", truncateLabel("short"))
}
