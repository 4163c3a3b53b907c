package audio

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu        sync.Mutex
	connected bool
	opus      chan []byte
}

func newFakeSink(connected bool) *fakeSink {
	return &fakeSink{connected: connected, opus: make(chan []byte, 64)}
}

func (f *fakeSink) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSink) Speaking(bool) error { return nil }

func (f *fakeSink) OpusSend() chan<- []byte { return f.opus }

type fakeStreamer struct {
	mu      sync.Mutex
	paths   []string
	filters []string
	block   bool
	started chan string
	stopped chan string
}

func (f *fakeStreamer) Stream(_ Sink, path, filter string, stop <-chan struct{}) error {
	f.mu.Lock()
	f.paths = append(f.paths, path)
	f.filters = append(f.filters, filter)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- path
	}
	if f.block {
		<-stop
		if f.stopped != nil {
			f.stopped <- path
		}
	}
	return nil
}

func (f *fakeStreamer) streamedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func cueFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))
	return path
}

func TestPlayMissingFileIsNoOp(t *testing.T) {
	streamer := &fakeStreamer{}
	player := NewPlayer(streamer, "loudnorm", time.Second)

	player.Play(newFakeSink(true), filepath.Join(t.TempDir(), "missing.mp3"))

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, streamer.streamedPaths())
	assert.False(t, player.Playing())
}

func TestPlayCooldownDropsBurst(t *testing.T) {
	streamer := &fakeStreamer{started: make(chan string, 4)}
	player := NewPlayer(streamer, "loudnorm", time.Minute)
	sink := newFakeSink(true)
	path := cueFile(t, "cue.mp3")

	player.Play(sink, path)
	player.Play(sink, path)
	player.Play(sink, path)

	select {
	case <-streamer.started:
	case <-time.After(time.Second):
		t.Fatal("expected one stream to start")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, streamer.streamedPaths(), 1)
}

func TestPlayPreemptsCurrentStream(t *testing.T) {
	streamer := &fakeStreamer{
		block:   true,
		started: make(chan string, 2),
		stopped: make(chan string, 2),
	}
	player := NewPlayer(streamer, "loudnorm", time.Millisecond)
	sink := newFakeSink(true)
	first := cueFile(t, "first.mp3")
	second := cueFile(t, "second.mp3")

	player.Play(sink, first)
	require.Equal(t, first, <-streamer.started)
	assert.True(t, player.Playing())

	// let the cooldown window pass so the second request is accepted
	time.Sleep(10 * time.Millisecond)
	player.Play(sink, second)

	select {
	case stopped := <-streamer.stopped:
		assert.Equal(t, first, stopped)
	case <-time.After(time.Second):
		t.Fatal("expected first stream to be preempted")
	}
	require.Equal(t, second, <-streamer.started)
}

func TestPlayAppliesFilter(t *testing.T) {
	streamer := &fakeStreamer{started: make(chan string, 1)}
	player := NewPlayer(streamer, "loudnorm=I=-28:TP=-1.5:LRA=11:linear=true", time.Second)

	player.Play(newFakeSink(true), cueFile(t, "cue.mp3"))
	<-streamer.started

	streamer.mu.Lock()
	defer streamer.mu.Unlock()
	require.Len(t, streamer.filters, 1)
	assert.Equal(t, "loudnorm=I=-28:TP=-1.5:LRA=11:linear=true", streamer.filters[0])
}

func TestPlayAfterAbortsWhenDisconnected(t *testing.T) {
	streamer := &fakeStreamer{}
	player := NewPlayer(streamer, "loudnorm", time.Second)

	player.PlayAfter(newFakeSink(false), cueFile(t, "cue.mp3"), time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, streamer.streamedPaths())
}

func TestPlayAfterPlaysWhenStillConnected(t *testing.T) {
	streamer := &fakeStreamer{started: make(chan string, 1)}
	player := NewPlayer(streamer, "loudnorm", time.Second)
	path := cueFile(t, "cue.mp3")

	player.PlayAfter(newFakeSink(true), path, time.Millisecond)

	select {
	case started := <-streamer.started:
		assert.Equal(t, path, started)
	case <-time.After(time.Second):
		t.Fatal("expected delayed playback to start")
	}
}

func TestPlayingClearsAfterStreamEnds(t *testing.T) {
	streamer := &fakeStreamer{started: make(chan string, 1)}
	player := NewPlayer(streamer, "loudnorm", time.Second)

	player.Play(newFakeSink(true), cueFile(t, "cue.mp3"))
	<-streamer.started

	assert.Eventually(t, func() bool { return !player.Playing() },
		time.Second, 5*time.Millisecond)
}
