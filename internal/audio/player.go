// Package audio serializes playback onto a voice connection: one stream at a
// time, a process-wide cooldown between accepted requests, and preemption of
// whatever is currently playing. Transcoding is delegated to ffmpeg.
package audio

import (
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Player is the playback controller. All requests funnel through Play; at
// most one stream is active at any time.
type Player struct {
	streamer Streamer
	filter   string
	limiter  *rate.Limiter

	mu   sync.Mutex
	stop chan struct{} // non-nil while a stream is in flight
}

// NewPlayer creates a Player. filter is the ffmpeg audio filter description
// applied to every request; cooldown is the minimum spacing between accepted
// requests.
func NewPlayer(streamer Streamer, filter string, cooldown time.Duration) *Player {
	return &Player{
		streamer: streamer,
		filter:   filter,
		limiter:  rate.NewLimiter(rate.Every(cooldown), 1),
	}
}

// Play starts playback of path on the sink. A missing file and a request
// inside the cooldown window are both silent no-ops. Any in-flight stream is
// stopped first. Playback completion is not waited for.
func (p *Player) Play(sink Sink, path string) {
	if _, err := os.Stat(path); err != nil {
		logrus.WithField("path", path).Debug("Cue file missing, skipping playback")
		return
	}
	if !p.limiter.Allow() {
		logrus.WithField("path", path).Debug("Playback dropped by cooldown")
		return
	}

	p.mu.Lock()
	if p.stop != nil {
		close(p.stop)
	}
	stop := make(chan struct{})
	p.stop = stop
	p.mu.Unlock()

	logrus.WithField("path", path).Info("Starting playback")

	go func() {
		if err := p.streamer.Stream(sink, path, p.filter, stop); err != nil {
			logrus.WithError(err).WithField("path", path).Warn("Playback failed")
		}
		p.mu.Lock()
		if p.stop == stop {
			p.stop = nil
		}
		p.mu.Unlock()
	}()
}

// PlayAfter schedules Play after delay without blocking the caller. The sink
// is re-validated once the delay elapses; a torn-down connection aborts the
// request. This covers the join-then-immediately-leave race.
func (p *Player) PlayAfter(sink Sink, path string, delay time.Duration) {
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		if sink == nil || !sink.Connected() {
			logrus.WithField("path", path).Debug("Connection gone before delayed playback")
			return
		}
		p.Play(sink, path)
	}()
}

// Playing reports whether a stream is currently in flight.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop != nil
}
