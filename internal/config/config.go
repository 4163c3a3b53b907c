package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

const personPrefix = "PERSON_"

// Config holds all startup configuration. It is read once from the
// environment and immutable afterwards.
type Config struct {
	Token     string `env:"DISCORD_TOKEN,required"`
	ChannelID string `env:"TARGET_VOICE_CHANNEL_ID,required"`
	GuildID   string `env:"GUILD_ID"`

	SoundsDir string `env:"SOUNDS_DIR" envDefault:"sounds"`
	JoinFile  string `env:"JOIN_FILE" envDefault:"join.mp3"`
	LeaveFile string `env:"LEAVE_FILE" envDefault:"leave.mp3"`

	// Loudness normalization applied to every playback (ffmpeg loudnorm).
	TargetLUFS float64 `env:"TARGET_LUFS" envDefault:"-28"`
	TargetTP   float64 `env:"TARGET_TP" envDefault:"-1.5"`
	TargetLRA  float64 `env:"TARGET_LRA" envDefault:"11"`

	JoinDelay       time.Duration `env:"JOIN_DELAY" envDefault:"800ms"`
	LeaveGrace      time.Duration `env:"LEAVE_GRACE" envDefault:"200ms"`
	PlayCooldown    time.Duration `env:"PLAY_COOLDOWN" envDefault:"1s"`
	RebuildDebounce time.Duration `env:"REBUILD_DEBOUNCE" envDefault:"1200ms"`

	PageSize          int  `env:"SOUNDBOARD_PAGE_SIZE" envDefault:"20"`
	GreetEveryArrival bool `env:"GREET_EVERY_ARRIVAL" envDefault:"false"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Per-user directional cues, keyed by Discord user ID. Populated from
	// PERSON_<NAME>=<user id> plus <NAME>_JOIN / <NAME>_LEAVE variables.
	JoinSounds  map[string]string `env:"-"`
	LeaveSounds map[string]string `env:"-"`
}

// Load parses the process environment into a Config. It fails only on
// missing required values or malformed entries; everything else defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	cfg.JoinSounds, cfg.LeaveSounds = loadUserSounds(os.Environ())

	logrus.WithFields(logrus.Fields{
		"channel_id":   cfg.ChannelID,
		"sounds_dir":   cfg.SoundsDir,
		"join_sounds":  len(cfg.JoinSounds),
		"leave_sounds": len(cfg.LeaveSounds),
	}).Info("Configuration loaded")

	return cfg, nil
}

// Filter returns the ffmpeg audio filter description applied to every
// playback request.
func (c *Config) Filter() string {
	return fmt.Sprintf("loudnorm=I=%g:TP=%g:LRA=%g:linear=true",
		c.TargetLUFS, c.TargetTP, c.TargetLRA)
}

// loadUserSounds scans environ entries of the form PERSON_<NAME>=<user id>
// and collects <NAME>_JOIN / <NAME>_LEAVE filenames for that user. Entries
// with a non-numeric user ID are skipped.
func loadUserSounds(environ []string) (joins, leaves map[string]string) {
	joins = make(map[string]string)
	leaves = make(map[string]string)

	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if ok {
			vars[key] = val
		}
	}

	for key, val := range vars {
		if !strings.HasPrefix(key, personPrefix) {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(key, personPrefix))
		userID := strings.TrimSpace(val)
		if name == "" || !isDigits(userID) {
			continue
		}
		if join := strings.TrimSpace(vars[name+"_JOIN"]); join != "" {
			joins[userID] = join
		}
		if leave := strings.TrimSpace(vars[name+"_LEAVE"]); leave != "" {
			leaves[userID] = leave
		}
	}
	return joins, leaves
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
