// Package cues maps participants and events to audio files and lists the
// browsable sound library. The sounds directory is the ground truth; nothing
// here is cached.
package cues

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Direction distinguishes arrival cues from departure cues.
type Direction int

const (
	Join Direction = iota
	Leave
)

func (d Direction) String() string {
	if d == Leave {
		return "leave"
	}
	return "join"
}

// privatePrefix marks files that never show up on the soundboard.
const privatePrefix = "custom_"

var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".ogg":  true,
	".opus": true,
}

// Cue is a named audio asset.
type Cue struct {
	Name string // display name, the file stem
	Path string
}

// Resolver resolves directional cues with a per-user override and a
// process-wide default per direction.
type Resolver struct {
	dir          string
	defaultJoin  string
	defaultLeave string
	joinSounds   map[string]string
	leaveSounds  map[string]string
}

// NewResolver builds a Resolver over the given sounds directory. The maps
// key Discord user IDs to filenames inside dir.
func NewResolver(dir, defaultJoin, defaultLeave string, joinSounds, leaveSounds map[string]string) *Resolver {
	return &Resolver{
		dir:          dir,
		defaultJoin:  defaultJoin,
		defaultLeave: defaultLeave,
		joinSounds:   joinSounds,
		leaveSounds:  leaveSounds,
	}
}

// Resolve returns the cue path for a user and direction. It always returns a
// path; whether the file exists is the player's problem.
func (r *Resolver) Resolve(userID string, d Direction) string {
	var filename string
	switch d {
	case Leave:
		filename = r.leaveSounds[userID]
		if filename == "" {
			filename = r.defaultLeave
		}
	default:
		filename = r.joinSounds[userID]
		if filename == "" {
			filename = r.defaultJoin
		}
	}
	return filepath.Join(r.dir, filename)
}

// Library lists the browsable cues: audio files in the sounds directory,
// excluding private ("custom_") files and anything reserved for directional
// use. Sorted case-insensitively by display name.
func (r *Resolver) Library() []Cue {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil
	}

	reserved := r.reservedFilenames()

	var cueList []Cue
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !audioExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if strings.HasPrefix(strings.ToLower(stem), privatePrefix) {
			continue
		}
		if reserved[name] {
			continue
		}
		cueList = append(cueList, Cue{
			Name: stem,
			Path: filepath.Join(r.dir, name),
		})
	}

	sort.Slice(cueList, func(i, j int) bool {
		return strings.ToLower(cueList[i].Name) < strings.ToLower(cueList[j].Name)
	})
	return cueList
}

// Lookup finds a library cue by display name.
func (r *Resolver) Lookup(name string) (Cue, bool) {
	for _, c := range r.Library() {
		if c.Name == name {
			return c, true
		}
	}
	return Cue{}, false
}

func (r *Resolver) reservedFilenames() map[string]bool {
	reserved := map[string]bool{
		r.defaultJoin:  true,
		r.defaultLeave: true,
	}
	for _, f := range r.joinSounds {
		reserved[f] = true
	}
	for _, f := range r.leaveSounds {
		reserved[f] = true
	}
	return reserved
}
