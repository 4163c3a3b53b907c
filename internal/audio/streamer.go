package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"layeh.com/gopus"
)

const (
	// Audio configuration (these are fixed by Discord)
	sampleRate = 48000
	channels   = 2
	frameSize  = 960 // 20ms @ 48kHz

	maxOpusBytes = frameSize * channels * 2

	// sendTimeout bounds a write to the voice connection so a dead
	// connection cannot wedge the stream goroutine.
	sendTimeout = time.Second
)

// FFmpegStreamer decodes a file with ffmpeg, encodes the PCM to opus and
// feeds the frames to the sink. One Stream call per playback.
type FFmpegStreamer struct{}

func (FFmpegStreamer) Stream(sink Sink, path, filter string, stop <-chan struct{}) error {
	// #nosec G204 - path comes from the configured sounds directory
	cmd := exec.Command("ffmpeg",
		"-i", path,
		"-vn",
		"-af", filter,
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("error creating ffmpeg pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("error starting ffmpeg: %w", err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return fmt.Errorf("error creating opus encoder: %w", err)
	}

	if err := sink.Speaking(true); err != nil {
		logrus.WithError(err).Debug("Failed to set speaking state")
	}
	defer func() {
		if err := sink.Speaking(false); err != nil {
			logrus.WithError(err).Debug("Failed to clear speaking state")
		}
	}()

	reader := bufio.NewReaderSize(stdout, 16384)
	pcm := make([]int16, frameSize*channels)
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		err := binary.Read(reader, binary.LittleEndian, &pcm)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading pcm from ffmpeg: %w", err)
		}

		frame, err := encoder.Encode(pcm, frameSize, maxOpusBytes)
		if err != nil {
			return fmt.Errorf("error encoding opus frame: %w", err)
		}

		select {
		case sink.OpusSend() <- frame:
		case <-stop:
			return nil
		case <-time.After(sendTimeout):
			return errors.New("voice send timed out")
		}
	}
}
