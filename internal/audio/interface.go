package audio

// Sink is the voice endpoint opus frames are written to. The bot adapts
// *discordgo.VoiceConnection to this; tests substitute fakes.
type Sink interface {
	// Connected reports whether the underlying voice connection is still up.
	Connected() bool
	// Speaking toggles the speaking indicator on the connection.
	Speaking(bool) error
	// OpusSend returns the channel opus frames are pushed into.
	OpusSend() chan<- []byte
}

// Streamer turns an audio file into opus frames and feeds them to a sink
// until the file ends or stop is closed.
type Streamer interface {
	Stream(sink Sink, path, filter string, stop <-chan struct{}) error
}
