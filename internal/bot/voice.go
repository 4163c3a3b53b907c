package bot

import (
	"github.com/bwmarrin/discordgo"
)

// voiceConn adapts *discordgo.VoiceConnection to session.Conn. The session
// manager is the only owner of the handle; everything else receives it per
// call.
type voiceConn struct {
	vc *discordgo.VoiceConnection
}

func (c *voiceConn) Connected() bool {
	c.vc.RLock()
	defer c.vc.RUnlock()
	return c.vc.Ready
}

func (c *voiceConn) Speaking(speaking bool) error {
	return c.vc.Speaking(speaking)
}

func (c *voiceConn) OpusSend() chan<- []byte {
	return c.vc.OpusSend
}

func (c *voiceConn) Disconnect() error {
	return c.vc.Disconnect()
}
