package session

import (
	"time"

	"github.com/dkeye/Televisit/internal/domain"
	"github.com/pion/webrtc/v4"
)

type ChatTransport string

const (
	ChatDataChannel ChatTransport = "datachannel"
	ChatSignaling   ChatTransport = "signaling"
	ChatPoll        ChatTransport = "poll"
)

type ChatConfig struct {
	Transport    ChatTransport
	PollInterval time.Duration
}

func (c ChatConfig) transport() ChatTransport {
	if c.Transport == "" {
		return ChatDataChannel
	}
	return c.Transport
}

type MediaConfig struct {
	AudioFile        string
	VideoFile        string
	RecordDir        string
	AllowReceiveOnly bool
}

// Config is built once at startup and handed to New by value.
// Nothing in the session writes to it.
type Config struct {
	ServerURL        string
	Key              domain.SessionKey
	ICEServers       []webrtc.ICEServer
	Chat             ChatConfig
	Media            MediaConfig
	HandshakeTimeout time.Duration
}

func (c Config) webrtcConfig() webrtc.Configuration {
	servers := make([]webrtc.ICEServer, len(c.ICEServers))
	copy(servers, c.ICEServers)
	return webrtc.Configuration{ICEServers: servers}
}
