package config

import (
	"fmt"
	"strings"

	"github.com/dkeye/Televisit/internal/app/session"
	"github.com/dkeye/Televisit/internal/domain"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ClientFlags registers the client command line on fs. Every flag maps to
// a session config key.
func ClientFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default config/client.<CONFIG_ENV>.yaml)")
	fs.String("server", "", "collaborator base url, e.g. http://localhost:8080")
	fs.String("appointment", "", "appointment id")
	fs.String("role", "", "doctor or patient")
	fs.String("chat", "", "chat transport: datachannel, signaling or poll")
	fs.String("audio-file", "", "ogg/opus file used as microphone")
	fs.String("video-file", "", "ivf/vp8 file used as camera")
	fs.String("record-dir", "", "directory for received media")
}

var flagKeys = map[string]string{
	"server":      "server_url",
	"appointment": "appointment_id",
	"role":        "role",
	"chat":        "chat.transport",
	"audio-file":  "media.audio_file",
	"video-file":  "media.video_file",
	"record-dir":  "media.record_dir",
}

func setSessionDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("appointment_id", "")
	v.SetDefault("role", "")
	v.SetDefault("initiator_role", string(domain.Doctor))
	v.SetDefault("ice_servers_json", "")
	v.SetDefault("chat.transport", string(session.ChatDataChannel))
	v.SetDefault("chat.poll_interval", "3s")
	v.SetDefault("media.audio_file", "")
	v.SetDefault("media.video_file", "")
	v.SetDefault("media.record_dir", "")
	v.SetDefault("media.allow_receive_only", false)
	v.SetDefault("handshake_timeout", "0s")
}

// LoadSession resolves the client session config from file, environment
// and the flags registered by ClientFlags, in increasing precedence.
func LoadSession(fs *pflag.FlagSet) (session.Config, error) {
	v := newViper("client")
	setSessionDefaults(v)

	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
		}
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return session.Config{}, err
				}
			}
		}
	}
	readConfigFile(v)
	return sessionFromViper(v)
}

func sessionFromViper(v *viper.Viper) (session.Config, error) {
	var cfg session.Config

	p, err := domain.ParseParticipant(v.GetString("role"))
	if err != nil {
		return cfg, fmt.Errorf("role: %w", err)
	}
	initiator, err := domain.ParseParticipant(v.GetString("initiator_role"))
	if err != nil {
		return cfg, fmt.Errorf("initiator_role: %w", err)
	}
	key, err := domain.NewSessionKey(v.GetString("appointment_id"), p, initiator)
	if err != nil {
		return cfg, err
	}
	cfg.Key = key

	cfg.ServerURL = strings.TrimRight(strings.TrimSpace(v.GetString("server_url")), "/")
	if cfg.ServerURL == "" {
		return cfg, fmt.Errorf("server_url: empty")
	}

	if raw := strings.TrimSpace(v.GetString("ice_servers_json")); raw != "" {
		cfg.ICEServers, err = ParseICEServersJSON(raw)
	} else {
		var servers []ICEServer
		if err = v.UnmarshalKey("ice_servers", &servers); err == nil {
			cfg.ICEServers, err = BuildICEServers(servers)
		}
	}
	if err != nil {
		return cfg, err
	}

	cfg.Chat.Transport = session.ChatTransport(strings.ToLower(v.GetString("chat.transport")))
	switch cfg.Chat.Transport {
	case session.ChatDataChannel, session.ChatSignaling, session.ChatPoll:
	default:
		return cfg, fmt.Errorf("chat.transport: unknown %q", cfg.Chat.Transport)
	}
	cfg.Chat.PollInterval = v.GetDuration("chat.poll_interval")
	if cfg.Chat.PollInterval <= 0 {
		return cfg, fmt.Errorf("chat.poll_interval: must be positive")
	}

	cfg.Media = session.MediaConfig{
		AudioFile:        v.GetString("media.audio_file"),
		VideoFile:        v.GetString("media.video_file"),
		RecordDir:        v.GetString("media.record_dir"),
		AllowReceiveOnly: v.GetBool("media.allow_receive_only"),
	}
	cfg.HandshakeTimeout = v.GetDuration("handshake_timeout")
	if cfg.HandshakeTimeout < 0 {
		return cfg, fmt.Errorf("handshake_timeout: negative")
	}
	return cfg, nil
}
