package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// ICEServer is one entry of the ice_servers config list.
type ICEServer struct {
	URLs       []string `mapstructure:"urls" json:"urls"`
	Username   string   `mapstructure:"username" json:"username,omitempty"`
	Credential string   `mapstructure:"credential" json:"credential,omitempty"`
}

// ParseICEServersJSON accepts `[{"urls": "stun:..."}]` with urls either a
// string or a list.
func ParseICEServersJSON(raw string) ([]webrtc.ICEServer, error) {
	var entries []struct {
		URLs       json.RawMessage `json:"urls"`
		Username   string          `json:"username"`
		Credential string          `json:"credential"`
	}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}
	servers := make([]ICEServer, 0, len(entries))
	for i, e := range entries {
		var urls []string
		var single string
		if err := json.Unmarshal(e.URLs, &single); err == nil {
			urls = []string{single}
		} else if err := json.Unmarshal(e.URLs, &urls); err != nil {
			return nil, fmt.Errorf("ice_servers[%d].urls: %w", i, err)
		}
		servers = append(servers, ICEServer{URLs: urls, Username: e.Username, Credential: e.Credential})
	}
	return BuildICEServers(servers)
}

// BuildICEServers trims and validates the configured servers.
func BuildICEServers(in []ICEServer) ([]webrtc.ICEServer, error) {
	out := make([]webrtc.ICEServer, 0, len(in))
	for i, s := range in {
		urls := make([]string, 0, len(s.URLs))
		for _, u := range s.URLs {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		server := webrtc.ICEServer{URLs: urls, Username: strings.TrimSpace(s.Username)}
		if strings.TrimSpace(s.Credential) != "" {
			server.Credential = s.Credential
		}
		if err := validateICEServer(server); err != nil {
			return nil, fmt.Errorf("ice_servers[%d]: %w", i, err)
		}
		out = append(out, server)
	}
	return out, nil
}

func validateICEServer(server webrtc.ICEServer) error {
	if len(server.URLs) == 0 {
		return errors.New("missing urls")
	}
	needCreds := false
	for _, u := range server.URLs {
		scheme, _, ok := strings.Cut(u, ":")
		if !ok {
			return fmt.Errorf("unsupported url: %q", u)
		}
		switch scheme {
		case "stun", "stuns":
		case "turn", "turns":
			needCreds = true
		default:
			return fmt.Errorf("unsupported url scheme: %q", u)
		}
	}
	if needCreds {
		if server.Username == "" {
			return errors.New("turn urls require username")
		}
		if cred, _ := server.Credential.(string); cred == "" {
			return errors.New("turn urls require credential")
		}
	}
	return nil
}
