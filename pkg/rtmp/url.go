package rtmp

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

const DefaultPort = "1935"

// Target is a parsed publish URL.
type Target struct {
	Addr   string
	App    string
	Stream string
	TCURL  string
}

// ParseURL splits rtmp://host[:port]/app[/...]/stream[?query] into the
// values needed for connect and publish. A key= query parameter replaces
// the stream name; other query parameters stay on it.
func ParseURL(raw string) (Target, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Target{}, fmt.Errorf("parse rtmp url: %w", err)
	}
	if u.Scheme != "rtmp" {
		return Target{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return Target{}, fmt.Errorf("rtmp url has no host")
	}
	port := u.Port()
	if port == "" {
		port = DefaultPort
	}

	path := strings.Trim(u.Path, "/")
	app, name := path, ""
	if idx := strings.LastIndex(path, "/"); idx != -1 {
		app, name = path[:idx], path[idx+1:]
	}
	if u.RawQuery != "" {
		name += "?" + u.RawQuery
	}
	app = normalizeApp(app)
	if app == "" {
		return Target{}, fmt.Errorf("rtmp url has no app")
	}
	stream := sanitizeStreamKey(name)
	if stream == "" {
		return Target{}, fmt.Errorf("rtmp url has no stream name")
	}
	return Target{
		Addr:   net.JoinHostPort(host, port),
		App:    app,
		Stream: stream,
		TCURL:  "rtmp://" + u.Host + "/" + app,
	}, nil
}

// sanitizeStreamKey returns the publishing name. A key= parameter replaces
// it; any other query is kept for servers that read tokens from the name.
func sanitizeStreamKey(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Trim(name, "/")
	if name == "" {
		return ""
	}
	query := ""
	if idx := strings.Index(name, "?"); idx != -1 {
		query = name[idx+1:]
		name = name[:idx]
		for _, pair := range strings.Split(query, "&") {
			parts := strings.SplitN(pair, "=", 2)
			if len(parts) == 2 && parts[0] == "key" && parts[1] != "" {
				return parts[1]
			}
		}
	}
	base := filepath.Base(name)
	if base == "." || base == ".." {
		return ""
	}
	if query != "" {
		return base + "?" + query
	}
	return base
}

func normalizeApp(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if idx := strings.Index(name, "?"); idx != -1 {
		name = name[:idx]
	}
	return strings.Trim(name, "/")
}
