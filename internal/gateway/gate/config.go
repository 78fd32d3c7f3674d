package gate

import (
	"strings"
	"time"
)

const defaultREST = "https://api.gateio.ws/api/v4"

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
	ProxyURL    string

	RequestsPerSecond float64
	Burst             int
}

func (c Config) withDefaults() Config {
	out := c
	out.RESTBaseURL = strings.TrimRight(strings.TrimSpace(out.RESTBaseURL), "/")
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = defaultREST
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.ProxyURL = strings.TrimSpace(out.ProxyURL)
	if out.RequestsPerSecond <= 0 {
		out.RequestsPerSecond = 10
	}
	if out.Burst <= 0 {
		out.Burst = int(out.RequestsPerSecond) * 2
	}
	return out
}
