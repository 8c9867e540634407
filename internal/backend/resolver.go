// Package backend works out which backend the client talks to based on
// where the frontend is served from.
package backend

import (
	"fmt"
	"net/url"
	"strings"
)

// Environment names a deployment flavor.
type Environment string

const (
	EnvDevelopment       Environment = "development"
	EnvAzureContainerApp Environment = "azure-container-app"
	EnvStaticHosting     Environment = "static-hosting"
)

// Well known backends.
const (
	DefaultRemoteURL = "https://az-ca-b6zn2mwoivw2u.jollygrass-14681beb.westus2.azurecontainerapps.io"
	LocalURL         = "http://127.0.0.1:10000"
	LocalWSURL       = "ws://127.0.0.1:10000/client-ws"

	wsPath      = "/client-ws"
	backendPort = "10000"
)

var staticHosts = []string{"aidoru.chat", "vercel.app", "netlify.app"}

// Config is the resolved pair of backend endpoints.
type Config struct {
	WSURL       string      `json:"ws_url"`
	BaseURL     string      `json:"base_url"`
	Environment Environment `json:"environment"`
}

// Location is the page origin the client pretends to be served from.
// Host includes the port when one is present.
type Location struct {
	Scheme string
	Host   string
	Port   string
}

// ParseLocation builds a Location from an absolute URL.
func ParseLocation(raw string) (*Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid location %q: scheme and host are required", raw)
	}
	return &Location{
		Scheme: u.Scheme,
		Host:   u.Host,
		Port:   u.Port(),
	}, nil
}

// Resolver maps a location to backend endpoints.
type Resolver struct {
	// RemoteURL is the backend used behind static hosting.
	RemoteURL string
}

// NewResolver creates a resolver. An empty remote falls back to DefaultRemoteURL.
func NewResolver(remoteURL string) *Resolver {
	if remoteURL == "" {
		remoteURL = DefaultRemoteURL
	}
	return &Resolver{RemoteURL: strings.TrimRight(remoteURL, "/")}
}

// Resolve uses the default remote backend.
func Resolve(loc *Location) Config {
	return NewResolver("").Resolve(loc)
}

// Resolve returns the backend endpoints for loc. A nil location means the
// client runs headless and talks to a local backend.
func (r *Resolver) Resolve(loc *Location) Config {
	if loc == nil {
		return Config{WSURL: LocalWSURL, BaseURL: LocalURL, Environment: EnvDevelopment}
	}

	scheme := strings.TrimSuffix(loc.Scheme, ":")
	wsScheme := "ws"
	if scheme == "https" {
		wsScheme = "wss"
	}
	sameHost := func(env Environment) Config {
		return Config{
			WSURL:       wsScheme + "://" + loc.Host + wsPath,
			BaseURL:     scheme + "://" + loc.Host,
			Environment: env,
		}
	}

	host := loc.Host
	switch {
	case containsAny(host, staticHosts...):
		remote := r.RemoteURL
		if remote == "" {
			remote = DefaultRemoteURL
		}
		remoteHost := strings.TrimPrefix(strings.TrimPrefix(remote, "https://"), "http://")
		return Config{
			WSURL:       wsScheme + "://" + remoteHost + wsPath,
			BaseURL:     remote,
			Environment: EnvStaticHosting,
		}
	case containsAny(host, "localhost", "127.0.0.1"):
		if loc.Port == backendPort {
			return sameHost(EnvDevelopment)
		}
		return Config{WSURL: LocalWSURL, BaseURL: LocalURL, Environment: EnvDevelopment}
	case strings.Contains(host, "azurecontainerapps.io"):
		return sameHost(EnvAzureContainerApp)
	default:
		return sameHost(EnvDevelopment)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
