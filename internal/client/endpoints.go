package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/ihiteshgupta/avatar-client/internal/backend"
	"github.com/ihiteshgupta/avatar-client/internal/config"
	"github.com/ihiteshgupta/avatar-client/internal/store"
)

// ResolveEndpoints picks the backend URLs. Explicit config wins over stored
// user overrides, which win over the location based resolver.
func ResolveEndpoints(ctx context.Context, cfg *config.Config, settings store.SettingsRepository) (backend.Config, error) {
	var loc *backend.Location
	if cfg.Location != "" {
		parsed, err := backend.ParseLocation(cfg.Location)
		if err != nil {
			return backend.Config{}, err
		}
		loc = parsed
	}
	endpoints := backend.NewResolver(cfg.RemoteBackendURL).Resolve(loc)

	if settings != nil {
		ws, err := lookupSetting(ctx, settings, store.SettingWSURL)
		if err != nil {
			return backend.Config{}, err
		}
		if ws != "" {
			endpoints.WSURL = ws
		}
		base, err := lookupSetting(ctx, settings, store.SettingBaseURL)
		if err != nil {
			return backend.Config{}, err
		}
		if base != "" {
			endpoints.BaseURL = base
		}
	}

	if cfg.WSURL != "" {
		endpoints.WSURL = cfg.WSURL
	}
	if cfg.BaseURL != "" {
		endpoints.BaseURL = cfg.BaseURL
	}
	return endpoints, nil
}

// DebugModeEnabled reports whether debug mode is on through config, a
// debug=true query parameter on the location, or a stored override.
func DebugModeEnabled(ctx context.Context, cfg *config.Config, settings store.SettingsRepository) bool {
	if cfg.DebugMode {
		return true
	}
	if cfg.Location != "" {
		if u, err := url.Parse(cfg.Location); err == nil && u.Query().Get("debug") == "true" {
			return true
		}
	}
	if settings != nil {
		v, err := lookupSetting(ctx, settings, store.SettingDebugMode)
		return err == nil && v == "true"
	}
	return false
}

func lookupSetting(ctx context.Context, settings store.SettingsRepository, key string) (string, error) {
	v, err := settings.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return v, nil
}
