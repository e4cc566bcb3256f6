package fetcher

import (
	"context"
	"errors"
	"log/slog"

	"github.com/backyonatan-alt/warmonitor/backend/internal/model"
)

// FetchRemoteConfig fetches the config document. Callers keep their last known
// good config when this fails.
func (f *Fetcher) FetchRemoteConfig(ctx context.Context) (model.RemoteConfig, error) {
	slog.Info("fetching remote config")

	rc, err := Get[model.RemoteConfig](ctx, f, SourceRemoteConfig, f.cfg.RemoteConfigURL, nil)
	if err != nil {
		return model.RemoteConfig{}, err
	}
	if rc.APIAddress == "" {
		return model.RemoteConfig{}, &Error{
			Kind:   KindDecode,
			Source: SourceRemoteConfig,
			URL:    f.cfg.RemoteConfigURL,
			Err:    errors.New("missing apiAddress"),
		}
	}

	slog.Info("remote config result", "api", rc.APIAddress, "season", rc.Season, "alert", rc.Alert != "")
	return rc, nil
}
