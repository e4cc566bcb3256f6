package fetcher

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/backyonatan-alt/warmonitor/backend/internal/model"
	"github.com/backyonatan-alt/warmonitor/backend/internal/war"
)

// DirectoryEntry is one item of a GitHub contents listing.
type DirectoryEntry struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	DownloadURL string `json:"download_url"`
}

// ListHistory lists the snapshot files of the history cache directory.
func (f *Fetcher) ListHistory(ctx context.Context) ([]DirectoryEntry, error) {
	slog.Info("listing history snapshots")

	h := http.Header{}
	h.Set("Accept", "application/vnd.github+json")
	if f.cfg.GitHubAPIKey != "" {
		h.Set("Authorization", "token "+f.cfg.GitHubAPIKey)
	}

	entries, err := Get[[]DirectoryEntry](ctx, f, SourceHistoryList, f.cfg.HistoryListURL, h)
	if err != nil {
		return nil, err
	}

	files := entries[:0]
	for _, e := range entries {
		if e.DownloadURL == "" || (e.Type != "" && e.Type != "file") {
			continue
		}
		files = append(files, e)
	}
	slog.Info("history listing result", "files", len(files))
	return files, nil
}

// FetchHistorySnapshot fetches one snapshot file: the planet roster at that time.
func (f *Fetcher) FetchHistorySnapshot(ctx context.Context, url string) ([]model.Planet, error) {
	planets, err := Get[[]model.Planet](ctx, f, SourceHistoryFile, url, nil)
	if err != nil {
		return nil, err
	}
	return war.NormalizePlanets(planets), nil
}
