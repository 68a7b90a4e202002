package app

import (
	"fmt"

	"github.com/raysh454/replaydesk/internal/archiveapi"
	"github.com/raysh454/replaydesk/internal/logging"
	"github.com/raysh454/replaydesk/internal/session"
	"github.com/raysh454/replaydesk/internal/webclient"
)

// Components are the long-lived services built from a Config.
type Components struct {
	API     webclient.WebClient
	Content webclient.WebClient
	Backend *archiveapi.Client
	Store   *session.Store
}

// NewComponents builds the web clients, the archive backend client and the
// session store.
func NewComponents(cfg *Config, logger logging.Logger) (*Components, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	api, err := webclient.NewWebClient(cfg.WebClientCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("new api webclient: %w", err)
	}

	content, err := webclient.NewWebClient(cfg.ContentClientCfg, logger)
	if err != nil {
		_ = api.Close()
		return nil, fmt.Errorf("new content webclient: %w", err)
	}

	backend, err := archiveapi.NewClient(cfg.BackendBaseURL, api, content, logger)
	if err != nil {
		_ = api.Close()
		_ = content.Close()
		return nil, fmt.Errorf("new archive client: %w", err)
	}

	root, err := cfg.ExpandedStorageRoot()
	if err != nil {
		_ = api.Close()
		_ = content.Close()
		return nil, err
	}
	store, err := session.Open(root, logger)
	if err != nil {
		_ = api.Close()
		_ = content.Close()
		return nil, fmt.Errorf("open session store: %w", err)
	}

	return &Components{
		API:     api,
		Content: content,
		Backend: backend,
		Store:   store,
	}, nil
}

// Close releases the clients and the store.
func (c *Components) Close() error {
	var firstErr error
	if err := c.API.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close api webclient: %w", err)
	}
	if err := c.Content.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close content webclient: %w", err)
	}
	if err := c.Store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close session store: %w", err)
	}
	return firstErr
}
