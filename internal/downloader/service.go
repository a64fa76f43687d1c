// Package downloader constructs the configured download client.
package downloader

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kikootwo/readmeabook/internal/downloader/mock"
	"github.com/kikootwo/readmeabook/internal/downloader/qbittorrent"
	"github.com/kikootwo/readmeabook/internal/downloader/sabnzbd"
	"github.com/kikootwo/readmeabook/internal/downloader/types"
)

// Config selects and configures the download client. An empty Type means no
// client is configured; New then returns types.ErrNotConfigured.
type Config struct {
	Type        types.ClientType
	Host        string
	Port        int
	Username    string
	Password    string
	UseSSL      bool
	APIKey      string
	Category    string
	DownloadDir string // used by the mock client as its save path
}

// New builds the configured download client.
func New(cfg Config, logger zerolog.Logger) (types.Client, error) {
	clientCfg := types.ClientConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		UseSSL:   cfg.UseSSL,
		APIKey:   cfg.APIKey,
		Category: cfg.Category,
	}

	switch cfg.Type {
	case "":
		return nil, types.ErrNotConfigured
	case types.ClientTypeQBittorrent:
		return qbittorrent.New(clientCfg, logger)
	case types.ClientTypeSABnzbd:
		return sabnzbd.New(clientCfg, logger)
	case types.ClientTypeMock:
		return mock.New(cfg.DownloadDir), nil
	default:
		return nil, fmt.Errorf("unknown download client type %q", cfg.Type)
	}
}
