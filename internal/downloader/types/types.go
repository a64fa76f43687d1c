// Package types defines shared types for download clients.
package types

import (
	"context"
	"errors"
)

// Common errors for download clients.
var (
	ErrNotConfigured = errors.New("no download client configured")
	ErrAuthFailed    = errors.New("authentication failed")
	ErrNotFound      = errors.New("download not found")
)

// Protocol represents the download protocol.
type Protocol string

const (
	ProtocolTorrent Protocol = "torrent"
	ProtocolUsenet  Protocol = "usenet"
)

// ClientType represents the type of download client.
type ClientType string

const (
	ClientTypeQBittorrent ClientType = "qbittorrent"
	ClientTypeSABnzbd     ClientType = "sabnzbd"
	ClientTypeMock        ClientType = "mock"
)

// ClientConfig holds common configuration for all download clients.
type ClientConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseSSL   bool
	APIKey   string // for clients that use API keys (SABnzbd)
	Category string // category/label applied to submitted downloads
}

// SubmitRequest describes one download handed to a client.
type SubmitRequest struct {
	// URL is a magnet link or a torrent/NZB file URL.
	URL string
	// Name is a display name; clients that support it use it for labeling.
	Name string
}

// DownloadState is a point-in-time snapshot of one download.
type DownloadState struct {
	Progress float64 // 0-100
	SavePath string  // filled once the client knows it
	Done     bool
	Errored  bool
	Error    string
}

// Client is the common interface for download clients. Submit returns the
// client's identifier for the download, used for all later lookups.
type Client interface {
	Type() ClientType
	Protocol() Protocol
	Test(ctx context.Context) error
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	Status(ctx context.Context, id string) (*DownloadState, error)
	Remove(ctx context.Context, id string, deleteFiles bool) error
}
