// Package mock provides an in-memory download client for development and
// tests. Downloads advance a fixed amount on every status poll and complete
// on their own.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/kikootwo/readmeabook/internal/downloader/types"
)

// DefaultStepPercent is the progress gained per status poll.
const DefaultStepPercent = 25.0

type download struct {
	name     string
	progress float64
	savePath string
	errored  bool
	errMsg   string
}

// Client is an in-memory download client.
type Client struct {
	mu          sync.Mutex
	downloads   map[string]*download
	savePath    string
	stepPercent float64
	failNext    string
}

var _ types.Client = (*Client)(nil)

// New creates a mock client. savePath is reported for every completed
// download.
func New(savePath string) *Client {
	return &Client{
		downloads:   make(map[string]*download),
		savePath:    savePath,
		stepPercent: DefaultStepPercent,
	}
}

// SetStepPercent overrides the per-poll progress step.
func (c *Client) SetStepPercent(step float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stepPercent = step
}

// FailNext makes the next submitted download fail with the given message.
func (c *Client) FailNext(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = message
}

// Type returns the client type.
func (c *Client) Type() types.ClientType { return types.ClientTypeMock }

// Protocol returns the protocol.
func (c *Client) Protocol() types.Protocol { return types.ProtocolTorrent }

// Test always succeeds.
func (c *Client) Test(ctx context.Context) error { return ctx.Err() }

// Submit registers a fake download and returns its generated ID.
func (c *Client) Submit(ctx context.Context, req types.SubmitRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.NewString()
	d := &download{name: req.Name, savePath: c.savePath}
	if c.failNext != "" {
		d.errored = true
		d.errMsg = c.failNext
		c.failNext = ""
	}
	c.downloads[id] = d
	return id, nil
}

// Status advances the download and returns its state.
func (c *Client) Status(ctx context.Context, id string) (*types.DownloadState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.downloads[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	if d.errored {
		return &types.DownloadState{
			Progress: d.progress,
			Errored:  true,
			Error:    d.errMsg,
		}, nil
	}

	if d.progress < 100 {
		d.progress += c.stepPercent
		if d.progress > 100 {
			d.progress = 100
		}
	}

	state := &types.DownloadState{Progress: d.progress}
	if d.progress >= 100 {
		state.Done = true
		state.SavePath = d.savePath
		if d.name != "" {
			state.SavePath = fmt.Sprintf("%s/%s", d.savePath, d.name)
		}
	}
	return state, nil
}

// Remove forgets a download.
func (c *Client) Remove(ctx context.Context, id string, deleteFiles bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.downloads[id]; !ok {
		return types.ErrNotFound
	}
	delete(c.downloads, id)
	return nil
}
