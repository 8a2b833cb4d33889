// Package jellyfin resolves requested item identifiers into the flat,
// playback-ordered list of leaf items by querying the Jellyfin server.
// Folders, albums, and playlists are expanded; leaf items pass through.
package jellyfin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config configures the resolver.
type Config struct {
	BaseURL string
	APIKey  string
	UserID  string
	Timeout time.Duration
}

// Resolver expands item ids through the Jellyfin items API.
type Resolver struct {
	log    *zap.Logger
	http   *http.Client
	config Config
}

// NewResolver creates a Jellyfin item resolver.
func NewResolver(log *zap.Logger, cfg Config) (*Resolver, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("base_url required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("api_key required")
	}
	if strings.TrimSpace(cfg.UserID) == "" {
		return nil, errors.New("user_id required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Resolver{
		log:    log,
		http:   &http.Client{Timeout: cfg.Timeout},
		config: cfg,
	}, nil
}

type itemsResponse struct {
	Items []item `json:"Items"`
}

type item struct {
	ID       string `json:"Id"`
	Type     string `json:"Type"`
	IsFolder bool   `json:"IsFolder"`
}

// Resolve fetches the requested items and expands every container into
// its leaf children, preserving request order.
func (r *Resolver) Resolve(ctx context.Context, _ string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, errors.New("no item ids")
	}

	params := url.Values{}
	params.Set("Ids", strings.Join(ids, ","))
	params.Set("Fields", "MediaType")

	var resp itemsResponse
	if err := r.getJSON(ctx, r.itemsEndpoint(), params, &resp); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(resp.Items))
	for _, it := range resp.Items {
		if !it.IsFolder {
			out = append(out, it.ID)
			continue
		}
		children, err := r.children(ctx, it.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, children...)
	}
	if len(out) == 0 {
		return nil, errors.New("no playable items")
	}
	return out, nil
}

func (r *Resolver) children(ctx context.Context, parentID string) ([]string, error) {
	params := url.Values{}
	params.Set("ParentId", parentID)
	params.Set("Recursive", "true")
	params.Set("IncludeItemTypes", "Audio,Movie,Episode,Video")
	params.Set("SortBy", "SortName")

	var resp itemsResponse
	if err := r.getJSON(ctx, r.itemsEndpoint(), params, &resp); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(resp.Items))
	for _, it := range resp.Items {
		out = append(out, it.ID)
	}
	return out, nil
}

func (r *Resolver) itemsEndpoint() string {
	return fmt.Sprintf("/Users/%s/Items", url.PathEscape(r.config.UserID))
}

func (r *Resolver) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	endpointURL := r.config.BaseURL + endpoint
	if len(params) > 0 {
		endpointURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Emby-Token", r.config.APIKey)

	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("jellyfin error: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
