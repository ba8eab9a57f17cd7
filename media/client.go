// Package media talks to Radarr and Sonarr, the media servers the agent
// looks titles up on and adds, updates and removes them from.
//
// Information Hiding:
// - Radarr/Sonarr v3 endpoints, authentication headers and payload shapes
// - Defaults applied when adding a title (root folder, monitoring, search)
// - Rendering of lookup records into plain-English lines for the model
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/richinex/cinematic/internal/httpkit"
	ijson "github.com/richinex/cinematic/internal/json"
)

// ErrNotFound is returned when the server has no record for an id.
var ErrNotFound = errors.New("media: not found")

// Kind selects the server flavour: Radarr serves movies, Sonarr series.
type Kind string

const (
	KindMovie  Kind = "movie"
	KindSeries Kind = "series"
)

// IDKey is the external database id field used for lookups and adds.
func (k Kind) IDKey() string {
	if k == KindSeries {
		return "tvdbId"
	}
	return "tmdbId"
}

// DefaultRootFolder is where new titles of this kind are stored.
func (k Kind) DefaultRootFolder() string {
	if k == KindSeries {
		return "/tv"
	}
	return "/movies"
}

// Label is the capitalised kind for prompts, e.g. "Movie".
func (k Kind) Label() string {
	if k == KindSeries {
		return "Series"
	}
	return "Movie"
}

// Record is one movie or series as the server returns it. Numbers are
// json.Number so ids survive the round trip through Update.
type Record map[string]any

// ClientConfig holds connection settings for one server.
type ClientConfig struct {
	URL        string
	APIKey     string
	AuthUser   string
	AuthPass   string
	RootFolder string
	HTTPClient *http.Client
}

// Client is a Radarr or Sonarr v3 API client.
type Client struct {
	kind       Kind
	base       string
	apiKey     string
	authUser   string
	authPass   string
	rootFolder string
	http       *http.Client
}

// NewClient creates a client for kind.
func NewClient(kind Kind, cfg ClientConfig) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpkit.NewClient()
	}
	root := cfg.RootFolder
	if root == "" {
		root = kind.DefaultRootFolder()
	}
	return &Client{
		kind:       kind,
		base:       strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		authUser:   cfg.AuthUser,
		authPass:   cfg.AuthPass,
		rootFolder: root,
		http:       hc,
	}
}

// Kind returns the server flavour.
func (c *Client) Kind() Kind {
	return c.kind
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s body: %w", c.kind, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	if c.authUser != "" {
		req.SetBasicAuth(c.authUser, c.authPass)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("media: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("media: %s %s: status %d: %s",
			method, path, resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}

	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", c.kind, err)
	}
	return nil
}

func (c *Client) collection() string {
	return "/api/v3/" + string(c.kind)
}

// Lookup searches the server's metadata source for term.
func (c *Client) Lookup(ctx context.Context, term string) ([]Record, error) {
	var out []Record
	err := c.do(ctx, http.MethodGet, c.collection()+"/lookup", url.Values{"term": {term}}, nil, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LookupByID fetches metadata for an external id (tmdbId or tvdbId).
func (c *Client) LookupByID(ctx context.Context, id int64) (Record, error) {
	if c.kind == KindMovie {
		var out Record
		q := url.Values{"tmdbId": {strconv.FormatInt(id, 10)}}
		if err := c.do(ctx, http.MethodGet, "/api/v3/movie/lookup/tmdb", q, nil, &out); err != nil {
			return nil, err
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: tmdbId %d", ErrNotFound, id)
		}
		return out, nil
	}

	results, err := c.Lookup(ctx, "tvdb:"+strconv.FormatInt(id, 10))
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: tvdbId %d", ErrNotFound, id)
	}
	return results[0], nil
}

// Get fetches a title already on the server by its server id.
func (c *Client) Get(ctx context.Context, id int64) (Record, error) {
	var out Record
	path := c.collection() + "/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Add puts the title with external id on the server with the given
// quality profile, monitored and searched for immediately.
func (c *Client) Add(ctx context.Context, id, qualityProfileID int64) error {
	record, err := c.LookupByID(ctx, id)
	if err != nil {
		return err
	}

	record["qualityProfileId"] = qualityProfileID
	record["rootFolderPath"] = c.rootFolder
	record["monitored"] = true
	record["minimumAvailability"] = "announced"
	switch c.kind {
	case KindMovie:
		record["addOptions"] = map[string]any{"searchForMovie": true}
	case KindSeries:
		record["addOptions"] = map[string]any{"searchForMissingEpisodes": true}
		record["languageProfileId"] = 1
	}

	return c.do(ctx, http.MethodPost, c.collection(), nil, record, nil)
}

// Update merges the JSON field map in fieldsJSON onto the stored title
// named by its "id" field and saves it.
func (c *Client) Update(ctx context.Context, fieldsJSON string) error {
	fields, err := ijson.Fields(fieldsJSON)
	if err != nil {
		return fmt.Errorf("invalid field map: %w", err)
	}
	id, err := ijson.Int(fields, "id")
	if err != nil {
		return fmt.Errorf("invalid field map: %w", err)
	}

	record, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	record = ijson.Merge(record, fields)

	path := c.collection() + "/" + strconv.FormatInt(id, 10)
	return c.do(ctx, http.MethodPut, path, nil, record, nil)
}

// Delete removes a title and its files from the server.
func (c *Client) Delete(ctx context.Context, id int64) error {
	path := c.collection() + "/" + strconv.FormatInt(id, 10)
	return c.do(ctx, http.MethodDelete, path, url.Values{"deleteFiles": {"true"}}, nil, nil)
}
