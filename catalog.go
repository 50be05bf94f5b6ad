package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the catalog API base used when Config.BaseURL is empty.
const DefaultBaseURL = "https://civitai.com/api/v1"

// DefaultRequestTimeout bounds each catalog request. A catalog that
// never responds must surface as an absent result, not hang the batch.
const DefaultRequestTimeout = 30 * time.Second

// catalogClient handles HTTP communication with the remote catalog.
//
// Every failure mode (connection error, non-2xx status, or a body that
// fails schema validation) is collapsed into an absent result and
// logged, so that one bad response cannot abort a large batch.
type catalogClient struct {
	// baseURL is the catalog API base, without trailing slash.
	baseURL string

	// apiToken is appended to requests as a query parameter when set.
	// Never logged or echoed in error messages.
	apiToken string

	// httpClient is used for all HTTP requests.
	httpClient HTTPClient

	// timeout bounds each individual request.
	timeout time.Duration

	// logger receives diagnostic messages.
	logger Logger
}

// newCatalogClient creates a catalog client.
// The baseURL is normalized by removing any trailing slashes.
func newCatalogClient(baseURL, apiToken string, client HTTPClient, timeout time.Duration, logger Logger) *catalogClient {
	return &catalogClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiToken:   apiToken,
		httpClient: client,
		timeout:    timeout,
		logger:     logger,
	}
}

// fetchByHash looks up a model version by content hash.
// Returns the record and true on success, a zero record and false on
// any failure.
func (c *catalogClient) fetchByHash(ctx context.Context, hash string) (CatalogRecord, bool) {
	body, ok := c.get(ctx, c.baseURL+"/model-versions/by-hash/"+hash)
	if !ok {
		return CatalogRecord{}, false
	}

	rec, err := parseCatalogRecord(body)
	if err != nil {
		c.logger.Warn("catalog returned an unusable model-version record", "hash", shortHash(hash), "error", err)
		return CatalogRecord{}, false
	}
	return rec, true
}

// fetchDescriptionByID fetches the extended free-text description for a
// catalog model id. Returns the description and true on success, empty
// and false on any failure.
func (c *catalogClient) fetchDescriptionByID(ctx context.Context, id int64) (string, bool) {
	body, ok := c.get(ctx, fmt.Sprintf("%s/models/%d", c.baseURL, id))
	if !ok {
		return "", false
	}

	var w struct {
		Description *string `json:"description"`
	}
	if err := json.Unmarshal(body, &w); err != nil {
		c.logger.Warn("catalog returned an unusable model record", "id", id, "error", fmt.Errorf("%w: %v", ErrValidation, err))
		return "", false
	}
	if w.Description == nil {
		return "", false
	}
	return *w.Description, true
}

// fetchImage downloads raw image bytes from the given URL.
// Returns the bytes and true on success, nil and false on any failure.
func (c *catalogClient) fetchImage(ctx context.Context, imageURL string) ([]byte, bool) {
	return c.get(ctx, imageURL)
}

// get performs one bounded GET request, appending the api token when
// configured, and returns the response body. Transport failures and
// non-2xx statuses are logged with the token stripped from the URL.
func (c *catalogClient) get(ctx context.Context, rawURL string) ([]byte, bool) {
	reqURL := rawURL
	if c.apiToken != "" {
		sep := "?"
		if strings.Contains(reqURL, "?") {
			sep = "&"
		}
		reqURL += sep + "api_token=" + url.QueryEscape(c.apiToken)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		c.logger.Error("building catalog request", "url", rawURL, "error", err)
		return nil, false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("catalog request failed", "url", rawURL, "error", fmt.Errorf("%w: %v", ErrTransport, err))
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("catalog request failed", "url", rawURL, "error", fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode))
		return nil, false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("reading catalog response", "url", rawURL, "error", fmt.Errorf("%w: %v", ErrTransport, err))
		return nil, false
	}
	return body, true
}

// shortHash truncates a digest for log output.
func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
