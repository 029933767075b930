// Package metadata reads deployment facts from the platform's local metadata
// service. The only fact used today is the compose hash.
package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/enclavekeeper/internal/besteffort"
	"github.com/dmitrijs2005/enclavekeeper/internal/common"
)

// Unavailable is the compose hash reported when the metadata service cannot
// be read.
const Unavailable = "unavailable"

// Client fetches the compose hash with a bounded timeout per call.
type Client struct {
	url     string
	timeout time.Duration
	http    *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{url: url, timeout: timeout, http: &http.Client{}}
}

// ComposeHash never returns an error: any failure yields an outcome whose
// Or(Unavailable) is the sentinel.
func (c *Client) ComposeHash(ctx context.Context) besteffort.Outcome[string] {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return besteffort.Failed[string](err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return besteffort.Unavailable[string](fmt.Errorf("%w: %v", common.ErrExternalCall, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return besteffort.Unavailable[string](fmt.Errorf("%w: metadata status %d", common.ErrExternalCall, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return besteffort.Unavailable[string](fmt.Errorf("%w: %v", common.ErrExternalCall, err))
	}

	hash := strings.TrimSpace(string(body))
	if hash == "" {
		return besteffort.Failed[string](fmt.Errorf("%w: empty compose hash", common.ErrExternalCall))
	}
	return besteffort.OK(hash)
}
