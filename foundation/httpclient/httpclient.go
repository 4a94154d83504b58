// Package httpclient provides basic http functions
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// GetWithKey retrieves the body at rawURL with apiKeyParam=apiKey appended as a
// query parameter, giving up after timeout. An empty apiKeyParam leaves the URL
// untouched.
func GetWithKey(rawURL string, apiKeyParam string, apiKey string, timeout time.Duration) ([]byte, error) {
	requestURL := rawURL
	if apiKeyParam != "" {
		parsed, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parsing feed url: %w", err)
		}
		q := parsed.Query()
		q.Set(apiKeyParam, apiKey)
		parsed.RawQuery = q.Encode()
		requestURL = parsed.String()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
