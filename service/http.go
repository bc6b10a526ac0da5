package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
)

// GetBody issues a GET and returns the response body.
// There is no retry here: callers re-check on their own cadence. Network
// failures are marked temporary so callers can tell them apart from a
// provider that answered with an error status.
func GetBody(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("GetBody.NewRequest: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, MakeTemporary(fmt.Errorf("GetBody: %w", err))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("GetBody.ReadAll: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GetBody: %s: %s", resp.Status, body)
	}
	return body, nil
}

// PostForm submits url-encoded form values and returns the response status
// code. The body is discarded: the provider's acknowledgement carries no
// required content.
func PostForm(ctx context.Context, url string, values neturl.Values) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(values.Encode()))
	if err != nil {
		return 0, fmt.Errorf("PostForm.NewRequest: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, MakeTemporary(fmt.Errorf("PostForm: %w", err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
