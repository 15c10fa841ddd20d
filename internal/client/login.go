package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNoSession is returned by Login when the service accepted the
// credentials but set no session cookie.
var ErrNoSession = errors.New("login succeeded but no session cookie was returned")

// Login exchanges an email (or login) and password for a session credential.
// A nil httpClient uses http.DefaultClient.
func Login(ctx context.Context, httpClient *http.Client, instance, identifier, password string) (string, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	data, err := json.Marshal(map[string]string{"identifier": identifier, "password": password})
	if err != nil {
		return "", fmt.Errorf("marshaling login body: %w", err)
	}
	url := strings.TrimRight(instance, "/") + "/auth/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("logging in: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie && c.Value != "" {
			return c.Value, nil
		}
	}
	return "", ErrNoSession
}
