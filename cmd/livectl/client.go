package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"live-service/internal/shared/httpx"
)

type apiClient struct {
	base   string
	secret []byte
	sub    string
	http   *http.Client
}

func (g *globals) client() (*apiClient, error) {
	if g.secret == "" {
		return nil, errors.New("--secret or JWT_SECRET is required")
	}
	return &apiClient{
		base:   strings.TrimRight(g.server, "/"),
		secret: []byte(g.secret),
		sub:    g.subject,
		http:   &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// do sends a signed request and decodes a JSON answer into out when given.
// Non-2xx answers become errors carrying the server's message.
func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	tok, err := httpx.SignToken(c.secret, c.sub, 5*time.Minute)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var apiErr httpx.APIError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
