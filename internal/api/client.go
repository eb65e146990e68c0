// Package api talks to the host application's document service: the
// preview build data transform and document/blueprint refetches.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go-live-preview/internal/document"
)

const forceUpdateQuery = "force_update=true"

// StatusError is a non-2xx response. Message holds the server's error text
// when the body carried one.
type StatusError struct {
	StatusCode int
	StatusText string
	Message    string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %d %s: %s", e.StatusCode, e.StatusText, e.Message)
	}
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.StatusText)
}

// ClientError reports a 4xx response.
func (e *StatusError) ClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// AsStatusError unwraps a *StatusError from err.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Client is an HTTP client for one document collection.
type Client struct {
	baseURL    string
	collection string
	http       *http.Client
}

// NewClient returns a client rooted at baseURL. Documents live under
// {baseURL}/{collection}/{id}.
func NewClient(baseURL, collection string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: strings.Trim(collection, "/"),
		http:       &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient replaces the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// DocumentURL is the resource URL of a document. Unsaved documents (empty
// id) map to the collection URL.
func (c *Client) DocumentURL(id string) string {
	if id == "" {
		return c.baseURL + "/" + c.collection
	}
	return c.baseURL + "/" + c.collection + "/" + url.PathEscape(id)
}

// FetchDocument GETs a fresh copy of a document.
func (c *Client) FetchDocument(ctx context.Context, id string) (*document.Document, error) {
	var doc document.Document
	if err := c.getJSON(ctx, c.DocumentURL(id), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// FetchBlueprint GETs a blueprint definition.
func (c *Client) FetchBlueprint(ctx context.Context, id string) (*document.Blueprint, error) {
	var bp document.Blueprint
	if err := c.getJSON(ctx, c.baseURL+"/blueprints/"+url.PathEscape(id), &bp); err != nil {
		return nil, err
	}
	return &bp, nil
}

func (c *Client) getJSON(ctx context.Context, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, v)
}

func (c *Client) postJSON(ctx context.Context, u string, body any, v any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req, v)
}

func (c *Client) do(req *http.Request, v any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{
			StatusCode: resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Body:       string(body),
		}
		var envelope struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil {
			se.Message = envelope.Error
		}
		return se
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
