package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gojek/heimdall/v7/httpclient"
	"go.uber.org/zap"
)

// Client is an HTTP client for the gyre API.
type Client struct {
	BaseURL string
	http    *httpclient.Client
	logger  *zap.Logger
}

// NewClient creates a gyre API client.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		BaseURL: baseURL,
		http:    httpclient.NewClient(httpclient.WithHTTPTimeout(timeout)),
		logger:  logger,
	}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// do performs a request and returns the raw response body. body may be a
// []byte sent verbatim or any value encoded as JSON.
func (c *Client) do(method, path string, body any) ([]byte, error) {
	url := c.BaseURL + path

	var bodyReader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		bodyReader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("http request", zap.String("method", method), zap.String("url", url))

	resp, err := c.http.Do(req)
	if err != nil && resp == nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, rerr := io.ReadAll(resp.Body)
	if rerr != nil {
		return nil, fmt.Errorf("read response: %w", rerr)
	}

	c.logger.Debug("http response", zap.Int("status", resp.StatusCode), zap.ByteString("body", respBody))

	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		msg := string(bytes.TrimSpace(respBody))
		if json.Unmarshal(respBody, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}
	return respBody, nil
}

// Get performs a GET request and decodes the JSON answer into out.
func (c *Client) Get(path string, out any) error {
	b, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decode(b, out)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(path string, body, out any) error {
	b, err := c.do(http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return decode(b, out)
}

// Put performs a PUT request.
func (c *Client) Put(path string, body any) error {
	_, err := c.do(http.MethodPut, path, body)
	return err
}

// Delete performs a DELETE request.
func (c *Client) Delete(path string) error {
	_, err := c.do(http.MethodDelete, path, nil)
	return err
}

func decode(b []byte, out any) error {
	if out == nil || len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
