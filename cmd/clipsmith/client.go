package main

import (
	"bufio"
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
	"syscall"
	"time"
)

// apiClient is a thin HTTP wrapper around the daemon API.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(address, token string) *apiClient {
	return &apiClient{
		baseURL: "http://" + address,
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *apiClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return wrapDialError(err, c.baseURL)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var failure struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(payload, &failure) == nil && failure.Error != "" {
			return errors.New(failure.Error)
		}
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(payload, out)
}

func wrapDialError(err error, baseURL string) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to daemon at %s: connection refused; start the daemon with `clipsmithd`", baseURL)
	}
	return fmt.Errorf("connect to daemon at %s: %w", baseURL, err)
}

// Submit parks a clip request in the tenant's inbox and returns the clip id.
func (c *apiClient) Submit(ctx context.Context, tenantID, url string) (string, error) {
	body, err := json.Marshal(map[string]string{"url": url, "tenantId": tenantID})
	if err != nil {
		return "", err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/clips", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var decoded struct {
		OK     bool   `json:"ok"`
		ClipID string `json:"clipId"`
	}
	if err := c.do(req, &decoded); err != nil {
		return "", err
	}
	if !decoded.OK || decoded.ClipID == "" {
		return "", errors.New("daemon did not acknowledge the submission")
	}
	return decoded.ClipID, nil
}

type daemonStatus struct {
	Running      bool   `json:"running"`
	PID          int    `json:"pid"`
	QueueDBPath  string `json:"queue_db_path"`
	LockFilePath string `json:"lock_file_path"`
	Queue        struct {
		Total     int `json:"total"`
		Pending   int `json:"pending"`
		Active    int `json:"active"`
		Completed int `json:"completed"`
		Failed    int `json:"failed"`
	} `json:"queue"`
	InboxDepth int `json:"inbox_depth"`
}

// Status fetches the daemon's runtime summary.
func (c *apiClient) Status(ctx context.Context) (daemonStatus, error) {
	var status daemonStatus
	req, err := c.newRequest(ctx, http.MethodGet, "/api/status", nil)
	if err != nil {
		return status, err
	}
	return status, c.do(req, &status)
}

type eventFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StreamEvents follows a tenant's event stream, invoking fn for every frame
// until the context ends or the server closes the stream.
func (c *apiClient) StreamEvents(ctx context.Context, tenantID string, since uint64, fromStart bool, fn func(eventFrame)) error {
	query := url.Values{"tenant": {tenantID}}
	if fromStart {
		query.Set("since", "0")
	} else if since > 0 {
		query.Set("since", strconv.FormatUint(since, 10))
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/api/events?"+query.Encode(), nil)
	if err != nil {
		return err
	}

	// Streaming request; the shared client timeout would cut it short.
	streamClient := &http.Client{}
	resp, err := streamClient.Do(req)
	if err != nil {
		return wrapDialError(err, c.baseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var failure struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(payload, &failure) == nil && failure.Error != "" {
			return errors.New(failure.Error)
		}
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame eventFrame
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
			continue
		}
		fn(frame)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return scanner.Err()
}
