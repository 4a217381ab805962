// Package genimage is the client for the generative image service. The API is
// asynchronous: a job is created, then its status is polled until the result
// URL is available or the job fails.
package genimage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/visagelab/visagebot/internal/session"
)

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// Image is a generation result, delivered by URL or inline bytes depending on
// what the provider returned.
type Image struct {
	URL   string
	Bytes []byte
	Mime  string
}

// HairstyleOptions parameterizes the try-on render. The prompt override is an
// explicit argument; shared client state is never mutated per call.
type HairstyleOptions struct {
	ImageURL   string
	Landmarks  []session.Point
	FaceShape  string
	StyleIndex int
	Gender     string
	Color      string
	Length     string
	Texture    string
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// ChangeBackground replaces the image background with the given color or
// scene prompt, optionally guided by a style reference image.
func (c *Client) ChangeBackground(ctx context.Context, imageURL, prompt, styleImageURL string) (*Image, error) {
	input := map[string]any{
		"image_url": imageURL,
		"prompt":    prompt,
	}
	if styleImageURL != "" {
		input["style_image_url"] = styleImageURL
	}
	return c.runJob(ctx, "background-replace", input)
}

// ReplaceElement swaps the prompted object in the image.
func (c *Client) ReplaceElement(ctx context.Context, imageURL, prompt string) (*Image, error) {
	return c.runJob(ctx, "object-replace", map[string]any{
		"image_url": imageURL,
		"prompt":    prompt,
	})
}

// GenerateFromText renders an image from a prompt, optionally conditioned on
// a reference image.
func (c *Client) GenerateFromText(ctx context.Context, prompt, referenceURL string) (*Image, error) {
	input := map[string]any{
		"prompt": prompt,
	}
	if referenceURL != "" {
		input["reference_url"] = referenceURL
	}
	return c.runJob(ctx, "text-to-image", input)
}

// ApplyHairstyle renders the selected hairstyle onto the photo using the
// previously detected landmarks and face shape.
func (c *Client) ApplyHairstyle(ctx context.Context, opts HairstyleOptions) (*Image, error) {
	return c.runJob(ctx, "hairstyle-overlay", map[string]any{
		"image_url":   opts.ImageURL,
		"landmarks":   opts.Landmarks,
		"face_shape":  opts.FaceShape,
		"style_index": opts.StyleIndex,
		"gender":      opts.Gender,
		"color":       opts.Color,
		"length":      opts.Length,
		"texture":     opts.Texture,
	})
}

// runJob creates a job and polls its status until completion.
func (c *Client) runJob(ctx context.Context, model string, input map[string]any) (*Image, error) {
	taskID, err := c.createTask(ctx, map[string]any{
		"model": model,
		"input": input,
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return c.pollTaskStatus(ctx, taskID)
}

func (c *Client) createTask(ctx context.Context, payload map[string]any) (string, error) {
	fullURL := c.baseURL + "/api/v1/jobs/createTask"

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post genimage: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		c.log.Error("genimage create task failed", "status", resp.StatusCode, "body", truncateBody(rawBody))
		return "", fmt.Errorf("genimage error: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}

	var createResp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			TaskID string `json:"taskId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rawBody, &createResp); err != nil {
		return "", fmt.Errorf("decode create task response: %w (body=%s)", err, truncateBody(rawBody))
	}
	if createResp.Code != 200 {
		return "", fmt.Errorf("create task failed: code=%d msg=%s", createResp.Code, createResp.Msg)
	}
	if createResp.Data.TaskID == "" {
		return "", fmt.Errorf("empty taskId in response")
	}

	return createResp.Data.TaskID, nil
}

func (c *Client) pollTaskStatus(ctx context.Context, taskID string) (*Image, error) {
	params := url.Values{}
	params.Set("taskId", taskID)
	fullURL := c.baseURL + "/api/v1/jobs/recordInfo?" + params.Encode()

	maxAttempts := 60
	pollInterval := 2 * time.Second

	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("get task status: %w", err)
		}

		rawBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}

		if resp.StatusCode >= 300 {
			c.log.Error("genimage poll failed", "status", resp.StatusCode, "body", truncateBody(rawBody))
			return nil, fmt.Errorf("genimage error: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
		}

		var statusResp struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
			Data struct {
				TaskID     string `json:"taskId"`
				State      string `json:"state"`
				ResultJSON string `json:"resultJson"`
				FailCode   string `json:"failCode"`
				FailMsg    string `json:"failMsg"`
			} `json:"data"`
		}
		if err := json.Unmarshal(rawBody, &statusResp); err != nil {
			return nil, fmt.Errorf("decode status response: %w (body=%s)", err, truncateBody(rawBody))
		}
		if statusResp.Code != 200 {
			return nil, fmt.Errorf("get task status failed: code=%d msg=%s", statusResp.Code, statusResp.Msg)
		}

		switch statusResp.Data.State {
		case "success":
			if statusResp.Data.ResultJSON == "" {
				return nil, fmt.Errorf("empty resultJson in success response")
			}
			var result struct {
				ResultURLs []string `json:"resultUrls"`
			}
			if err := json.Unmarshal([]byte(statusResp.Data.ResultJSON), &result); err != nil {
				return nil, fmt.Errorf("parse resultJson: %w", err)
			}
			if len(result.ResultURLs) == 0 {
				return nil, fmt.Errorf("no resultUrls in result")
			}
			return &Image{URL: result.ResultURLs[0]}, nil

		case "fail":
			failMsg := statusResp.Data.FailMsg
			if failMsg == "" {
				failMsg = "unknown error"
			}
			c.log.Error("genimage task failed", "task_id", taskID, "fail_code", statusResp.Data.FailCode, "fail_msg", failMsg)
			return nil, fmt.Errorf("task failed: %s (code: %s)", failMsg, statusResp.Data.FailCode)

		case "waiting", "generating", "processing", "queued", "queueing":
			if attempt < maxAttempts-1 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(pollInterval):
					continue
				}
			}
			return nil, fmt.Errorf("task timeout after %d attempts", maxAttempts)

		default:
			return nil, fmt.Errorf("unknown task state: %s", statusResp.Data.State)
		}
	}

	return nil, fmt.Errorf("task timeout after %d attempts", maxAttempts)
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
