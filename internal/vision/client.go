// Package vision is the client for the face analysis service: face-shape
// classification, landmark detection, symmetry and attractiveness scoring.
// "No face in the picture" is a normal outcome, not an error; it is reported
// as a nil result so callers can reply with guidance instead of failing.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
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

func NewClient(baseURL, apiKey string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// FaceShapeResult is the outcome of a face-shape analysis. Visualization is an
// annotated copy of the input image.
type FaceShapeResult struct {
	Shape         string
	Measurements  map[string]float64
	Landmarks     []session.Point
	Visualization []byte
}

// SymmetryResult carries the synthesized symmetry comparison image.
type SymmetryResult struct {
	Score         float64
	Visualization []byte
}

// ScoreResult is the attractiveness estimate.
type ScoreResult struct {
	Score        float64
	Measurements map[string]float64
}

type faceShapeResponse struct {
	FaceFound     bool               `json:"face_found"`
	Shape         string             `json:"shape"`
	Measurements  map[string]float64 `json:"measurements"`
	Landmarks     []session.Point    `json:"landmarks"`
	Visualization []byte             `json:"visualization"`
}

// AnalyzeFaceShape classifies the face on the image. Returns (nil, nil) when
// no face is detected.
func (c *Client) AnalyzeFaceShape(ctx context.Context, image []byte) (*FaceShapeResult, error) {
	var parsed faceShapeResponse
	if err := c.post(ctx, "/v1/face-shape", image, &parsed); err != nil {
		return nil, err
	}
	if !parsed.FaceFound {
		return nil, nil
	}
	return &FaceShapeResult{
		Shape:         parsed.Shape,
		Measurements:  parsed.Measurements,
		Landmarks:     parsed.Landmarks,
		Visualization: parsed.Visualization,
	}, nil
}

// DetectLandmarks returns facial landmarks, or nil when no face is detected.
func (c *Client) DetectLandmarks(ctx context.Context, image []byte) ([]session.Point, error) {
	var parsed struct {
		FaceFound bool            `json:"face_found"`
		Landmarks []session.Point `json:"landmarks"`
	}
	if err := c.post(ctx, "/v1/landmarks", image, &parsed); err != nil {
		return nil, err
	}
	if !parsed.FaceFound {
		return nil, nil
	}
	return parsed.Landmarks, nil
}

// AnalyzeSymmetry returns the symmetry visualization, or nil when no face is
// detected.
func (c *Client) AnalyzeSymmetry(ctx context.Context, image []byte) (*SymmetryResult, error) {
	var parsed struct {
		FaceFound     bool    `json:"face_found"`
		Score         float64 `json:"score"`
		Visualization []byte  `json:"visualization"`
	}
	if err := c.post(ctx, "/v1/symmetry", image, &parsed); err != nil {
		return nil, err
	}
	if !parsed.FaceFound {
		return nil, nil
	}
	return &SymmetryResult{Score: parsed.Score, Visualization: parsed.Visualization}, nil
}

// ScoreAttractiveness rates the face, or returns nil when no face is detected.
func (c *Client) ScoreAttractiveness(ctx context.Context, image []byte) (*ScoreResult, error) {
	var parsed struct {
		FaceFound    bool               `json:"face_found"`
		Score        float64            `json:"score"`
		Measurements map[string]float64 `json:"measurements"`
	}
	if err := c.post(ctx, "/v1/attractiveness", image, &parsed); err != nil {
		return nil, err
	}
	if !parsed.FaceFound {
		return nil, nil
	}
	return &ScoreResult{Score: parsed.Score, Measurements: parsed.Measurements}, nil
}

func (c *Client) post(ctx context.Context, path string, image []byte, out any) error {
	payload, err := json.Marshal(map[string]any{"image": image})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vision request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		c.log.Error("vision request failed", "status", resp.StatusCode, "path", path, "body", truncateBody(raw))
		return fmt.Errorf("vision error: status=%d path=%s", resp.StatusCode, path)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode vision response: %w (body=%s)", err, truncateBody(raw))
	}
	return nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
