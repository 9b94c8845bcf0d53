package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/smartpharmacy/smartpos-backend/pkg/config"
	"github.com/smartpharmacy/smartpos-backend/pkg/logger"
)

// TextSegment is one detected text fragment, confidence-filtered by
// the vision service.
type TextSegment struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Region is one detected package region with its cropped image
type Region struct {
	Image      []byte  `json:"image"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// TextExtractor reads text out of an image
type TextExtractor interface {
	ExtractSegments(ctx context.Context, image []byte) ([]TextSegment, error)
	ExtractFullText(ctx context.Context, image []byte) (string, error)
}

// RegionDetector finds medicine-package regions in a frame
type RegionDetector interface {
	DetectRegions(ctx context.Context, image []byte) ([]Region, error)
}

// VisionClient calls the external detector/OCR service over HTTP. It
// implements both TextExtractor and RegionDetector.
type VisionClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewVisionClient creates a new vision service client
func NewVisionClient(cfg *config.VisionConfig, log *logger.Logger) *VisionClient {
	return &VisionClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log,
	}
}

type imageRequest struct {
	Image []byte `json:"image"`
}

// ExtractSegments runs per-segment OCR on an image
func (c *VisionClient) ExtractSegments(ctx context.Context, image []byte) ([]TextSegment, error) {
	var data struct {
		Segments []TextSegment `json:"segments"`
	}
	if err := c.post(ctx, "/api/v1/ocr/segments", image, &data); err != nil {
		return nil, err
	}
	return data.Segments, nil
}

// ExtractFullText runs whole-frame OCR on an image
func (c *VisionClient) ExtractFullText(ctx context.Context, image []byte) (string, error) {
	var data struct {
		Text string `json:"text"`
	}
	if err := c.post(ctx, "/api/v1/ocr/text", image, &data); err != nil {
		return "", err
	}
	return data.Text, nil
}

// DetectRegions finds package regions in a frame
func (c *VisionClient) DetectRegions(ctx context.Context, image []byte) ([]Region, error) {
	var data struct {
		Regions []Region `json:"regions"`
	}
	if err := c.post(ctx, "/api/v1/detect", image, &data); err != nil {
		return nil, err
	}
	return data.Regions, nil
}

func (c *VisionClient) post(ctx context.Context, path string, image []byte, out interface{}) error {
	payload, err := json.Marshal(imageRequest{Image: image})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error().Err(err).Str("path", path).Msg("Vision service call failed")
		return fmt.Errorf("failed to call vision service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("vision service %s failed with status %d: %v", path, resp.StatusCode, errResp)
	}

	// vision service wraps responses in {"success": true, "data": ...}
	var response struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := json.Unmarshal(response.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}
