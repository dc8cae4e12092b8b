package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/campusgate/campusgate-backend/internal/verification/domain"
	"github.com/campusgate/campusgate-backend/pkg/config"
)

// JPEG and PNG magic bytes for image detection
var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
)

// OCRRecognizer sends frames to the tesseract sidecar and returns the
// raw recognized text.
type OCRRecognizer struct {
	baseURL    string
	language   string
	httpClient *http.Client
}

// NewOCRRecognizer creates a recognizer against the configured OCR
// service.
func NewOCRRecognizer(cfg *config.OCRConfig) *OCRRecognizer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OCRRecognizer{
		baseURL:  cfg.URL,
		language: cfg.Language,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Recognize posts the frame as multipart form data and returns the
// text the engine read off it.
func (r *OCRRecognizer) Recognize(ctx context.Context, frame domain.Frame) (string, error) {
	if !isImageData(frame.Data) {
		return "", fmt.Errorf("ocr: frame is not a JPEG or PNG image")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return "", fmt.Errorf("ocr: create form file: %w", err)
	}
	if _, err := part.Write(frame.Data); err != nil {
		return "", fmt.Errorf("ocr: write frame data: %w", err)
	}
	if err := writer.WriteField("language", r.language); err != nil {
		return "", fmt.Errorf("ocr: write language field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("ocr: close multipart writer: %w", err)
	}

	url := r.baseURL + "/api/v1/recognize"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", fmt.Errorf("ocr: create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr: engine request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ocr: read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr: engine returned %d: %s", resp.StatusCode, string(respBody))
	}

	var ocrResp recognizeResponse
	if err := json.Unmarshal(respBody, &ocrResp); err != nil {
		return "", fmt.Errorf("ocr: parse response: %w", err)
	}
	return ocrResp.Text, nil
}

// isImageData checks for JPEG or PNG magic bytes at the start of the data.
func isImageData(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	return bytes.HasPrefix(data, jpegMagic) || bytes.HasPrefix(data, pngMagic)
}

type recognizeResponse struct {
	Text             string  `json:"text"`
	Confidence       float64 `json:"confidence"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
}
