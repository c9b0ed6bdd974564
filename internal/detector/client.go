package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/your-org/faceshare/internal/config"
	"github.com/your-org/faceshare/internal/observability"
)

// Detection failures fall into two classes: the remote call could not
// complete, or it completed with a body that violates the contract.
// Both end the pipeline run; neither is retried here. Retry policy
// belongs to the caller.
var (
	ErrUnavailable = errors.New("detection service unavailable")
	ErrMalformed   = errors.New("detection response malformed")
)

// Result is the outcome of one detection call. Zero faces is a normal
// result, not an error.
type Result struct {
	FaceCount   int
	Descriptors [][]float32
}

// Detector is the single capability the pipeline needs from the face
// detection service. Tests substitute a deterministic stub.
type Detector interface {
	Detect(ctx context.Context, image []byte, filename string) (*Result, error)
}

// Client calls the external detection service over HTTP.
type Client struct {
	baseURL string
	httpc   *http.Client
}

func NewClient(cfg config.DetectorConfig) *Client {
	return &Client{
		baseURL: cfg.URL,
		httpc:   &http.Client{Timeout: cfg.Timeout},
	}
}

// response mirrors the detection service's JSON contract.
type response struct {
	Success       bool         `json:"success"`
	FacesDetected int          `json:"faces_detected"`
	FaceEncodings [][]float32  `json:"face_encodings"`
	Error         string       `json:"error,omitempty"`
}

// Detect sends the image as a multipart upload and parses the result.
func (c *Client) Detect(ctx context.Context, image []byte, filename string) (*Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect-faces", &body)
	if err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.httpc.Do(req)
	observability.DetectorDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	var dr response
	if err := json.Unmarshal(data, &dr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if !dr.Success {
		if dr.Error != "" {
			return nil, fmt.Errorf("%w: service reported failure: %s", ErrMalformed, dr.Error)
		}
		return nil, fmt.Errorf("%w: service reported failure", ErrMalformed)
	}

	if dr.FacesDetected > 0 && len(dr.FaceEncodings) == 0 {
		return nil, fmt.Errorf("%w: %d faces reported but no encodings", ErrMalformed, dr.FacesDetected)
	}

	// All descriptors from one response must live in the same embedding
	// space; ragged rows mean the service broke its contract.
	for i, enc := range dr.FaceEncodings {
		if len(enc) == 0 || len(enc) != len(dr.FaceEncodings[0]) {
			return nil, fmt.Errorf("%w: encoding %d has length %d", ErrMalformed, i, len(enc))
		}
	}

	return &Result{
		FaceCount:   dr.FacesDetected,
		Descriptors: dr.FaceEncodings,
	}, nil
}
