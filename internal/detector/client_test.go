package detector

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceshare/internal/config"
)

const detectURL = "http://detector.test/detect-faces"

func newTestClient() *Client {
	return NewClient(config.DetectorConfig{
		URL:     "http://detector.test",
		Timeout: 5 * time.Second,
	})
}

func TestDetectSuccess(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, detectURL,
		httpmock.NewStringResponder(200, `{
			"success": true,
			"faces_detected": 2,
			"face_encodings": [[0.1, 0.2, 0.3], [0.4, 0.5, 0.6]]
		}`))

	result, err := newTestClient().Detect(context.Background(), []byte("jpeg-bytes"), "photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, 2, result.FaceCount)
	require.Len(t, result.Descriptors, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, result.Descriptors[0])
	assert.Equal(t, []float32{0.4, 0.5, 0.6}, result.Descriptors[1])
}

func TestDetectZeroFaces(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, detectURL,
		httpmock.NewStringResponder(200, `{"success": true, "faces_detected": 0, "face_encodings": []}`))

	result, err := newTestClient().Detect(context.Background(), []byte("jpeg-bytes"), "photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, 0, result.FaceCount)
	assert.Empty(t, result.Descriptors)
}

func TestDetectSendsMultipartRequest(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, detectURL,
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, req.ParseMultipartForm(1<<20))
			file, header, err := req.FormFile("file")
			require.NoError(t, err)
			defer file.Close()
			assert.Equal(t, "photo.jpg", header.Filename)

			return httpmock.NewStringResponse(200,
				`{"success": true, "faces_detected": 0, "face_encodings": []}`), nil
		})

	_, err := newTestClient().Detect(context.Background(), []byte("jpeg-bytes"), "photo.jpg")
	require.NoError(t, err)
}

func TestDetectServerError(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	for _, status := range []int{400, 500, 503} {
		httpmock.RegisterResponder(http.MethodPost, detectURL,
			httpmock.NewStringResponder(status, "boom"))

		_, err := newTestClient().Detect(context.Background(), []byte("x"), "photo.jpg")
		require.ErrorIs(t, err, ErrUnavailable, "status %d", status)
	}
}

func TestDetectNetworkError(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, detectURL,
		httpmock.NewErrorResponder(errors.New("connection refused")))

	_, err := newTestClient().Detect(context.Background(), []byte("x"), "photo.jpg")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestDetectInvalidJSON(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, detectURL,
		httpmock.NewStringResponder(200, "<html>not json</html>"))

	_, err := newTestClient().Detect(context.Background(), []byte("x"), "photo.jpg")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDetectServiceReportedFailure(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	// 200 with success=false violates the happy-path contract.
	httpmock.RegisterResponder(http.MethodPost, detectURL,
		httpmock.NewStringResponder(200, `{"success": false, "error": "model not loaded"}`))

	_, err := newTestClient().Detect(context.Background(), []byte("x"), "photo.jpg")
	require.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestDetectFacesWithoutEncodings(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, detectURL,
		httpmock.NewStringResponder(200, `{"success": true, "faces_detected": 3, "face_encodings": []}`))

	_, err := newTestClient().Detect(context.Background(), []byte("x"), "photo.jpg")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDetectRaggedEncodings(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, detectURL,
		httpmock.NewStringResponder(200, `{
			"success": true,
			"faces_detected": 2,
			"face_encodings": [[0.1, 0.2, 0.3], [0.4, 0.5]]
		}`))

	_, err := newTestClient().Detect(context.Background(), []byte("x"), "photo.jpg")
	require.ErrorIs(t, err, ErrMalformed)
}
