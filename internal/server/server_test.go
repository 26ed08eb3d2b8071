package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/pose-cropper/internal/config"
	"github.com/menta2k/pose-cropper/pkg/pipeline"
	"github.com/menta2k/pose-cropper/pkg/types"
)

type stubDetector struct{ calls int }

func (d *stubDetector) Detect(ctx context.Context, img image.Image) ([]types.Detection, error) {
	d.calls++
	return []types.Detection{
		{Class: "person", Score: 0.9, Box: types.BoundingBox{X: 50, Y: 50, Width: 100, Height: 200}},
	}, nil
}

type stubEstimator struct{}

func (stubEstimator) EstimatePoses(ctx context.Context, img image.Image, maxPoses int) ([]types.Pose, error) {
	return []types.Pose{{Score: 0.8, Keypoints: []types.Keypoint{{X: 96, Y: 96, Name: "nose", Confidence: 0.9}}}}, nil
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string]*pipeline.Result
}

func (m *memoryCache) Get(ctx context.Context, key string) (*pipeline.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[key], nil
}

func (m *memoryCache) Set(ctx context.Context, key string, r *pipeline.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = r
	return nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Mode = "test"
	return cfg
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, path string, data []byte, contentType string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if data != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="photo.png"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newTestServer(cache ResultCache) (*Server, *stubDetector) {
	det := &stubDetector{}
	session := pipeline.NewSession(det, stubEstimator{}, pipeline.DefaultOptions(), nil)
	return New(testConfig(), session, cache, nil), det
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready":true`)
}

func TestPose_JSON(t *testing.T) {
	s, _ := newTestServer(nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, uploadRequest(t, "/api/v1/pose", pngBytes(t, 400, 300), "image/png", nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp PoseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.False(t, resp.Cached)
	assert.NotEmpty(t, resp.Key)
	require.NotNil(t, resp.Data)
	require.NotNil(t, resp.Data.Crop)
	assert.Equal(t, types.CropRegion{StartX: 0, StartY: 50, Size: 200}, *resp.Data.Crop)
	require.Len(t, resp.Data.Keypoints, 1)
	assert.InDelta(t, 100.0, resp.Data.Keypoints[0].X, 1e-9)
	assert.InDelta(t, 150.0, resp.Data.Keypoints[0].Y, 1e-9)
}

func TestPose_Overlay(t *testing.T) {
	s, _ := newTestServer(nil)
	w := httptest.NewRecorder()
	req := uploadRequest(t, "/api/v1/pose", pngBytes(t, 400, 300), "image/png", map[string]string{"overlay": "true"})
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
}

func TestPose_CacheHit(t *testing.T) {
	mc := &memoryCache{items: map[string]*pipeline.Result{}}
	s, det := newTestServer(mc)
	data := pngBytes(t, 400, 300)

	var key string
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, uploadRequest(t, "/api/v1/pose", data, "image/png", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var resp PoseResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, i == 1, resp.Cached)
		key = resp.Key
	}
	assert.Equal(t, 1, det.calls)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/pose/"+key, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/pose/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPose_BadRequests(t *testing.T) {
	s, _ := newTestServer(nil)

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"missing file", uploadRequest(t, "/api/v1/pose", nil, "", map[string]string{"x": "y"})},
		{"wrong type", uploadRequest(t, "/api/v1/pose", []byte("hello"), "text/plain", nil)},
		{"not an image", uploadRequest(t, "/api/v1/pose", []byte("hello"), "image/png", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, tt.req)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestPose_TooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxSize = 10
	session := pipeline.NewSession(&stubDetector{}, stubEstimator{}, pipeline.DefaultOptions(), nil)
	s := New(cfg, session, nil, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, uploadRequest(t, "/api/v1/pose", pngBytes(t, 40, 30), "image/png", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPose_NotReady(t *testing.T) {
	session := pipeline.NewSession(nil, nil, pipeline.DefaultOptions(), nil)
	s := New(testConfig(), session, nil, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, uploadRequest(t, "/api/v1/pose", pngBytes(t, 40, 30), "image/png", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetByKey_CacheDisabled(t *testing.T) {
	s, _ := newTestServer(nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/pose/abc", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
