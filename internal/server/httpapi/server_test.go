package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devchaudhary24k/vidcastx/internal/common"
	"github.com/devchaudhary24k/vidcastx/internal/logging"
	"github.com/devchaudhary24k/vidcastx/internal/server/auth"
	"github.com/devchaudhary24k/vidcastx/internal/server/repositories/sessions"
	"github.com/devchaudhary24k/vidcastx/internal/server/services"
	"github.com/devchaudhary24k/vidcastx/internal/server/store"
)

var testSecret = []byte("test-secret")

// stubGateway is just enough of an object store for handler tests.
type stubGateway struct {
	nextID      int
	open        map[string]bool
	objects     map[string]int64
	completeErr error
}

func newStubGateway() *stubGateway {
	return &stubGateway{open: map[string]bool{}, objects: map[string]int64{}}
}

func (g *stubGateway) CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	g.nextID++
	id := fmt.Sprintf("mpu-%d", g.nextID)
	g.open[id] = true
	return id, nil
}

func (g *stubGateway) SignPart(ctx context.Context, key, uploadID string, partNumber int32) (string, error) {
	return fmt.Sprintf("https://store.example/%s?partNumber=%d", key, partNumber), nil
}

func (g *stubGateway) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []store.CompletedPart) error {
	if g.completeErr != nil {
		return g.completeErr
	}
	delete(g.open, uploadID)
	g.objects[key] = 1 << 20
	return nil
}

func (g *stubGateway) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	delete(g.open, uploadID)
	return nil
}

func (g *stubGateway) ListParts(ctx context.Context, key, uploadID string) ([]store.Part, error) {
	return []store.Part{{PartNumber: 1, Size: 8 << 20, ETag: "etag-1"}}, nil
}

func (g *stubGateway) HeadObject(ctx context.Context, key string) (*store.ObjectInfo, error) {
	size, ok := g.objects[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &store.ObjectInfo{Size: size}, nil
}

func (g *stubGateway) DeleteObject(ctx context.Context, key string) error {
	delete(g.objects, key)
	return nil
}

func (g *stubGateway) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	n := len(g.objects)
	g.objects = map[string]int64{}
	return n, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *stubGateway) {
	t.Helper()
	gw := newStubGateway()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc := services.NewUploadService(sessions.NewInMemoryRepository(), gw, services.NewLogNotifier(logger), logger)
	ts := httptest.NewServer(NewServer(svc, logger, testSecret).Router())
	t.Cleanup(ts.Close)
	return ts, gw
}

func bearerFor(t *testing.T, userID, tenantID string) string {
	t.Helper()
	tok, err := auth.GenerateToken(userID, tenantID, testSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, data
}

func createDraft(t *testing.T, ts *httptest.Server, token string) videoResponse {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/videos", token,
		map[string]string{"filename": "movie.mp4", "content_type": "video/mp4", "title": "My Movie"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var v videoResponse
	require.NoError(t, json.Unmarshal(body, &v))
	return v
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/videos", "", map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/videos", "Bearer garbage", map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_CreateVideo_Validation(t *testing.T) {
	ts, _ := newTestServer(t)
	token := bearerFor(t, "usr_1", "org_1")

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/videos", token,
		map[string]string{"filename": "doc.pdf", "content_type": "application/pdf"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GetVideo_TenantIsolation(t *testing.T) {
	ts, _ := newTestServer(t)
	owner := bearerFor(t, "usr_1", "org_1")
	stranger := bearerFor(t, "usr_2", "org_2")

	v := createDraft(t, ts, owner)

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/videos/"+v.ID, stranger, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/videos/vid_missing", owner, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_FullUploadFlow(t *testing.T) {
	ts, _ := newTestServer(t)
	token := bearerFor(t, "usr_1", "org_1")

	v := createDraft(t, ts, token)
	assert.Equal(t, "waiting_upload", v.Status)

	base := ts.URL + "/api/v1/videos/" + v.ID

	resp, body := doJSON(t, http.MethodPost, base+"/multipart/init", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var init initMultipartResponse
	require.NoError(t, json.Unmarshal(body, &init))
	assert.NotEmpty(t, init.UploadID)
	assert.Equal(t, int64(defaultPartSize), init.PartSize)

	resp, body = doJSON(t, http.MethodGet,
		base+"/multipart/sign-part?uploadId="+init.UploadID+"&partNumber=2", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var sign signPartResponse
	require.NoError(t, json.Unmarshal(body, &sign))
	assert.Contains(t, sign.URL, "partNumber=2")

	resp, body = doJSON(t, http.MethodGet, base+"/multipart/parts?uploadId="+init.UploadID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var parts []partResponse
	require.NoError(t, json.Unmarshal(body, &parts))
	require.Len(t, parts, 1)
	assert.Equal(t, int32(1), parts[0].PartNumber)

	resp, body = doJSON(t, http.MethodPost, base+"/multipart/complete", token, map[string]any{
		"upload_id": init.UploadID,
		"parts": []map[string]any{
			{"part_number": 2, "etag": "etag-2"},
			{"part_number": 1, "etag": "etag-1"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var done videoResponse
	require.NoError(t, json.Unmarshal(body, &done))
	assert.Equal(t, "processing", done.Status)
	assert.Empty(t, done.UploadID)
}

func TestAPI_InitTwiceConflicts(t *testing.T) {
	ts, _ := newTestServer(t)
	token := bearerFor(t, "usr_1", "org_1")
	v := createDraft(t, ts, token)
	base := ts.URL + "/api/v1/videos/" + v.ID

	resp, _ := doJSON(t, http.MethodPost, base+"/multipart/init", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, base+"/multipart/init", token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_CompleteStatusMapping(t *testing.T) {
	ts, gw := newTestServer(t)
	token := bearerFor(t, "usr_1", "org_1")
	v := createDraft(t, ts, token)
	base := ts.URL + "/api/v1/videos/" + v.ID

	resp, body := doJSON(t, http.MethodPost, base+"/multipart/init", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var init initMultipartResponse
	require.NoError(t, json.Unmarshal(body, &init))

	// empty part list never reaches the store
	resp, _ = doJSON(t, http.MethodPost, base+"/multipart/complete", token,
		map[string]any{"upload_id": init.UploadID, "parts": []any{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	gw.completeErr = fmt.Errorf("complete: %w", common.ErrPartMismatch)
	resp, _ = doJSON(t, http.MethodPost, base+"/multipart/complete", token, map[string]any{
		"upload_id": init.UploadID,
		"parts":     []map[string]any{{"part_number": 1, "etag": "bad"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	gw.completeErr = fmt.Errorf("complete: %w", common.ErrStoreUnavailable)
	resp, _ = doJSON(t, http.MethodPost, base+"/multipart/complete", token, map[string]any{
		"upload_id": init.UploadID,
		"parts":     []map[string]any{{"part_number": 1, "etag": "a"}},
	})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAPI_SignPart_BadPartNumber(t *testing.T) {
	ts, _ := newTestServer(t)
	token := bearerFor(t, "usr_1", "org_1")
	v := createDraft(t, ts, token)

	resp, _ := doJSON(t, http.MethodGet,
		ts.URL+"/api/v1/videos/"+v.ID+"/multipart/sign-part?uploadId=x&partNumber=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_AbortClearsUploadID(t *testing.T) {
	ts, _ := newTestServer(t)
	token := bearerFor(t, "usr_1", "org_1")
	v := createDraft(t, ts, token)
	base := ts.URL + "/api/v1/videos/" + v.ID

	resp, body := doJSON(t, http.MethodPost, base+"/multipart/init", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var init initMultipartResponse
	require.NoError(t, json.Unmarshal(body, &init))

	resp, body = doJSON(t, http.MethodPost, base+"/multipart/abort", token,
		map[string]string{"upload_id": init.UploadID})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var after videoResponse
	require.NoError(t, json.Unmarshal(body, &after))
	assert.Empty(t, after.UploadID)
	assert.Equal(t, "waiting_upload", after.Status)

	// aborting again is a no-op
	resp, _ = doJSON(t, http.MethodPost, base+"/multipart/abort", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_DeleteVideo(t *testing.T) {
	ts, _ := newTestServer(t)
	token := bearerFor(t, "usr_1", "org_1")
	v := createDraft(t, ts, token)

	resp, _ := doJSON(t, http.MethodDelete, ts.URL+"/api/v1/videos/"+v.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/videos/"+v.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
