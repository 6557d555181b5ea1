// Package api is the HTTP client for the vidcastx upload API. It decodes the
// server's error envelope back into the shared sentinel errors, so callers
// branch with errors.Is exactly as they would server-side.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/devchaudhary24k/vidcastx/internal/common"
)

type Video struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Status      string    `json:"status"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadID    string    `json:"upload_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type InitResult struct {
	UploadID string `json:"upload_id"`
	PartSize int64  `json:"part_size"`
}

type SignedPart struct {
	URL        string `json:"url"`
	PartNumber int32  `json:"part_number"`
}

type Part struct {
	PartNumber int32  `json:"part_number"`
	Size       int64  `json:"size"`
	ETag       string `json:"etag"`
}

type CompletedPart struct {
	PartNumber int32  `json:"part_number"`
	ETag       string `json:"etag"`
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// errFromStatus inverts the server's status mapping.
func errFromStatus(status int, message string) error {
	var sentinel error
	switch status {
	case http.StatusBadRequest:
		sentinel = common.ErrValidation
	case http.StatusUnauthorized:
		sentinel = common.ErrInvalidToken
	case http.StatusForbidden:
		sentinel = common.ErrForbidden
	case http.StatusNotFound:
		sentinel = common.ErrNotFound
	case http.StatusConflict:
		sentinel = common.ErrInvalidState
	case http.StatusUnprocessableEntity:
		sentinel = common.ErrPartMismatch
	case http.StatusServiceUnavailable:
		sentinel = common.ErrStoreUnavailable
	default:
		return fmt.Errorf("server returned %d: %s", status, message)
	}
	return fmt.Errorf("%w: %s", sentinel, message)
}

// do performs one request and decodes the response into out (when out is
// non-nil and the response has a body).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return errFromStatus(resp.StatusCode, e.Error)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// doIdempotent retries transient failures with exponential backoff. Only
// used for requests that are safe to repeat.
func (c *Client) doIdempotent(ctx context.Context, method, path string, query url.Values, body, out any) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(200*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.do(ctx, method, path, query, body, out)
		if common.IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) CreateVideo(ctx context.Context, filename, contentType, title string) (*Video, error) {
	var v Video
	err := c.do(ctx, http.MethodPost, "/api/v1/videos", nil, map[string]string{
		"filename":     filename,
		"content_type": contentType,
		"title":        title,
	}, &v)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) GetVideo(ctx context.Context, id string) (*Video, error) {
	var v Video
	if err := c.doIdempotent(ctx, http.MethodGet, "/api/v1/videos/"+id, nil, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) DeleteVideo(ctx context.Context, id string) error {
	return c.doIdempotent(ctx, http.MethodDelete, "/api/v1/videos/"+id, nil, nil, nil)
}

func (c *Client) InitMultipart(ctx context.Context, id, contentType string) (*InitResult, error) {
	var res InitResult
	err := c.do(ctx, http.MethodPost, "/api/v1/videos/"+id+"/multipart/init", nil,
		map[string]string{"content_type": contentType}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// SignPart fetches a presigned URL for one part. Signing is free of side
// effects server-side, so it retries on transient failures.
func (c *Client) SignPart(ctx context.Context, id, uploadID string, partNumber int32) (string, error) {
	q := url.Values{}
	q.Set("uploadId", uploadID)
	q.Set("partNumber", strconv.FormatInt(int64(partNumber), 10))

	var signed SignedPart
	err := c.doIdempotent(ctx, http.MethodGet, "/api/v1/videos/"+id+"/multipart/sign-part", q, nil, &signed)
	if err != nil {
		return "", err
	}
	return signed.URL, nil
}

func (c *Client) ListParts(ctx context.Context, id, uploadID string) ([]Part, error) {
	q := url.Values{}
	q.Set("uploadId", uploadID)

	var parts []Part
	err := c.doIdempotent(ctx, http.MethodGet, "/api/v1/videos/"+id+"/multipart/parts", q, nil, &parts)
	if err != nil {
		return nil, err
	}
	return parts, nil
}

func (c *Client) Complete(ctx context.Context, id, uploadID string, parts []CompletedPart) (*Video, error) {
	var v Video
	err := c.do(ctx, http.MethodPost, "/api/v1/videos/"+id+"/multipart/complete", nil, map[string]any{
		"upload_id": uploadID,
		"parts":     parts,
	}, &v)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Abort tears down the open upload. Aborting is idempotent server-side.
func (c *Client) Abort(ctx context.Context, id, uploadID string) error {
	return c.doIdempotent(ctx, http.MethodPost, "/api/v1/videos/"+id+"/multipart/abort", nil,
		map[string]string{"upload_id": uploadID}, nil)
}
