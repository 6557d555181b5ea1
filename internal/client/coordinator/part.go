package coordinator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sethvargo/go-retry"
)

// uploadOnePart signs and PUTs a single chunk, returning the ETag the store
// reported for it. Transient failures are retried with fresh signatures so
// an expired URL never wedges a part.
func (c *Coordinator) uploadOnePart(ctx context.Context, videoID, uploadID string, f *os.File, partNumber int32, offset, length int64) (string, error) {
	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, offset); err != nil && err != io.EOF {
		return "", err
	}

	var etag string
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		url, err := c.api.SignPart(ctx, videoID, uploadID, partNumber)
		if err != nil {
			return err
		}

		etag, err = c.putPresigned(ctx, url, buf)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	c.logger.Debug(ctx, "part uploaded",
		"video_id", videoID, "part_number", partNumber, "bytes", length)
	return etag, nil
}

// putPresigned uploads one chunk to a presigned URL and returns the ETag
// from the response verbatim, as the store expects it back on completion.
func (c *Coordinator) putPresigned(ctx context.Context, url string, chunk []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(chunk))
	if err != nil {
		return "", err
	}
	req.ContentLength = int64(len(chunk))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.put.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	}

	etag := resp.Header.Get("ETag")
	if etag == "" {
		return "", fmt.Errorf("upload response carried no ETag")
	}
	return etag, nil
}
