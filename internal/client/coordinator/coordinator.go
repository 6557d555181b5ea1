// Package coordinator drives chunked uploads from the client side: it splits
// a file into parts, pushes them through presigned URLs with bounded
// concurrency, and submits the collected ETags back to the API.
package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devchaudhary24k/vidcastx/internal/client/api"
	"github.com/devchaudhary24k/vidcastx/internal/logging"
)

// API is the slice of the upload API the coordinator needs.
type API interface {
	CreateVideo(ctx context.Context, filename, contentType, title string) (*api.Video, error)
	InitMultipart(ctx context.Context, id, contentType string) (*api.InitResult, error)
	SignPart(ctx context.Context, id, uploadID string, partNumber int32) (string, error)
	ListParts(ctx context.Context, id, uploadID string) ([]api.Part, error)
	Complete(ctx context.Context, id, uploadID string, parts []api.CompletedPart) (*api.Video, error)
	Abort(ctx context.Context, id, uploadID string) error
}

type Options struct {
	// PartSize is the fallback chunk size; the size advertised by the
	// server on init wins when present.
	PartSize int64

	// Concurrency bounds parallel part uploads. Defaults to 4.
	Concurrency int
}

type Coordinator struct {
	api     API
	state   *StateStore
	logger  logging.Logger
	opts    Options
	put     *http.Client
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func New(apiClient API, state *StateStore, logger logging.Logger, opts Options) *Coordinator {
	if opts.PartSize <= 0 {
		opts.PartSize = 8 << 20
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Coordinator{
		api:     apiClient,
		state:   state,
		logger:  logger,
		opts:    opts,
		put:     &http.Client{Timeout: 10 * time.Minute},
		cancels: make(map[string]context.CancelFunc),
	}
}

var videoContentTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".mpg":  "video/mpeg",
	".mpeg": "video/mpeg",
}

func contentTypeFor(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	ct, ok := videoContentTypes[ext]
	if !ok {
		return "", fmt.Errorf("unsupported video format %q", ext)
	}
	return ct, nil
}

// Upload registers a new video and pushes the whole file. It returns the
// video id once the server confirms the object is stitched.
func (c *Coordinator) Upload(ctx context.Context, path, title string) (string, error) {
	contentType, err := contentTypeFor(path)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("refusing to upload empty file %q", path)
	}

	video, err := c.api.CreateVideo(ctx, filepath.Base(path), contentType, title)
	if err != nil {
		return "", err
	}

	c.state.Track(video.ID, path)

	init, err := c.api.InitMultipart(ctx, video.ID, contentType)
	if err != nil {
		c.state.SetStatus(video.ID, StatusFailed, err.Error())
		return video.ID, err
	}

	return video.ID, c.run(ctx, video.ID, init.UploadID, f, info.Size(), c.effectivePartSize(init))
}

// Resume picks up an interrupted upload: parts the store already holds are
// skipped, only the remainder is pushed.
func (c *Coordinator) Resume(ctx context.Context, videoID, uploadID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	c.state.Track(videoID, path)
	return c.run(ctx, videoID, uploadID, f, info.Size(), c.opts.PartSize)
}

// Cancel stops an in-flight upload and aborts it server-side.
func (c *Coordinator) Cancel(videoID string) {
	c.mu.Lock()
	cancel, ok := c.cancels[videoID]
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// Close cancels every in-flight upload. Each one runs its usual
// cancellation path, including the server-side abort.
func (c *Coordinator) Close() {
	c.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(c.cancels))
	for _, cancel := range c.cancels {
		cancels = append(cancels, cancel)
	}
	c.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (c *Coordinator) effectivePartSize(init *api.InitResult) int64 {
	if init.PartSize > 0 {
		return init.PartSize
	}
	return c.opts.PartSize
}

// resumePartSize picks the chunk size the stored parts were cut at. The
// configured size wins when the stored layout matches it; otherwise the
// layout implied by the largest stored part wins. A stored part fitting
// neither layout means the file or configuration changed in a way that
// cannot be reconciled.
func resumePartSize(existing []api.Part, fileSize, configured int64) (int64, error) {
	if len(existing) == 0 {
		return configured, nil
	}

	var largest int64
	for _, p := range existing {
		if p.Size > largest {
			largest = p.Size
		}
	}

	for _, candidate := range []int64{configured, largest} {
		if candidate > 0 && partsFitLayout(existing, fileSize, candidate) {
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("stored parts do not match any chunk layout of a %d byte file", fileSize)
}

// partsFitLayout reports whether every stored part sits where a layout of
// partSize chunks would have put it: full chunks except for the final one.
func partsFitLayout(existing []api.Part, fileSize, partSize int64) bool {
	total := (fileSize + partSize - 1) / partSize
	for _, p := range existing {
		n := int64(p.PartNumber)
		if n < 1 || n > total {
			return false
		}
		want := partSize
		if n == total {
			want = fileSize - (n-1)*partSize
		}
		if p.Size != want {
			return false
		}
	}
	return true
}

func (c *Coordinator) run(ctx context.Context, videoID, uploadID string, f *os.File, size, partSize int64) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancels[videoID] = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		c.mu.Lock()
		delete(c.cancels, videoID)
		c.mu.Unlock()
	}()

	c.state.SetStatus(videoID, StatusUploading, "")

	err := c.uploadParts(ctx, videoID, uploadID, f, size, partSize)
	if err == nil {
		c.state.SetStatus(videoID, StatusComplete, "")
		c.logger.Info(ctx, "upload complete", "video_id", videoID)
		return nil
	}

	// tear down server-side with a fresh context; ours may be canceled
	abortCtx, abortCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer abortCancel()
	if abortErr := c.api.Abort(abortCtx, videoID, uploadID); abortErr != nil {
		c.logger.Warn(abortCtx, "abort failed", "video_id", videoID, "error", abortErr)
	}

	if ctx.Err() != nil {
		c.state.SetStatus(videoID, StatusCanceled, "")
		c.state.Remove(videoID)
		c.logger.Info(abortCtx, "upload canceled", "video_id", videoID)
		return ctx.Err()
	}

	c.state.SetStatus(videoID, StatusFailed, err.Error())
	c.logger.Error(abortCtx, "upload failed", "video_id", videoID, "error", err)
	return err
}

func (c *Coordinator) uploadParts(ctx context.Context, videoID, uploadID string, f *os.File, size, partSize int64) error {
	existing, err := c.api.ListParts(ctx, videoID, uploadID)
	if err != nil {
		return err
	}

	// parts already in the store fix the chunk layout; laying out the
	// remainder at a different size would leave byte ranges covered twice
	// or not at all
	partSize, err = resumePartSize(existing, size, partSize)
	if err != nil {
		return err
	}
	totalParts := int32((size + partSize - 1) / partSize)

	uploaded := make(map[int32]string, len(existing))
	var doneBytes atomic.Int64
	for _, p := range existing {
		uploaded[p.PartNumber] = p.ETag
		doneBytes.Add(p.Size)
	}

	report := func() {
		c.state.SetProgress(videoID, int(doneBytes.Load()*100/size))
	}
	report()

	results := make([]api.CompletedPart, totalParts)
	for n, etag := range uploaded {
		if n >= 1 && n <= totalParts {
			results[n-1] = api.CompletedPart{PartNumber: n, ETag: etag}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	for partNumber := int32(1); partNumber <= totalParts; partNumber++ {
		if _, ok := uploaded[partNumber]; ok {
			continue
		}

		offset := int64(partNumber-1) * partSize
		length := partSize
		if offset+length > size {
			length = size - offset
		}

		g.Go(func() error {
			etag, err := c.uploadOnePart(gctx, videoID, uploadID, f, partNumber, offset, length)
			if err != nil {
				return fmt.Errorf("part %d: %w", partNumber, err)
			}
			results[partNumber-1] = api.CompletedPart{PartNumber: partNumber, ETag: etag}
			doneBytes.Add(length)
			report()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	parts := make([]api.CompletedPart, 0, totalParts)
	for _, p := range results {
		if p.PartNumber != 0 {
			parts = append(parts, p)
		}
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })

	_, err = c.api.Complete(ctx, videoID, uploadID, parts)
	return err
}
