// Package cli wires the uploader pieces together and reports progress on
// the terminal.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/devchaudhary24k/vidcastx/internal/client/api"
	"github.com/devchaudhary24k/vidcastx/internal/client/config"
	"github.com/devchaudhary24k/vidcastx/internal/client/coordinator"
	"github.com/devchaudhary24k/vidcastx/internal/logging"
)

type App struct {
	cfg    *config.Config
	api    *api.Client
	coord  *coordinator.Coordinator
	state  *coordinator.StateStore
	logger logging.Logger
}

func NewApp(cfg *config.Config) (*App, error) {
	if cfg.Token == "" {
		return nil, errors.New("bearer token is required (-k flag or config file)")
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	apiClient := api.New(cfg.ServerURL, cfg.Token)
	state := coordinator.NewStateStore()
	coord := coordinator.New(apiClient, state, logger, coordinator.Options{
		PartSize:    cfg.PartSize,
		Concurrency: cfg.Concurrency,
	})

	return &App{cfg: cfg, api: apiClient, coord: coord, state: state, logger: logger}, nil
}

// printProgress renders state snapshots until unsubscribed. The returned
// channel closes when the printer drains.
func (app *App) printProgress(updates <-chan []coordinator.Item) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for snapshot := range updates {
			for _, item := range snapshot {
				fmt.Printf("%s  %-9s  %3d%%\n", item.VideoID, item.Status, item.Progress)
			}
		}
	}()
	return done
}

// Run uploads the given files concurrently, printing progress until every
// upload reaches a terminal state. Ctrl-C cancels the remaining uploads and
// aborts them server-side.
func (app *App) Run(ctx context.Context, paths []string, title string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	updates, unsubscribe := app.state.Subscribe()
	defer unsubscribe()
	done := app.printProgress(updates)

	var wg sync.WaitGroup
	errs := make([]error, len(paths))
	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			videoID, err := app.coord.Upload(ctx, path, title)
			if err != nil {
				errs[i] = fmt.Errorf("upload of %s failed: %w", path, err)
				return
			}
			fmt.Printf("uploaded %s as %s\n", path, videoID)
		}(i, path)
	}
	wg.Wait()

	unsubscribe()
	<-done

	return errors.Join(errs...)
}

// Resume continues an interrupted upload. The open multipart transaction is
// looked up on the server, so only the video id and the local file are
// needed.
func (app *App) Resume(ctx context.Context, videoID, path string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	video, err := app.api.GetVideo(ctx, videoID)
	if err != nil {
		return fmt.Errorf("look up video %s: %w", videoID, err)
	}
	if video.UploadID == "" {
		return fmt.Errorf("video %s has no open multipart upload to resume", videoID)
	}

	updates, unsubscribe := app.state.Subscribe()
	defer unsubscribe()
	done := app.printProgress(updates)

	err = app.coord.Resume(ctx, videoID, video.UploadID, path)

	unsubscribe()
	<-done

	if err != nil {
		return fmt.Errorf("resume of %s failed: %w", path, err)
	}
	fmt.Printf("resumed and finished %s as %s\n", path, videoID)
	return nil
}
