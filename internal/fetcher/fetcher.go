package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/mmcdole/marquee/internal/domain"
)

const defaultTimeout = 60 * time.Second

// Request names one item to download
type Request struct {
	Key string
	URL string
}

// Result reports a finished item. Err is a *domain.FetchError when the
// download failed; the blob was stored otherwise.
type Result struct {
	Key       string
	Err       error
	Completed int
	Total     int
	Percent   int
}

// Fetcher downloads content one item at a time into the Blob Store.
type Fetcher struct {
	src     domain.BlobSource
	blobs   domain.BlobStore
	timeout time.Duration
	limiter *rate.Limiter // nil = unthrottled
	logger  *slog.Logger
}

// New creates a Fetcher. A zero timeout uses 60s per item.
func New(src domain.BlobSource, blobs domain.BlobStore, timeout time.Duration, limiter *rate.Limiter, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{
		src:     src,
		blobs:   blobs,
		timeout: timeout,
		limiter: limiter,
		logger:  logger,
	}
}

// Fetch downloads reqs in order and calls onDone after each one.
// A failed download is reported through Result.Err and the loop moves on.
// A Blob Store failure, context cancellation or an error from onDone stops
// it and is returned.
func (f *Fetcher) Fetch(ctx context.Context, reqs []Request, onDone func(Result) error) error {
	total := len(reqs)
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		res := Result{
			Key:       req.Key,
			Completed: i + 1,
			Total:     total,
			Percent:   percent(i+1, total),
		}

		data, err := f.fetchOne(ctx, req.URL)
		switch {
		case err != nil && ctx.Err() != nil:
			// Cancelled mid-download, not an item failure
			return ctx.Err()
		case err != nil:
			f.logger.Warn("content fetch failed", "key", req.Key, "url", req.URL, "error", err)
			res.Err = &domain.FetchError{Key: req.Key, URL: req.URL, Err: err}
		default:
			if err := f.blobs.Put(req.Key, data); err != nil {
				var storeErr *domain.StoreError
				if !errors.As(err, &storeErr) {
					err = &domain.StoreError{Op: "put blob " + req.Key, Err: err}
				}
				f.logger.Error("failed to store blob", "key", req.Key, "error", err)
				return err
			}
			f.logger.Debug("content cached", "key", req.Key, "bytes", len(data), "progress", res.Percent)
		}

		if onDone != nil {
			if err := onDone(res); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *Fetcher) fetchOne(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return f.src.FetchBlob(ctx, url)
}

func percent(done, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}
