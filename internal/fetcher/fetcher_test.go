package fetcher_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/time/rate"

	"github.com/mmcdole/marquee/internal/domain"
	"github.com/mmcdole/marquee/internal/fetcher"
	"github.com/mmcdole/marquee/internal/log"
	"github.com/mmcdole/marquee/internal/mocks"
	"github.com/mmcdole/marquee/internal/store"
)

// failingBlobs rejects every write
type failingBlobs struct{}

func (failingBlobs) Put(string, []byte) error {
	return &domain.StoreError{Op: "put blobs", Err: errors.New("disk full")}
}
func (failingBlobs) Get(string) ([]byte, bool, error) { return nil, false, nil }
func (failingBlobs) Clear() error                     { return nil }

func newBlobs(t *testing.T) *store.BlobStore {
	t.Helper()
	db, err := store.Open("")
	require.NoError(t, err)
	return store.NewBlobStore(db)
}

func TestFetcher_Fetch(t *testing.T) {
	ctx := context.Background()

	t.Run("stores every blob and reports progress", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := mocks.NewMockBlobSource(ctrl)
		blobs := newBlobs(t)
		f := fetcher.New(src, blobs, time.Second, nil, log.NullLogger())

		gomock.InOrder(
			src.EXPECT().FetchBlob(gomock.Any(), "http://b/1.png").Return([]byte("one"), nil),
			src.EXPECT().FetchBlob(gomock.Any(), "http://b/2.png").Return([]byte("two"), nil),
			src.EXPECT().FetchBlob(gomock.Any(), "http://b/3.mp4").Return([]byte("three"), nil),
		)

		var results []fetcher.Result
		err := f.Fetch(ctx, []fetcher.Request{
			{Key: "1", URL: "http://b/1.png"},
			{Key: "2", URL: "http://b/2.png"},
			{Key: "3", URL: "http://b/3.mp4"},
		}, func(r fetcher.Result) error { results = append(results, r); return nil })
		require.NoError(t, err)

		require.Len(t, results, 3)
		assert.Equal(t, []int{33, 67, 100}, []int{results[0].Percent, results[1].Percent, results[2].Percent})
		for _, r := range results {
			assert.NoError(t, r.Err)
		}

		data, ok, err := blobs.Get("3")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("three"), data)
	})

	t.Run("failed item is skipped", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := mocks.NewMockBlobSource(ctrl)
		blobs := newBlobs(t)
		f := fetcher.New(src, blobs, time.Second, nil, log.NullLogger())

		src.EXPECT().FetchBlob(gomock.Any(), "http://b/5").Return([]byte("five"), nil)
		src.EXPECT().FetchBlob(gomock.Any(), "http://b/7").Return(nil, domain.ErrServerOffline)
		src.EXPECT().FetchBlob(gomock.Any(), "http://b/9").Return([]byte("nine"), nil)

		var results []fetcher.Result
		err := f.Fetch(ctx, []fetcher.Request{
			{Key: "5", URL: "http://b/5"},
			{Key: "7", URL: "http://b/7"},
			{Key: "9", URL: "http://b/9"},
		}, func(r fetcher.Result) error { results = append(results, r); return nil })
		require.NoError(t, err)
		require.Len(t, results, 3)

		var fetchErr *domain.FetchError
		require.ErrorAs(t, results[1].Err, &fetchErr)
		assert.Equal(t, "7", fetchErr.Key)
		assert.ErrorIs(t, results[1].Err, domain.ErrServerOffline)
		assert.Equal(t, 100, results[2].Percent)

		keys, err := blobs.Keys()
		require.NoError(t, err)
		assert.Equal(t, []string{"5", "9"}, keys)
	})

	t.Run("store failure aborts the loop", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := mocks.NewMockBlobSource(ctrl)
		f := fetcher.New(src, failingBlobs{}, time.Second, nil, log.NullLogger())

		src.EXPECT().FetchBlob(gomock.Any(), "http://b/1").Return([]byte("one"), nil)

		called := 0
		err := f.Fetch(ctx, []fetcher.Request{
			{Key: "1", URL: "http://b/1"},
			{Key: "2", URL: "http://b/2"},
		}, func(fetcher.Result) error { called++; return nil })

		var storeErr *domain.StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Zero(t, called)
	})

	t.Run("cancelled context stops between items", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := mocks.NewMockBlobSource(ctrl)
		f := fetcher.New(src, newBlobs(t), time.Second, nil, log.NullLogger())

		cctx, cancel := context.WithCancel(ctx)
		src.EXPECT().FetchBlob(gomock.Any(), "http://b/1").DoAndReturn(func(context.Context, string) ([]byte, error) {
			cancel()
			return []byte("one"), nil
		})

		err := f.Fetch(cctx, []fetcher.Request{
			{Key: "1", URL: "http://b/1"},
			{Key: "2", URL: "http://b/2"},
		}, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("per item timeout counts as item failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := mocks.NewMockBlobSource(ctrl)
		f := fetcher.New(src, newBlobs(t), 20*time.Millisecond, nil, log.NullLogger())

		src.EXPECT().FetchBlob(gomock.Any(), "http://b/slow").DoAndReturn(func(c context.Context, _ string) ([]byte, error) {
			<-c.Done()
			return nil, c.Err()
		})

		var res fetcher.Result
		err := f.Fetch(ctx, []fetcher.Request{{Key: "slow", URL: "http://b/slow"}}, func(r fetcher.Result) error { res = r; return nil })
		require.NoError(t, err)
		assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	})

	t.Run("callback error stops the loop", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := mocks.NewMockBlobSource(ctrl)
		f := fetcher.New(src, newBlobs(t), time.Second, nil, log.NullLogger())

		src.EXPECT().FetchBlob(gomock.Any(), "http://b/1").Return([]byte("one"), nil)

		boom := errors.New("metadata write failed")
		err := f.Fetch(ctx, []fetcher.Request{
			{Key: "1", URL: "http://b/1"},
			{Key: "2", URL: "http://b/2"},
		}, func(fetcher.Result) error { return boom })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("empty request list", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := fetcher.New(mocks.NewMockBlobSource(ctrl), newBlobs(t), 0, rate.NewLimiter(rate.Inf, 1), nil)

		called := false
		require.NoError(t, f.Fetch(ctx, nil, func(fetcher.Result) error { called = true; return nil }))
		assert.False(t, called)
	})
}
