package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/marquee/internal/domain"
	"github.com/mmcdole/marquee/internal/log"
	"github.com/mmcdole/marquee/internal/server"
	"github.com/mmcdole/marquee/internal/store"
	"github.com/mmcdole/marquee/internal/view"
)

// fakeEngine records commands and answers with canned errors
type fakeEngine struct {
	mu        sync.Mutex
	state     domain.State
	loginErr  error
	passwords []string
	logouts   int
	retries   chan struct{}
}

func (f *fakeEngine) Login(_ context.Context, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passwords = append(f.passwords, password)
	return f.loginErr
}

func (f *fakeEngine) Logout() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return nil
}

func (f *fakeEngine) RetryNow(context.Context) error {
	f.retries <- struct{}{}
	return nil
}

func (f *fakeEngine) State() domain.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func intPtr(v int) *int              { return &v }
func strPtr(v string) *string        { return &v }
func timePtr(t time.Time) *time.Time { return &t }

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 36))
	for x := 0; x < 64; x++ {
		for y := 0; y < 36; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: 80, B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fixture struct {
	engine  *fakeEngine
	handler http.Handler
	meta    *store.MetadataStore
	blobs   *store.BlobStore
}

func newFixture(t *testing.T, cfg server.Config) *fixture {
	t.Helper()
	db, err := store.Open("")
	require.NoError(t, err)
	meta := store.NewMetadataStore(db)
	blobs := store.NewBlobStore(db)

	eng := &fakeEngine{retries: make(chan struct{}, 1)}
	queries := view.NewQueries(meta, blobs, func() time.Time { return now })
	srv := server.New(cfg, eng, queries, log.NullLogger())
	return &fixture{engine: eng, handler: srv.Handler(), meta: meta, blobs: blobs}
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	require.NoError(t, f.meta.PutSummary(domain.DeviceSummary{ID: 42, Password: "abc123", Organization: "Acme", Type: domain.DeviceTypeVertical}))
	require.NoError(t, f.meta.PutContentItem("5", domain.ContentItem{Name: "Summer Promo", RemoteURL: "http://backend/media/5.png", LocalBlobHandle: strPtr("5"), Position: intPtr(2), Order: 0}))
	require.NoError(t, f.meta.PutContentItem("7", domain.ContentItem{Name: "Safety Video", RemoteURL: "http://backend/media/7.mp4", Order: 1}))
	require.NoError(t, f.meta.PutContentItem("9", domain.ContentItem{Name: "Summer Menu", RemoteURL: "http://backend/media/9.png", LocalBlobHandle: strPtr("9"), Position: intPtr(1), Order: 2, PlayEnd: timePtr(now.Add(time.Hour))}))
	require.NoError(t, f.meta.PutContentItem("11", domain.ContentItem{Name: "Expired", RemoteURL: "http://backend/media/11.png", Order: 3, PlayEnd: timePtr(now.Add(-time.Hour))}))
	require.NoError(t, f.blobs.Put("5", pngBytes(t)))
	require.NoError(t, f.blobs.Put("9", []byte("not really a png")))
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_Reads(t *testing.T) {
	f := newFixture(t, server.Config{})
	f.seed(t)

	t.Run("health", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", rec.Body.String())
	})

	t.Run("summary hides the password", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/summary", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Acme", body["organization"])
		assert.Equal(t, "", body["password"])
		assert.Equal(t, "Acme-Vertical.svg", body["fallback_artwork"])
	})

	t.Run("content is materialized", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/content", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Items []struct {
				Key         string  `json:"key"`
				Cached      bool    `json:"cached"`
				Video       bool    `json:"video"`
				BackdropURL string  `json:"backdrop_url"`
				Duration    float64 `json:"duration_seconds"`
			} `json:"items"`
			NextRefresh *time.Time `json:"next_refresh"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

		require.Len(t, body.Items, 3)
		assert.Equal(t, "9", body.Items[0].Key)
		assert.Equal(t, "5", body.Items[1].Key)
		assert.Equal(t, "7", body.Items[2].Key)
		assert.True(t, body.Items[2].Video)
		assert.False(t, body.Items[2].Cached)
		assert.Empty(t, body.Items[2].BackdropURL)
		assert.Equal(t, "/media/5/backdrop", body.Items[1].BackdropURL)
		assert.Equal(t, 5.0, body.Items[0].Duration)
		require.NotNil(t, body.NextRefresh)
		assert.True(t, body.NextRefresh.After(now.Add(time.Hour)))
	})

	t.Run("content query and cached filter", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/content?q=summer&cached=1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"key":"9"`)
		assert.Contains(t, rec.Body.String(), `"key":"5"`)
		assert.NotContains(t, rec.Body.String(), `"key":"7"`)
	})

	t.Run("media from cache", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/media/9", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.Equal(t, "not really a png", rec.Body.String())
	})

	t.Run("uncached media redirects to the backend", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/media/7", "")
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "http://backend/media/7.mp4", rec.Header().Get("Location"))
	})

	t.Run("unknown media", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/media/404", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("backdrop", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/media/5/backdrop", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

		img, format, err := image.Decode(rec.Body)
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
		assert.Equal(t, 480, img.Bounds().Dx())
	})

	t.Run("backdrop of undecodable bytes", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/media/9/backdrop", "")
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("backdrop of a video", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/media/7/backdrop", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_EmptyCache(t *testing.T) {
	f := newFixture(t, server.Config{})

	rec := f.do(http.MethodGet, "/api/summary", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/api/content", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
}

func TestServer_Commands(t *testing.T) {
	t.Run("login outcomes", func(t *testing.T) {
		cases := []struct {
			name string
			err  error
			code int
		}{
			{"success", nil, http.StatusNoContent},
			{"rejected", domain.ErrAuthFailed, http.StatusUnauthorized},
			{"offline", domain.ErrServerOffline, http.StatusServiceUnavailable},
			{"busy", domain.ErrCycleInProgress, http.StatusConflict},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				f := newFixture(t, server.Config{})
				f.engine.loginErr = tc.err

				rec := f.do(http.MethodPost, "/api/login", `{"password":"abc123"}`)
				assert.Equal(t, tc.code, rec.Code)
				assert.Equal(t, []string{"abc123"}, f.engine.passwords)
			})
		}
	})

	t.Run("login validates the body", func(t *testing.T) {
		f := newFixture(t, server.Config{})
		assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/login", `{`).Code)
		assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/login", `{"password":""}`).Code)
		assert.Empty(t, f.engine.passwords)
	})

	t.Run("logout", func(t *testing.T) {
		f := newFixture(t, server.Config{})
		assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/api/logout", "").Code)
		assert.Equal(t, 1, f.engine.logouts)
	})

	t.Run("retry runs in the background", func(t *testing.T) {
		f := newFixture(t, server.Config{})
		f.engine.state = domain.State{Status: domain.StatusDegraded, Authenticated: true, RetryIn: 7}

		rec := f.do(http.MethodGet, "/api/state", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"degraded":true`)
		assert.Contains(t, rec.Body.String(), `"retry_in":7`)

		assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/api/retry", "").Code)
		select {
		case <-f.engine.retries:
		case <-time.After(time.Second):
			t.Fatal("retry was not started")
		}
	})

	t.Run("retry without a device", func(t *testing.T) {
		f := newFixture(t, server.Config{})
		assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/api/retry", "").Code)
	})

	t.Run("commands are rate limited", func(t *testing.T) {
		f := newFixture(t, server.Config{LoginRate: 0.001, LoginBurst: 2})
		assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/api/logout", "").Code)
		assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/api/logout", "").Code)
		assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodPost, "/api/logout", "").Code)

		// reads are not limited
		assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/state", "").Code)
	})
}
