package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/prayerkit/internal/history"
	"github.com/ibeckermayer/prayerkit/internal/kit"
	"github.com/ibeckermayer/prayerkit/internal/media"
	"github.com/ibeckermayer/prayerkit/internal/scheduler"
	"github.com/ibeckermayer/prayerkit/internal/store"
	"github.com/ibeckermayer/prayerkit/internal/types"
)

// fakeAgents records calls and returns canned results.
type fakeAgents struct {
	mu      sync.Mutex
	active  map[types.JobClass]bool
	cadence map[types.JobClass]int
	busy    bool
	runs    []types.Locale
	onRun   func(ctx context.Context)
}

func newFakeAgents() *fakeAgents {
	return &fakeAgents{
		active:  map[types.JobClass]bool{},
		cadence: map[types.JobClass]int{types.ClassLong: 1, types.ClassShort: 3},
	}
}

func (f *fakeAgents) Statuses() []scheduler.Status {
	return []scheduler.Status{f.Status(types.ClassLong), f.Status(types.ClassShort)}
}

func (f *fakeAgents) Status(class types.JobClass) scheduler.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := scheduler.Status{Class: class, Active: f.active[class], Cadence: f.cadence[class], State: scheduler.StateDisabled}
	if st.Active {
		st.State = scheduler.StateIdle
	}
	return st
}

func (f *fakeAgents) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

func (f *fakeAgents) setBusy(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = on
}

func (f *fakeAgents) SetActive(class types.JobClass, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[class] = on
}

func (f *fakeAgents) SetCadence(class types.JobClass, n int) error {
	if n < 0 || n > 3 {
		return errors.Wrapf(scheduler.ErrInvalidCadence, "%d", n)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cadence[class] = n
	return nil
}

func (f *fakeAgents) setOnRun(fn func(ctx context.Context)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onRun = fn
}

func (f *fakeAgents) RunNow(ctx context.Context, l types.Locale, class types.JobClass) (*types.HistoryItem, error) {
	f.mu.Lock()
	if f.busy {
		f.mu.Unlock()
		return nil, errors.Wrap(scheduler.ErrBusy, "pt/long is running")
	}
	f.runs = append(f.runs, l)
	onRun := f.onRun
	f.mu.Unlock()

	if onRun != nil {
		onRun(ctx)
	}
	return &types.HistoryItem{ID: "new", Language: l, Type: class}, nil
}

func (f *fakeAgents) Submit(l types.Locale, class types.JobClass) (scheduler.Running, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return scheduler.Running{}, errors.Wrap(scheduler.ErrBusy, "pt/long is running")
	}
	f.runs = append(f.runs, l)
	return scheduler.Running{Locale: l, Class: class}, nil
}

type fixture struct {
	agents  *fakeAgents
	store   *store.Store
	history *history.Collection
	reg     *media.Registry
	srv     *Server
	ts      *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sheets, err := kit.New()
	require.NoError(t, err)

	f := &fixture{
		agents:  newFakeAgents(),
		store:   st,
		history: history.New(st.KV(), st.Blobs()),
		reg:     media.NewRegistry(st.Blobs()),
	}
	f.srv = New(Deps{
		Agents:   f.agents,
		History:  f.history,
		Registry: f.reg,
		Sheets:   sheets,
	})
	f.ts = httptest.NewServer(f.srv.Handler())
	t.Cleanup(f.ts.Close)
	return f
}

func (f *fixture) seed(t *testing.T) types.HistoryItem {
	t.Helper()
	ctx := context.Background()
	item := types.HistoryItem{
		ID:        "item-1",
		Timestamp: time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC).UnixMilli(),
		Language:  types.LocalePT,
		Type:      types.ClassShort,
		Prompt:    "Esperança",
		Prayer:    "Senhor, renova minha esperança.",
		SocialPost: &types.SocialPost{
			Title:    "Um minuto de esperança",
			Hashtags: []string{"fé"},
		},
		AudioBlobKey: types.AudioBlobKey("item-1"),
		ImageBlobKey: types.ImageBlobKey("item-1"),
	}
	require.NoError(t, f.store.Blobs().Set(ctx, item.AudioBlobKey, store.Blob{Data: []byte("RIFFwav"), MIMEType: "audio/wav"}))
	require.NoError(t, f.store.Blobs().Set(ctx, item.ImageBlobKey, store.Blob{Data: []byte("\x89PNG"), MIMEType: "image/png"}))
	f.history.Append(item)
	return item
}

func (f *fixture) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, rd)
	require.NoError(t, err)
	resp, err := f.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.agents.setBusy(true)

	resp := f.request(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[StatusResponse](t, resp)
	assert.True(t, body.Busy)
	require.Len(t, body.Agents, 2)
	assert.Equal(t, types.ClassLong, body.Agents[0].Class)
}

func TestUpdateAgent(t *testing.T) {
	f := newFixture(t)
	on, n := true, 2

	resp := f.request(t, http.MethodPut, "/api/agents/short", AgentUpdate{Active: &on, Cadence: &n})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[scheduler.Status](t, resp)
	assert.True(t, st.Active)
	assert.Equal(t, 2, st.Cadence)

	bad := 9
	off := false
	resp = f.request(t, http.MethodPut, "/api/agents/short", AgentUpdate{Active: &off, Cadence: &bad})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.True(t, f.agents.Status(types.ClassShort).Active, "a rejected cadence leaves the toggle alone")

	resp = f.request(t, http.MethodPut, "/api/agents/medium", AgentUpdate{Active: &on})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunJob(t *testing.T) {
	f := newFixture(t)

	resp := f.request(t, http.MethodPost, "/api/jobs", JobRequest{Language: "en", Type: "short"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	running := decode[scheduler.Running](t, resp)
	assert.Equal(t, types.LocaleEN, running.Locale)

	resp = f.request(t, http.MethodPost, "/api/jobs?wait=true", JobRequest{Language: "es", Type: "long"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	item := decode[types.HistoryItem](t, resp)
	assert.Equal(t, types.LocaleES, item.Language)

	resp = f.request(t, http.MethodPost, "/api/jobs", JobRequest{Language: "fr", Type: "short"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	f.agents.setBusy(true)
	resp = f.request(t, http.MethodPost, "/api/jobs", JobRequest{Language: "pt", Type: "short"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, decode[errorBody](t, resp).Error, "already running")
}

func TestRunJob_WaitSurvivesClientHangup(t *testing.T) {
	f := newFixture(t)

	started := make(chan struct{})
	release := make(chan struct{})
	jobCtx := make(chan context.Context, 1)
	f.agents.setOnRun(func(ctx context.Context) {
		jobCtx <- ctx
		close(started)
		<-release
	})

	ctx, cancel := context.WithCancel(context.Background())
	data, err := json.Marshal(JobRequest{Language: "pt", Type: "long"})
	require.NoError(t, err)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.ts.URL+"/api/jobs?wait=true", bytes.NewReader(data))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		resp, err := f.ts.Client().Do(req)
		if err == nil {
			resp.Body.Close()
		}
		done <- err
	}()

	<-started
	running := <-jobCtx
	cancel()
	require.Error(t, <-done)

	assert.Never(t, func() bool { return running.Err() != nil }, 300*time.Millisecond, 10*time.Millisecond,
		"the job context is not tied to the client connection")
	_, hasDeadline := running.Deadline()
	assert.True(t, hasDeadline, "the job is still bounded by the job timeout")
	close(release)
}

func TestHistory_ListGetDelete(t *testing.T) {
	f := newFixture(t)
	item := f.seed(t)

	resp := f.request(t, http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]types.HistoryItem](t, resp), 1)

	resp = f.request(t, http.MethodGet, "/api/history?lang=en", nil)
	assert.Empty(t, decode[[]types.HistoryItem](t, resp))

	resp = f.request(t, http.MethodGet, "/api/history?lang=pt&q=ESPERAN", nil)
	assert.Len(t, decode[[]types.HistoryItem](t, resp), 1)

	resp = f.request(t, http.MethodGet, "/api/history/"+item.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, item.Prayer, decode[types.HistoryItem](t, resp).Prayer)

	resp = f.request(t, http.MethodGet, "/api/history/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.request(t, http.MethodDelete, "/api/history/"+item.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, f.history.Len())

	_, ok, err := f.store.Blobs().Get(context.Background(), item.AudioBlobKey)
	require.NoError(t, err)
	assert.False(t, ok, "deleting an item removes its media")
}

func TestHistory_Sheet(t *testing.T) {
	f := newFixture(t)
	item := f.seed(t)

	resp := f.request(t, http.MethodGet, "/api/history/"+item.ID+"/sheet", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sheet, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(sheet), "HASHTAGS: #fé")

	resp = f.request(t, http.MethodGet, "/api/history/missing/sheet", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMarkDownloaded(t *testing.T) {
	f := newFixture(t)
	item := f.seed(t)

	resp := f.request(t, http.MethodPost, "/api/history/"+item.ID+"/downloaded", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	got, err := f.history.Get(item.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDownloaded)

	resp = f.request(t, http.MethodPost, "/api/history/nope/downloaded", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMedia_OpenServeRevoke(t *testing.T) {
	f := newFixture(t)
	item := f.seed(t)

	resp := f.request(t, http.MethodPost, "/api/history/"+item.ID+"/media/audio", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decode[MediaResponse](t, resp)
	assert.True(t, strings.HasPrefix(string(first.Handle), media.HandlePrefix))
	assert.Equal(t, "audio/wav", first.MIMEType)

	resp = f.request(t, http.MethodGet, first.URL, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "RIFFwav", string(data))

	// Re-opening the same kind replaces the audio view's handle.
	resp = f.request(t, http.MethodPost, "/api/history/"+item.ID+"/media/audio", nil)
	second := decode[MediaResponse](t, resp)
	assert.NotEqual(t, first.Handle, second.Handle)
	resp = f.request(t, http.MethodGet, first.URL, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Image lives in its own view.
	resp = f.request(t, http.MethodPost, "/api/history/"+item.ID+"/media/image", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, f.reg.Len())

	resp = f.request(t, http.MethodDelete, second.URL, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = f.request(t, http.MethodGet, second.URL, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 1, f.reg.Len())

	require.NoError(t, f.srv.Shutdown(context.Background()))
	assert.Equal(t, 0, f.reg.Len())
}

func TestMedia_Missing(t *testing.T) {
	f := newFixture(t)
	item := f.seed(t)

	resp := f.request(t, http.MethodPost, "/api/history/"+item.ID+"/media/video", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.request(t, http.MethodPost, "/api/history/"+item.ID+"/media/subtitles", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	require.NoError(t, f.store.Blobs().Delete(context.Background(), item.ImageBlobKey))
	resp = f.request(t, http.MethodPost, "/api/history/"+item.ID+"/media/image", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.request(t, http.MethodGet, "/media/not-a-handle", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClient(t *testing.T) {
	f := newFixture(t)
	item := f.seed(t)
	c := NewClient(f.ts.URL)
	ctx := context.Background()

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, st.Agents, 2)

	on := true
	s, err := c.UpdateAgent(ctx, types.ClassLong, AgentUpdate{Active: &on})
	require.NoError(t, err)
	assert.True(t, s.Active)

	running, err := c.SubmitJob(ctx, types.LocaleES, types.ClassShort)
	require.NoError(t, err)
	assert.Equal(t, types.LocaleES, running.Locale)

	created, err := c.RunJob(ctx, types.LocalePT, types.ClassLong)
	require.NoError(t, err)
	assert.Equal(t, "new", created.ID)

	items, err := c.History(ctx, history.Filter{Language: types.LocalePT})
	require.NoError(t, err)
	require.Len(t, items, 1)

	got, err := c.Item(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.Prompt, got.Prompt)

	sheet, err := c.Sheet(ctx, item.ID)
	require.NoError(t, err)
	assert.Contains(t, sheet, "SOCIAL MEDIA POST")

	require.NoError(t, c.MarkDownloaded(ctx, item.ID))
	got, err = c.Item(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDownloaded)

	require.NoError(t, c.DeleteItem(ctx, item.ID))
	_, err = c.Item(ctx, item.ID)
	assert.True(t, errors.Is(err, history.ErrNotFound))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	f.agents.setBusy(true)
	_, err = c.SubmitJob(ctx, types.LocalePT, types.ClassShort)
	assert.True(t, errors.Is(err, scheduler.ErrBusy))
}

func TestClient_Unreachable(t *testing.T) {
	c := NewClient("127.0.0.1:1")
	_, err := c.Status(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is the daemon running")
}
