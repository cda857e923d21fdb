package runner

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/prayerkit/internal/ai"
	"github.com/ibeckermayer/prayerkit/internal/history"
	"github.com/ibeckermayer/prayerkit/internal/store"
	"github.com/ibeckermayer/prayerkit/internal/types"
)

// fakeGen returns canned assets and records the calls it receives.
type fakeGen struct {
	mu       sync.Mutex
	calls    []string
	speakers []ai.Speaker
	aspect   string
	brief    ai.VisualBrief

	topicErr  error
	speechErr error
	imageErr  error
}

func (f *fakeGen) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeGen) ResearchTopic(_ context.Context, _ types.Locale, class types.JobClass) (types.Topic, error) {
	f.record("topic")
	if f.topicErr != nil {
		return types.Topic{}, f.topicErr
	}
	if class == types.ClassLong {
		return types.Topic{Theme: "hope", Subthemes: []string{"a", "b", "c"}}, nil
	}
	return types.Topic{Theme: "peace"}, nil
}

func (f *fakeGen) GuidedScript(context.Context, string, types.Locale) (string, error) {
	f.record("guided")
	return "Roberta Erickson: Lord.\nMilton Dilts: Amen.", nil
}

func (f *fakeGen) ShortPrayer(context.Context, string, types.Locale) (string, error) {
	f.record("short")
	return "Lord, grant me peace.", nil
}

func (f *fakeGen) LongPost(context.Context, types.Topic, types.Locale) (*types.LongPost, error) {
	f.record("longpost")
	return &types.LongPost{Title: "#PRAYER for HOPE | Channel", Description: "long desc"}, nil
}

func (f *fakeGen) SocialPost(context.Context, string, types.Locale) (*types.SocialPost, error) {
	f.record("socialpost")
	return &types.SocialPost{Title: "Peace", Description: "short desc"}, nil
}

func (f *fakeGen) VisualPrompt(_ context.Context, b ai.VisualBrief, _ types.Locale) (string, error) {
	f.record("visual")
	f.mu.Lock()
	f.brief = b
	f.mu.Unlock()
	return "golden light", nil
}

func (f *fakeGen) Speech(_ context.Context, _ string, speakers []ai.Speaker) ([]byte, error) {
	f.record("speech")
	f.mu.Lock()
	f.speakers = speakers
	f.mu.Unlock()
	if f.speechErr != nil {
		return nil, f.speechErr
	}
	return make([]byte, 480), nil
}

func (f *fakeGen) Image(_ context.Context, _ string, aspect string) (*ai.Image, error) {
	f.record("image")
	f.mu.Lock()
	f.aspect = aspect
	f.mu.Unlock()
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	return &ai.Image{Data: []byte("png"), MIMEType: "image/png"}, nil
}

type fixture struct {
	store   *store.Store
	history *history.Collection
	gen     *fakeGen
	runner  *Runner
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	f := &fixture{
		store:   s,
		history: history.New(s.KV(), s.Blobs()),
		gen:     &fakeGen{},
	}
	opts = append([]Option{
		WithIDs(func() string { return "job1" }),
		WithClock(func() time.Time { return time.UnixMilli(1717200000000) }),
	}, opts...)
	f.runner = New(f.gen, s.Blobs(), f.history, opts...)
	return f
}

func (f *fixture) blobKeys(t *testing.T) []string {
	keys, err := f.store.Blobs().Keys(context.Background())
	require.NoError(t, err)
	return keys
}

func TestRun_Long(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item, err := f.runner.Run(ctx, types.LocalePT, types.ClassLong)
	require.NoError(t, err)

	assert.Equal(t, "job1", item.ID)
	assert.Equal(t, int64(1717200000000), item.Timestamp)
	assert.Equal(t, types.LocalePT, item.Language)
	assert.Equal(t, types.ClassLong, item.Type)
	assert.Equal(t, "hope", item.Prompt)
	assert.Equal(t, []string{"a", "b", "c"}, item.Subthemes)
	require.NotNil(t, item.LongPost)
	assert.Nil(t, item.SocialPost)
	assert.Equal(t, "history_audio_job1", item.AudioBlobKey)
	assert.Equal(t, "history_image_job1", item.ImageBlobKey)
	assert.False(t, item.IsDownloaded)

	assert.Equal(t, ai.LongVoices, f.gen.speakers)
	assert.Equal(t, "16:9", f.gen.aspect)
	assert.Equal(t, "#PRAYER for HOPE | Channel", f.gen.brief.Title)
	assert.Contains(t, f.gen.calls, "guided")
	assert.Contains(t, f.gen.calls, "longpost")

	audioBlob, ok, err := f.store.Blobs().Get(ctx, item.AudioBlobKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "audio/wav", audioBlob.MIMEType)
	assert.Equal(t, "RIFF", string(audioBlob.Data[:4]))
	assert.Len(t, audioBlob.Data, 44+480)

	imageBlob, ok, err := f.store.Blobs().Get(ctx, item.ImageBlobKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "image/png", imageBlob.MIMEType)

	list := f.history.List(history.Filter{})
	require.Len(t, list, 1)
	assert.Equal(t, *item, list[0])
}

func TestRun_Short(t *testing.T) {
	f := newFixture(t)

	item, err := f.runner.Run(context.Background(), types.LocaleEN, types.ClassShort)
	require.NoError(t, err)

	require.NotNil(t, item.SocialPost)
	assert.Nil(t, item.LongPost)
	assert.NotNil(t, item.Subthemes)
	assert.Empty(t, item.Subthemes)
	assert.Equal(t, ai.ShortVoices, f.gen.speakers)
	assert.Equal(t, "9:16", f.gen.aspect)
	assert.Contains(t, f.gen.calls, "short")
	assert.Contains(t, f.gen.calls, "socialpost")
}

func TestRun_MediaFailureLeavesNothing(t *testing.T) {
	f := newFixture(t)
	f.history.Append(types.HistoryItem{ID: "existing", Language: types.LocaleEN, Type: types.ClassShort})
	f.gen.imageErr = errors.New("quota")

	item, err := f.runner.Run(context.Background(), types.LocaleEN, types.ClassShort)
	require.Error(t, err)
	assert.Nil(t, item)
	assert.Equal(t, StageMedia, FailedStage(err))

	assert.Equal(t, 1, f.history.Len())
	assert.Empty(t, f.blobKeys(t))
}

func TestRun_TopicFailure(t *testing.T) {
	f := newFixture(t)
	f.gen.topicErr = errors.Mark(errors.New("429"), ai.ErrRateLimited)

	_, err := f.runner.Run(context.Background(), types.LocaleES, types.ClassLong)
	require.Error(t, err)
	assert.Equal(t, StageTopic, FailedStage(err))
	assert.True(t, errors.Is(err, ai.ErrRateLimited))
	assert.NotContains(t, f.gen.calls, "visual")
	assert.Equal(t, 0, f.history.Len())
}

// flakyBlobs fails writes to one key.
type flakyBlobs struct {
	*store.Blobs
	failKey string
}

func (b flakyBlobs) Set(ctx context.Context, key string, blob store.Blob) error {
	if key == b.failKey {
		return errors.New("disk full")
	}
	return b.Blobs.Set(ctx, key, blob)
}

func TestRun_CommitFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	blobs := flakyBlobs{Blobs: f.store.Blobs(), failKey: types.ImageBlobKey("job1")}
	r := New(f.gen, blobs, f.history, WithIDs(func() string { return "job1" }))

	_, err := r.Run(context.Background(), types.LocalePT, types.ClassShort)
	require.Error(t, err)
	assert.Equal(t, StageCommit, FailedStage(err))
	assert.Empty(t, f.blobKeys(t), "audio blob written before the failure is removed")
	assert.Equal(t, 0, f.history.Len())
}

type recordingNotifier struct {
	items []types.HistoryItem
	err   error
}

func (n *recordingNotifier) KitReady(_ context.Context, item types.HistoryItem) error {
	n.items = append(n.items, item)
	return n.err
}

func TestRun_NotifiesOnSuccessOnly(t *testing.T) {
	n := &recordingNotifier{err: errors.New("smtp down")}
	f := newFixture(t, WithNotifier(n))

	_, err := f.runner.Run(context.Background(), types.LocalePT, types.ClassShort)
	require.NoError(t, err, "notification failure does not fail the job")
	require.Len(t, n.items, 1)

	f.gen.speechErr = errors.New("tts down")
	_, err = f.runner.Run(context.Background(), types.LocalePT, types.ClassShort)
	require.Error(t, err)
	assert.Len(t, n.items, 1)
}
