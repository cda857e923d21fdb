package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db", "cache.db")
	s, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestKV_SetGet(t *testing.T) {
	s, _ := openTestStore(t)
	kv := s.KV()

	kv.Set("agent_isLongActive", true)
	var active bool
	require.True(t, kv.Get("agent_isLongActive", &active))
	assert.True(t, active)

	var missing int
	assert.False(t, kv.Get("nope", &missing))
	assert.Equal(t, 0, missing)
}

func TestKV_Load(t *testing.T) {
	s, _ := openTestStore(t)
	kv := s.KV()

	assert.Equal(t, 3, Load(kv, "agent_shortVideoCadence", 3))
	kv.Set("agent_shortVideoCadence", 2)
	assert.Equal(t, 2, Load(kv, "agent_shortVideoCadence", 3))

	ledger := map[string]int64{"2025-06-01_en_long_7:20": 1}
	kv.Set("agent_lastRuns", ledger)
	assert.Equal(t, ledger, Load[map[string]int64](kv, "agent_lastRuns", nil))
}

func TestKV_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := New(path)
	require.NoError(t, err)
	s.KV().Set("agent_longVideoCadence", 2)
	require.NoError(t, s.Close())

	s2, err := New(path)
	require.NoError(t, err)
	defer s2.Close()
	assert.Equal(t, 2, Load(s2.KV(), "agent_longVideoCadence", 1))
}

func TestKV_Delete(t *testing.T) {
	s, _ := openTestStore(t)
	kv := s.KV()

	kv.Set("k", "v")
	kv.Delete("k")
	assert.Equal(t, "gone", Load(kv, "k", "gone"))
}

func TestKV_UndecodableValueReadsAsAbsent(t *testing.T) {
	s, _ := openTestStore(t)
	kv := s.KV()

	kv.Set("k", "not a number")
	assert.Equal(t, 7, Load(kv, "k", 7))
}

func TestKV_SurvivesClosedDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	kv := s.KV()
	assert.NotPanics(t, func() { kv.Set("agent_isShortActive", true) })

	var active bool
	require.True(t, kv.Get("agent_isShortActive", &active), "value is served from memory")
	assert.True(t, active)

	assert.False(t, kv.Get("never_written", &active))
}

func TestBlobs_Roundtrip(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	blobs := s.Blobs()

	created := time.UnixMilli(1717200000000)
	require.NoError(t, blobs.Set(ctx, "history_audio_1", Blob{
		Data:      []byte("RIFF"),
		MIMEType:  "audio/wav",
		CreatedAt: created,
	}))

	b, ok, err := blobs.Get(ctx, "history_audio_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("RIFF"), b.Data)
	assert.Equal(t, "audio/wav", b.MIMEType)
	assert.True(t, created.Equal(b.CreatedAt))

	require.NoError(t, blobs.Set(ctx, "history_audio_1", Blob{Data: []byte("new"), MIMEType: "audio/wav"}))
	b, _, err = blobs.Get(ctx, "history_audio_1")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), b.Data)

	keys, err := blobs.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"history_audio_1"}, keys)
}

func TestBlobs_AbsentIsNotAnError(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	b, ok, err := s.Blobs().Get(ctx, "history_image_missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, b)

	assert.NoError(t, s.Blobs().Delete(ctx, "history_image_missing"))
}

func TestBlobs_Delete(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Blobs().Set(ctx, "k", Blob{Data: []byte{1, 2, 3}}))
	require.NoError(t, s.Blobs().Delete(ctx, "k"))

	_, ok, err := s.Blobs().Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExchangeLog_SaveAndLatest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exchanges")
	log := NewExchangeLog(dir)
	assert.Equal(t, dir, log.Dir())

	empty, err := log.Latest(5)
	require.NoError(t, err)
	assert.Empty(t, empty)

	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	_, err = log.Save(Exchange{Timestamp: base, Provider: "gemini", Stage: "topic", Prompt: "p1"})
	require.NoError(t, err)
	path, err := log.Save(Exchange{Timestamp: base.Add(time.Second), Provider: "gemini", Stage: "script", Prompt: "p2"})
	require.NoError(t, err)
	assert.FileExists(t, path)

	latest, err := log.Latest(1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "p2", latest[0].Prompt)
}
