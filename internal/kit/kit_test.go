package kit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/prayerkit/internal/types"
)

func longItem() types.HistoryItem {
	return types.HistoryItem{
		ID:        "abc",
		Timestamp: time.Date(2025, 3, 9, 6, 0, 0, 0, time.UTC).UnixMilli(),
		Language:  types.LocalePT,
		Type:      types.ClassLong,
		Prompt:    "Paz em meio à tempestade",
		Subthemes: []string{"ansiedade", "confiança"},
		Prayer:    "Senhor, acalma meu coração.",
		LongPost: &types.LongPost{
			Title:       "Oração da Paz",
			Description: "Uma oração guiada.",
			Hashtags:    []string{"#oração", "#paz"},
			Timestamps:  "00:00 Introdução\n02:00 Oração",
			Tags:        []string{"oração", "fé"},
		},
		AudioBlobKey: types.AudioBlobKey("abc"),
		ImageBlobKey: types.ImageBlobKey("abc"),
	}
}

func shortItem() types.HistoryItem {
	return types.HistoryItem{
		ID:        "def",
		Timestamp: time.Date(2025, 3, 9, 9, 20, 0, 0, time.UTC).UnixMilli(),
		Language:  types.LocaleEN,
		Type:      types.ClassShort,
		Prompt:    "Gratitude",
		Prayer:    "Thank you, Lord.",
		SocialPost: &types.SocialPost{
			Title:       "A Minute of Thanks",
			Description: "Pause and give thanks.",
			Hashtags:    []string{"prayer", "#gratitude", " "},
		},
	}
}

func TestSheet_Long(t *testing.T) {
	b, err := New()
	require.NoError(t, err)

	out, err := b.Sheet(longItem())
	require.NoError(t, err)

	assert.Contains(t, out, "PROMPT: Paz em meio à tempestade\nSUBTHEMES: ansiedade, confiança\n")
	assert.Contains(t, out, "SCRIPT (PRAYER)\n====================\n\nSenhor, acalma meu coração.")
	assert.Contains(t, out, "YOUTUBE POST")
	assert.Contains(t, out, "TITLE: Oração da Paz")
	assert.Contains(t, out, "DESCRIPTION:\nUma oração guiada.")
	assert.Contains(t, out, "HASHTAGS: #oração #paz")
	assert.Contains(t, out, "TIMESTAMPS:\n00:00 Introdução\n02:00 Oração")
	assert.Contains(t, out, "TAGS: oração, fé\n")
	assert.NotContains(t, out, "SOCIAL MEDIA POST")
}

func TestSheet_ShortAddsHashPrefix(t *testing.T) {
	b, err := New()
	require.NoError(t, err)

	out, err := b.Sheet(shortItem())
	require.NoError(t, err)

	assert.Contains(t, out, "SOCIAL MEDIA POST")
	assert.Contains(t, out, "HASHTAGS: #prayer #gratitude\n")
	assert.NotContains(t, out, "SUBTHEMES")
	assert.NotContains(t, out, "TIMESTAMPS")
}

func TestEmail(t *testing.T) {
	b, err := New()
	require.NoError(t, err)

	msg, err := b.Email(longItem())
	require.NoError(t, err)

	assert.Equal(t, "[PT long] Oração da Paz", msg.Subject)
	assert.Contains(t, msg.HTMLBody, "Oração da Paz")
	assert.Contains(t, msg.HTMLBody, "narration.wav, visual.png")
	assert.Contains(t, msg.PlainBody, "YOUTUBE POST")
}

func TestEmail_EscapesHTML(t *testing.T) {
	b, err := New()
	require.NoError(t, err)

	item := shortItem()
	item.SocialPost.Title = "<script>alert(1)</script>"
	msg, err := b.Email(item)
	require.NoError(t, err)

	assert.NotContains(t, msg.HTMLBody, "<script>alert(1)</script>")
	assert.Contains(t, msg.HTMLBody, "&lt;script&gt;")
}

func TestHashtags(t *testing.T) {
	assert.Equal(t, "#a #b", Hashtags([]string{"a", "#b"}))
	assert.Equal(t, "", Hashtags(nil))
}
