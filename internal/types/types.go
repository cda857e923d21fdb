package types

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Locale identifies a content language and its schedule row.
type Locale string

const (
	LocalePT Locale = "pt"
	LocaleEN Locale = "en"
	LocaleES Locale = "es"
)

// Locales lists every supported locale in scheduling order.
var Locales = []Locale{LocalePT, LocaleEN, LocaleES}

// ParseLocale validates a locale identifier.
func ParseLocale(s string) (Locale, error) {
	l := Locale(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Locales {
		if l == known {
			return l, nil
		}
	}
	return "", errors.Newf("unknown locale %q (want pt, en or es)", s)
}

// JobClass distinguishes long-form from short-form content jobs.
type JobClass string

const (
	ClassLong  JobClass = "long"
	ClassShort JobClass = "short"
)

// JobClasses lists job classes in the order the scheduler checks them.
var JobClasses = []JobClass{ClassLong, ClassShort}

// ParseJobClass validates a job class identifier.
func ParseJobClass(s string) (JobClass, error) {
	switch c := JobClass(strings.ToLower(strings.TrimSpace(s))); c {
	case ClassLong, ClassShort:
		return c, nil
	}
	return "", errors.Newf("unknown job class %q (want long or short)", s)
}

// AspectRatio returns the image aspect ratio used for the class.
func (c JobClass) AspectRatio() string {
	if c == ClassLong {
		return "16:9"
	}
	return "9:16"
}

// Topic is the result of topic research
type Topic struct {
	Theme     string   `json:"theme"`
	Subthemes []string `json:"subthemes"`
}

// SocialPost is the short-form platform post
type SocialPost struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Hashtags    []string `json:"hashtags"`
}

// LongPost is the long-form video post, including chapters and tags
type LongPost struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Hashtags    []string `json:"hashtags"`
	Timestamps  string   `json:"timestamps"`
	Tags        []string `json:"tags"`
}

// HistoryItem is one generated marketing kit. Treat as immutable once
// created; changes are made by replacing the item in the collection.
type HistoryItem struct {
	ID           string      `json:"id"`
	Timestamp    int64       `json:"timestamp"` // unix millis
	Language     Locale      `json:"language"`
	Type         JobClass    `json:"type"`
	Prompt       string      `json:"prompt"`
	Subthemes    []string    `json:"subthemes"`
	Prayer       string      `json:"prayer"`
	SocialPost   *SocialPost `json:"socialPost"`
	LongPost     *LongPost   `json:"longPost"`
	AudioBlobKey string      `json:"audioBlobKey,omitempty"`
	ImageBlobKey string      `json:"imageBlobKey,omitempty"`
	VideoBlobKey string      `json:"videoBlobKey,omitempty"`
	IsDownloaded bool        `json:"isDownloaded"`
}

// Title returns the post title regardless of job class.
func (h HistoryItem) Title() string {
	switch {
	case h.LongPost != nil:
		return h.LongPost.Title
	case h.SocialPost != nil:
		return h.SocialPost.Title
	}
	return ""
}

// CreatedAt converts the millisecond timestamp.
func (h HistoryItem) CreatedAt() time.Time {
	return time.UnixMilli(h.Timestamp)
}

// BlobKeys returns the non-empty blob keys referenced by the item.
func (h HistoryItem) BlobKeys() []string {
	var keys []string
	for _, k := range []string{h.AudioBlobKey, h.ImageBlobKey, h.VideoBlobKey} {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Blob key helpers. Keys are derived from the history item id.
func AudioBlobKey(id string) string { return "history_audio_" + id }
func ImageBlobKey(id string) string { return "history_image_" + id }
func VideoBlobKey(id string) string { return "history_video_" + id }
