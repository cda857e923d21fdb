package ai

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ibeckermayer/prayerkit/internal/types"
)

// extractJSON trims markdown fences and surrounding prose from a model
// response, returning the outermost JSON object or array.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

func decodeJSON(stage, raw string, dst any) error {
	body := extractJSON(raw)
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		return errors.Wrapf(err, "parse %s response (was: %.300s)", stage, raw)
	}
	return nil
}

func parseTopic(raw string) (types.Topic, error) {
	var t types.Topic
	if err := decodeJSON("topic", raw, &t); err != nil {
		return types.Topic{}, err
	}
	t.Theme = strings.TrimSpace(t.Theme)
	if t.Subthemes == nil {
		t.Subthemes = []string{}
	}
	return t, nil
}

func parseLongPost(raw string) (*types.LongPost, error) {
	var p types.LongPost
	if err := decodeJSON("long post", raw, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Title) == "" {
		return nil, errors.Mark(errors.New("long post has no title"), ErrEmpty)
	}
	return &p, nil
}

func parseSocialPost(raw string) (*types.SocialPost, error) {
	var p types.SocialPost
	if err := decodeJSON("social post", raw, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Title) == "" {
		return nil, errors.Mark(errors.New("social post has no title"), ErrEmpty)
	}
	return &p, nil
}

// CleanTitle strips channel branding and markdown from a post title so it
// can be rendered inside an image.
func CleanTitle(title string) string {
	if i := strings.IndexByte(title, '|'); i >= 0 {
		title = title[:i]
	}
	title = strings.NewReplacer("#", "", "*", "").Replace(title)
	return strings.TrimSpace(title)
}
