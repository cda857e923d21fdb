// Package ai talks to the remote models that research topics, write
// scripts and posts, synthesize speech and render images.
package ai

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ibeckermayer/prayerkit/internal/config"
	"github.com/ibeckermayer/prayerkit/internal/logger"
	"github.com/ibeckermayer/prayerkit/internal/store"
	"github.com/ibeckermayer/prayerkit/internal/types"
)

// TextRequest is a single text generation call.
type TextRequest struct {
	Stage       string // topic, script, post, visual
	Model       string // provider default when empty
	Prompt      string
	Temperature *float32
	JSON        bool // ask for application/json output
	Search      bool // ground the answer with web search, when supported
}

// TextProvider generates text from a prompt.
type TextProvider interface {
	Name() string
	Generate(ctx context.Context, req TextRequest) (string, error)
}

// Speaker maps a dialogue speaker name to a prebuilt voice.
type Speaker struct {
	Name  string
	Voice string
}

// SpeechRequest asks for synthesized speech. With more than one speaker
// the text is treated as a dialogue whose lines are prefixed by name.
type SpeechRequest struct {
	Text     string
	Speakers []Speaker
}

// ImageRequest asks for one rendered image.
type ImageRequest struct {
	Prompt      string
	AspectRatio string
}

// Image is rendered image content.
type Image struct {
	Data     []byte
	MIMEType string
}

// MediaProvider synthesizes speech and renders images.
type MediaProvider interface {
	// Speech returns raw 16-bit mono PCM at 24 kHz.
	Speech(ctx context.Context, req SpeechRequest) ([]byte, error)
	Image(ctx context.Context, req ImageRequest) (*Image, error)
}

// VisualBrief is the post and script a thumbnail prompt is derived from.
type VisualBrief struct {
	Title       string
	Description string
	Script      string
}

// Voices used for each job class.
var (
	LongVoices = []Speaker{
		{Name: "Roberta Erickson", Voice: "Aoede"},
		{Name: "Milton Dilts", Voice: "Enceladus"},
	}
	ShortVoices = []Speaker{{Name: "Narrator", Voice: "Kore"}}
)

// VoicesFor returns the speaker set for class.
func VoicesFor(class types.JobClass) []Speaker {
	if class == types.ClassLong {
		return LongVoices
	}
	return ShortVoices
}

// Client runs every generation stage against the configured providers.
// Calls are paced by a shared limiter; pacing never retries.
type Client struct {
	text           TextProvider
	media          MediaProvider
	limiter        *rate.Limiter
	exchanges      *store.ExchangeLog
	thumbnailModel string
	log            *zap.SugaredLogger
}

// Option configures a Client.
type Option func(*Client)

// WithExchangeLog records every text exchange under log.
func WithExchangeLog(log *store.ExchangeLog) Option {
	return func(c *Client) { c.exchanges = log }
}

// WithLimiter replaces the request limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithThumbnailModel sets the model used for the visual prompt stage.
func WithThumbnailModel(model string) Option {
	return func(c *Client) { c.thumbnailModel = model }
}

// NewClient wires text and media providers into a Client.
func NewClient(text TextProvider, media MediaProvider, opts ...Option) *Client {
	c := &Client{
		text:    text,
		media:   media,
		limiter: rate.NewLimiter(rate.Inf, 0),
		log:     logger.Named("ai"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// New builds a Client from configuration. Gemini always backs the media
// stages; the text stages use cfg.TextProvider.
func New(ctx context.Context, cfg config.AIConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ai.api_key is not set")
	}
	gemini, err := NewGeminiProvider(ctx, cfg.APIKey, GeminiModels{
		Text:   cfg.TextModel,
		Speech: cfg.SpeechModel,
		Image:  cfg.ImageModel,
	})
	if err != nil {
		return nil, err
	}

	var text TextProvider = gemini
	switch strings.ToLower(cfg.TextProvider) {
	case "", config.ProviderGemini:
	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.New("ai.anthropic_api_key is not set")
		}
		text = NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	default:
		return nil, errors.Newf("unknown text provider: %s", cfg.TextProvider)
	}

	opts := []Option{
		WithLimiter(NewLimiter(cfg.RequestsPerMinute)),
		WithThumbnailModel(cfg.ThumbnailModel),
	}
	if cfg.CacheExchanges {
		dir, err := config.ExchangesDir()
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithExchangeLog(store.NewExchangeLog(dir)))
	}
	return NewClient(text, gemini, opts...), nil
}

// NewLimiter paces requests to perMinute, allowing a pair of parallel
// calls to start together. Zero or less disables pacing.
func NewLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 2)
}

// ResearchTopic finds today's theme for locale.
func (c *Client) ResearchTopic(ctx context.Context, l types.Locale, class types.JobClass) (types.Topic, error) {
	raw, err := c.generate(ctx, TextRequest{Stage: "topic", Prompt: topicPrompt(l, class), Search: true})
	if err != nil {
		return types.Topic{}, err
	}
	t, err := parseTopic(raw)
	if err != nil {
		return types.Topic{}, err
	}
	if t.Theme == "" {
		t.Theme = fallbackTheme(l)
		c.log.Warnw("Research returned no theme, using fallback", logger.FieldLocale, l, "theme", t.Theme)
	}
	return t, nil
}

// GuidedScript writes the two-speaker long-form prayer.
func (c *Client) GuidedScript(ctx context.Context, theme string, l types.Locale) (string, error) {
	return c.generateText(ctx, TextRequest{
		Stage:       "script",
		Prompt:      guidedScriptPrompt(theme, l, LongVoices),
		Temperature: ptr[float32](0.9),
	})
}

// ShortPrayer writes the short-form prayer.
func (c *Client) ShortPrayer(ctx context.Context, theme string, l types.Locale) (string, error) {
	return c.generateText(ctx, TextRequest{Stage: "script", Prompt: shortPrayerPrompt(theme, l)})
}

// LongPost writes long-form video metadata.
func (c *Client) LongPost(ctx context.Context, topic types.Topic, l types.Locale) (*types.LongPost, error) {
	raw, err := c.generate(ctx, TextRequest{Stage: "post", Prompt: longPostPrompt(topic, l), JSON: true})
	if err != nil {
		return nil, err
	}
	return parseLongPost(raw)
}

// SocialPost writes short-form video metadata.
func (c *Client) SocialPost(ctx context.Context, theme string, l types.Locale) (*types.SocialPost, error) {
	raw, err := c.generate(ctx, TextRequest{Stage: "post", Prompt: socialPostPrompt(theme, l), JSON: true})
	if err != nil {
		return nil, err
	}
	return parseSocialPost(raw)
}

// VisualPrompt derives an image prompt from the post and script.
func (c *Client) VisualPrompt(ctx context.Context, b VisualBrief, l types.Locale) (string, error) {
	return c.generateText(ctx, TextRequest{
		Stage:  "visual",
		Model:  c.thumbnailModel,
		Prompt: visualPrompt(b, l),
	})
}

// Speech synthesizes text with the given speakers.
func (c *Client) Speech(ctx context.Context, text string, speakers []Speaker) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	pcm, err := c.media.Speech(ctx, SpeechRequest{Text: text, Speakers: speakers})
	if err != nil {
		err = classify(err)
		c.log.Warnw("Speech failed", logger.FieldStage, "speech", "kind", Kind(err), logger.FieldError, err)
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, errors.Mark(errors.New("speech returned no audio"), ErrEmpty)
	}
	c.log.Debugw("Speech done", logger.FieldDurationMS, time.Since(start).Milliseconds())
	return pcm, nil
}

// Image renders prompt at the aspect ratio.
func (c *Client) Image(ctx context.Context, prompt, aspect string) (*Image, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	img, err := c.media.Image(ctx, ImageRequest{Prompt: prompt, AspectRatio: aspect})
	if err != nil {
		err = classify(err)
		c.log.Warnw("Image failed", logger.FieldStage, "image", "kind", Kind(err), logger.FieldError, err)
		return nil, err
	}
	if img == nil || len(img.Data) == 0 {
		return nil, errors.Mark(errors.New("image returned no data"), ErrEmpty)
	}
	c.log.Debugw("Image done", logger.FieldDurationMS, time.Since(start).Milliseconds())
	return img, nil
}

func (c *Client) generateText(ctx context.Context, req TextRequest) (string, error) {
	out, err := c.generate(ctx, req)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.Mark(errors.Newf("%s returned no text", req.Stage), ErrEmpty)
	}
	return out, nil
}

func (c *Client) generate(ctx context.Context, req TextRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	start := time.Now()
	out, err := c.text.Generate(ctx, req)
	err = classify(err)
	c.record(req, out, err)
	if err != nil {
		c.log.Warnw("Generation failed",
			logger.FieldStage, req.Stage,
			"provider", c.text.Name(),
			"kind", Kind(err),
			logger.FieldError, err,
		)
		return "", err
	}
	c.log.Debugw("Generation done",
		logger.FieldStage, req.Stage,
		"provider", c.text.Name(),
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (c *Client) record(req TextRequest, out string, err error) {
	if c.exchanges == nil {
		return
	}
	ex := store.Exchange{
		Provider: c.text.Name(),
		Model:    req.Model,
		Stage:    req.Stage,
		Prompt:   req.Prompt,
		Response: out,
	}
	if err != nil {
		ex.Error = err.Error()
	}
	if path, err := c.exchanges.Save(ex); err != nil {
		c.log.Warnw("Failed to cache exchange", logger.FieldError, err)
	} else {
		c.log.Debugw("Cached exchange", logger.FieldPath, path)
	}
}

func ptr[T any](v T) *T { return &v }
