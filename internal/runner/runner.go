// Package runner executes one content job end to end: topic research,
// text, visual prompt, media, assembly and commit to history.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/prayerkit/internal/ai"
	"github.com/ibeckermayer/prayerkit/internal/audio"
	"github.com/ibeckermayer/prayerkit/internal/logger"
	"github.com/ibeckermayer/prayerkit/internal/store"
	"github.com/ibeckermayer/prayerkit/internal/types"
)

// Stage names used in errors and logs.
const (
	StageTopic    = "topic"
	StageText     = "text"
	StageVisual   = "visual"
	StageMedia    = "media"
	StageAssemble = "assemble"
	StageCommit   = "commit"
)

// Generator is the remote collaborator behind every generation stage.
type Generator interface {
	ResearchTopic(ctx context.Context, l types.Locale, class types.JobClass) (types.Topic, error)
	GuidedScript(ctx context.Context, theme string, l types.Locale) (string, error)
	ShortPrayer(ctx context.Context, theme string, l types.Locale) (string, error)
	LongPost(ctx context.Context, topic types.Topic, l types.Locale) (*types.LongPost, error)
	SocialPost(ctx context.Context, theme string, l types.Locale) (*types.SocialPost, error)
	VisualPrompt(ctx context.Context, b ai.VisualBrief, l types.Locale) (string, error)
	Speech(ctx context.Context, text string, speakers []ai.Speaker) ([]byte, error)
	Image(ctx context.Context, prompt, aspect string) (*ai.Image, error)
}

// BlobStore is where assembled media is committed.
type BlobStore interface {
	Set(ctx context.Context, key string, blob store.Blob) error
	Delete(ctx context.Context, key string) error
}

// History receives committed items.
type History interface {
	Append(item types.HistoryItem)
}

// Notifier is told about every committed item.
type Notifier interface {
	KitReady(ctx context.Context, item types.HistoryItem) error
}

// StageError reports which pipeline stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage recorded in err, or "".
func FailedStage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// Runner runs jobs. It holds no per-job state, so concurrent Runs are
// safe; the scheduler is what keeps them exclusive.
type Runner struct {
	gen      Generator
	blobs    BlobStore
	history  History
	notifier Notifier
	now      func() time.Time
	newID    func() string
	log      *zap.SugaredLogger
}

// Option configures a Runner.
type Option func(*Runner)

// WithNotifier announces committed items.
func WithNotifier(n Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithClock sets the time source used for item timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithIDs sets the item id generator.
func WithIDs(newID func() string) Option {
	return func(r *Runner) { r.newID = newID }
}

// New creates a Runner.
func New(gen Generator, blobs BlobStore, history History, opts ...Option) *Runner {
	r := &Runner{
		gen:     gen,
		blobs:   blobs,
		history: history,
		now:     time.Now,
		newID:   uuid.NewString,
		log:     logger.Named("runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type textAssets struct {
	script     string
	longPost   *types.LongPost
	socialPost *types.SocialPost
}

func (t textAssets) title() string {
	if t.longPost != nil {
		return t.longPost.Title
	}
	return t.socialPost.Title
}

func (t textAssets) description() string {
	if t.longPost != nil {
		return t.longPost.Description
	}
	return t.socialPost.Description
}

// Run executes one job. On any failure nothing is left behind: no blob and
// no history item.
func (r *Runner) Run(ctx context.Context, l types.Locale, class types.JobClass) (*types.HistoryItem, error) {
	log := r.log.With(logger.FieldLocale, l, logger.FieldClass, class)
	start := time.Now()
	log.Infow("Job started")

	item, err := r.run(ctx, l, class)
	if err != nil {
		log.Errorw("Job failed",
			logger.FieldStage, FailedStage(err),
			"kind", ai.Kind(err),
			logger.FieldError, err,
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	log.Infow("Job finished",
		logger.FieldItemID, item.ID,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	if r.notifier != nil {
		if err := r.notifier.KitReady(ctx, *item); err != nil {
			log.Warnw("Kit notification failed", logger.FieldItemID, item.ID, logger.FieldError, err)
		}
	}
	return item, nil
}

func (r *Runner) run(ctx context.Context, l types.Locale, class types.JobClass) (*types.HistoryItem, error) {
	topic, err := r.gen.ResearchTopic(ctx, l, class)
	if err != nil {
		return nil, &StageError{Stage: StageTopic, Err: err}
	}
	if topic.Subthemes == nil {
		topic.Subthemes = []string{}
	}

	text, err := r.writeText(ctx, l, class, topic)
	if err != nil {
		return nil, &StageError{Stage: StageText, Err: err}
	}

	prompt, err := r.gen.VisualPrompt(ctx, ai.VisualBrief{
		Title:       text.title(),
		Description: text.description(),
		Script:      text.script,
	}, l)
	if err != nil {
		return nil, &StageError{Stage: StageVisual, Err: err}
	}

	pcm, img, err := r.renderMedia(ctx, class, text.script, prompt)
	if err != nil {
		return nil, &StageError{Stage: StageMedia, Err: err}
	}

	wav, err := audio.WAV(pcm, audio.Speech)
	if err != nil {
		return nil, &StageError{Stage: StageAssemble, Err: err}
	}

	now := r.now()
	id := r.newID()
	item := types.HistoryItem{
		ID:           id,
		Timestamp:    now.UnixMilli(),
		Language:     l,
		Type:         class,
		Prompt:       topic.Theme,
		Subthemes:    topic.Subthemes,
		Prayer:       text.script,
		SocialPost:   text.socialPost,
		LongPost:     text.longPost,
		AudioBlobKey: types.AudioBlobKey(id),
		ImageBlobKey: types.ImageBlobKey(id),
	}

	blobs := map[string]store.Blob{
		item.AudioBlobKey: {Data: wav, MIMEType: audio.MIMEType, CreatedAt: now},
		item.ImageBlobKey: {Data: img.Data, MIMEType: img.MIMEType, CreatedAt: now},
	}
	if err := r.commitBlobs(ctx, blobs); err != nil {
		return nil, &StageError{Stage: StageCommit, Err: err}
	}

	r.history.Append(item)
	return &item, nil
}

// writeText produces the script and the post concurrently. Both must
// succeed.
func (r *Runner) writeText(ctx context.Context, l types.Locale, class types.JobClass, topic types.Topic) (textAssets, error) {
	var out textAssets
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if class == types.ClassLong {
			out.script, err = r.gen.GuidedScript(gctx, topic.Theme, l)
		} else {
			out.script, err = r.gen.ShortPrayer(gctx, topic.Theme, l)
		}
		return errors.Wrap(err, "script")
	})
	g.Go(func() error {
		var err error
		if class == types.ClassLong {
			out.longPost, err = r.gen.LongPost(gctx, topic, l)
		} else {
			out.socialPost, err = r.gen.SocialPost(gctx, topic.Theme, l)
		}
		return errors.Wrap(err, "post")
	})

	if err := g.Wait(); err != nil {
		return textAssets{}, err
	}
	if out.script == "" || (out.longPost == nil && out.socialPost == nil) {
		return textAssets{}, errors.New("missing text assets")
	}
	return out, nil
}

// renderMedia synthesizes speech and renders the image concurrently.
func (r *Runner) renderMedia(ctx context.Context, class types.JobClass, script, prompt string) ([]byte, *ai.Image, error) {
	var (
		pcm []byte
		img *ai.Image
	)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		pcm, err = r.gen.Speech(gctx, script, ai.VoicesFor(class))
		return errors.Wrap(err, "speech")
	})
	g.Go(func() error {
		var err error
		img, err = r.gen.Image(gctx, prompt, class.AspectRatio())
		return errors.Wrap(err, "image")
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if len(pcm) == 0 || img == nil || len(img.Data) == 0 {
		return nil, nil, errors.New("missing media assets")
	}
	return pcm, img, nil
}

// commitBlobs writes every blob in parallel. If any write fails, all keys
// this call may have written are deleted before returning.
func (r *Runner) commitBlobs(ctx context.Context, blobs map[string]store.Blob) error {
	var (
		mu      sync.Mutex
		written []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for key, blob := range blobs {
		g.Go(func() error {
			if err := r.blobs.Set(gctx, key, blob); err != nil {
				return errors.Wrapf(err, "write %s", key)
			}
			mu.Lock()
			written = append(written, key)
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		return nil
	}

	// A failed Set may still have landed, so every key is removed.
	cleanup := context.WithoutCancel(ctx)
	for key := range blobs {
		if derr := r.blobs.Delete(cleanup, key); derr != nil {
			r.log.Warnw("Failed to roll back blob", logger.FieldKey, key, logger.FieldError, derr)
		}
	}
	r.log.Debugw("Rolled back blobs", logger.FieldCount, len(written))
	return err
}
