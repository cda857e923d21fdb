// Package scheduler decides when content jobs run. It enumerates the daily
// slots implied by the slot table and the per-class cadence, fires at most
// one job per slot per day, and never runs two jobs at once.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ibeckermayer/prayerkit/internal/config"
	"github.com/ibeckermayer/prayerkit/internal/logger"
	"github.com/ibeckermayer/prayerkit/internal/types"
)

// Scalar-store keys holding the scheduler's persistent state.
const (
	KeyLongActive   = "agent_isLongActive"
	KeyShortActive  = "agent_isShortActive"
	KeyLongCadence  = "agent_longVideoCadence"
	KeyShortCadence = "agent_shortVideoCadence"
	KeyLedger       = "agent_lastRuns"
)

// Default cadences when none is stored.
const (
	DefaultLongCadence  = 1
	DefaultShortCadence = 3
)

// JobTimeout bounds a single job run.
const JobTimeout = 30 * time.Minute

var (
	// ErrBusy is returned by RunNow and Submit while another job is running.
	ErrBusy = errors.New("a job is already running")
	// ErrInvalidCadence is returned for a cadence outside the class bounds.
	ErrInvalidCadence = errors.New("invalid cadence")
)

// Values is the scalar store the scheduler persists through.
type Values interface {
	Get(key string, dst any) bool
	Set(key string, value any)
}

// Runner executes one job.
type Runner interface {
	Run(ctx context.Context, l types.Locale, class types.JobClass) (*types.HistoryItem, error)
}

// Running describes the job currently executing.
type Running struct {
	Locale  types.Locale   `json:"locale"`
	Class   types.JobClass `json:"class"`
	Slot    *Slot          `json:"slot,omitempty"` // nil for manual runs
	Started time.Time      `json:"started"`
}

// Scheduler owns the agent state: which classes are enabled, their
// cadence, the run ledger and the busy flag.
type Scheduler struct {
	table  Table
	kv     Values
	runner Runner
	log    *zap.SugaredLogger

	now           func() time.Time
	loc           *time.Location
	startupDelay  time.Duration
	checkEvery    time.Duration
	statusEvery   time.Duration
	retentionDays int

	mu      sync.Mutex
	active  map[types.JobClass]bool
	cadence map[types.JobClass]int
	ledger  Ledger
	running *Running
	last    map[types.JobClass]Status

	cron     *cron.Cron
	started  bool
	polling  bool
	delay    *time.Timer
	entries  []cron.EntryID
	inflight sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLocation sets the time zone slot hours are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.loc = loc }
}

// WithStartupDelay sets how long polling waits after enablement.
func WithStartupDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.startupDelay = d }
}

// WithIntervals sets the due-ness check and status refresh intervals.
func WithIntervals(check, status time.Duration) Option {
	return func(s *Scheduler) {
		s.checkEvery = check
		s.statusEvery = status
	}
}

// WithLedgerRetention keeps ledger entries for days before today.
func WithLedgerRetention(days int) Option {
	return func(s *Scheduler) { s.retentionDays = days }
}

// OptionsFromConfig translates the [agent] config section.
func OptionsFromConfig(cfg config.AgentConfig) ([]Option, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "Local"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid timezone %s", tz)
	}
	return []Option{
		WithLocation(loc),
		WithStartupDelay(seconds(cfg.StartupDelaySeconds, 10)),
		WithIntervals(seconds(cfg.CheckIntervalSeconds, 30), seconds(cfg.StatusIntervalSeconds, 60)),
		WithLedgerRetention(cfg.LedgerRetentionDays),
	}, nil
}

func seconds(n, def int) time.Duration {
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}

// New creates a Scheduler and loads its persisted state. Polling does not
// begin until Start.
func New(table Table, kv Values, runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		table:         table,
		kv:            kv,
		runner:        runner,
		log:           logger.Named("scheduler"),
		now:           time.Now,
		loc:           time.Local,
		startupDelay:  10 * time.Second,
		checkEvery:    30 * time.Second,
		statusEvery:   60 * time.Second,
		retentionDays: 2,
		last:          make(map[types.JobClass]Status),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger{s.log}),
		cron.WithChain(cron.Recover(cronLogger{s.log})),
	)
	s.load()
	return s
}

func (s *Scheduler) load() {
	s.active = map[types.JobClass]bool{
		types.ClassLong:  loadValue(s.kv, KeyLongActive, false),
		types.ClassShort: loadValue(s.kv, KeyShortActive, false),
	}
	s.cadence = map[types.JobClass]int{
		types.ClassLong:  s.clamp(types.ClassLong, loadValue(s.kv, KeyLongCadence, DefaultLongCadence)),
		types.ClassShort: s.clamp(types.ClassShort, loadValue(s.kv, KeyShortCadence, DefaultShortCadence)),
	}
	s.ledger = loadValue(s.kv, KeyLedger, Ledger{})
	if s.ledger == nil {
		s.ledger = Ledger{}
	}
}

func loadValue[T any](kv Values, key string, def T) T {
	var v T
	if kv.Get(key, &v) {
		return v
	}
	return def
}

func (s *Scheduler) clamp(class types.JobClass, n int) int {
	lo, hi := s.table.CadenceBounds(class)
	return min(max(n, lo), hi)
}

func activeKey(class types.JobClass) string {
	if class == types.ClassLong {
		return KeyLongActive
	}
	return KeyShortActive
}

func cadenceKey(class types.JobClass) string {
	if class == types.ClassLong {
		return KeyLongCadence
	}
	return KeyShortCadence
}

func (s *Scheduler) clock() time.Time {
	return s.now().In(s.loc)
}

// Table returns the slot table.
func (s *Scheduler) Table() Table {
	return s.table
}

// Active reports whether class is enabled.
func (s *Scheduler) Active(class types.JobClass) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[class]
}

// Cadence returns the cadence of class.
func (s *Scheduler) Cadence(class types.JobClass) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cadence[class]
}

// Ledger returns a copy of the run ledger.
func (s *Scheduler) Ledger() Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.clone()
}

// Busy reports whether a job is running.
func (s *Scheduler) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running != nil
}

// Current returns the running job, if any.
func (s *Scheduler) Current() (Running, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == nil {
		return Running{}, false
	}
	return *s.running, true
}

// SetActive enables or disables class. Enabling the first class starts
// polling after the startup delay; disabling the last stops it.
func (s *Scheduler) SetActive(class types.JobClass, on bool) {
	s.mu.Lock()
	s.active[class] = on
	s.kv.Set(activeKey(class), on)
	s.reconcileLocked()
	s.mu.Unlock()

	s.log.Infow("Agent toggled", logger.FieldClass, class, "active", on)
	s.refreshStatus()
}

// SetCadence changes how many slots per day class uses. The ledger is not
// touched: shrinking and growing again re-exposes slots that have not yet
// fired today.
func (s *Scheduler) SetCadence(class types.JobClass, n int) error {
	lo, hi := s.table.CadenceBounds(class)
	if n < lo || n > hi {
		return errors.Wrapf(ErrInvalidCadence, "%s cadence must be between %d and %d, got %d", class, lo, hi, n)
	}

	s.mu.Lock()
	s.cadence[class] = n
	s.kv.Set(cadenceKey(class), n)
	s.mu.Unlock()

	s.log.Infow("Cadence changed", logger.FieldClass, class, "cadence", n)
	s.refreshStatus()
	return nil
}

// Due returns the first slot that should fire at now: long before short,
// then locale order, then hour order. A slot is due only during its exact
// minute and only if it has not fired today.
func (s *Scheduler) Due(now time.Time) (Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dueLocked(now.In(s.loc))
}

func (s *Scheduler) dueLocked(now time.Time) (Slot, bool) {
	for _, class := range types.JobClasses {
		if !s.active[class] {
			continue
		}
		for _, slot := range Slots(s.table, class, s.cadence[class]) {
			if now.Hour() == slot.Hour && now.Minute() == slot.Minute && !s.ledger.Has(now, slot) {
				return slot, true
			}
		}
	}
	return Slot{}, false
}

// Check runs one due-ness tick. When a slot is due and no job is running,
// the slot is recorded in the ledger and its job starts in the background.
// It reports whether a job was started.
func (s *Scheduler) Check() bool {
	now := s.clock()

	s.mu.Lock()
	if s.running != nil {
		s.mu.Unlock()
		return false
	}
	slot, ok := s.dueLocked(now)
	if !ok {
		s.mu.Unlock()
		return false
	}

	// Recorded before the job starts: a failed run still consumes the slot.
	s.ledger[LedgerKey(now, slot)] = now.UnixMilli()
	if n := s.ledger.prune(now, s.retentionDays); n > 0 {
		s.log.Debugw("Pruned ledger", logger.FieldCount, n)
	}
	s.kv.Set(KeyLedger, s.ledger)

	s.running = &Running{Locale: slot.Locale, Class: slot.Class, Slot: &slot, Started: now}
	s.inflight.Add(1)
	s.mu.Unlock()

	s.log.Infow("Slot due, starting job", logger.FieldSlot, slot.String())
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), JobTimeout)
		defer cancel()
		_, _ = s.invoke(ctx, slot.Locale, slot.Class)
	}()
	return true
}

// RunNow runs a job immediately and waits for it. It honours the busy
// flag and leaves the ledger alone.
func (s *Scheduler) RunNow(ctx context.Context, l types.Locale, class types.JobClass) (*types.HistoryItem, error) {
	if _, err := s.acquire(l, class); err != nil {
		return nil, err
	}
	s.log.Infow("Manual run", logger.FieldLocale, l, logger.FieldClass, class)
	return s.invoke(ctx, l, class)
}

// Submit starts a manual job in the background and returns once the busy
// flag is held. Like RunNow it leaves the ledger alone.
func (s *Scheduler) Submit(l types.Locale, class types.JobClass) (Running, error) {
	cur, err := s.acquire(l, class)
	if err != nil {
		return Running{}, err
	}
	s.log.Infow("Manual run submitted", logger.FieldLocale, l, logger.FieldClass, class)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), JobTimeout)
		defer cancel()
		_, _ = s.invoke(ctx, l, class)
	}()
	return cur, nil
}

func (s *Scheduler) acquire(l types.Locale, class types.JobClass) (Running, error) {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running != nil {
		cur := *s.running
		return Running{}, errors.Wrapf(ErrBusy, "%s/%s is running", cur.Locale, cur.Class)
	}
	s.running = &Running{Locale: l, Class: class, Started: now}
	s.inflight.Add(1)
	return *s.running, nil
}

// invoke calls the runner and always clears the busy flag, including when
// the runner panics.
func (s *Scheduler) invoke(ctx context.Context, l types.Locale, class types.JobClass) (item *types.HistoryItem, err error) {
	defer s.inflight.Done()
	defer s.release()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("job panicked: %v", r)
			s.log.Errorw("Job panicked", logger.FieldLocale, l, logger.FieldClass, class, logger.FieldError, err)
		}
	}()
	return s.runner.Run(ctx, l, class)
}

func (s *Scheduler) release() {
	s.mu.Lock()
	s.running = nil
	s.mu.Unlock()
	s.refreshStatus()
}

// Wait blocks until every in-flight job has returned.
func (s *Scheduler) Wait() {
	s.inflight.Wait()
}

// Start begins the scheduler. Polling is installed once any class is
// enabled.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.reconcileLocked()
	s.log.Infow("Scheduler started",
		"long_active", s.active[types.ClassLong],
		"short_active", s.active[types.ClassShort],
		"timezone", s.loc.String(),
	)
}

// Stop cancels all pending polling. Running jobs are not interrupted;
// call Wait to join them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.stopPollingLocked()
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.log.Infow("Scheduler stopped")
}

// Polling reports whether the poll entries are installed or pending.
func (s *Scheduler) Polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polling
}

func (s *Scheduler) anyActiveLocked() bool {
	for _, on := range s.active {
		if on {
			return true
		}
	}
	return false
}

func (s *Scheduler) reconcileLocked() {
	switch want := s.started && s.anyActiveLocked(); {
	case want && !s.polling:
		s.polling = true
		s.delay = time.AfterFunc(s.startupDelay, s.installPolling)
		s.log.Debugw("Polling scheduled", "delay", s.startupDelay.String())
	case !want && s.polling:
		s.stopPollingLocked()
	}
}

func (s *Scheduler) installPolling() {
	s.mu.Lock()
	if !s.polling || len(s.entries) > 0 {
		s.mu.Unlock()
		return
	}
	s.entries = append(s.entries,
		s.cron.Schedule(cron.Every(s.checkEvery), cron.FuncJob(func() { s.Check() })),
		s.cron.Schedule(cron.Every(s.statusEvery), cron.FuncJob(s.refreshStatus)),
	)
	s.mu.Unlock()

	s.log.Infow("Polling installed",
		"check_every", s.checkEvery.String(),
		"status_every", s.statusEvery.String(),
	)
	s.refreshStatus()
	s.Check()
}

func (s *Scheduler) stopPollingLocked() {
	if s.delay != nil {
		s.delay.Stop()
		s.delay = nil
	}
	for _, id := range s.entries {
		s.cron.Remove(id)
	}
	s.entries = nil
	if s.polling {
		s.log.Infow("Polling stopped")
	}
	s.polling = false
}

// cronLogger adapts zap to cron's logger interface.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(fmt.Sprintf("cron: %s", msg), append(keysAndValues, logger.FieldError, err)...)
}
