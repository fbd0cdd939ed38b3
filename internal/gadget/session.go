package gadget

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/smartgadget/internal/device"
)

// ----------------------------
// Protocol constants
// ----------------------------

const (
	// SequenceNumberSize is the little-endian u32 prefix of a download frame.
	SequenceNumberSize = 4

	// DefaultDownloadTimeout fails a session that has gone this long without
	// accepting a sample frame.
	DefaultDownloadTimeout = 10 * time.Second

	// DefaultSettleDelay is the wait between resetting the device clock and
	// reading back the logger bounds.
	DefaultSettleDelay = 500 * time.Millisecond

	defaultStopTimeout = 5 * time.Second
)

// SessionState is the lifecycle state of a LoggingSession.
type SessionState int

const (
	Idle SessionState = iota
	Downloading
	Finished
	Failed
)

func (s SessionState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Downloading:
		return "downloading"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// router switches where the device sends notification frames.
type router interface {
	setRouting(Routing)
}

type routerFunc func(Routing)

func (f routerFunc) setRouting(r Routing) { f(r) }

// SessionOption configures a LoggingSession.
type SessionOption func(*LoggingSession)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SessionOption {
	return func(s *LoggingSession) { s.now = now }
}

// WithSleep replaces the context-aware settle wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) SessionOption {
	return func(s *LoggingSession) { s.sleep = sleep }
}

// WithSettleDelay overrides DefaultSettleDelay.
func WithSettleDelay(d time.Duration) SessionOption {
	return func(s *LoggingSession) { s.settleDelay = d }
}

// WithDownloadTimeout overrides DefaultDownloadTimeout.
func WithDownloadTimeout(d time.Duration) SessionOption {
	return func(s *LoggingSession) { s.timeout = d }
}

type sessionChannel struct {
	channel  *Channel
	progress *ChannelProgress
}

// LoggingSession reassembles one history download at a time.
//
// Start runs the download handshake and switches the device to logging
// routing; HandleNotification consumes frames until every download channel
// has reached the expected sample count, the session times out or it is
// stopped. Finished and failed sessions keep a frozen Result until the
// next Start.
type LoggingSession struct {
	svc      *LoggingService
	channels *ChannelSet
	router   router
	logger   *logrus.Logger

	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	settleDelay time.Duration
	timeout     time.Duration
	stopTimeout time.Duration

	mu           sync.Mutex
	state        SessionState
	starting     bool
	plan         DownloadPlan
	active       map[uint16]*sessionChannel
	order        []*sessionChannel
	startedAt    time.Time
	lastSampleAt time.Time
	result       *Result
}

// NewLoggingSession creates an idle session over svc and channels.
func NewLoggingSession(svc *LoggingService, channels *ChannelSet, r router, logger *logrus.Logger, opts ...SessionOption) *LoggingSession {
	if logger == nil {
		logger = logrus.New()
	}
	if r == nil {
		r = routerFunc(func(Routing) {})
	}
	s := &LoggingSession{
		svc:         svc,
		channels:    channels,
		router:      r,
		logger:      logger,
		now:         time.Now,
		sleep:       sleepContext,
		settleDelay: DefaultSettleDelay,
		timeout:     DefaultDownloadTimeout,
		stopTimeout: defaultStopTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Start runs the download handshake and begins the download.
//
// The interval is validated before anything is written to the gadget. When
// the gadget holds no samples the session finishes right after the start
// signal.
func (s *LoggingSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Downloading || s.starting {
		s.mu.Unlock()
		return ErrDownloadInProgress
	}
	s.starting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
	}()

	var channels []*Channel
	for _, ch := range s.channels.Loggable() {
		if ch.Subscribed() {
			channels = append(channels, ch)
		}
	}
	if len(channels) == 0 {
		return ErrNoLogChannels
	}

	s.logger.Info("Initiating logger download...")

	iv, err := s.svc.LoggerIntervalMs.Read(ctx)
	if err != nil {
		return fmt.Errorf("read logger interval: %w", err)
	}
	interval := uint32(iv.Uint64())
	if interval == 0 {
		return ErrInvalidInterval
	}
	s.logger.WithField("interval_ms", interval).Debug("Read logger interval")

	if err := s.svc.OldestTimestampMs.Write(ctx, uint64(0)); err != nil {
		return fmt.Errorf("reset oldest timestamp: %w", err)
	}

	syncMs := s.now().UnixMilli()
	if err := s.svc.SyncTimeMs.Write(ctx, uint64(syncMs)); err != nil {
		return fmt.Errorf("write sync time: %w", err)
	}
	s.logger.WithField("sync_time_ms", syncMs).Debug("Wrote sync time")

	if err := s.sleep(ctx, s.settleDelay); err != nil {
		return err
	}

	newest, err := s.svc.NewestTimestampMs.Read(ctx)
	if err != nil {
		return fmt.Errorf("read newest timestamp: %w", err)
	}
	oldest, err := s.svc.OldestTimestampMs.Read(ctx)
	if err != nil {
		return fmt.Errorf("read oldest timestamp: %w", err)
	}

	plan, err := NewDownloadPlan(int64(oldest.Uint64()), int64(newest.Uint64()), interval)
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"expected_samples": plan.ExpectedSamples,
		"logged_span":      plan.Span().String(),
		"oldest_ms":        plan.OldestMs,
		"newest_ms":        plan.NewestMs,
		"channels":         len(channels),
	}).Info("Gadget has logged samples in memory")

	s.mu.Lock()
	s.plan = plan
	s.active = make(map[uint16]*sessionChannel, len(channels))
	s.order = make([]*sessionChannel, 0, len(channels))
	for _, ch := range channels {
		sc := &sessionChannel{channel: ch, progress: newChannelProgress()}
		s.active[ch.Handle()] = sc
		s.order = append(s.order, sc)
	}
	s.startedAt = s.now()
	s.lastSampleAt = s.startedAt
	s.result = nil
	s.state = Downloading
	s.mu.Unlock()

	s.router.setRouting(LoggingRouting)

	if err := s.svc.StartLoggerDownload.Write(ctx, uint8(1)); err != nil {
		err = fmt.Errorf("write start signal: %w", err)
		s.finish(ctx, Failed, err)
		return err
	}
	s.logger.Info("Logger download started")

	s.mu.Lock()
	done := s.completeLocked()
	s.mu.Unlock()
	if done {
		s.finish(ctx, Finished, nil)
	}
	return nil
}

// HandleNotification consumes a frame if it belongs to a download channel.
// It reports false when the session is not downloading or the handle is not
// one of its channels; such frames leave the session untouched.
func (s *LoggingSession) HandleNotification(ctx context.Context, n device.Notification) bool {
	s.mu.Lock()
	if s.state != Downloading {
		s.mu.Unlock()
		return false
	}
	sc, ok := s.active[n.Handle]
	if !ok {
		s.mu.Unlock()
		return false
	}

	if len(n.Data) <= SequenceNumberSize {
		expired := s.idleExpiredLocked()
		s.mu.Unlock()

		if err := sc.channel.Dispatch(n.Data); err != nil {
			s.logger.WithFields(logrus.Fields{
				"channel": sc.channel.Kind.String(),
				"bytes":   len(n.Data),
				"error":   err,
			}).Debug("Dropped non-sample frame during download")
		}
		if expired {
			s.finish(ctx, Failed, s.timeoutError())
		}
		return true
	}

	seq := binary.LittleEndian.Uint32(n.Data[:SequenceNumberSize])
	values, err := sc.channel.Format().DecodeAll(n.Data[SequenceNumberSize:])
	if err != nil {
		s.mu.Unlock()
		s.finish(ctx, Failed, fmt.Errorf("%s frame seq %d: %w", sc.channel.Kind, seq, err))
		return true
	}

	s.lastSampleAt = s.now()
	p := sc.progress

	if seq > p.NextExpectedSeq {
		gapEnd := seq
		// Ids past the plan are not missing samples; they only show up on a corrupt sequence number.
		if limit := s.plan.ExpectedSamples + 1; gapEnd > limit {
			gapEnd = max(limit, p.NextExpectedSeq)
		}
		for id := p.NextExpectedSeq; id < gapEnd; id++ {
			p.Missed[id] = struct{}{}
		}
		s.logger.WithFields(logrus.Fields{
			"channel":  sc.channel.Kind.String(),
			"expected": p.NextExpectedSeq,
			"got":      seq,
		}).Debug("Download skipped sequence")
	}

	for i, v := range values {
		if uint64(seq)+uint64(i) > uint64(s.plan.ExpectedSamples) {
			p.Discarded++
			continue
		}
		id := seq + uint32(i)
		if id < p.NextExpectedSeq {
			if _, missed := p.Missed[id]; !missed {
				p.Duplicates++
				continue
			}
			delete(p.Missed, id)
		}
		p.Samples = append(p.Samples, Sample{Seq: id, TimestampMs: s.plan.Timestamp(id), Value: v.Float64()})
	}
	end := min(uint64(seq)+uint64(len(values)), uint64(s.plan.ExpectedSamples)+1)
	if end > uint64(p.NextExpectedSeq) {
		p.NextExpectedSeq = uint32(end)
	}

	done := s.completeLocked()
	s.mu.Unlock()

	if done {
		s.finish(ctx, Finished, nil)
	}
	return true
}

// Tick fails the session once no sample frame has arrived within the
// download timeout. The consumer calls it whenever it wakes without a frame.
func (s *LoggingSession) Tick(ctx context.Context) {
	s.mu.Lock()
	expired := s.state == Downloading && s.idleExpiredLocked()
	s.mu.Unlock()
	if expired {
		s.finish(ctx, Failed, s.timeoutError())
	}
}

// Stop aborts a running download, keeping the samples received so far.
// It does nothing unless the session is downloading.
func (s *LoggingSession) Stop(ctx context.Context) {
	s.Abort(ctx, ErrAborted)
}

// Abort fails a running download with cause.
func (s *LoggingSession) Abort(ctx context.Context, cause error) {
	if cause == nil {
		cause = ErrAborted
	}
	s.finish(ctx, Failed, cause)
}

// State returns the current lifecycle state.
func (s *LoggingSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Plan returns the plan of the current or last session.
func (s *LoggingSession) Plan() DownloadPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan
}

// Result returns the frozen outcome of the last finished or failed session.
func (s *LoggingSession) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Progress returns 100 × the slowest channel's downloaded count over the
// expected count. It is 0 outside of Downloading.
func (s *LoggingSession) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Downloading || len(s.order) == 0 {
		return 0
	}
	if s.plan.ExpectedSamples == 0 {
		return 100
	}

	slowest := s.order[0].progress.downloaded()
	for _, sc := range s.order[1:] {
		slowest = min(slowest, sc.progress.downloaded())
	}
	pct := 100 * float64(slowest) / float64(s.plan.ExpectedSamples)
	return min(max(pct, 0), 100)
}

func (s *LoggingSession) timeoutError() error {
	return fmt.Errorf("%w: no sample frame for %s", ErrDownloadTimeout, s.timeout)
}

func (s *LoggingSession) idleExpiredLocked() bool {
	return s.now().Sub(s.lastSampleAt) >= s.timeout
}

func (s *LoggingSession) completeLocked() bool {
	for _, sc := range s.order {
		if sc.progress.downloaded() < s.plan.ExpectedSamples {
			return false
		}
	}
	return true
}

// finish freezes the result, sends the stop signal and restores live
// routing. Only the first call for a session has any effect.
func (s *LoggingSession) finish(ctx context.Context, status SessionState, cause error) {
	s.mu.Lock()
	if s.state != Downloading {
		s.mu.Unlock()
		return
	}
	now := s.now()
	res := &Result{
		Status:    status,
		Err:       cause,
		Plan:      s.plan,
		StartedAt: s.startedAt,
		Duration:  now.Sub(s.startedAt),
		Channels:  make(map[ChannelKind]*ChannelResult, len(s.order)),
	}
	for _, sc := range s.order {
		res.Channels[sc.channel.Kind] = freezeProgress(sc.channel, sc.progress)
	}
	s.result = res
	s.state = status
	s.active = nil
	s.order = nil
	s.mu.Unlock()

	// The stop signal must go out even when the caller's context is the
	// reason the session ended.
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.stopTimeout)
	defer cancel()
	if err := s.svc.StartLoggerDownload.Write(stopCtx, uint8(0)); err != nil {
		s.logger.WithError(err).Warn("Failed to write logger stop signal")
	}
	s.router.setRouting(LiveRouting)

	s.logSummary(res)
}

func (s *LoggingSession) logSummary(res *Result) {
	entry := s.logger.WithFields(logrus.Fields{
		"status":           res.Status.String(),
		"expected_samples": res.Plan.ExpectedSamples,
		"duration":         res.Duration.String(),
	})
	if res.Err != nil && !errors.Is(res.Err, context.Canceled) {
		entry.WithError(res.Err).Warn("Logger download failed")
	} else {
		entry.Info("Logger download finished")
	}

	for _, kind := range res.Kinds() {
		c := res.Channels[kind]
		s.logger.WithFields(logrus.Fields{
			"channel":    kind.String(),
			"downloaded": len(c.Samples),
			"missed":     c.MissedCount(),
			"duplicates": c.Duplicates,
			"discarded":  c.Discarded,
		}).Info("Channel download summary")
		if c.MissedCount() > 0 {
			s.logger.WithFields(logrus.Fields{
				"channel": kind.String(),
				"missed":  c.Missed,
			}).Debug("Missed sequences")
		}
	}
}
