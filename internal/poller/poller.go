// Package poller periodically collects readings and logged history from a
// set of gadgets and publishes them.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/smartgadget/inspector"
	"github.com/srg/smartgadget/internal/gadget"
	"github.com/srg/smartgadget/internal/groutine"
	"github.com/srg/smartgadget/internal/sink"
	"github.com/srg/smartgadget/scanner"
)

// Scanner finds gadgets when no addresses are configured.
type Scanner interface {
	Scan(ctx context.Context, opts *scanner.ScanOptions, progress scanner.ProgressCallback) ([]scanner.Sighting, error)
}

// Observer is told about download progress and failed stages.
type Observer interface {
	ObserveProgress(address string, percent float64)
	ObserveError(address, stage string)
}

// Options configures a Poller.
type Options struct {
	// Devices to poll; when empty every round starts with a scan.
	Devices         []string
	Interval        time.Duration
	ScanDuration    time.Duration
	DownloadTimeout time.Duration
	Inspect         inspector.InspectOptions
}

// Option customizes a Poller.
type Option func(*Poller)

func WithScanner(s Scanner) Option {
	return func(p *Poller) { p.scanner = s }
}

func WithObserver(o Observer) Option {
	return func(p *Poller) { p.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// Poller runs poll rounds over its gadgets. Gadgets in a round are polled
// concurrently; a failing gadget is logged and retried next round.
type Poller struct {
	opts      Options
	publisher sink.Publisher
	scanner   Scanner
	tracker   *scanner.Tracker
	observer  Observer
	logger    *logrus.Logger
	now       func() time.Time

	mu     sync.Mutex
	active map[string]struct{}
}

func New(opts Options, publisher sink.Publisher, logger *logrus.Logger, options ...Option) *Poller {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Minute
	}
	if opts.ScanDuration <= 0 {
		opts.ScanDuration = 10 * time.Second
	}
	p := &Poller{
		opts:      opts,
		publisher: publisher,
		tracker:   scanner.NewTracker(logger),
		logger:    logger,
		now:       time.Now,
		active:    make(map[string]struct{}),
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// StageError marks which step of a poll failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// Run polls immediately and then every Interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.WithFields(logrus.Fields{
		"interval": p.opts.Interval,
		"devices":  len(p.opts.Devices),
	}).Info("Poller started")

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.WithError(err).Warn("Poll round failed")
		}
		select {
		case <-ctx.Done():
			p.logger.Info("Poller stopped")
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce polls every gadget once and returns the per-address outcome.
// The error is non-nil only when the gadget list could not be resolved.
func (p *Poller) RunOnce(ctx context.Context) (map[string]error, error) {
	addresses, err := p.targets(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	outcome := make(map[string]error, len(addresses))

	group := groutine.NewGroup(func(name string, err error) {
		p.logger.WithField("goroutine", name).WithError(err).Error("Poll goroutine panicked")
	})
	for _, addr := range addresses {
		group.Go(ctx, "poll-"+addr, func(ctx context.Context) {
			err := p.poll(ctx, addr)
			mu.Lock()
			outcome[addr] = err
			mu.Unlock()
		})
	}
	group.Wait()
	return outcome, nil
}

func (p *Poller) targets(ctx context.Context) ([]string, error) {
	if len(p.opts.Devices) > 0 {
		return p.opts.Devices, nil
	}
	if p.scanner == nil {
		return nil, errors.New("no devices configured and no scanner available")
	}

	sightings, err := p.scanner.Scan(ctx, &scanner.ScanOptions{Duration: p.opts.ScanDuration, DuplicateFilter: true}, nil)
	if err != nil {
		return nil, fmt.Errorf("scan for gadgets: %w", err)
	}
	p.tracker.Observe(sightings, p.isActive)

	addresses := p.tracker.Present()
	sort.Strings(addresses)
	return addresses, nil
}

func (p *Poller) isActive(address string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[address]
	return ok
}

func (p *Poller) setActive(address string, active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if active {
		p.active[address] = struct{}{}
	} else {
		delete(p.active, address)
	}
}

func (p *Poller) poll(ctx context.Context, address string) error {
	p.setActive(address, true)
	defer p.setActive(address, false)

	log := p.logger.WithField("address", address)
	started := p.now()

	batch, err := inspector.InspectDevice(ctx, address, &p.opts.Inspect, p.logger, nil, func(g *gadget.Device) (sink.Batch, error) {
		return p.collect(ctx, address, g)
	})
	if err != nil {
		var se *StageError
		if !errors.As(err, &se) {
			se = &StageError{Stage: "connect", Err: err}
		}
		p.observeError(address, se.Stage)
		log.WithError(se.Err).WithField("stage", se.Stage).Warn("Poll failed")
		return se
	}

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, batch); err != nil {
			p.observeError(address, "publish")
			log.WithError(err).Warn("Publish failed")
			return &StageError{Stage: "publish", Err: err}
		}
	}

	fields := logrus.Fields{"took": p.now().Sub(started)}
	if batch.Result != nil {
		fields["status"] = batch.Result.Status.String()
		fields["samples"] = batch.Result.TotalSamples()
	}
	log.WithFields(fields).Info("Poll complete")
	return nil
}

func (p *Poller) collect(ctx context.Context, address string, g *gadget.Device) (sink.Batch, error) {
	batch := sink.Batch{
		Address: address,
		At:      p.now(),
		Live:    make(map[gadget.ChannelKind]float64, 3),
	}

	for _, kind := range gadget.ChannelKinds {
		v, err := g.Read(ctx, kind)
		if err != nil {
			return batch, &StageError{Stage: "read", Err: fmt.Errorf("%s: %w", kind, err)}
		}
		batch.Live[kind] = v.Float64()
	}

	res, err := g.DownloadLog(ctx, p.opts.DownloadTimeout, func(percent float64) {
		if p.observer != nil {
			p.observer.ObserveProgress(address, percent)
		}
	})
	if err != nil {
		return batch, &StageError{Stage: "download", Err: err}
	}
	batch.Result = res
	if res != nil && res.Err != nil {
		p.logger.WithFields(logrus.Fields{
			"address": address,
			"status":  res.Status.String(),
			"samples": res.TotalSamples(),
		}).WithError(res.Err).Warn("Download incomplete, publishing partial history")
	}
	return batch, nil
}

func (p *Poller) observeError(address, stage string) {
	if p.observer != nil {
		p.observer.ObserveError(address, stage)
	}
}
