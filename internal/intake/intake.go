package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/onegate/internal/deeplink"
	"github.com/danmuck/onegate/internal/observability"
	"github.com/rs/zerolog/log"
)

// Outcome is the terminal state of one handled link.
type Outcome string

const (
	OutcomeIgnored       Outcome = "ignored"
	OutcomeMalformed     Outcome = "malformed"
	OutcomeUninitialized Outcome = "uninitialized"
	OutcomePaired        Outcome = "paired"
	OutcomePairFailed    Outcome = "pair_failed"
)

// Report summarizes the handling of one delivery.
type Report struct {
	DeliveryID string
	URL        string
	Outcome    Outcome
	Reason     deeplink.Reason
	URI        string
	Err        error
	Duration   time.Duration
}

// Intake wires a link Source to the normalizer and the pairing initiator.
type Intake struct {
	source     Source
	normalizer *deeplink.Normalizer
	cell       *InitiatorCell
	observer   func(Report)

	mu     sync.Mutex
	sub    *Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Intake)

// WithObserver registers a callback invoked after every handled link, on
// the handler goroutine.
func WithObserver(fn func(Report)) Option {
	return func(i *Intake) { i.observer = fn }
}

func New(source Source, normalizer *deeplink.Normalizer, cell *InitiatorCell, opts ...Option) *Intake {
	if normalizer == nil {
		normalizer = deeplink.NewNormalizer(deeplink.DefaultScheme())
	}
	if cell == nil {
		cell = NewInitiatorCell()
	}
	in := &Intake{
		source:     source,
		normalizer: normalizer,
		cell:       cell,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Mount subscribes to the source, then handles the pending launch link (if
// any) followed by live links, all on one goroutine.
func (in *Intake) Mount(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.sub != nil {
		return ErrAlreadyMounted
	}

	sub, err := in.source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("intake: subscribe: %w", err)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	in.sub = sub
	in.cancel = cancel
	in.done = make(chan struct{})

	go in.run(loopCtx, sub, in.done)
	log.Debug().Msg("intake.Intake.Mount subscribed")
	return nil
}

// Unmount releases the subscription and waits for the loop to exit. No
// handler runs after Unmount returns.
func (in *Intake) Unmount() {
	in.mu.Lock()
	sub, cancel, done := in.sub, in.cancel, in.done
	in.sub, in.cancel, in.done = nil, nil, nil
	in.mu.Unlock()
	if sub == nil {
		return
	}
	cancel()
	sub.Close()
	<-done
	log.Debug().Msg("intake.Intake.Unmount released")
}

func (in *Intake) Mounted() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.sub != nil
}

func (in *Intake) run(ctx context.Context, sub *Subscription, done chan struct{}) {
	defer in.release(sub, done)
	// Handlers run to completion once a link is received.
	handleCtx := context.WithoutCancel(ctx)

	// A launch link declined for want of a wallet kit is replayed once the
	// cell is set.
	var held *Delivery
	if d, ok := in.source.InitialLink(ctx); ok {
		if r := in.Handle(handleCtx, d); r.Outcome == OutcomeUninitialized {
			held = &d
		}
	}
	var cellReady <-chan struct{}
	if held != nil {
		cellReady = in.cell.Done()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-cellReady:
			cellReady = nil
			if ctx.Err() != nil {
				return
			}
			d := *held
			held = nil
			log.Info().Str("delivery_id", d.ID).Msg("intake.Intake.run replaying launch link")
			in.Handle(handleCtx, d)
		case d, ok := <-sub.Links():
			if !ok {
				return
			}
			// Buffered links stay readable after release.
			if ctx.Err() != nil {
				return
			}
			in.Handle(handleCtx, d)
		}
	}
}

// release clears the mount state when the loop exits on its own, then
// signals done.
func (in *Intake) release(sub *Subscription, done chan struct{}) {
	in.mu.Lock()
	if in.done == done {
		cancel := in.cancel
		in.sub, in.cancel, in.done = nil, nil, nil
		cancel()
		sub.Close()
		log.Debug().Msg("intake.Intake.run loop ended, released")
	}
	in.mu.Unlock()
	close(done)
}

// Handle runs one delivery through normalization and pairing. It never
// panics and never returns an error; the Report carries the outcome.
func (in *Intake) Handle(ctx context.Context, d Delivery) Report {
	start := time.Now()
	report := Report{DeliveryID: d.ID, URL: d.URL}
	logger := log.With().Str("delivery_id", d.ID).Bool("initial", d.Initial).Logger()
	logger.Info().Str("url", d.URL).Msg("intake.Intake.Handle link received")

	defer func() {
		report.Duration = time.Since(start)
		observability.RecordLink(string(report.Outcome))
		if in.observer != nil {
			in.observer(report)
		}
	}()

	res, err := in.normalizer.Normalize(d.URL)
	if res.Extracted != "" {
		logger.Debug().Str("extracted", res.Extracted).Msg("intake.Intake.Handle uri extracted")
	}
	if res.DecodeErr != nil {
		logger.Warn().Err(res.DecodeErr).Msg("intake.Intake.Handle decode failed, using raw payload")
	} else if res.Decoded {
		logger.Debug().Str("decoded", res.Candidate).Bool("recovered", res.Recovered).Msg("intake.Intake.Handle uri decoded")
	}

	switch res.Kind {
	case deeplink.KindNotActionable:
		report.Outcome = OutcomeIgnored
		report.Reason = res.Reason
		logger.Info().Str("reason", string(res.Reason)).Msg("intake.Intake.Handle not actionable")
		return report
	case deeplink.KindMalformed:
		report.Outcome = OutcomeMalformed
		report.Err = err
		logger.Error().Err(err).Str("candidate", res.Candidate).Msg("intake.Intake.Handle malformed pairing uri")
		return report
	}

	report.URI = res.URI.String()
	logger.Debug().
		Str("scheme", res.URI.Scheme).
		Str("identifier", res.URI.Identifier).
		Str("version", res.URI.Version).
		Int("params", res.URI.Params.Len()).
		Msg("intake.Intake.Handle parameters parsed")
	logger.Info().Str("uri", report.URI).Msg("intake.Intake.Handle final uri")

	initiator, ok := in.cell.Get()
	if !ok {
		report.Outcome = OutcomeUninitialized
		logger.Warn().Msg("intake.Intake.Handle wallet kit not initialized")
		return report
	}

	pairStart := time.Now()
	err = safePair(ctx, initiator, report.URI)
	observability.RecordPair(time.Since(pairStart), err == nil)
	if err != nil {
		report.Outcome = OutcomePairFailed
		report.Err = err
		logger.Error().Err(err).Str("uri", report.URI).Msg("intake.Intake.Handle pairing failed")
		return report
	}
	report.Outcome = OutcomePaired
	logger.Info().Str("uri", report.URI).Msg("intake.Intake.Handle paired")
	return report
}

var errInitiatorPanic = errors.New("intake: initiator panic")

func safePair(ctx context.Context, initiator Initiator, uri string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errInitiatorPanic, r)
		}
	}()
	return initiator.Pair(ctx, uri)
}
