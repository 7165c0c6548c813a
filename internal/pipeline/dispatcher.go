package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inodb/expression-near-mutations/internal/expression"
)

// Sink receives every completed participant, e.g. to persist its table.
// It is called from worker goroutines and must be safe for concurrent use.
type Sink interface {
	WriteParticipant(r *Result) error
}

// ParticipantProcessor processes one participant.
type ParticipantProcessor interface {
	Process(participantID string) (*Result, error)
}

// Summary describes a finished run.
type Summary struct {
	Processed int
	Failed    int
	Elapsed   time.Duration

	// Per-participant wall time of the processed participants, in seconds.
	MedianSeconds float64
	MaxSeconds    float64
}

// Dispatcher drains a queue of participants with a fixed number of workers.
type Dispatcher struct {
	proc    ParticipantProcessor
	workers int
	sink    Sink
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher. workers below 1 means 1.
func NewDispatcher(proc ParticipantProcessor, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		proc:    proc,
		workers: workers,
		logger:  zap.NewNop(),
	}
}

// SetLogger sets the logger for progress and diagnostic messages.
func (d *Dispatcher) SetLogger(l *zap.Logger) {
	d.logger = l
}

// SetSink sets where completed results are sent.
func (d *Dispatcher) SetSink(s Sink) {
	d.sink = s
}

// Run processes ids until the queue is empty. A participant that fails is
// logged and skipped. Cancelling ctx stops workers from taking new
// participants; work already started runs to completion.
func (d *Dispatcher) Run(ctx context.Context, ids []string) (*Summary, error) {
	start := time.Now()
	queue := NewQueue(ids)

	var (
		mu      sync.Mutex
		elapsed stats.Float64Data
		failed  int
	)

	g, gctx := errgroup.WithContext(ctx)
	for range d.workers {
		g.Go(func() error {
			for gctx.Err() == nil {
				id, ok := queue.Pop()
				if !ok {
					return nil
				}

				taken := time.Now()
				result, err := d.proc.Process(id)
				if err == nil && d.sink != nil {
					if serr := d.sink.WriteParticipant(result); serr != nil {
						d.logger.Error("failed to store participant",
							zap.String("participant", id),
							zap.Error(serr))
					}
				}
				took := time.Since(taken)

				mu.Lock()
				if err != nil {
					failed++
				} else {
					elapsed = append(elapsed, took.Seconds())
				}
				mu.Unlock()

				if err != nil {
					d.logFailure(id, err)
					continue
				}

				remaining := queue.Len()
				verb := "remain"
				if remaining == 1 {
					verb = "remains"
				}
				d.logger.Info(fmt.Sprintf("processed participant %s in %ds, %d %s queued",
					id, roundSeconds(took), remaining, verb),
					zap.String("participant", id),
					zap.Int("genes", result.Genes),
					zap.Int("records", result.Records),
					zap.Int("remaining", remaining))
			}
			return nil
		})
	}

	// Workers only stop early on cancellation, reported below.
	_ = g.Wait()

	summary := &Summary{
		Processed: len(elapsed),
		Failed:    failed,
		Elapsed:   time.Since(start),
	}
	if len(elapsed) > 0 {
		summary.MedianSeconds, _ = elapsed.Median()
		summary.MaxSeconds, _ = elapsed.Max()
	}

	if err := ctx.Err(); err != nil && queue.Len() > 0 {
		return summary, fmt.Errorf("run interrupted with %d participants queued: %w", queue.Len(), context.Cause(ctx))
	}
	return summary, nil
}

// logFailure reports why a participant was skipped.
func (d *Dispatcher) logFailure(id string, err error) {
	var pe *expression.ParseError
	switch {
	case errors.As(err, &pe):
		d.logger.Warn("skipping participant: bad input file",
			zap.String("participant", id),
			zap.String("file", pe.File),
			zap.Int("line", pe.Line),
			zap.Error(err))
	case errors.Is(err, ErrNoExperiment), errors.Is(err, ErrNoInputFile), errors.Is(err, ErrUnknownReference):
		d.logger.Warn("skipping participant",
			zap.String("participant", id),
			zap.Error(err))
	default:
		d.logger.Error("failed to process participant",
			zap.String("participant", id),
			zap.Error(err))
	}
}

// roundSeconds rounds to whole seconds, halves up.
func roundSeconds(d time.Duration) int64 {
	return (d.Milliseconds() + 500) / 1000
}
