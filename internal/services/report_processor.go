package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"locagest/internal/log"
)

type ReportProcessorConfig struct {
	// Interval between two publications of the outstanding report.
	Interval time.Duration
	// RunOnStart publishes once as soon as the processor starts.
	RunOnStart bool
}

func DefaultReportProcessorConfig() ReportProcessorConfig {
	return ReportProcessorConfig{Interval: time.Hour, RunOnStart: true}
}

// ReportStatus describes the latest publication attempt.
type ReportStatus struct {
	Runs     int
	Failures int
	LastRef  string
	LastErr  error
	LastRun  time.Time
}

// ReportProcessor publishes the outstanding balances report on a ticker.
// A failed publication is logged and retried on the next tick.
type ReportProcessor struct {
	service *ContractService
	config  ReportProcessorConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	status ReportStatus
}

func NewReportProcessor(service *ContractService, config ReportProcessorConfig) *ReportProcessor {
	if config.Interval <= 0 {
		config.Interval = DefaultReportProcessorConfig().Interval
	}
	return &ReportProcessor{service: service, config: config}
}

var errProcessorRunning = errors.New("report processor is already running")

// Start runs the loop in the background until Stop or until ctx is done.
func (p *ReportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return errProcessorRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(loopCtx, p.done)

	slog.InfoContext(ctx, "Report processor started", "interval", p.config.Interval)
	return nil
}

// Stop cancels the loop and waits for the cycle in flight, at most until
// ctx is done.
func (p *ReportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		slog.InfoContext(ctx, "Report processor stopped")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Report processor stop timed out")
		return ctx.Err()
	}
}

func (p *ReportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *ReportProcessor) Status() ReportStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *ReportProcessor) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	if p.config.RunOnStart {
		p.ProcessOnce(ctx)
	}

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce publishes one report and records the outcome in Status.
func (p *ReportProcessor) ProcessOnce(ctx context.Context) {
	start := time.Now()
	ref, err := p.service.PublishOutstandingReport(ctx)

	p.mu.Lock()
	p.status.Runs++
	p.status.LastRun = start
	p.status.LastRef, p.status.LastErr = ref, err
	if err != nil {
		p.status.Failures++
	}
	p.mu.Unlock()

	if err != nil {
		log.LogError(ctx, "Outstanding report not published", err,
			log.ComponentReport, log.OpPublish, nil)
		return
	}
	slog.InfoContext(ctx, "Outstanding report published",
		log.FieldComponent, log.ComponentReport,
		"ref", ref, log.FieldDuration, time.Since(start).Milliseconds())
}
