package progress

import (
	"fmt"
	"time"

	"github.com/depotrun/artifactcore/pkg/logging"
)

// Reporter consumes a subscription stream and renders it somewhere —
// console, log, or a relay channel. Unlike the teacher's
// pkg/core/streaming/progress.go ProgressReporter, which is driven by
// direct callback invocation from the ingest path, a Reporter is a
// consumer of the registry's own subscribe() stream: the registry remains
// the sole publisher, and reporters are just one more subscriber.
type Reporter interface {
	Run(stream <-chan Snapshot)
}

// ConsoleReporter prints throttled human-readable progress lines,
// grounded on the teacher's ConsoleProgressReporter update-frequency
// throttle.
type ConsoleReporter struct {
	Name       string
	UpdateFreq time.Duration
}

// NewConsoleReporter returns a reporter that prints at most once per
// second per operation.
func NewConsoleReporter(name string) *ConsoleReporter {
	return &ConsoleReporter{Name: name, UpdateFreq: time.Second}
}

// Run drains stream until it closes, printing throttled updates and an
// untruncated terminal line.
func (r *ConsoleReporter) Run(stream <-chan Snapshot) {
	var last time.Time
	for snap := range stream {
		if !snap.Terminal() && time.Since(last) < r.UpdateFreq {
			continue
		}
		last = time.Now()

		var pct float64
		if snap.BytesTotal > 0 {
			pct = float64(snap.BytesProcessed) / float64(snap.BytesTotal) * 100
		}

		switch snap.Status {
		case Completed:
			fmt.Printf("[%s] %s COMPLETE: %d bytes\n", r.Name, snap.OperationID, snap.BytesProcessed)
		case Failed:
			fmt.Printf("[%s] %s FAILED: %s\n", r.Name, snap.OperationID, snap.Error)
		default:
			fmt.Printf("[%s] %s: %.1f%% (%d/%d bytes, %.0f B/s)\n",
				r.Name, snap.OperationID, pct, snap.BytesProcessed, snap.BytesTotal, snap.SpeedBPS())
		}
	}
}

// LogReporter writes progress to a structured logger, grounded on the
// teacher's LogProgressReporter.
type LogReporter struct {
	log        *logging.FieldLogger
	UpdateFreq time.Duration
}

// NewLogReporter returns a reporter that writes via logger every 5s.
func NewLogReporter(logger *logging.Logger, name string) *LogReporter {
	return &LogReporter{
		log:        logger.WithField("reporter", name),
		UpdateFreq: 5 * time.Second,
	}
}

// Run drains stream until it closes.
func (r *LogReporter) Run(stream <-chan Snapshot) {
	var last time.Time
	for snap := range stream {
		if !snap.Terminal() && time.Since(last) < r.UpdateFreq {
			continue
		}
		last = time.Now()

		switch snap.Status {
		case Completed:
			r.log.Infof("%s complete: %d bytes", snap.OperationID, snap.BytesProcessed)
		case Failed:
			r.log.Errorf("%s failed: %s", snap.OperationID, snap.Error)
		default:
			r.log.Infof("%s progress: %d/%d bytes", snap.OperationID, snap.BytesProcessed, snap.BytesTotal)
		}
	}
}

// MultiReporter broadcasts each snapshot to several reporters' Run loops,
// grounded on the teacher's MultiProgressReporter fan-out.
type MultiReporter struct {
	reporters []Reporter
}

// NewMultiReporter returns a reporter that fans a single stream out to
// several underlying reporters, each via its own internal channel.
func NewMultiReporter(reporters ...Reporter) *MultiReporter {
	return &MultiReporter{reporters: reporters}
}

// Run drains stream and republishes each snapshot to every underlying
// reporter's own buffered channel.
func (m *MultiReporter) Run(stream <-chan Snapshot) {
	fanouts := make([]chan Snapshot, len(m.reporters))
	for i, rep := range m.reporters {
		ch := make(chan Snapshot, 32)
		fanouts[i] = ch
		go rep.Run(ch)
	}

	for snap := range stream {
		for _, ch := range fanouts {
			select {
			case ch <- snap:
			default:
			}
		}
	}

	for _, ch := range fanouts {
		close(ch)
	}
}
