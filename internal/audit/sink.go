// Package audit persists search provenance events without ever blocking the
// request path. Records are queued and written by a single background worker;
// under sustained pressure the queue drops records and counts the drops.
package audit

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/metrics"
)

// DefaultQueueSize is the record queue capacity when none is configured.
const DefaultQueueSize = 256

// Sink is a buffered, fire-and-forget audit trail writer.
type Sink struct {
	queue chan domain.AuditRecord
	log   *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewSink creates the sink and starts its worker.
func NewSink(log *zap.Logger, queueSize int) *Sink {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	s := &Sink{
		queue: make(chan domain.AuditRecord, queueSize),
		log:   log.Named("audit"),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Record enqueues a record. It never blocks: a full queue drops the record.
func (s *Sink) Record(rec domain.AuditRecord) {
	select {
	case s.queue <- rec:
	default:
		metrics.AuditDroppedTotal.Inc()
	}
}

// Close drains pending records and stops the worker.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
		<-s.done
	})
}

func (s *Sink) run() {
	defer close(s.done)
	for rec := range s.queue {
		s.write(rec)
	}
}

func (s *Sink) write(rec domain.AuditRecord) {
	s.log.Info(rec.Event,
		zap.String("audit_id", rec.ID),
		zap.String("query", rec.Query),
		zap.String("mode", rec.Mode),
		zap.Strings("strategies", rec.Strategies),
		zap.Int64("snapshot_id", rec.SnapshotID),
		zap.Int("hit_count", rec.HitCount),
		zap.Time("recorded_at", time.Now().UTC()),
	)
}
