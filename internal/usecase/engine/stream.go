package engine

import (
	"context"
	"sync"

	"github.com/kailas-cloud/retrievex/internal/domain/search/hit"
	"github.com/kailas-cloud/retrievex/internal/domain/search/request"
	"github.com/kailas-cloud/retrievex/internal/metrics"
)

// page is one producer-to-consumer handoff. err, when set, terminates the
// stream after any hits in the same message are drained.
type page struct {
	hits  []hit.Hit
	total int
	err   error
}

// Stream is a pull-based cursor over an exhaustive result set. A background
// producer keeps at most one page beyond the consumer's position in flight,
// so memory stays bounded by the page size no matter how large the corpus is.
// Not safe for concurrent use by multiple goroutines.
type Stream struct {
	pages  <-chan page
	cancel context.CancelFunc

	buf      []hit.Hit
	pageErr  error
	total    int
	streamed int
	done     bool
	err      error

	completeOnce sync.Once
	onComplete   func(streamed int)
}

// newStream starts the page producer. onComplete fires exactly once, when the
// stream is exhausted, fails, or is closed.
func newStream(
	ctx context.Context,
	pager Pager,
	req *request.Request,
	pageSize int,
	onComplete func(streamed int),
) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	// Capacity 1 gives the single-page lookahead: the producer can finish
	// fetching page n+1 while the consumer drains page n, but no further.
	pages := make(chan page, 1)

	go func() {
		defer close(pages)
		offset := 0
		for {
			hits, total, err := pager.Page(ctx, req.Query(), req.Filters(), offset, pageSize)
			select {
			case pages <- page{hits: hits, total: total, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil || len(hits) == 0 || offset+len(hits) >= total {
				return
			}
			offset += len(hits)
		}
	}()

	return &Stream{pages: pages, cancel: cancel, total: -1, onComplete: onComplete}
}

// Next returns the next hit. The second result is false when the stream is
// exhausted; check Err afterwards to distinguish completion from failure.
// Next blocks only while the producer is fetching the next page.
func (s *Stream) Next(ctx context.Context) (hit.Hit, bool) {
	for len(s.buf) == 0 {
		if s.done {
			return hit.Hit{}, false
		}
		select {
		case <-ctx.Done():
			s.finish(ctx.Err())
			return hit.Hit{}, false
		default:
		}
		select {
		case p, ok := <-s.pages:
			if !ok {
				s.finish(nil)
				return hit.Hit{}, false
			}
			s.buf = p.hits
			s.total = p.total
			if p.err != nil {
				// Hits delivered alongside the error are drained before
				// the stream terminates.
				s.pageErr = p.err
				if len(p.hits) == 0 {
					s.finish(p.err)
					return hit.Hit{}, false
				}
			} else if len(p.hits) == 0 {
				s.finish(nil)
				return hit.Hit{}, false
			}
		case <-ctx.Done():
			s.finish(ctx.Err())
			return hit.Hit{}, false
		}
	}

	h := s.buf[0]
	s.buf = s.buf[1:]
	s.streamed++
	metrics.SystematicHitsStreamed.Inc()
	if len(s.buf) == 0 {
		switch {
		case s.pageErr != nil:
			s.finish(s.pageErr)
		case s.total >= 0 && s.streamed >= s.total:
			s.finish(nil)
		}
	}
	return h, true
}

// Total returns the backend's exhaustive match count, or -1 before the first
// page has arrived.
func (s *Stream) Total() int { return s.total }

// Streamed returns the number of hits delivered so far.
func (s *Stream) Streamed() int { return s.streamed }

// Err returns the failure that terminated the stream, if any. Valid once
// Next has returned false.
func (s *Stream) Err() error { return s.err }

// Close stops the producer and releases the stream. Safe to call more than
// once and after exhaustion; an early Close still fires the completion hook
// with the count delivered so far.
func (s *Stream) Close() {
	s.finish(s.err)
}

func (s *Stream) finish(err error) {
	s.done = true
	if s.err == nil {
		s.err = err
	}
	s.cancel()
	s.completeOnce.Do(func() {
		if s.onComplete != nil {
			s.onComplete(s.streamed)
		}
	})
}
