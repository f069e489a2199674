package lfs

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pool runs a bounded number of LFS transfers concurrently. Its shape
// (errgroup plus a semaphore sized to GOMAXPROCS, capped) is reused by
// future worker pools that fan out bounded I/O, not just LFS fetches.
type Pool struct {
	limit  int
	logger *zap.Logger
}

// NewPool returns a Pool sized to min(GOMAXPROCS, 8). A nil logger is
// replaced with a no-op logger.
func NewPool(logger *zap.Logger) *Pool {
	limit := runtime.GOMAXPROCS(0)
	if limit > 8 {
		limit = 8
	}
	if limit < 1 {
		limit = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{limit: limit, logger: logger}
}

// Transfer is one unit of work: fetch or push a single LFS object.
type Transfer struct {
	OID  string
	Size int64
	URL  string
}

// Run ensures every transfer is local, logging each attempt and its
// outcome. It returns the first error encountered; in-flight transfers
// are allowed to finish (errgroup's own cancellation propagates through
// ctx to callers that check it).
func (p *Pool) Run(ctx context.Context, store *Store, fetcher Fetcher, transfers []Transfer) error {
	g, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, p.limit)

	for _, t := range transfers {
		t := t
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			p.logger.Debug("lfs transfer starting", zap.String("oid", t.OID), zap.Int64("size", t.Size))
			_, err := EnsureLocal(ctx, store, fetcher, t.OID, t.Size, t.URL)
			if err != nil {
				p.logger.Warn("lfs transfer failed", zap.String("oid", t.OID), zap.Error(err))
				return err
			}
			p.logger.Debug("lfs transfer complete", zap.String("oid", t.OID))
			return nil
		})
	}

	return g.Wait()
}
