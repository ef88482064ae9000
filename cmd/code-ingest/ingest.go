package main

import (
	"context"
	"sync/atomic"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

// codeWriter is satisfied by *postgres.CodeRepository.
type codeWriter interface {
	InsertCodes(ctx context.Context, discountID string, codes []discount.Code) (int64, error)
}

type ingestStats struct {
	read     atomic.Int64
	invalid  atomic.Int64
	inserted atomic.Int64
	suspects int
}

// ingester imports code lists for one discount.
type ingester struct {
	lg         *zap.Logger
	w          codeWriter
	discountID string
	// template supplies MaxUses and ExpiresAt for every imported code.
	template  discount.Code
	batchSize int
	minLen    int
	maxLen    int
	dedupe    *deduper
}

// run streams every file concurrently. Codes proven new are written as they
// arrive; bloom hits are written last and resolved by the unique constraint.
func (in *ingester) run(ctx context.Context, files []string) (*ingestStats, error) {
	stats := &ingestStats{}
	batches := make(chan []string, len(files))

	g, gctx := errgroup.WithContext(ctx)
	readers, rctx := errgroup.WithContext(gctx)
	for _, path := range files {
		readers.Go(func() error {
			return in.readFile(rctx, path, stats, batches)
		})
	}
	g.Go(func() error {
		defer close(batches)
		return readers.Wait()
	})
	g.Go(func() error {
		for batch := range batches {
			if err := in.write(gctx, batch, stats); err != nil {
				return err
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return stats, err
	}

	suspects := in.dedupe.drainSuspects()
	stats.suspects = len(suspects)
	for start := 0; start < len(suspects); start += in.batchSize {
		end := min(start+in.batchSize, len(suspects))
		if err := in.write(ctx, suspects[start:end], stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (in *ingester) readFile(ctx context.Context, path string, stats *ingestStats, out chan<- []string) error {
	batch := make([]string, 0, in.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		select {
		case out <- batch:
		case <-ctx.Done():
			return ctx.Err()
		}
		batch = make([]string, 0, in.batchSize)
		return nil
	}

	var count int64
	err := streamGzFile(ctx, path, func(code string) error {
		stats.read.Add(1)
		if !validCode(code, in.minLen, in.maxLen) {
			stats.invalid.Add(1)
			return nil
		}
		if !in.dedupe.observe(code) {
			return nil
		}
		count++
		batch = append(batch, code)
		if len(batch) >= in.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "ingest %s", path)
	}
	if err := flush(); err != nil {
		return err
	}

	in.lg.Info("File scanned", zap.String("path", path), zap.Int64("new_codes", count))
	return nil
}

func (in *ingester) write(ctx context.Context, batch []string, stats *ingestStats) error {
	codes := make([]discount.Code, len(batch))
	for i, c := range batch {
		codes[i] = discount.Code{
			Code:      c,
			MaxUses:   in.template.MaxUses,
			ExpiresAt: in.template.ExpiresAt,
		}
	}
	n, err := in.w.InsertCodes(ctx, in.discountID, codes)
	if err != nil {
		return errors.Wrap(err, "write codes")
	}
	total := stats.inserted.Add(n)
	in.lg.Debug("Batch written", zap.Int("size", len(batch)), zap.Int64("inserted_total", total))
	return nil
}
