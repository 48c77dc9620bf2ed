package scan

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
	"github.com/jmerrifield20/riskengine/internal/assets/repository"
)

// journalWriteTimeout bounds each durable write.
const journalWriteTimeout = 5 * time.Second

type journalOp struct {
	entry    *model.ScanLogEntry
	progress int
}

// journal appends log entries and progress to the ScanStore in emission
// order from a single goroutine, so the run never waits on storage latency
// beyond the queue depth. Writes outlive cancellation of the scan itself.
type journal struct {
	scanID uuid.UUID
	store  repository.ScanStore
	logger *zap.Logger
	queue  chan journalOp
	done   chan struct{}
}

func newJournal(scanID uuid.UUID, store repository.ScanStore, depth int, logger *zap.Logger) *journal {
	if depth <= 0 {
		depth = 256
	}
	j := &journal{
		scanID: scanID,
		store:  store,
		logger: logger,
		queue:  make(chan journalOp, depth),
		done:   make(chan struct{}),
	}
	go j.drain()
	return j
}

func (j *journal) log(entry model.ScanLogEntry) {
	j.queue <- journalOp{entry: &entry}
}

func (j *journal) progress(p int) {
	j.queue <- journalOp{progress: p}
}

// close stops accepting writes and waits until the queue is drained.
func (j *journal) close() {
	close(j.queue)
	<-j.done
}

func (j *journal) drain() {
	defer close(j.done)
	for op := range j.queue {
		ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
		var err error
		if op.entry != nil {
			err = j.store.AppendLog(ctx, j.scanID, *op.entry)
		} else {
			err = j.store.UpdateProgress(ctx, j.scanID, op.progress)
		}
		cancel()
		if err != nil {
			j.logger.Warn("scan journal write failed (non-fatal)",
				zap.String("scan_id", j.scanID.String()),
				zap.Error(err),
			)
		}
	}
}
