package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/planfold/planfold/internal/domain"
)

// ArchiveStore is the persistence surface the archiver writes to.
type ArchiveStore interface {
	ArchiveMessages(ctx context.Context, sessionID string, msgs []domain.Message) error
}

// archiveBatch is one unit of work on the archiver queue.
type archiveBatch struct {
	sessionID string
	msgs      []domain.Message
}

// StoreArchiver writes evicted messages to an ArchiveStore through a bounded
// queue so archival never blocks the append path. Failures are logged, not
// propagated.
type StoreArchiver struct {
	store   ArchiveStore
	queue   chan archiveBatch
	done    chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger
	timeout time.Duration
}

// NewStoreArchiver creates an archiver with the given queue size and starts
// its worker goroutine.
func NewStoreArchiver(store ArchiveStore, queueSize int, logger *slog.Logger) *StoreArchiver {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &StoreArchiver{
		store:   store,
		queue:   make(chan archiveBatch, queueSize),
		done:    make(chan struct{}),
		logger:  logger,
		timeout: 10 * time.Second,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Archive enqueues a batch for persistence. When the queue is full the batch
// is dropped with a warning rather than blocking the caller.
func (a *StoreArchiver) Archive(sessionID string, msgs []domain.Message) {
	select {
	case <-a.done:
		return
	default:
	}

	batch := archiveBatch{sessionID: sessionID, msgs: msgs}
	select {
	case a.queue <- batch:
	default:
		a.logger.Warn("archive queue full, dropping batch",
			"session_id", sessionID,
			"messages", len(msgs),
		)
	}
}

func (a *StoreArchiver) run() {
	defer a.wg.Done()
	for {
		select {
		case batch := <-a.queue:
			a.persist(batch)
		case <-a.done:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case batch := <-a.queue:
					a.persist(batch)
				default:
					return
				}
			}
		}
	}
}

func (a *StoreArchiver) persist(batch archiveBatch) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.store.ArchiveMessages(ctx, batch.sessionID, batch.msgs); err != nil {
		a.logger.Warn("failed to archive messages",
			"session_id", batch.sessionID,
			"messages", len(batch.msgs),
			"error", err,
		)
	}
}

// Close stops accepting batches, flushes the queue, and waits for the worker.
func (a *StoreArchiver) Close() {
	close(a.done)
	a.wg.Wait()
}
