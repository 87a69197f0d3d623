// Package outbox applies remote-store writes after the local cache has
// committed. The local write is the commit point; the outbox retries the
// remote copy with backoff and records a sync status per record.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/metrics"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var errSuperseded = errors.New("superseded by a newer operation")

// Kind is the remote mutation to apply
type Kind string

const (
	KindPut    Kind = "put"
	KindDelete Kind = "delete"
)

// Operation is one queued remote write.
type Operation struct {
	Kind       Kind
	Collection string
	ID         string
	Data       json.RawMessage
}

// Remote is the subset of the document store the outbox writes to
type Remote interface {
	Put(ctx context.Context, collection, id string, data json.RawMessage) error
	Delete(ctx context.Context, collection, id string) error
}

// Config controls timeouts and retries
type Config struct {
	Timeout         time.Duration // per attempt
	MaxElapsed      time.Duration // retry budget per operation
	InitialInterval time.Duration
}

type recordKey struct {
	collection string
	id         string
}

// Outbox queues remote writes and applies them on a single worker, so
// operations on the same record are applied in order.
type Outbox struct {
	remote Remote
	config Config
	logger *zap.Logger

	mu      sync.Mutex
	queue   []recordKey
	pending map[recordKey]Operation
	status  map[recordKey]*domain.SyncStatus
	wake    chan struct{}
}

// New creates an outbox; call Run to start applying operations
func New(remote Remote, config Config, logger *zap.Logger) *Outbox {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.InitialInterval <= 0 {
		config.InitialInterval = 500 * time.Millisecond
	}
	return &Outbox{
		remote:  remote,
		config:  config,
		logger:  logger,
		pending: make(map[recordKey]Operation),
		status:  make(map[recordKey]*domain.SyncStatus),
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue schedules op and returns immediately. A queued operation for
// the same record that has not started yet is replaced.
func (o *Outbox) Enqueue(op Operation) {
	key := recordKey{op.Collection, op.ID}

	o.mu.Lock()
	if _, queued := o.pending[key]; !queued {
		o.queue = append(o.queue, key)
	}
	o.pending[key] = op
	o.status[key] = &domain.SyncStatus{
		Collection: op.Collection,
		ID:         op.ID,
		State:      domain.SyncPending,
		UpdatedAt:  time.Now(),
	}
	metrics.OutboxPending.Set(float64(len(o.queue)))
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Status returns the sync status of one record
func (o *Outbox) Status(collection, id string) (domain.SyncStatus, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.status[recordKey{collection, id}]
	if !ok {
		return domain.SyncStatus{}, false
	}
	return *st, true
}

// Statuses returns every known record status ordered by collection and id
func (o *Outbox) Statuses() []domain.SyncStatus {
	o.mu.Lock()
	out := make([]domain.SyncStatus, 0, len(o.status))
	for _, st := range o.status {
		out = append(out, *st)
	}
	o.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Collection != out[j].Collection {
			return out[i].Collection < out[j].Collection
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Run applies queued operations until ctx is cancelled
func (o *Outbox) Run(ctx context.Context) error {
	o.logger.Info("Outbox worker started")
	for {
		op, ok := o.next()
		if !ok {
			select {
			case <-ctx.Done():
				o.logger.Info("Outbox worker stopped")
				return nil
			case <-o.wake:
				continue
			}
		}
		o.apply(ctx, op)
	}
}

func (o *Outbox) next() (Operation, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return Operation{}, false
	}
	key := o.queue[0]
	o.queue = o.queue[1:]
	op := o.pending[key]
	delete(o.pending, key)
	metrics.OutboxPending.Set(float64(len(o.queue)))
	return op, true
}

func (o *Outbox) superseded(op Operation) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, newer := o.pending[recordKey{op.Collection, op.ID}]
	return newer
}

func (o *Outbox) apply(ctx context.Context, op Operation) {
	attempts := 0
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = o.config.InitialInterval
	policy.MaxElapsedTime = o.config.MaxElapsed

	attempt := func() error {
		if o.superseded(op) {
			return backoff.Permanent(errSuperseded)
		}
		attempts++

		callCtx, cancel := context.WithTimeout(ctx, o.config.Timeout)
		defer cancel()

		var err error
		switch op.Kind {
		case KindPut:
			err = o.remote.Put(callCtx, op.Collection, op.ID, op.Data)
		case KindDelete:
			err = o.remote.Delete(callCtx, op.Collection, op.ID)
		default:
			return backoff.Permanent(fmt.Errorf("unknown outbox operation %q", op.Kind))
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		metrics.OutboxOperations.WithLabelValues(op.Collection, "retried").Inc()
		o.logger.Warn("Remote write failed, retrying",
			zap.String("collection", op.Collection),
			zap.String("id", op.ID),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		o.record(op, domain.SyncPending, attempts, err)
	}

	err := backoff.RetryNotify(attempt, backoff.WithContext(policy, ctx), notify)
	switch {
	case err == nil:
		metrics.OutboxOperations.WithLabelValues(op.Collection, "synced").Inc()
		o.record(op, domain.SyncSynced, attempts, nil)
	case errors.Is(err, errSuperseded):
		metrics.OutboxOperations.WithLabelValues(op.Collection, "superseded").Inc()
	default:
		metrics.OutboxOperations.WithLabelValues(op.Collection, "failed").Inc()
		o.logger.Warn("Remote write abandoned",
			zap.String("collection", op.Collection),
			zap.String("id", op.ID),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		o.record(op, domain.SyncFailed, attempts, err)
	}
}

// record updates the status unless a newer operation already owns it
func (o *Outbox) record(op Operation, state domain.SyncState, attempts int, err error) {
	key := recordKey{op.Collection, op.ID}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, newer := o.pending[key]; newer {
		return
	}
	st := &domain.SyncStatus{
		Collection: op.Collection,
		ID:         op.ID,
		State:      state,
		Attempts:   attempts,
		UpdatedAt:  time.Now(),
	}
	if err != nil {
		st.LastError = err.Error()
	}
	o.status[key] = st
}
