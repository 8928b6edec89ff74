package etcd

import (
	"context"
	"maps"
	"time"

	"github.com/sirupsen/logrus"
	v3 "go.etcd.io/etcd/client/v3"

	"github.com/bagel-payroll/bagel-server/pkg/retry"
	"github.com/bagel-payroll/bagel-server/pkg/retry/backoff"
)

// Snapshot is every <K, V> pair under a prefix at a point in time.
type Snapshot[K comparable, V any] struct {
	Revision int64
	Tree     map[K]V
}

// KVTransform maps a raw etcd <key, value> pair to the caller's <K, V>.
// Pairs that fail to transform are dropped.
type KVTransform[K comparable, V any] func(k, v []byte) (K, V, error)

// WatchPrefix emits a Snapshot of the prefix after the initial load and
// after every subsequent batch of changes. Watch failures reload the prefix
// from scratch.
//
// The returned channel closes when ctx is cancelled.
func WatchPrefix[K comparable, V any](
	ctx context.Context,
	client *v3.Client,
	prefix string,
	transform KVTransform[K, V],
) <-chan Snapshot[K, V] {
	w := &prefixWatcher[K, V]{
		log: logrus.StandardLogger().WithFields(logrus.Fields{
			"method": "WatchPrefix",
			"prefix": prefix,
		}),
		client:    client,
		prefix:    prefix,
		transform: transform,
		ch:        make(chan Snapshot[K, V], 1),
	}

	go func() {
		defer close(w.ch)

		_, _ = retry.Retry(
			func() error { return w.watch(ctx) },
			func(attempts uint, err error) bool {
				w.log.WithError(err).Warn("Failure during watch loop")
				return true
			},
			retry.NonRetriableErrors(context.Canceled),
			retry.BackoffWithJitter(backoff.Constant(time.Second), 2*time.Second, 0.1),
		)
		w.log.Debug("Closed")
	}()

	return w.ch
}

type prefixWatcher[K comparable, V any] struct {
	log       *logrus.Entry
	client    *v3.Client
	prefix    string
	transform KVTransform[K, V]
	ch        chan Snapshot[K, V]
}

func (w *prefixWatcher[K, V]) watch(ctx context.Context) error {
	get, err := w.client.Get(ctx, w.prefix, v3.WithPrefix())
	if err != nil {
		return err
	}

	tree := make(map[K]V, len(get.Kvs))
	for _, kv := range get.Kvs {
		w.put(tree, kv.Key, kv.Value)
	}

	if err := w.emit(ctx, get.Header.Revision, tree); err != nil {
		return err
	}

	watchCh := w.client.Watch(
		ctx,
		w.prefix,
		v3.WithPrefix(),
		v3.WithRev(get.Header.Revision+1),
		v3.WithPrevKV(), // Deletes only carry the key otherwise
	)

	for watch := range watchCh {
		if err := watch.Err(); err != nil {
			return err
		}

		for _, event := range watch.Events {
			switch event.Type {
			case v3.EventTypePut:
				w.put(tree, event.Kv.Key, event.Kv.Value)
			case v3.EventTypeDelete:
				if event.PrevKv == nil {
					continue
				}
				if key, _, err := w.transform(event.PrevKv.Key, event.PrevKv.Value); err == nil {
					delete(tree, key)
				}
			}
		}

		if err := w.emit(ctx, watch.Header.Revision, tree); err != nil {
			return err
		}
	}

	return ctx.Err()
}

func (w *prefixWatcher[K, V]) put(tree map[K]V, k, v []byte) {
	key, val, err := w.transform(k, v)
	if err != nil {
		w.log.WithError(err).WithField("key", string(k)).Warn("Invalid record, dropping")
		return
	}
	tree[key] = val
}

func (w *prefixWatcher[K, V]) emit(ctx context.Context, revision int64, tree map[K]V) error {
	select {
	case w.ch <- Snapshot[K, V]{Revision: revision, Tree: maps.Clone(tree)}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
