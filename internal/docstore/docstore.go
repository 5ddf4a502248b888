// Package docstore is the portal's document store boundary: keyed records,
// append-only collections, and watchers that push full replacement snapshots
// whenever the underlying data changes.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("record not found")

// Filter is a single-field equality predicate over a collection's documents.
type Filter struct {
	Field string
	Value string
}

func (f Filter) Matches(doc json.RawMessage) bool {
	if f.Field == "" {
		return true
	}
	var fields map[string]any
	if err := json.Unmarshal(doc, &fields); err != nil {
		return false
	}
	value, ok := fields[f.Field].(string)
	return ok && value == f.Value
}

type Document struct {
	ID   string
	Data json.RawMessage
}

type Record struct {
	Path string
	Doc  json.RawMessage
}

type Store interface {
	GetRecord(ctx context.Context, path string) (json.RawMessage, error)
	SetRecord(ctx context.Context, path string, doc any) error
	AddRecord(ctx context.Context, collection string, doc any) (string, error)
	Query(ctx context.Context, collection string, filter Filter) ([]Document, error)
	WatchRecord(ctx context.Context, path string) (*RecordWatcher, error)
	WatchCollection(ctx context.Context, collection string, filter Filter) (*CollectionWatcher, error)
	ListRecords(ctx context.Context, prefix string) ([]Record, error)
	DeleteRecord(ctx context.Context, path string) error
}

// RecordWatcher streams the current value of one record. Snapshots coalesce:
// a slow consumer sees the latest value, not every intermediate one.
type RecordWatcher struct {
	ch        chan json.RawMessage
	done      chan struct{}
	closeOnce sync.Once
	stop      func()
}

func newRecordWatcher(stop func()) *RecordWatcher {
	return &RecordWatcher{
		ch:   make(chan json.RawMessage, 1),
		done: make(chan struct{}),
		stop: stop,
	}
}

func (w *RecordWatcher) Snapshots() <-chan json.RawMessage {
	return w.ch
}

// Close releases the subscription. Safe to call more than once.
func (w *RecordWatcher) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		if w.stop != nil {
			w.stop()
		}
	})
}

func (w *RecordWatcher) push(doc json.RawMessage) {
	select {
	case <-w.done:
		return
	default:
	}
	for {
		select {
		case w.ch <- doc:
			return
		default:
			select {
			case <-w.ch:
			default:
			}
		}
	}
}

// CollectionWatcher streams the full filtered contents of a collection, with
// the same coalescing delivery as RecordWatcher.
type CollectionWatcher struct {
	ch        chan []Document
	done      chan struct{}
	closeOnce sync.Once
	stop      func()
}

func newCollectionWatcher(stop func()) *CollectionWatcher {
	return &CollectionWatcher{
		ch:   make(chan []Document, 1),
		done: make(chan struct{}),
		stop: stop,
	}
}

func (w *CollectionWatcher) Snapshots() <-chan []Document {
	return w.ch
}

func (w *CollectionWatcher) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		if w.stop != nil {
			w.stop()
		}
	})
}

func (w *CollectionWatcher) push(docs []Document) {
	select {
	case <-w.done:
		return
	default:
	}
	for {
		select {
		case w.ch <- docs:
			return
		default:
			select {
			case <-w.ch:
			default:
			}
		}
	}
}
