package docstore

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Store with the same watcher semantics as the
// Postgres implementation. Tests build portals against it.
type Memory struct {
	mu          sync.Mutex
	records     map[string]json.RawMessage
	collections map[string][]Document
	recordSubs  map[string][]*RecordWatcher
	collSubs    map[string][]*memoryCollSub
}

type memoryCollSub struct {
	filter  Filter
	watcher *CollectionWatcher
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		records:     make(map[string]json.RawMessage),
		collections: make(map[string][]Document),
		recordSubs:  make(map[string][]*RecordWatcher),
		collSubs:    make(map[string][]*memoryCollSub),
	}
}

func (m *Memory) GetRecord(_ context.Context, path string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.records[path]
	if !ok {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (m *Memory) SetRecord(_ context.Context, path string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[path] = data
	for _, w := range m.recordSubs[path] {
		w.push(data)
	}
	return nil
}

func (m *Memory) AddRecord(_ context.Context, collection string, doc any) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = append(m.collections[collection], Document{ID: id, Data: data})
	for _, sub := range m.collSubs[collection] {
		if !sub.filter.Matches(data) {
			continue
		}
		sub.watcher.push(m.queryLocked(collection, sub.filter))
	}
	return id, nil
}

func (m *Memory) Query(_ context.Context, collection string, filter Filter) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queryLocked(collection, filter), nil
}

func (m *Memory) queryLocked(collection string, filter Filter) []Document {
	var docs []Document
	for _, doc := range m.collections[collection] {
		if filter.Matches(doc.Data) {
			docs = append(docs, doc)
		}
	}
	return docs
}

func (m *Memory) ListRecords(_ context.Context, prefix string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var records []Record
	for path, doc := range m.records {
		if strings.HasPrefix(path, prefix) {
			records = append(records, Record{Path: path, Doc: doc})
		}
	}
	return records, nil
}

func (m *Memory) DeleteRecord(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, path)
	return nil
}

func (m *Memory) WatchRecord(_ context.Context, path string) (*RecordWatcher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := newRecordWatcher(nil)
	w.stop = func() { m.dropRecordWatcher(path, w) }
	m.recordSubs[path] = append(m.recordSubs[path], w)
	if doc, ok := m.records[path]; ok {
		w.push(doc)
	}
	return w, nil
}

func (m *Memory) WatchCollection(_ context.Context, collection string, filter Filter) (*CollectionWatcher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := newCollectionWatcher(nil)
	w.stop = func() { m.dropCollectionWatcher(collection, w) }
	m.collSubs[collection] = append(m.collSubs[collection], &memoryCollSub{filter: filter, watcher: w})
	w.push(m.queryLocked(collection, filter))
	return w, nil
}

func (m *Memory) dropRecordWatcher(path string, w *RecordWatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.recordSubs[path]
	for i, sub := range subs {
		if sub == w {
			m.recordSubs[path] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	close(w.ch)
}

func (m *Memory) dropCollectionWatcher(collection string, w *CollectionWatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.collSubs[collection]
	for i, sub := range subs {
		if sub.watcher == w {
			m.collSubs[collection] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	close(w.ch)
}
