package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"lectern/portal/internal/metrics"
)

// Postgres keeps documents in jsonb tables and pushes change pings through
// Redis pub/sub. Watchers re-run their query on each relevant ping and
// deliver the fresh result, so consumers always see full snapshots.
type Postgres struct {
	pool  *pgxpool.Pool
	redis *redis.Client
	log   *slog.Logger
}

var _ Store = (*Postgres)(nil)

func NewPostgres(pool *pgxpool.Pool, redisClient *redis.Client, logger *slog.Logger) *Postgres {
	return &Postgres{pool: pool, redis: redisClient, log: logger}
}

// EnsureSchema creates the document tables when they do not exist yet.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			path text PRIMARY KEY,
			doc jsonb NOT NULL,
			updated_at timestamptz NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS collection_records (
			id uuid PRIMARY KEY,
			collection text NOT NULL,
			doc jsonb NOT NULL,
			created_at timestamptz NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS collection_records_collection_idx
			ON collection_records (collection, created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Postgres) GetRecord(ctx context.Context, path string) (json.RawMessage, error) {
	var doc []byte
	row := s.pool.QueryRow(ctx, `SELECT doc FROM records WHERE path = $1`, path)
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		metrics.StoreErrors.WithLabelValues("get_record").Inc()
		return nil, err
	}
	return doc, nil
}

func (s *Postgres) SetRecord(ctx context.Context, path string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO records (path, doc, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (path) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at
	`, path, data, time.Now().UTC())
	if err != nil {
		metrics.StoreErrors.WithLabelValues("set_record").Inc()
		return err
	}
	s.publish(ctx, recordChannel(path), "")
	return nil
}

func (s *Postgres) AddRecord(ctx context.Context, collection string, doc any) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO collection_records (id, collection, doc, created_at)
		VALUES ($1, $2, $3, $4)
	`, id, collection, data, time.Now().UTC())
	if err != nil {
		metrics.StoreErrors.WithLabelValues("add_record").Inc()
		return "", err
	}
	// The written document rides the ping so watchers can skip re-queries
	// for other filter values.
	s.publish(ctx, collectionChannel(collection), string(data))
	return id, nil
}

func (s *Postgres) Query(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if filter.Field == "" {
		rows, err = s.pool.Query(ctx, `
			SELECT id, doc FROM collection_records
			WHERE collection = $1
			ORDER BY created_at, id
		`, collection)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, doc FROM collection_records
			WHERE collection = $1 AND doc->>$2 = $3
			ORDER BY created_at, id
		`, collection, filter.Field, filter.Value)
	}
	if err != nil {
		metrics.StoreErrors.WithLabelValues("query").Inc()
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			id  string
			doc []byte
		)
		if err := rows.Scan(&id, &doc); err != nil {
			metrics.StoreErrors.WithLabelValues("query").Inc()
			return nil, err
		}
		docs = append(docs, Document{ID: id, Data: doc})
	}
	if err := rows.Err(); err != nil {
		metrics.StoreErrors.WithLabelValues("query").Inc()
		return nil, err
	}
	return docs, nil
}

func (s *Postgres) ListRecords(ctx context.Context, prefix string) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT path, doc FROM records
		WHERE path LIKE $1 || '%'
		ORDER BY path
	`, prefix)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("list_records").Inc()
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			path string
			doc  []byte
		)
		if err := rows.Scan(&path, &doc); err != nil {
			metrics.StoreErrors.WithLabelValues("list_records").Inc()
			return nil, err
		}
		records = append(records, Record{Path: path, Doc: doc})
	}
	if err := rows.Err(); err != nil {
		metrics.StoreErrors.WithLabelValues("list_records").Inc()
		return nil, err
	}
	return records, nil
}

func (s *Postgres) DeleteRecord(ctx context.Context, path string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM records WHERE path = $1`, path); err != nil {
		metrics.StoreErrors.WithLabelValues("delete_record").Inc()
		return err
	}
	s.publish(ctx, recordChannel(path), "")
	return nil
}

// Watchers

func (s *Postgres) WatchRecord(ctx context.Context, path string) (*RecordWatcher, error) {
	if s.redis == nil {
		return nil, errors.New("notifier not configured")
	}
	// The subscription must be confirmed before the snapshot query: a
	// write landing between the two is then either in the snapshot or
	// guaranteed a ping.
	sub := s.redis.Subscribe(ctx, recordChannel(path))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	initial, err := s.GetRecord(ctx, path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		_ = sub.Close()
		return nil, err
	}
	w := newRecordWatcher(nil)
	if initial != nil {
		w.push(initial)
	}
	go s.recordLoop(ctx, w, sub, path)
	return w, nil
}

func (s *Postgres) recordLoop(ctx context.Context, w *RecordWatcher, sub *redis.PubSub, path string) {
	defer close(w.ch)
	defer func() { _ = sub.Close() }()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case _, ok := <-msgs:
			if !ok {
				s.log.Warn("record subscription closed", "path", path)
				metrics.StoreErrors.WithLabelValues("watch_record").Inc()
				return
			}
			doc, err := s.GetRecord(ctx, path)
			if err != nil {
				// Keep the last delivered value current.
				s.log.Warn("record refresh failed", "path", path, "error", err)
				continue
			}
			w.push(doc)
		}
	}
}

func (s *Postgres) WatchCollection(ctx context.Context, collection string, filter Filter) (*CollectionWatcher, error) {
	if s.redis == nil {
		return nil, errors.New("notifier not configured")
	}
	// Subscription confirmed before the query, as in WatchRecord.
	sub := s.redis.Subscribe(ctx, collectionChannel(collection))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	initial, err := s.Query(ctx, collection, filter)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}
	w := newCollectionWatcher(nil)
	w.push(initial)
	go s.collectionLoop(ctx, w, sub, collection, filter)
	return w, nil
}

func (s *Postgres) collectionLoop(ctx context.Context, w *CollectionWatcher, sub *redis.PubSub, collection string, filter Filter) {
	defer close(w.ch)
	defer func() { _ = sub.Close() }()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				s.log.Warn("collection subscription closed", "collection", collection)
				metrics.StoreErrors.WithLabelValues("watch_collection").Inc()
				return
			}
			if skipPing(msg.Payload, filter) {
				continue
			}
			docs, err := s.Query(ctx, collection, filter)
			if err != nil {
				s.log.Warn("collection refresh failed", "collection", collection, "error", err)
				continue
			}
			w.push(docs)
		}
	}
}

// skipPing reports whether a change ping can be ignored because the written
// document cannot match the watcher's filter. Pings without a payload, or
// with one the watcher cannot interpret, always trigger a refresh.
func skipPing(payload string, filter Filter) bool {
	if filter.Field == "" || payload == "" {
		return false
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return false
	}
	value, ok := fields[filter.Field].(string)
	if !ok {
		return false
	}
	return value != filter.Value
}

func (s *Postgres) publish(ctx context.Context, channel, payload string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Publish(ctx, channel, payload).Err(); err != nil {
		s.log.Warn("change ping failed", "channel", channel, "error", err)
		metrics.StoreErrors.WithLabelValues("publish").Inc()
	}
}

func recordChannel(path string) string {
	return "portal:record:" + path
}

func collectionChannel(collection string) string {
	return "portal:collection:" + collection
}
