// Package sink implements pg-sink: it consumes the stream partition
// pg-source produces to, reconstructs table schemas, translates each
// event into DDL/DML, and applies it to a destination Postgres,
// tracking its own resume offset inside that same database. The SQL
// translation rules live in translate.go; this file is the engine
// (startup, schema replay, main loop) grounded on
// pkg/pipeline/peer/pg/peer.go's Pub and pkg/pgx/pool.go's
// PoolManager, generalized from one-row-at-a-time helpers to
// hand-built, semicolon-batched SQL per spec.md §4.5.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/streamkeep/pgcdc/internal/control"
	"github.com/streamkeep/pgcdc/internal/errkind"
	"github.com/streamkeep/pgcdc/internal/streamlog"
	"github.com/streamkeep/pgcdc/internal/transform"
	"github.com/streamkeep/pgcdc/pkg/config"
	"github.com/streamkeep/pgcdc/pkg/event"
	pg "github.com/streamkeep/pgcdc/pkg/pgx"
	"github.com/streamkeep/pgcdc/pkg/schemacache"
)

// schemaReplayReadTimeout is the per-record read timeout spec.md §5
// specifies for the schema-replay catch-up step.
const schemaReplayReadTimeout = 100 * time.Millisecond

const bookkeepingPoolName = "sink"

// Engine is pg-sink's SinkEngine (spec.md §4.5).
type Engine struct {
	cfg       *config.Sink
	partition streamlog.Partition
	pools     *pg.PoolManager
	cache     *schemacache.Cache
	hook      transform.Hook
	loop      *control.Loop
	metrics   *control.Metrics
	counters  *control.ByteCounters
	log       *zap.Logger
}

// New builds a SinkEngine. cache is shared with the caller so a
// transform.Hook built against the same SchemaResolver sees relation
// names as the engine learns them from the stream (the hook is built
// once, ahead of any relation being known).
func New(cfg *config.Sink, partition streamlog.Partition, cache *schemacache.Cache, hook transform.Hook, loop *control.Loop, metrics *control.Metrics, counters *control.ByteCounters, log *zap.Logger) *Engine {
	if hook == nil {
		hook = transform.Identity
	}
	if cache == nil {
		cache = schemacache.New()
	}
	return &Engine{
		cfg:       cfg,
		partition: partition,
		pools:     pg.NewPoolManager(),
		cache:     cache,
		hook:      hook,
		loop:      loop,
		metrics:   metrics,
		counters:  counters,
		log:       log,
	}
}

// Run performs the spec.md §4.5 startup sequence once, then the
// main consume loop until ctx is done or shutdown is requested.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.pools.Add(ctx, pg.Pool{Name: bookkeepingPoolName, ConnString: e.cfg.URL}, true); err != nil {
		return errkind.Wrap(errkind.Config, fmt.Errorf("sink: connect: %w", err))
	}
	defer e.pools.Close()

	pool, err := e.pools.Active()
	if err != nil {
		return errkind.Wrap(errkind.Config, err)
	}

	if err := e.ensureBookkeeping(ctx, pool); err != nil {
		return errkind.Wrap(errkind.Config, fmt.Errorf("sink: ensure bookkeeping: %w", err))
	}

	resumeOffset, err := e.readResumeOffset(ctx, pool)
	if err != nil {
		return errkind.Wrap(errkind.Config, fmt.Errorf("sink: read resume offset: %w", err))
	}
	e.log.Info("sink: starting", zap.Int64("resume_offset", resumeOffset))

	if resumeOffset > 0 {
		if err := e.replaySchema(ctx, resumeOffset); err != nil {
			return fmt.Errorf("sink: schema replay: %w", err)
		}
	}

	return e.consumeLoop(ctx, pool, resumeOffset)
}

func (e *Engine) ensureBookkeeping(ctx context.Context, pool pg.Conn) error {
	if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS fluvio"); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := pool.Exec(ctx, "CREATE TABLE IF NOT EXISTS fluvio.offset (id INT8 PRIMARY KEY, current_offset INT8 NOT NULL)"); err != nil {
		return fmt.Errorf("create offset table: %w", err)
	}
	return nil
}

// readResumeOffset returns the persisted resume offset, inserting the
// bookkeeping row with offset 0 the first time the sink starts.
func (e *Engine) readResumeOffset(ctx context.Context, pool pg.Conn) (int64, error) {
	var offset int64
	err := pool.QueryRow(ctx, "SELECT current_offset FROM fluvio.offset WHERE id = 1").Scan(&offset)
	if err == nil {
		return offset, nil
	}
	if _, insErr := pool.Exec(ctx, "INSERT INTO fluvio.offset (id, current_offset) VALUES (1, 0)"); insErr != nil {
		return 0, fmt.Errorf("seed offset row: %w", insErr)
	}
	return 0, nil
}

// replaySchema rebuilds the SchemaCache by reading the stream from 0,
// applying only Relation events, stopping once a record's offset
// reaches resumeOffset. A short per-record read timeout detects the
// stream already being caught up, per spec.md §4.5 step 4 / §5.
func (e *Engine) replaySchema(ctx context.Context, resumeOffset int64) error {
	records, err := e.partition.ReadFrom(ctx, 0)
	if err != nil {
		return fmt.Errorf("read stream from 0: %w", err)
	}

	for {
		select {
		case rec, ok := <-records:
			if !ok {
				return nil
			}
			e.counters.AddInbound(len(rec.Value))
			var ev event.ReplicationEvent
			if err := json.Unmarshal(rec.Value, &ev); err != nil {
				e.log.Warn("sink: schema replay: malformed record, skipping", zap.Int64("offset", rec.Offset), zap.Error(err))
			} else if rel, ok := ev.Message.(event.Relation); ok {
				e.cache.Update(rel.RelationBody)
			}
			if rec.Offset >= resumeOffset {
				return nil
			}
		case <-time.After(schemaReplayReadTimeout):
			e.log.Info("sink: schema replay: caught up to stream tail before resume offset, proceeding")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// consumeLoop reads the stream from resumeOffset+1 and applies each
// record to the sink database in offset order, one record at a time.
func (e *Engine) consumeLoop(ctx context.Context, pool pg.Conn, resumeOffset int64) error {
	records, err := e.partition.ReadFrom(ctx, resumeOffset+1)
	if err != nil {
		return fmt.Errorf("read stream from %d: %w", resumeOffset+1, err)
	}

	for {
		select {
		case rec, ok := <-records:
			if !ok {
				return nil
			}
			if err := e.applyRecord(ctx, pool, rec); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}

		if e.loop.ShuttingDown() {
			return nil
		}
	}
}

func (e *Engine) applyRecord(ctx context.Context, pool pg.Conn, rec streamlog.Record) error {
	e.counters.AddInbound(len(rec.Value))

	var ev event.ReplicationEvent
	if err := json.Unmarshal(rec.Value, &ev); err != nil {
		e.log.Error("sink: malformed record, dropping", zap.Int64("offset", rec.Offset), zap.Error(err))
		return e.advanceOffset(ctx, pool, rec.Offset)
	}

	derived, err := e.hook(ev)
	if err != nil {
		e.log.Error("sink: transform hook failed, dropping record", zap.Int64("offset", rec.Offset), zap.Error(err))
		return e.advanceOffset(ctx, pool, rec.Offset)
	}

	var stmts []string
	for _, d := range derived {
		stmts = append(stmts, e.translate(d)...)
	}
	stmts = append(stmts, fmt.Sprintf("UPDATE fluvio.offset SET current_offset = %d WHERE id = 1", rec.Offset))

	return e.execBatchWithRetry(ctx, pool, stmts, rec.Offset)
}

// advanceOffset commits just the offset bookkeeping update, used when
// a record is dropped before translation (malformed JSON or hook
// error) so the sink never reprocesses it on restart. Events dropped
// for a missing schema still reach the offset update through
// applyRecord's normal batch.
func (e *Engine) advanceOffset(ctx context.Context, pool pg.Conn, offset int64) error {
	stmt := fmt.Sprintf("UPDATE fluvio.offset SET current_offset = %d WHERE id = 1", offset)
	return e.execBatchWithRetry(ctx, pool, []string{stmt}, offset)
}

// execBatchWithRetry executes stmts as one semicolon-joined round trip
// (spec.md §4.5: "Execute the concatenation as a single batch"; a
// multi-statement simple-query string is Postgres's own implicit
// transaction, so the offset update commits atomically with the DML).
// On failure it retries with adaptive backoff and does not advance.
func (e *Engine) execBatchWithRetry(ctx context.Context, pool pg.Conn, stmts []string, offset int64) error {
	if len(stmts) == 0 {
		return nil
	}
	batch := strings.Join(stmts, "; ")

	bo := control.NewBackoff()
	for {
		if _, err := pool.Exec(ctx, batch); err == nil {
			e.recordOffsetLag(ctx, offset)
			return nil
		} else {
			e.metrics.ErrorsByKind.WithLabelValues("sink", errkind.PostgresTransient.String()).Inc()
			e.log.Warn("sink: batch execute failed, retrying", zap.Int64("offset", offset), zap.Error(err))
		}
		if !e.sleepBackoff(ctx, bo) {
			return ctx.Err()
		}
	}
}

// recordOffsetLag sets OffsetLag to the gap between the stream's last
// produced offset and offset, the resume offset this batch just
// persisted. Errors reading the stream tail leave the gauge at its
// last value rather than reporting a false zero.
func (e *Engine) recordOffsetLag(ctx context.Context, offset int64) {
	lastOffset, exists, err := e.partition.LastOffset(ctx)
	if err != nil || !exists {
		return
	}
	if lag := lastOffset - offset; lag > 0 {
		e.metrics.OffsetLag.Set(float64(lag))
	} else {
		e.metrics.OffsetLag.Set(0)
	}
}

func (e *Engine) sleepBackoff(ctx context.Context, bo interface{ NextBackOff() time.Duration }) bool {
	d := bo.NextBackOff()
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// translate converts one event into zero or more SQL statements per
// spec.md §4.5's translation rules, updating the SchemaCache as a
// side effect of Relation events.
func (e *Engine) translate(ev event.ReplicationEvent) []string {
	switch m := ev.Message.(type) {
	case event.Relation:
		old, known := e.cache.Get(m.RelID)
		e.cache.Update(m.RelationBody)
		if !known {
			return []string{TranslateCreate(m.RelationBody)}
		}
		return TranslateAlter(old, m.RelationBody)

	case event.Insert:
		rel, ok := e.cache.Get(m.RelID)
		if !ok {
			e.logMissingSchema(m.RelID)
			return nil
		}
		if stmt := TranslateInsert(rel, m.Tuple); stmt != "" {
			e.metrics.ProcessedEvents.WithLabelValues("sink", "insert").Inc()
			return []string{stmt}
		}
		return nil

	case event.Update:
		rel, ok := e.cache.Get(m.RelID)
		if !ok {
			e.logMissingSchema(m.RelID)
			return nil
		}
		filter, ambiguous := m.Filter()
		if ambiguous {
			e.log.Warn("sink: update has both old_tuple and key_tuple, key_tuple wins", zap.Uint32("rel_id", m.RelID))
		}
		if filter == nil {
			e.log.Error("sink: update with no old_tuple or key_tuple, dropping", zap.Uint32("rel_id", m.RelID))
			return nil
		}
		if stmt := TranslateUpdate(rel, m.NewTuple, *filter); stmt != "" {
			e.metrics.ProcessedEvents.WithLabelValues("sink", "update").Inc()
			return []string{stmt}
		}
		return nil

	case event.Delete:
		rel, ok := e.cache.Get(m.RelID)
		if !ok {
			e.logMissingSchema(m.RelID)
			return nil
		}
		filter, ambiguous := m.Filter()
		if ambiguous {
			e.log.Warn("sink: delete has both old_tuple and key_tuple, key_tuple wins", zap.Uint32("rel_id", m.RelID))
		}
		if filter == nil {
			e.log.Error("sink: delete with no old_tuple or key_tuple, dropping", zap.Uint32("rel_id", m.RelID))
			return nil
		}
		if stmt := TranslateDelete(rel, *filter); stmt != "" {
			e.metrics.ProcessedEvents.WithLabelValues("sink", "delete").Inc()
			return []string{stmt}
		}
		return nil

	case event.Truncate:
		var rels []event.RelationBody
		for _, relID := range m.RelIDs {
			if rel, ok := e.cache.Get(relID); ok {
				rels = append(rels, rel)
			} else {
				e.logMissingSchema(relID)
			}
		}
		if stmt := TranslateTruncate(rels, m); stmt != "" {
			e.metrics.ProcessedEvents.WithLabelValues("sink", "truncate").Inc()
			return []string{stmt}
		}
		return nil

	default:
		// Begin, Commit, Origin, Type: informational, no SQL.
		return nil
	}
}

func (e *Engine) logMissingSchema(relID uint32) {
	e.metrics.ErrorsByKind.WithLabelValues("sink", errkind.MissingSchema.String()).Inc()
	e.log.Warn("sink: no cached relation for rel_id, dropping event", zap.Uint32("rel_id", relID))
}
