// Package source implements pg-source: it opens a Postgres logical
// replication slot, decodes the wire stream via pkg/wire, and produces
// a durable, ordered sequence of JSON ReplicationEvents onto a stream
// partition. Grounded on pkg/pglogrepl/stream.go's Stream/
// setupReplication/streamEvents/ensurePublication/ensureSlot and
// pkg/pglogrepl/main.go's keepalive/reconnect handling, reworked to
// produce the spec's own event model instead of a Debezium envelope.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
	"go.uber.org/zap"

	"github.com/streamkeep/pgcdc/internal/control"
	"github.com/streamkeep/pgcdc/internal/errkind"
	"github.com/streamkeep/pgcdc/internal/streamlog"
	"github.com/streamkeep/pgcdc/pkg/config"
	"github.com/streamkeep/pgcdc/pkg/event"
	"github.com/streamkeep/pgcdc/pkg/schemacache"
	"github.com/streamkeep/pgcdc/pkg/wire"
)

// standbyUpdateInterval is the cadence of unsolicited standby status
// updates, matching pkg/pglogrepl/pglogrepl.go's
// defaultStandbyUpdateInterval. A PrimaryKeepalive with reply
// requested is always answered immediately regardless of this timer.
const standbyUpdateInterval = 10 * time.Second

// Engine is pg-source's SourceEngine (spec.md §4.3).
type Engine struct {
	cfg       *config.Source
	partition streamlog.Partition
	cache     *schemacache.Cache
	loop      *control.Loop
	metrics   *control.Metrics
	counters  *control.ByteCounters
	log       *zap.Logger

	lastLSN event.LSN
}

func New(cfg *config.Source, partition streamlog.Partition, loop *control.Loop, metrics *control.Metrics, counters *control.ByteCounters, log *zap.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		partition: partition,
		cache:     schemacache.New(),
		loop:      loop,
		metrics:   metrics,
		counters:  counters,
		log:       log,
	}
}

// Run drives the reconnect loop until ctx is done or a shutdown is
// requested: resolve the resume LSN from the stream tail once, then
// repeatedly open a replication session, running until it errors, and
// backing off before retrying with the highest LSN acknowledged so far.
func (e *Engine) Run(ctx context.Context) error {
	resumeLSN, err := e.resolveResumeLSN(ctx)
	if err != nil {
		return errkind.Wrap(errkind.Config, fmt.Errorf("source: resolve resume lsn: %w", err))
	}
	e.lastLSN = resumeLSN
	e.log.Info("source: starting", zap.String("resume_lsn", resumeLSN.String()))

	bo := control.NewBackoff()
	for {
		if ctx.Err() != nil || e.loop.ShuttingDown() {
			return nil
		}

		conn, err := e.connect(ctx)
		if err != nil {
			e.log.Warn("source: connect failed, backing off", zap.Error(err))
			if !sleepBackoff(ctx, bo) {
				return nil
			}
			continue
		}

		// SchemaCache is discarded and rebuilt from the Relation
		// messages Postgres re-emits at the start of a new session.
		e.cache.Reset()

		sessionErr := e.runSession(ctx, conn)
		conn.Close(ctx)

		if sessionErr == nil {
			return nil
		}
		e.log.Warn("source: replication session ended, reconnecting", zap.Error(sessionErr))
		if !sleepBackoff(ctx, bo) {
			return nil
		}
		bo.Reset()
	}
}

func sleepBackoff(ctx context.Context, bo interface{ NextBackOff() time.Duration }) bool {
	d := bo.NextBackOff()
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// resolveResumeLSN reads the last record produced to the stream, if
// any, and returns its wal_end as the LSN to resume replication from.
// Supplemental behavior pulled from the original Rust source connector
// (dropped by the distilled spec but present in original_source),
// which reads the stream tail before opening the slot rather than
// trusting Postgres's own confirmed-flush bookkeeping.
func (e *Engine) resolveResumeLSN(ctx context.Context) (event.LSN, error) {
	offset, exists, err := e.partition.LastOffset(ctx)
	if err != nil {
		return 0, fmt.Errorf("read last stream offset: %w", err)
	}
	if !exists {
		return 0, nil
	}

	records, err := e.partition.ReadFrom(ctx, offset)
	if err != nil {
		return 0, fmt.Errorf("read last stream record at offset %d: %w", offset, err)
	}
	select {
	case rec, ok := <-records:
		if !ok {
			return 0, nil
		}
		var ev event.ReplicationEvent
		if err := json.Unmarshal(rec.Value, &ev); err != nil {
			return 0, fmt.Errorf("parse last stream record: %w", err)
		}
		return ev.WALEnd, nil
	case <-time.After(e.cfg.ResumeTimeout()):
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (e *Engine) connect(ctx context.Context) (*pgconn.PgConn, error) {
	conn, err := pgconn.Connect(ctx, e.cfg.URL)
	if err != nil {
		return nil, errkind.Wrap(errkind.PostgresTransient, fmt.Errorf("connect: %w", err))
	}
	if err := e.setupReplication(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return conn, nil
}

// setupReplication ensures the publication/slot exist (unless
// skip_setup) and issues START_REPLICATION from e.lastLSN, per
// spec.md §4.3 steps 2-3.
func (e *Engine) setupReplication(ctx context.Context, conn *pgconn.PgConn) error {
	if !e.cfg.SkipSetup {
		if err := e.ensurePublication(ctx, conn); err != nil {
			return errkind.Wrap(errkind.Config, fmt.Errorf("ensure publication: %w", err))
		}
		if err := e.ensureSlot(ctx, conn); err != nil {
			return errkind.Wrap(errkind.Config, fmt.Errorf("ensure slot: %w", err))
		}
	}

	pluginArgs := []string{
		"proto_version '2'",
		fmt.Sprintf("publication_names '%s'", e.cfg.Publication),
		"messages 'true'",
		"streaming 'true'",
	}

	if err := pglogrepl.StartReplication(ctx, conn, e.cfg.Slot, pglogrepl.LSN(e.lastLSN), pglogrepl.StartReplicationOptions{
		PluginArgs: pluginArgs,
	}); err != nil {
		return errkind.Wrap(errkind.PostgresTransient, fmt.Errorf("start replication: %w", err))
	}
	return nil
}

// ensurePublication creates the publication if it doesn't already
// exist, scoped to cfg.Tables per the table-pattern syntax
// pkg/pglogrepl/stream.go's parsePublicationTables defined: "*"/"*.*"
// for every table, "schema.*" for every table in a schema, or an
// explicit "schema.table" list. Empty Tables means FOR ALL TABLES.
func (e *Engine) ensurePublication(ctx context.Context, conn *pgconn.PgConn) error {
	exists, err := checkExists(ctx, conn, "pg_publication", "pubname", e.cfg.Publication)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	var stmt strings.Builder
	fmt.Fprintf(&stmt, "CREATE PUBLICATION %s", quoteIdentRaw(e.cfg.Publication))

	tp := parsePublicationTables(e.cfg.Tables)
	switch {
	case tp.allTables:
		stmt.WriteString(" FOR ALL TABLES")
	case len(tp.schemas) > 0:
		fmt.Fprintf(&stmt, " FOR TABLES IN SCHEMA %s", strings.Join(tp.schemas, ", "))
	case len(tp.tables) > 0:
		fmt.Fprintf(&stmt, " FOR TABLE %s", strings.Join(tp.tables, ", "))
	default:
		stmt.WriteString(" FOR ALL TABLES")
	}

	if _, err := conn.Exec(ctx, stmt.String()).ReadAll(); err != nil {
		return fmt.Errorf("create publication: %w", err)
	}
	return nil
}

type tablePattern struct {
	allTables bool
	schemas   []string
	tables    []string
}

func parsePublicationTables(patterns []string) tablePattern {
	var tp tablePattern
	for _, p := range patterns {
		if p == "*" || p == "*.*" {
			return tablePattern{allTables: true}
		}
		if idx := strings.LastIndex(p, ".*"); idx > 0 {
			tp.schemas = append(tp.schemas, p[:idx])
			continue
		}
		tp.tables = append(tp.tables, p)
	}
	return tp
}

func (e *Engine) ensureSlot(ctx context.Context, conn *pgconn.PgConn) error {
	exists, err := checkExists(ctx, conn, "pg_replication_slots", "slot_name", e.cfg.Slot)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = pglogrepl.CreateReplicationSlot(ctx, conn, e.cfg.Slot, "pgoutput", pglogrepl.CreateReplicationSlotOptions{Temporary: false})
	if err != nil {
		return fmt.Errorf("create replication slot: %w", err)
	}
	return nil
}

func checkExists(ctx context.Context, conn *pgconn.PgConn, table, column, value string) (bool, error) {
	if table != "pg_publication" && table != "pg_replication_slots" {
		return false, fmt.Errorf("invalid table name %q", table)
	}
	if column != "pubname" && column != "slot_name" {
		return false, fmt.Errorf("invalid column name %q", column)
	}
	q := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = '%s')", table, column, strings.ReplaceAll(value, "'", "''"))
	rows, err := conn.Exec(ctx, q).ReadAll()
	if err != nil {
		return false, fmt.Errorf("check exists: %w", err)
	}
	return len(rows) > 0 && len(rows[0].Rows) > 0 && string(rows[0].Rows[0][0]) == "t", nil
}

func quoteIdentRaw(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// runSession drives one replication connection until it errors or the
// context/shutdown flag tells it to stop. Returns nil only on a clean
// stop; any other return value is a transient error the caller should
// back off and reconnect on.
func (e *Engine) runSession(ctx context.Context, conn *pgconn.PgConn) error {
	decoder := wire.NewDecoder()
	nextStandby := time.Now().Add(standbyUpdateInterval)

	for {
		if ctx.Err() != nil || e.loop.ShuttingDown() {
			return nil
		}

		msgCtx, cancel := context.WithDeadline(ctx, nextStandby)
		msg, err := conn.ReceiveMessage(msgCtx)
		cancel()

		if err != nil {
			if pgconn.Timeout(err) {
				if sendErr := e.sendStandbyStatusUpdate(ctx, conn); sendErr != nil {
					return fmt.Errorf("standby status update: %w", sendErr)
				}
				nextStandby = time.Now().Add(standbyUpdateInterval)
				continue
			}
			return fmt.Errorf("receive message: %w", err)
		}

		copyData, ok := msg.(*pgproto3.CopyData)
		if !ok || len(copyData.Data) == 0 {
			continue
		}
		e.counters.AddInbound(len(copyData.Data))

		switch copyData.Data[0] {
		case pglogrepl.PrimaryKeepaliveMessageByteID:
			pkm, err := pglogrepl.ParsePrimaryKeepaliveMessage(copyData.Data[1:])
			if err != nil {
				e.log.Warn("source: parse keepalive failed", zap.Error(err))
				continue
			}
			if lag := int64(pkm.ServerWALEnd) - int64(e.lastLSN); lag > 0 {
				e.metrics.LSNLag.Set(float64(lag))
			} else {
				e.metrics.LSNLag.Set(0)
			}
			if wire.IsKeepaliveReplyRequested(pkm) {
				if err := e.sendStandbyStatusUpdate(ctx, conn); err != nil {
					return fmt.Errorf("standby status update: %w", err)
				}
				nextStandby = time.Now().Add(standbyUpdateInterval)
			}

		case pglogrepl.XLogDataByteID:
			xld, err := pglogrepl.ParseXLogData(copyData.Data[1:])
			if err != nil {
				e.log.Warn("source: parse xlogdata failed", zap.Error(err))
				continue
			}
			if err := e.handleXLogData(ctx, xld, decoder); err != nil {
				return err
			}
		}
	}
}

// handleXLogData decodes one frame and, if it produced an event,
// produces it to the stream. On Commit, last_lsn only advances after
// that produce succeeds, per spec.md §4.3's at-least-once property.
func (e *Engine) handleXLogData(ctx context.Context, xld pglogrepl.XLogData, decoder *wire.Decoder) error {
	ev, err := decoder.Decode(xld, e.cache)
	if err != nil {
		kind, _ := errkind.As(err)
		if kind != nil {
			e.metrics.ErrorsByKind.WithLabelValues("source", kind.Kind.String()).Inc()
		}
		e.log.Warn("source: decode error", zap.Error(err))
	}
	if ev == nil {
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		e.log.Error("source: marshal event failed, dropping", zap.Error(err))
		return nil
	}

	if err := e.produceWithRetry(ctx, payload); err != nil {
		return fmt.Errorf("produce to stream: %w", err)
	}
	e.counters.AddOutbound(len(payload))
	e.metrics.ProcessedEvents.WithLabelValues("source", ev.Message.Type()).Inc()

	if commit, ok := ev.Message.(event.Commit); ok {
		e.lastLSN = commit.CommitLSN
	}
	return nil
}

// produceWithRetry retries a single produce call with adaptive backoff
// until it succeeds or ctx ends, per spec.md §4.3 "On stream-produce
// failure: do not advance last_lsn; retry with adaptive backoff".
func (e *Engine) produceWithRetry(ctx context.Context, payload []byte) error {
	bo := control.NewBackoff()
	for {
		_, err := e.partition.Produce(ctx, payload)
		if err == nil {
			return nil
		}
		e.metrics.ErrorsByKind.WithLabelValues("source", errkind.StreamTransient.String()).Inc()
		e.log.Warn("source: produce failed, retrying", zap.Error(err))
		if !sleepBackoff(ctx, bo) {
			return ctx.Err()
		}
	}
}

func (e *Engine) sendStandbyStatusUpdate(ctx context.Context, conn *pgconn.PgConn) error {
	lsn := pglogrepl.LSN(e.lastLSN)
	return pglogrepl.SendStandbyStatusUpdate(ctx, conn, pglogrepl.StandbyStatusUpdate{
		WALWritePosition: lsn,
		WALFlushPosition: lsn,
		WALApplyPosition: lsn,
	})
}
