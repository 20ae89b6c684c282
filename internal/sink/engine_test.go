package sink

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/streamkeep/pgcdc/internal/control"
	"github.com/streamkeep/pgcdc/pkg/event"
	"github.com/streamkeep/pgcdc/pkg/schemacache"
)

// newTestEngine builds an Engine with only the fields translate()
// touches. Its Prometheus collectors are built unregistered, since
// control.NewMetrics registers on the default registry and promauto
// panics on a second registration of the same collector.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return &Engine{
		cache: schemacache.New(),
		metrics: &control.Metrics{
			ProcessedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "processed_events_total"}, []string{"process", "message_type"}),
			ErrorsByKind:    prometheus.NewCounterVec(prometheus.CounterOpts{Name: "errors_total"}, []string{"process", "kind"}),
			OffsetLag:       prometheus.NewGauge(prometheus.GaugeOpts{Name: "sink_offset_lag"}),
			LSNLag:          prometheus.NewGauge(prometheus.GaugeOpts{Name: "source_lsn_lag_bytes"}),
		},
		log: zap.NewNop(),
	}
}

func TestTranslateRelationCreateThenAlter(t *testing.T) {
	e := newTestEngine(t)
	rel := event.RelationBody{
		RelID:     1,
		Namespace: "public",
		Name:      "widgets",
		Columns: []event.Column{
			{Flags: 1, Name: "id", TypeID: 23},
			{Flags: 0, Name: "label", TypeID: 25},
		},
	}

	stmts := e.translate(event.ReplicationEvent{Message: event.Relation{RelationBody: rel}})
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "CREATE TABLE")
	assert.Contains(t, stmts[0], "widgets")

	rel.Columns = append(rel.Columns, event.Column{Flags: 0, Name: "qty", TypeID: 23})
	stmts = e.translate(event.ReplicationEvent{Message: event.Relation{RelationBody: rel}})
	require.NotEmpty(t, stmts)
	assert.Contains(t, strings.Join(stmts, ";"), "ALTER TABLE")
}

func TestTranslateInsertDropsOnMissingSchema(t *testing.T) {
	e := newTestEngine(t)

	stmts := e.translate(event.ReplicationEvent{
		Message: event.Insert{RelID: 99, Tuple: event.Tuple{}},
	})
	assert.Nil(t, stmts)
}

func TestTranslateInsertKnownSchema(t *testing.T) {
	e := newTestEngine(t)
	rel := event.RelationBody{
		RelID:     1,
		Namespace: "public",
		Name:      "widgets",
		Columns: []event.Column{
			{Flags: 1, Name: "id", TypeID: 23},
		},
	}
	e.cache.Update(rel)

	stmts := e.translate(event.ReplicationEvent{
		Message: event.Insert{
			RelID: 1,
			Tuple: event.Tuple{event.Int4{V: 7}},
		},
	})
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "INSERT INTO")
}

func TestTranslateUpdateWithoutFilterDrops(t *testing.T) {
	e := newTestEngine(t)
	rel := event.RelationBody{RelID: 1, Namespace: "public", Name: "widgets"}
	e.cache.Update(rel)

	stmts := e.translate(event.ReplicationEvent{
		Message: event.Update{RelID: 1, NewTuple: event.Tuple{}},
	})
	assert.Nil(t, stmts)
}

func TestTranslateTruncateSkipsUnknownRelations(t *testing.T) {
	e := newTestEngine(t)
	rel := event.RelationBody{RelID: 1, Namespace: "public", Name: "widgets"}
	e.cache.Update(rel)

	stmts := e.translate(event.ReplicationEvent{
		Message: event.Truncate{RelIDs: []uint32{1, 2}},
	})
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "TRUNCATE")
	assert.Contains(t, stmts[0], "widgets")
}

func TestTranslateBeginCommitAreNoOps(t *testing.T) {
	e := newTestEngine(t)
	assert.Nil(t, e.translate(event.ReplicationEvent{Message: event.Begin{}}))
	assert.Nil(t, e.translate(event.ReplicationEvent{Message: event.Commit{}}))
}
