package transform

import (
	"testing"

	"github.com/streamkeep/pgcdc/pkg/event"
	"github.com/streamkeep/pgcdc/pkg/schemacache"
	"github.com/stretchr/testify/require"
)

func TestIdentityPassesThrough(t *testing.T) {
	e := event.ReplicationEvent{Message: event.Insert{RelID: 1}}
	out, err := Identity(e)
	require.NoError(t, err)
	require.Equal(t, []event.ReplicationEvent{e}, out)
}

func TestChainFeedsOutputsForward(t *testing.T) {
	double := func(e event.ReplicationEvent) ([]event.ReplicationEvent, error) {
		return []event.ReplicationEvent{e, e}, nil
	}
	chained := Chain(double, double)
	out, err := chained(event.ReplicationEvent{Message: event.Begin{}})
	require.NoError(t, err)
	require.Len(t, out, 4)
}

func TestChainEmptyIsIdentity(t *testing.T) {
	e := event.ReplicationEvent{Message: event.Begin{}}
	out, err := Chain()(e)
	require.NoError(t, err)
	require.Equal(t, []event.ReplicationEvent{e}, out)
}

func newSchemaWithNames(t uint32, ns, name string, cols ...event.Column) *schemacache.Cache {
	c := schemacache.New()
	c.Update(event.RelationBody{RelID: t, Namespace: ns, Name: name, Columns: cols})
	return c
}

func TestFilterExcludesMatchingTable(t *testing.T) {
	cache := newSchemaWithNames(1, "public", "secrets")
	reg := NewRegistry()
	reg.RegisterBuiltins()
	hook, err := reg.Build([]Config{{Type: "filter", Params: map[string]interface{}{
		"exclude_tables": []interface{}{"public.secrets"},
	}}}, Deps{Schema: cache})
	require.NoError(t, err)

	out, err := hook(event.ReplicationEvent{Message: event.Insert{RelID: 1}})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestFilterIncludeListOnlyPassesMatches(t *testing.T) {
	cache := newSchemaWithNames(1, "public", "names")
	reg := NewRegistry()
	reg.RegisterBuiltins()
	hook, err := reg.Build([]Config{{Type: "filter", Params: map[string]interface{}{
		"include_tables": []interface{}{"public.other"},
	}}}, Deps{Schema: cache})
	require.NoError(t, err)

	out, err := hook(event.ReplicationEvent{Message: event.Insert{RelID: 1}})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestFilterPassesEventsWithNoTableIdentity(t *testing.T) {
	cache := schemacache.New()
	reg := NewRegistry()
	reg.RegisterBuiltins()
	hook, err := reg.Build([]Config{{Type: "filter", Params: map[string]interface{}{
		"exclude_tables": []interface{}{"public.secrets"},
	}}}, Deps{Schema: cache})
	require.NoError(t, err)

	out, err := hook(event.ReplicationEvent{Message: event.Begin{}})
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestExtractKeepsOnlyNamedColumns(t *testing.T) {
	cache := newSchemaWithNames(1, "public", "names",
		event.Column{Name: "id"}, event.Column{Name: "email"}, event.Column{Name: "name"})
	reg := NewRegistry()
	reg.RegisterBuiltins()
	hook, err := reg.Build([]Config{{Type: "extract", Params: map[string]interface{}{
		"columns": []interface{}{"id", "name"},
	}}}, Deps{Schema: cache})
	require.NoError(t, err)

	out, err := hook(event.ReplicationEvent{Message: event.Insert{
		RelID: 1,
		Tuple: event.Tuple{event.Int4{V: 1}, event.String{V: "secret@example.com"}, event.String{V: "Ada"}},
	}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	ins := out[0].Message.(event.Insert)
	require.Equal(t, event.Tuple{event.Int4{V: 1}, event.String{V: "Ada"}}, ins.Tuple)
}

func TestReplaceAppliesRegexToStringCells(t *testing.T) {
	cache := schemacache.New()
	reg := NewRegistry()
	reg.RegisterBuiltins()
	hook, err := reg.Build([]Config{{Type: "replace", Params: map[string]interface{}{
		"regex": []interface{}{
			map[string]interface{}{"pattern": "^Fluvio_", "replace": "renamed_"},
		},
	}}}, Deps{Schema: cache})
	require.NoError(t, err)

	out, err := hook(event.ReplicationEvent{Message: event.Insert{
		Tuple: event.Tuple{event.String{V: "Fluvio_1"}, event.Int4{V: 7}},
	}})
	require.NoError(t, err)
	ins := out[0].Message.(event.Insert)
	require.Equal(t, event.String{V: "renamed_1"}, ins.Tuple[0])
	require.Equal(t, event.Int4{V: 7}, ins.Tuple[1])
}

func TestBuildUnknownHookTypeErrors(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterBuiltins()
	_, err := reg.Build([]Config{{Type: "bogus"}}, Deps{Schema: schemacache.New()})
	require.Error(t, err)
}
