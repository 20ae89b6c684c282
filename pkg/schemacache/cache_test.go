package schemacache

import (
	"testing"

	"github.com/streamkeep/pgcdc/pkg/event"
	"github.com/stretchr/testify/require"
)

func TestUpdateThenGet(t *testing.T) {
	c := New()
	_, ok := c.Get(1)
	require.False(t, ok)

	rel := event.RelationBody{RelID: 1, Namespace: "public", Name: "names"}
	c.Update(rel)

	got, ok := c.Get(1)
	require.True(t, ok)
	require.Equal(t, rel, got)
}

func TestUpdateOverwritesByteForByte(t *testing.T) {
	c := New()
	c.Update(event.RelationBody{RelID: 1, Name: "names"})
	c.Update(event.RelationBody{RelID: 1, Name: "renamed"})

	got, ok := c.Get(1)
	require.True(t, ok)
	require.Equal(t, "renamed", got.Name)
}

func TestResetClearsEntries(t *testing.T) {
	c := New()
	c.Update(event.RelationBody{RelID: 1})
	c.Reset()
	require.Equal(t, 0, c.Len())
}

func TestSnapshotIsACopy(t *testing.T) {
	c := New()
	c.Update(event.RelationBody{RelID: 1, Name: "names"})

	snap := c.Snapshot()
	snap[1] = event.RelationBody{RelID: 1, Name: "mutated"}

	got, _ := c.Get(1)
	require.Equal(t, "names", got.Name)
}
