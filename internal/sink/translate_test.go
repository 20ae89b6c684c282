package sink

import (
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/streamkeep/pgcdc/pkg/event"
	"github.com/stretchr/testify/require"
)

func TestTranslateCreateIncludesCompositePrimaryKey(t *testing.T) {
	rel := event.RelationBody{
		Namespace: "public", Name: "names",
		Columns: []event.Column{
			{Name: "id", TypeID: pgtype.Int4OID, Flags: 1},
			{Name: "tenant", TypeID: pgtype.Int4OID, Flags: 1},
			{Name: "name", TypeID: pgtype.TextOID},
		},
	}
	stmt := TranslateCreate(rel)
	require.Equal(t, `CREATE TABLE "public"."names" ("id" integer, "tenant" integer, "name" text, PRIMARY KEY("id", "tenant"))`, stmt)
}

func TestTranslateCreateNoKeyColumns(t *testing.T) {
	rel := event.RelationBody{Namespace: "public", Name: "names", Columns: []event.Column{
		{Name: "name", TypeID: pgtype.TextOID},
	}}
	stmt := TranslateCreate(rel)
	require.Equal(t, `CREATE TABLE "public"."names" ("name" text)`, stmt)
}

func TestTranslateAlterRenamesTable(t *testing.T) {
	old := event.RelationBody{Namespace: "public", Name: "names", Columns: []event.Column{{Name: "id", TypeID: pgtype.Int4OID}}}
	new := event.RelationBody{Namespace: "public", Name: "old_names", Columns: []event.Column{{Name: "id", TypeID: pgtype.Int4OID}}}

	stmts := TranslateAlter(old, new)
	require.Equal(t, []string{`ALTER TABLE "public"."names" RENAME TO "old_names"`}, stmts)
}

func TestTranslateAlterAddsColumn(t *testing.T) {
	old := event.RelationBody{Namespace: "public", Name: "names", Columns: []event.Column{{Name: "id", TypeID: pgtype.Int4OID}}}
	new := event.RelationBody{Namespace: "public", Name: "names", Columns: []event.Column{
		{Name: "id", TypeID: pgtype.Int4OID},
		{Name: "email", TypeID: pgtype.VarcharOID},
	}}

	stmts := TranslateAlter(old, new)
	require.Equal(t, []string{`ALTER TABLE "public"."names" ADD COLUMN "email" varchar`}, stmts)
}

func TestTranslateAlterDropsColumn(t *testing.T) {
	old := event.RelationBody{Namespace: "public", Name: "names", Columns: []event.Column{
		{Name: "id", TypeID: pgtype.Int4OID},
		{Name: "email", TypeID: pgtype.VarcharOID},
	}}
	new := event.RelationBody{Namespace: "public", Name: "names", Columns: []event.Column{
		{Name: "id", TypeID: pgtype.Int4OID},
	}}

	stmts := TranslateAlter(old, new)
	require.Equal(t, []string{`ALTER TABLE "public"."names" DROP COLUMN "email"`}, stmts)
}

func TestTranslateAlterRenamesAndRetypesColumns(t *testing.T) {
	old := event.RelationBody{Namespace: "public", Name: "names", Columns: []event.Column{
		{Name: "name", TypeID: pgtype.TextOID},
	}}
	new := event.RelationBody{Namespace: "public", Name: "names", Columns: []event.Column{
		{Name: "fluvio_id", TypeID: pgtype.Int4OID},
	}}

	stmts := TranslateAlter(old, new)
	require.Equal(t, []string{
		`ALTER TABLE "public"."names" RENAME COLUMN "name" TO "fluvio_id"`,
		`ALTER TABLE "public"."names" ALTER COLUMN "fluvio_id" TYPE integer`,
	}, stmts)
}

func TestTranslateInsertProducesOneStatementWithMatchingArity(t *testing.T) {
	rel := event.RelationBody{Namespace: "public", Name: "names", Columns: []event.Column{
		{Name: "id", TypeID: pgtype.Int4OID},
		{Name: "name", TypeID: pgtype.TextOID},
	}}
	stmt := TranslateInsert(rel, event.Tuple{event.Int4{V: 1}, event.String{V: "Fluvio_1"}})
	require.Equal(t, `INSERT INTO "public"."names" ("id", "name") VALUES (1, 'Fluvio_1')`, stmt)
}

func TestTranslateInsertSkipsUnformattableCells(t *testing.T) {
	rel := event.RelationBody{Namespace: "public", Name: "names", Columns: []event.Column{
		{Name: "id", TypeID: pgtype.Int4OID},
		{Name: "blob", TypeID: 99999},
	}}
	stmt := TranslateInsert(rel, event.Tuple{event.Int4{V: 1}, event.RawText{V: []byte("x")}})
	require.Equal(t, `INSERT INTO "public"."names" ("id") VALUES (1)`, stmt)
}

func TestTranslateInsertEscapesQuotes(t *testing.T) {
	rel := event.RelationBody{Namespace: "public", Name: "names", Columns: []event.Column{{Name: "name", TypeID: pgtype.TextOID}}}
	stmt := TranslateInsert(rel, event.Tuple{event.String{V: "O'Brien"}})
	require.Equal(t, `INSERT INTO "public"."names" ("name") VALUES ('O''Brien')`, stmt)
}

func TestTranslateUpdateUsesFilterColumns(t *testing.T) {
	rel := event.RelationBody{Namespace: "public", Name: "names", Columns: []event.Column{
		{Name: "id", TypeID: pgtype.Int4OID, Flags: 1},
		{Name: "name", TypeID: pgtype.TextOID},
	}}
	stmt := TranslateUpdate(rel,
		event.Tuple{event.Int4{V: 300}, event.String{V: "Fluvio_fluvio_300"}},
		event.Tuple{event.Int4{V: 300}},
	)
	require.Equal(t, `UPDATE "public"."names" SET "id"=300, "name"='Fluvio_fluvio_300' WHERE "id"=300`, stmt)
}

func TestTranslateDelete(t *testing.T) {
	rel := event.RelationBody{Namespace: "public", Name: "names", Columns: []event.Column{{Name: "id", TypeID: pgtype.Int4OID, Flags: 1}}}
	stmt := TranslateDelete(rel, event.Tuple{event.Int4{V: 7}})
	require.Equal(t, `DELETE FROM "public"."names" WHERE "id"=7`, stmt)
}

func TestTranslateTruncateCascade(t *testing.T) {
	rels := []event.RelationBody{{Namespace: "public", Name: "names"}}
	stmt := TranslateTruncate(rels, event.Truncate{Options: 1})
	require.Equal(t, `TRUNCATE "public"."names" CASCADE`, stmt)
}

func TestTranslateTruncateRestartIdentity(t *testing.T) {
	rels := []event.RelationBody{{Namespace: "public", Name: "names"}}
	stmt := TranslateTruncate(rels, event.Truncate{Options: 2})
	require.Equal(t, `TRUNCATE "public"."names" RESTART IDENTITY`, stmt)
}

func TestTranslateTruncateNoSuffixForOtherOptions(t *testing.T) {
	rels := []event.RelationBody{{Namespace: "public", Name: "names"}}
	stmt := TranslateTruncate(rels, event.Truncate{Options: 3})
	require.Equal(t, `TRUNCATE "public"."names"`, stmt)
}

func TestTranslateInsertColumnValueArityMatches(t *testing.T) {
	rel := event.RelationBody{Namespace: "public", Name: "names", Columns: []event.Column{
		{Name: "id", TypeID: pgtype.Int4OID},
		{Name: "name", TypeID: pgtype.TextOID},
	}}
	stmt := TranslateInsert(rel, event.Tuple{event.Int4{V: 1}, event.String{V: "x"}})
	require.Equal(t, 1, strings.Count(stmt, "INSERT INTO"))

	colList := strings.SplitN(strings.SplitN(stmt, "(", 2)[1], ")", 2)[0]
	cols := strings.Count(colList, ",") + 1
	vals := strings.Count(strings.SplitN(stmt, "VALUES (", 2)[1], ",") + 1
	require.Equal(t, cols, vals)
}
