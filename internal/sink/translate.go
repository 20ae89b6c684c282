// Package sink translates ReplicationEvents into SQL text applied to
// the destination database. Translation is grounded on the original
// fluvio-connectors Postgres sink's to_table_create/to_table_alter/
// to_table_insert/to_update/to_delete/to_table_trucate functions,
// reimplemented idiomatically: an OID -> Postgres type-name table
// replaces postgres_types::Type::from_oid.
package sink

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/streamkeep/pgcdc/pkg/event"
)

var oidTypeNames = map[uint32]string{
	pgtype.BoolOID:    "boolean",
	pgtype.QCharOID:   "\"char\"",
	pgtype.Int2OID:    "smallint",
	pgtype.Int4OID:    "integer",
	pgtype.OIDOID:     "oid",
	pgtype.Int8OID:    "bigint",
	pgtype.Float4OID:  "real",
	pgtype.Float8OID:  "double precision",
	pgtype.TextOID:    "text",
	pgtype.VarcharOID: "varchar",
	pgtype.BPCharOID:  "bpchar",
	pgtype.NameOID:    "name",
}

// pgTypeName returns the CREATE/ALTER-TABLE spelling for a column's
// type OID, falling back to "text" for anything not in the table so
// translation never produces an invalid statement.
func pgTypeName(oid uint32) string {
	if name, ok := oidTypeNames[oid]; ok {
		return name
	}
	return "text"
}

func qualifiedName(namespace, name string) string {
	return pgx.Identifier{namespace, name}.Sanitize()
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// literal renders one cell as SQL text per spec.md §4.5: booleans and
// numerics render bare, strings are single-quoted, and anything else
// (Null, UnchangedToast, RawText, or a failed conversion) is skipped
// from the statement rather than emitted as malformed SQL.
func literal(td event.TupleData) (string, bool) {
	switch v := td.(type) {
	case event.Bool:
		return strconv.FormatBool(v.V), true
	case event.Char:
		return strconv.Itoa(int(v.V)), true
	case event.Int2:
		return strconv.FormatInt(int64(v.V), 10), true
	case event.Int4:
		return strconv.FormatInt(int64(v.V), 10), true
	case event.Oid:
		return strconv.FormatUint(uint64(v.V), 10), true
	case event.Int8:
		return strconv.FormatInt(v.V, 10), true
	case event.Float4:
		return strconv.FormatFloat(float64(v.V), 'g', -1, 32), true
	case event.Float8:
		return strconv.FormatFloat(v.V, 'g', -1, 64), true
	case event.String:
		return "'" + strings.ReplaceAll(v.V, "'", "''") + "'", true
	default:
		return "", false
	}
}

// TranslateCreate emits CREATE TABLE for a Relation with no cached
// prior version.
func TranslateCreate(rel event.RelationBody) string {
	var cols, keys []string
	for _, c := range rel.Columns {
		cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(c.Name), pgTypeName(c.TypeID)))
		if c.IsKey() {
			keys = append(keys, quoteIdent(c.Name))
		}
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s", qualifiedName(rel.Namespace, rel.Name), strings.Join(cols, ", "))
	if len(keys) > 0 {
		stmt += fmt.Sprintf(", PRIMARY KEY(%s)", strings.Join(keys, ", "))
	}
	return stmt + ")"
}

// TranslateAlter compares old and new Relation bodies for the same
// rel_id and emits the minimal set of ALTER/RENAME statements per
// spec.md §4.5's translation rules.
func TranslateAlter(old, new event.RelationBody) []string {
	var stmts []string
	oldTable := qualifiedName(old.Namespace, old.Name)

	if new.Name != old.Name || new.Namespace != old.Namespace {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", oldTable, quoteIdent(new.Name)))
		oldTable = qualifiedName(new.Namespace, new.Name)
	}

	switch {
	case len(new.Columns) == len(old.Columns):
		for i, nc := range new.Columns {
			oc := old.Columns[i]
			if nc.Name != oc.Name {
				stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
					oldTable, quoteIdent(oc.Name), quoteIdent(nc.Name)))
			}
			if nc.TypeID != oc.TypeID {
				stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s",
					oldTable, quoteIdent(nc.Name), pgTypeName(nc.TypeID)))
			}
		}
	case len(new.Columns) > len(old.Columns):
		oldNames := columnNameSet(old.Columns)
		for _, nc := range new.Columns {
			if !oldNames[nc.Name] {
				stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
					oldTable, quoteIdent(nc.Name), pgTypeName(nc.TypeID)))
			}
		}
	default:
		newNames := columnNameSet(new.Columns)
		for _, oc := range old.Columns {
			if !newNames[oc.Name] {
				stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s",
					oldTable, quoteIdent(oc.Name)))
			}
		}
	}
	return stmts
}

func columnNameSet(cols []event.Column) map[string]bool {
	out := make(map[string]bool, len(cols))
	for _, c := range cols {
		out[c.Name] = true
	}
	return out
}

// TranslateInsert emits INSERT INTO <ns>.<name> (<cols>) VALUES
// (<literals>). Cells that fail literal formatting are skipped
// (column and value both omitted) rather than producing malformed SQL.
func TranslateInsert(rel event.RelationBody, tuple event.Tuple) string {
	var cols, vals []string
	for i, cell := range tuple {
		if i >= len(rel.Columns) {
			break
		}
		v, ok := literal(cell)
		if !ok {
			continue
		}
		cols = append(cols, quoteIdent(rel.Columns[i].Name))
		vals = append(vals, v)
	}
	if len(cols) == 0 {
		return ""
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qualifiedName(rel.Namespace, rel.Name), strings.Join(cols, ", "), strings.Join(vals, ", "))
}

// TranslateUpdate emits UPDATE ... SET ... WHERE .... filter is the
// key_tuple if present else the old_tuple, per Update.Filter.
func TranslateUpdate(rel event.RelationBody, newTuple event.Tuple, filter event.Tuple) string {
	var sets []string
	for i, cell := range newTuple {
		if i >= len(rel.Columns) {
			break
		}
		v, ok := literal(cell)
		if !ok {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s=%s", quoteIdent(rel.Columns[i].Name), v))
	}
	where, ok := whereClause(rel, filter)
	if !ok || len(sets) == 0 {
		return ""
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		qualifiedName(rel.Namespace, rel.Name), strings.Join(sets, ", "), where)
}

// TranslateDelete emits DELETE FROM ... WHERE ....
func TranslateDelete(rel event.RelationBody, filter event.Tuple) string {
	where, ok := whereClause(rel, filter)
	if !ok {
		return ""
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s", qualifiedName(rel.Namespace, rel.Name), where)
}

func whereClause(rel event.RelationBody, filter event.Tuple) (string, bool) {
	var clauses []string
	for i, cell := range filter {
		if i >= len(rel.Columns) {
			break
		}
		v, ok := literal(cell)
		if !ok {
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s=%s", quoteIdent(rel.Columns[i].Name), v))
	}
	if len(clauses) == 0 {
		return "", false
	}
	return strings.Join(clauses, " AND "), true
}

// TranslateTruncate emits TRUNCATE <names> with CASCADE/RESTART
// IDENTITY per the Options bit rule.
func TranslateTruncate(rels []event.RelationBody, t event.Truncate) string {
	if len(rels) == 0 {
		return ""
	}
	names := make([]string, len(rels))
	for i, r := range rels {
		names[i] = qualifiedName(r.Namespace, r.Name)
	}
	stmt := fmt.Sprintf("TRUNCATE %s", strings.Join(names, ", "))
	if t.Cascade() {
		stmt += " CASCADE"
	} else if t.RestartIdentity() {
		stmt += " RESTART IDENTITY"
	}
	return stmt
}
