package wire

import (
	"testing"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/streamkeep/pgcdc/internal/errkind"
	"github.com/streamkeep/pgcdc/pkg/event"
	"github.com/stretchr/testify/require"
)

func TestDecodeTextByOIDFamily(t *testing.T) {
	d := NewDecoder()

	cases := []struct {
		name   string
		typeID uint32
		raw    string
		want   event.TupleData
	}{
		{"bool", pgtype.BoolOID, "t", event.Bool{V: true}},
		{"int2", pgtype.Int2OID, "7", event.Int2{V: 7}},
		{"int4", pgtype.Int4OID, "1", event.Int4{V: 1}},
		{"oid", pgtype.OIDOID, "16420", event.Oid{V: 16420}},
		{"int8", pgtype.Int8OID, "-9", event.Int8{V: -9}},
		{"float4", pgtype.Float4OID, "1.5", event.Float4{V: 1.5}},
		{"float8", pgtype.Float8OID, "2.5", event.Float8{V: 2.5}},
		{"varchar", pgtype.VarcharOID, "Fluvio_1", event.String{V: "Fluvio_1"}},
		{"text", pgtype.TextOID, "hello", event.String{V: "hello"}},
		{"bpchar", pgtype.BPCharOID, "x", event.String{V: "x"}},
		{"name", pgtype.NameOID, "names", event.String{V: "names"}},
		{"unknown-oid-family", pgtype.UnknownOID, "raw", event.String{V: "raw"}},
	}

	for _, tc := range cases {
		got, err := d.decodeText([]byte(tc.raw), tc.typeID)
		require.NoError(t, err, tc.name)
		require.Equal(t, tc.want, got, tc.name)
	}
}

func TestDecodeTextFallsBackToRawTextForUnknownOID(t *testing.T) {
	d := NewDecoder()
	got, err := d.decodeText([]byte("whatever"), 999999)
	require.Error(t, err)
	require.True(t, errkind.Is(err, errkind.Decode))
	require.Equal(t, event.RawText{V: []byte("whatever")}, got)
}

func TestDecodeTextCitextByRegisteredTypeName(t *testing.T) {
	d := NewDecoder()
	d.typeNames[50000] = "citext"
	got, err := d.decodeText([]byte("Mixed"), 50000)
	require.NoError(t, err)
	require.Equal(t, event.String{V: "Mixed"}, got)
}

func TestDecodeTextParseFailureFallsBackToRawText(t *testing.T) {
	d := NewDecoder()
	got, err := d.decodeText([]byte("not-a-number"), pgtype.Int4OID)
	require.Error(t, err)
	require.Equal(t, event.RawText{V: []byte("not-a-number")}, got)
}

func TestDecodeCellNullAndUnchangedToast(t *testing.T) {
	d := NewDecoder()
	n, err := d.decodeCell('n', nil, pgtype.Int4OID)
	require.NoError(t, err)
	require.Equal(t, event.Null{}, n)

	u, err := d.decodeCell('u', nil, pgtype.Int4OID)
	require.NoError(t, err)
	require.Equal(t, event.UnchangedToast{}, u)
}

func TestDecodeTupleMissingCellsBecomeNull(t *testing.T) {
	d := NewDecoder()
	rel := event.RelationBody{Columns: []event.Column{
		{Name: "id", TypeID: pgtype.Int4OID},
		{Name: "name", TypeID: pgtype.TextOID},
	}}
	wire := &pglogrepl.TupleData{Columns: []*pglogrepl.TupleDataColumn{
		{DataType: 't', Data: []byte("1")},
	}}

	tuple, err := d.decodeTuple(wire, rel)
	require.NoError(t, err)
	require.Equal(t, event.Tuple{event.Int4{V: 1}, event.Null{}}, tuple)
}

func TestDecodeTupleExtraCellsIgnored(t *testing.T) {
	d := NewDecoder()
	rel := event.RelationBody{Columns: []event.Column{
		{Name: "id", TypeID: pgtype.Int4OID},
	}}
	wire := &pglogrepl.TupleData{Columns: []*pglogrepl.TupleDataColumn{
		{DataType: 't', Data: []byte("1")},
		{DataType: 't', Data: []byte("extra")},
	}}

	tuple, err := d.decodeTuple(wire, rel)
	require.NoError(t, err)
	require.Equal(t, event.Tuple{event.Int4{V: 1}}, tuple)
}

func TestReplicaIdentityMapping(t *testing.T) {
	require.Equal(t, event.ReplicaIdentityDefault, replicaIdentity('d'))
	require.Equal(t, event.ReplicaIdentityNothing, replicaIdentity('n'))
	require.Equal(t, event.ReplicaIdentityFull, replicaIdentity('f'))
	require.Equal(t, event.ReplicaIdentityIndex, replicaIdentity('i'))
}
