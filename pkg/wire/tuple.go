package wire

import (
	"strconv"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/streamkeep/pgcdc/pkg/event"
)

// decodeCell converts one wire-format tuple cell into a TupleData
// variant, per the OID-family table: Text cells are UTF-8 parsed and
// routed to a typed variant by the column's Postgres OID; unknown OIDs
// and failed parses fall back to RawText without failing the row.
//
// cellKind mirrors pglogrepl.TupleDataColumn.DataType: 'n' (null),
// 'u' (unchanged toast), 't' (text).
func (d *Decoder) decodeCell(cellKind byte, raw []byte, typeID uint32) (event.TupleData, error) {
	switch cellKind {
	case 'n':
		return event.Null{}, nil
	case 'u':
		return event.UnchangedToast{}, nil
	case 't':
		return d.decodeText(raw, typeID)
	default:
		return event.RawText{V: raw}, ErrUnexpectedMessage(string(cellKind))
	}
}

func (d *Decoder) decodeText(raw []byte, typeID uint32) (event.TupleData, error) {
	s := string(raw)

	switch typeID {
	case pgtype.BoolOID:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return event.RawText{V: raw}, ErrParseError("bool", err)
		}
		return event.Bool{V: v}, nil

	case pgtype.QCharOID:
		if len(raw) == 0 {
			return event.RawText{V: raw}, ErrParseError("char", errEmptyChar)
		}
		return event.Char{V: int8(raw[0])}, nil

	case pgtype.Int2OID:
		v, err := strconv.ParseInt(s, 10, 16)
		if err != nil {
			return event.RawText{V: raw}, ErrParseError("int2", err)
		}
		return event.Int2{V: int16(v)}, nil

	case pgtype.Int4OID:
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return event.RawText{V: raw}, ErrParseError("int4", err)
		}
		return event.Int4{V: int32(v)}, nil

	case pgtype.OIDOID:
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return event.RawText{V: raw}, ErrParseError("oid", err)
		}
		return event.Oid{V: uint32(v)}, nil

	case pgtype.Int8OID:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return event.RawText{V: raw}, ErrParseError("int8", err)
		}
		return event.Int8{V: v}, nil

	case pgtype.Float4OID:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return event.RawText{V: raw}, ErrParseError("float4", err)
		}
		return event.Float4{V: float32(v)}, nil

	case pgtype.Float8OID:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return event.RawText{V: raw}, ErrParseError("float8", err)
		}
		return event.Float8{V: v}, nil

	case pgtype.VarcharOID, pgtype.TextOID, pgtype.BPCharOID, pgtype.NameOID, pgtype.UnknownOID:
		return event.String{V: s}, nil

	default:
		if d.typeNames[typeID] == "citext" {
			return event.String{V: s}, nil
		}
		return event.RawText{V: raw}, ErrUnrecognizedType(typeID)
	}
}
