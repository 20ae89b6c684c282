package event

// TupleData is one decoded cell of a row. It is a closed sum: every
// variant below is the only legal implementation, matched with a type
// switch by both the decoder and the sink translator.
type TupleData interface {
	tupleDataKind() string
}

// Tuple is an ordered list of cells, index-aligned with a Relation's
// column list.
type Tuple []TupleData

type Null struct{}

type UnchangedToast struct{}

type Bool struct{ V bool }

type Char struct{ V int8 }

type Int2 struct{ V int16 }

type Int4 struct{ V int32 }

type Oid struct{ V uint32 }

type Int8 struct{ V int64 }

type Float4 struct{ V float32 }

type Float8 struct{ V float64 }

type String struct{ V string }

type RawText struct{ V []byte }

func (Null) tupleDataKind() string           { return "null" }
func (UnchangedToast) tupleDataKind() string { return "unchanged_toast" }
func (Bool) tupleDataKind() string           { return "bool" }
func (Char) tupleDataKind() string           { return "char" }
func (Int2) tupleDataKind() string           { return "int2" }
func (Int4) tupleDataKind() string           { return "int4" }
func (Oid) tupleDataKind() string            { return "oid" }
func (Int8) tupleDataKind() string           { return "int8" }
func (Float4) tupleDataKind() string         { return "float4" }
func (Float8) tupleDataKind() string         { return "float8" }
func (String) tupleDataKind() string         { return "string" }
func (RawText) tupleDataKind() string        { return "rawtext" }
