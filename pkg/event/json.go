package event

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// wire representation of a ReplicationEvent: wal_start, wal_end and
// timestamp at the top level, and the message as a nested "message"
// object whose variant fields sit alongside its own "type" tag.
type wireEvent struct {
	WALStart  LSN             `json:"wal_start"`
	WALEnd    LSN             `json:"wal_end"`
	Timestamp int64           `json:"timestamp"`
	Message   json.RawMessage `json:"message"`
}

func (e ReplicationEvent) MarshalJSON() ([]byte, error) {
	msgJSON, err := marshalMessage(e.Message)
	if err != nil {
		return nil, fmt.Errorf("event: marshal message: %w", err)
	}
	return json.Marshal(wireEvent{
		WALStart:  e.WALStart,
		WALEnd:    e.WALEnd,
		Timestamp: e.Timestamp,
		Message:   msgJSON,
	})
}

func (e *ReplicationEvent) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("event: unmarshal envelope: %w", err)
	}
	msg, err := unmarshalMessage(w.Message)
	if err != nil {
		return fmt.Errorf("event: unmarshal message: %w", err)
	}
	e.WALStart = w.WALStart
	e.WALEnd = w.WALEnd
	e.Timestamp = w.Timestamp
	e.Message = msg
	return nil
}

func (lsn LSN) MarshalJSON() ([]byte, error) {
	return json.Marshal(lsn.String())
}

func (lsn *LSN) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseLSN(s)
	if err != nil {
		return err
	}
	*lsn = parsed
	return nil
}

// marshalMessage injects a "type" discriminator alongside the variant's
// own fields, keeping each concrete struct free of any tag field.
func marshalMessage(m Message) (json.RawMessage, error) {
	if m == nil {
		return nil, fmt.Errorf("event: nil message")
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	typeJSON, err := json.Marshal(m.Type())
	if err != nil {
		return nil, err
	}
	fields["type"] = typeJSON
	return json.Marshal(fields)
}

func unmarshalMessage(raw json.RawMessage) (Message, error) {
	var tagged struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return nil, err
	}

	var (
		msg Message
		err error
	)
	switch tagged.Type {
	case "begin":
		var v Begin
		err = json.Unmarshal(raw, &v)
		msg = v
	case "commit":
		var v Commit
		err = json.Unmarshal(raw, &v)
		msg = v
	case "origin":
		var v Origin
		err = json.Unmarshal(raw, &v)
		msg = v
	case "relation":
		var v Relation
		err = json.Unmarshal(raw, &v)
		msg = v
	case "type":
		var v TypeMessage
		err = json.Unmarshal(raw, &v)
		msg = v
	case "insert":
		var v Insert
		err = json.Unmarshal(raw, &v)
		msg = v
	case "update":
		var v Update
		err = json.Unmarshal(raw, &v)
		msg = v
	case "delete":
		var v Delete
		err = json.Unmarshal(raw, &v)
		msg = v
	case "truncate":
		var v Truncate
		err = json.Unmarshal(raw, &v)
		msg = v
	default:
		return nil, fmt.Errorf("event: %w: unknown message type %q", ErrUnexpectedMessage, tagged.Type)
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ErrUnexpectedMessage is returned when a wire tag doesn't match any
// known LogicalReplicationMessage variant.
var ErrUnexpectedMessage = fmt.Errorf("unexpected message tag")

// tupleData JSON form: {"k": "<kind>"} for the two valueless variants,
// {"k": "<kind>", "v": <value>} otherwise. RawText's value is base64,
// which encoding/json already does for []byte.

type wireTupleData struct {
	Kind  string          `json:"k"`
	Value json.RawMessage `json:"v,omitempty"`
}

func (t Tuple) MarshalJSON() ([]byte, error) {
	out := make([]wireTupleData, len(t))
	for i, cell := range t {
		w, err := marshalTupleData(cell)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return json.Marshal(out)
}

func (t *Tuple) UnmarshalJSON(data []byte) error {
	var raw []wireTupleData
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cells := make(Tuple, len(raw))
	for i, w := range raw {
		cell, err := unmarshalTupleData(w)
		if err != nil {
			return err
		}
		cells[i] = cell
	}
	*t = cells
	return nil
}

func marshalTupleData(td TupleData) (wireTupleData, error) {
	kind := td.tupleDataKind()
	switch v := td.(type) {
	case Null:
		return wireTupleData{Kind: kind}, nil
	case UnchangedToast:
		return wireTupleData{Kind: kind}, nil
	case Bool:
		return wireTupleDataValue(kind, v.V)
	case Char:
		return wireTupleDataValue(kind, v.V)
	case Int2:
		return wireTupleDataValue(kind, v.V)
	case Int4:
		return wireTupleDataValue(kind, v.V)
	case Oid:
		return wireTupleDataValue(kind, v.V)
	case Int8:
		return wireTupleDataValue(kind, v.V)
	case Float4:
		return wireTupleDataValue(kind, v.V)
	case Float8:
		return wireTupleDataValue(kind, v.V)
	case String:
		return wireTupleDataValue(kind, v.V)
	case RawText:
		return wireTupleDataValue(kind, base64.StdEncoding.EncodeToString(v.V))
	default:
		return wireTupleData{}, fmt.Errorf("event: unhandled TupleData kind %T", td)
	}
}

func wireTupleDataValue(kind string, v any) (wireTupleData, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return wireTupleData{}, err
	}
	return wireTupleData{Kind: kind, Value: raw}, nil
}

func unmarshalTupleData(w wireTupleData) (TupleData, error) {
	switch w.Kind {
	case "null":
		return Null{}, nil
	case "unchanged_toast":
		return UnchangedToast{}, nil
	case "bool":
		var v bool
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return nil, err
		}
		return Bool{V: v}, nil
	case "char":
		var v int8
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return nil, err
		}
		return Char{V: v}, nil
	case "int2":
		var v int16
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return nil, err
		}
		return Int2{V: v}, nil
	case "int4":
		var v int32
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return nil, err
		}
		return Int4{V: v}, nil
	case "oid":
		var v uint32
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return nil, err
		}
		return Oid{V: v}, nil
	case "int8":
		var v int64
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return nil, err
		}
		return Int8{V: v}, nil
	case "float4":
		var v float32
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return nil, err
		}
		return Float4{V: v}, nil
	case "float8":
		var v float64
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return nil, err
		}
		return Float8{V: v}, nil
	case "string":
		var v string
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return nil, err
		}
		return String{V: v}, nil
	case "rawtext":
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return nil, err
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("event: decode rawtext base64: %w", err)
		}
		return RawText{V: raw}, nil
	default:
		return nil, fmt.Errorf("event: unknown tuple cell kind %q", w.Kind)
	}
}
