// Package wire turns Postgres logical-replication binary frames into
// the neutral ReplicationEvent/LogicalReplicationMessage types in
// pkg/event. It wraps pglogrepl's wire parser rather than hand-rolling
// one, exactly as the rest of the retrieval pack does.
package wire

import (
	"fmt"

	"github.com/jackc/pglogrepl"
	"github.com/streamkeep/pgcdc/internal/errkind"
	"github.com/streamkeep/pgcdc/pkg/event"
	"github.com/streamkeep/pgcdc/pkg/schemacache"
)

// Decoder holds the small amount of state the pgoutput v2 protocol
// needs across frames: whether we're inside a streamed (in-progress)
// transaction block, and the type-OID -> name table built from Type
// messages (needed to recognize extension types like citext by name).
type Decoder struct {
	inStream  bool
	typeNames map[uint32]string
}

func NewDecoder() *Decoder {
	return &Decoder{typeNames: make(map[uint32]string)}
}

// Decode converts one XLogData frame into a ReplicationEvent. Relation
// frames update cache as a side effect; Insert/Update/Delete consult it
// to resolve per-column OIDs. A non-nil error is always one of the
// kinds documented in pkg/wire/errors.go and is never fatal to the
// stream: the caller logs it and continues.
func (d *Decoder) Decode(xld pglogrepl.XLogData, cache *schemacache.Cache) (*event.ReplicationEvent, error) {
	logicalMsg, err := pglogrepl.ParseV2(xld.WALData, d.inStream)
	if err != nil {
		return nil, errkind.Wrap(errkind.Decode, fmt.Errorf("parse wal data: %w", err))
	}

	msg, warn := d.convert(logicalMsg, cache)
	if msg == nil {
		return nil, warn
	}

	ev := &event.ReplicationEvent{
		WALStart:  event.LSN(xld.WALStart),
		WALEnd:    event.LSN(xld.ServerWALEnd),
		Timestamp: event.PgEpochMicros(xld.ServerTime.UnixMicro()),
		Message:   msg,
	}
	// warn is non-nil only for recoverable per-cell decode problems
	// (unrecognized OID, parse failure); the event is still usable and
	// is returned alongside the warning for the caller to log.
	return ev, warn
}

// IsKeepaliveReplyRequested reports whether the primary is asking for
// an immediate standby status update.
func IsKeepaliveReplyRequested(pkm pglogrepl.PrimaryKeepaliveMessage) bool {
	return pkm.ReplyRequested
}

func (d *Decoder) convert(logicalMsg pglogrepl.Message, cache *schemacache.Cache) (event.Message, error) {
	switch m := logicalMsg.(type) {
	case *pglogrepl.BeginMessageV2:
		return event.Begin{
			FinalLSN:  event.LSN(m.FinalLSN),
			Timestamp: event.PgEpochMicros(m.CommitTime.UnixMicro()),
			Xid:       m.Xid,
		}, nil

	case *pglogrepl.CommitMessageV2:
		return event.Commit{
			Flags:     int8(m.Flags),
			CommitLSN: event.LSN(m.CommitLSN),
			EndLSN:    event.LSN(m.TransactionEndLSN),
			Timestamp: event.PgEpochMicros(m.CommitTime.UnixMicro()),
		}, nil

	case *pglogrepl.OriginMessageV2:
		return event.Origin{CommitLSN: event.LSN(m.CommitLSN), Name: m.Name}, nil

	case *pglogrepl.RelationMessageV2:
		body := event.RelationBody{
			RelID:           m.RelationID,
			Namespace:       m.Namespace,
			Name:            m.RelationName,
			ReplicaIdentity: replicaIdentity(m.ReplicaIdentity),
			Columns:         make([]event.Column, len(m.Columns)),
		}
		for i, c := range m.Columns {
			body.Columns[i] = event.Column{
				Flags:        int8(c.Flags),
				Name:         c.Name,
				TypeID:       c.DataType,
				TypeModifier: c.TypeModifier,
			}
		}
		cache.Update(body)
		return event.Relation{RelationBody: body}, nil

	case *pglogrepl.TypeMessageV2:
		d.typeNames[m.DataType] = m.Name
		return event.TypeMessage{ID: m.DataType, Namespace: m.Namespace, Name: m.Name}, nil

	case *pglogrepl.InsertMessageV2:
		rel, ok := cache.Get(m.RelationID)
		if !ok {
			return nil, ErrMissingSchema(m.RelationID)
		}
		tuple, warn := d.decodeTuple(m.Tuple, rel)
		return event.Insert{RelID: m.RelationID, Tuple: tuple}, warn

	case *pglogrepl.UpdateMessageV2:
		rel, ok := cache.Get(m.RelationID)
		if !ok {
			return nil, ErrMissingSchema(m.RelationID)
		}
		var oldTuple, keyTuple *event.Tuple
		var warn error
		if m.OldTuple != nil {
			t, w := d.decodeTuple(m.OldTuple, rel)
			warn = w
			if m.OldTupleType == 'O' {
				oldTuple = &t
			} else {
				keyTuple = &t
			}
		}
		newTuple, w2 := d.decodeTuple(m.NewTuple, rel)
		if warn == nil {
			warn = w2
		}
		return event.Update{RelID: m.RelationID, OldTuple: oldTuple, KeyTuple: keyTuple, NewTuple: newTuple}, warn

	case *pglogrepl.DeleteMessageV2:
		rel, ok := cache.Get(m.RelationID)
		if !ok {
			return nil, ErrMissingSchema(m.RelationID)
		}
		var oldTuple, keyTuple *event.Tuple
		var warn error
		if m.OldTuple != nil {
			t, w := d.decodeTuple(m.OldTuple, rel)
			warn = w
			if m.OldTupleType == 'O' {
				oldTuple = &t
			} else {
				keyTuple = &t
			}
		}
		return event.Delete{RelID: m.RelationID, OldTuple: oldTuple, KeyTuple: keyTuple}, warn

	case *pglogrepl.TruncateMessageV2:
		return event.Truncate{Options: m.Option, RelIDs: m.RelationIDs}, nil

	case *pglogrepl.StreamStartMessageV2:
		d.inStream = true
		return nil, nil
	case *pglogrepl.StreamStopMessageV2:
		d.inStream = false
		return nil, nil
	case *pglogrepl.StreamCommitMessageV2, *pglogrepl.StreamAbortMessageV2, *pglogrepl.LogicalDecodingMessageV2:
		return nil, nil

	default:
		return nil, ErrUnexpectedMessage(fmt.Sprintf("%T", logicalMsg))
	}
}

// decodeTuple aligns cells to rel's column list: extra wire cells
// beyond len(rel.Columns) are ignored, and if the wire carried fewer
// cells than rel has columns the missing ones decode as Null.
func (d *Decoder) decodeTuple(t *pglogrepl.TupleData, rel event.RelationBody) (event.Tuple, error) {
	if t == nil {
		return nil, nil
	}
	out := make(event.Tuple, len(rel.Columns))
	var firstErr error
	for i := range out {
		if i >= len(t.Columns) {
			out[i] = event.Null{}
			continue
		}
		col := t.Columns[i]
		cell, err := d.decodeCell(col.DataType, col.Data, rel.Columns[i].TypeID)
		out[i] = cell
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return out, firstErr
}

func replicaIdentity(r uint8) event.ReplicaIdentity {
	switch r {
	case 'd':
		return event.ReplicaIdentityDefault
	case 'n':
		return event.ReplicaIdentityNothing
	case 'f':
		return event.ReplicaIdentityFull
	case 'i':
		return event.ReplicaIdentityIndex
	default:
		return event.ReplicaIdentityDefault
	}
}
