// Package event defines the canonical, serializable change-event types
// shared by the source and sink engines. These are the sole unit
// produced to and consumed from the stream partition.
package event

// ReplicaIdentity mirrors a Postgres table's REPLICA IDENTITY setting,
// which determines what old-row information Update/Delete messages carry.
type ReplicaIdentity string

const (
	ReplicaIdentityDefault ReplicaIdentity = "default"
	ReplicaIdentityNothing ReplicaIdentity = "nothing"
	ReplicaIdentityFull    ReplicaIdentity = "full"
	ReplicaIdentityIndex   ReplicaIdentity = "index"
)

// Column describes one column of a Relation. Flags == 1 marks a key column;
// multiple columns may share flags == 1 for a composite key.
type Column struct {
	Flags        int8   `json:"flags"`
	Name         string `json:"name"`
	TypeID       uint32 `json:"type_id"`
	TypeModifier int32  `json:"type_modifier"`
}

// IsKey reports whether this column participates in the replica identity key.
func (c Column) IsKey() bool { return c.Flags == 1 }

// RelationBody is the schema snapshot carried by a Relation message and
// cached by SchemaCache, keyed by RelID.
type RelationBody struct {
	RelID           uint32          `json:"rel_id"`
	Namespace       string          `json:"namespace"`
	Name            string          `json:"name"`
	ReplicaIdentity ReplicaIdentity `json:"replica_identity"`
	Columns         []Column        `json:"columns"`
}

// KeyColumns returns the subset of Columns marked as key columns, in
// declaration order.
func (r RelationBody) KeyColumns() []Column {
	var out []Column
	for _, c := range r.Columns {
		if c.IsKey() {
			out = append(out, c)
		}
	}
	return out
}

// Message is the closed sum of logical replication message variants.
// Each variant's Type returns the lowercase discriminator used as the
// "type" tag on the wire.
type Message interface {
	Type() string
}

type Begin struct {
	FinalLSN  LSN   `json:"final_lsn"`
	Timestamp int64 `json:"timestamp"`
	Xid       uint32 `json:"xid"`
}

func (Begin) Type() string { return "begin" }

type Commit struct {
	Flags     int8  `json:"flags"`
	CommitLSN LSN   `json:"commit_lsn"`
	EndLSN    LSN   `json:"end_lsn"`
	Timestamp int64 `json:"timestamp"`
}

func (Commit) Type() string { return "commit" }

type Origin struct {
	CommitLSN LSN    `json:"commit_lsn"`
	Name      string `json:"name"`
}

func (Origin) Type() string { return "origin" }

type Relation struct {
	RelationBody
}

func (Relation) Type() string { return "relation" }

type TypeMessage struct {
	ID        uint32 `json:"id"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

func (TypeMessage) Type() string { return "type" }

type Insert struct {
	RelID uint32 `json:"rel_id"`
	Tuple Tuple  `json:"tuple"`
}

func (Insert) Type() string { return "insert" }

// Update's Filter returns the tuple that identifies the row being
// updated: KeyTuple if present, else OldTuple. If both are present,
// KeyTuple wins and the caller should warn.
type Update struct {
	RelID    uint32 `json:"rel_id"`
	OldTuple *Tuple `json:"old_tuple,omitempty"`
	KeyTuple *Tuple `json:"key_tuple,omitempty"`
	NewTuple Tuple  `json:"new_tuple"`
}

func (Update) Type() string { return "update" }

func (u Update) Filter() (tuple *Tuple, ambiguous bool) {
	if u.KeyTuple != nil && u.OldTuple != nil {
		return u.KeyTuple, true
	}
	if u.KeyTuple != nil {
		return u.KeyTuple, false
	}
	return u.OldTuple, false
}

type Delete struct {
	RelID    uint32 `json:"rel_id"`
	OldTuple *Tuple `json:"old_tuple,omitempty"`
	KeyTuple *Tuple `json:"key_tuple,omitempty"`
}

func (Delete) Type() string { return "delete" }

func (d Delete) Filter() (tuple *Tuple, ambiguous bool) {
	if d.KeyTuple != nil && d.OldTuple != nil {
		return d.KeyTuple, true
	}
	if d.KeyTuple != nil {
		return d.KeyTuple, false
	}
	return d.OldTuple, false
}

// Truncate.Options: bit 0 (value 1) = CASCADE, bit 1 (value 2) = RESTART IDENTITY.
type Truncate struct {
	Options uint8    `json:"options"`
	RelIDs  []uint32 `json:"rel_ids"`
}

func (Truncate) Type() string { return "truncate" }

func (t Truncate) Cascade() bool        { return t.Options == 1 }
func (t Truncate) RestartIdentity() bool { return t.Options == 2 }

// ReplicationEvent is the sole unit produced to and consumed from the
// stream partition. wal_start/wal_end bracket the WAL region the
// message came from; Timestamp is microseconds since 2000-01-01 UTC.
type ReplicationEvent struct {
	WALStart  LSN
	WALEnd    LSN
	Timestamp int64
	Message   Message
}
