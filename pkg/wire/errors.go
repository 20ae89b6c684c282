package wire

import (
	"fmt"

	"github.com/streamkeep/pgcdc/internal/errkind"
)

// ErrInvalidString marks a UTF-8 failure while decoding an identifier
// or a text cell.
func ErrInvalidString(context string, cause error) error {
	return errkind.Wrap(errkind.Decode, fmt.Errorf("invalid string in %s: %w", context, cause))
}

// ErrMissingSchema marks a row event whose rel_id has no cached
// Relation. The caller drops the event but must still honor any
// pending keepalive/advance.
func ErrMissingSchema(relID uint32) error {
	return errkind.Wrap(errkind.MissingSchema, fmt.Errorf("no cached relation for rel_id %d", relID))
}

// ErrUnrecognizedType is not itself fatal: the caller falls the cell
// back to RawText and continues. It exists so callers can log it.
func ErrUnrecognizedType(oid uint32) error {
	return errkind.Wrap(errkind.Decode, fmt.Errorf("unrecognized type oid %d, falling back to rawtext", oid))
}

// ErrParseError marks a numeric/boolean literal that failed to parse;
// the cell becomes RawText and the event is still produced.
func ErrParseError(context string, cause error) error {
	return errkind.Wrap(errkind.Decode, fmt.Errorf("parse error in %s: %w", context, cause))
}

// ErrUnexpectedMessage marks a frame tag this decoder doesn't know
// about. The frame is dropped.
func ErrUnexpectedMessage(tag string) error {
	return errkind.Wrap(errkind.Decode, fmt.Errorf("unexpected message tag %q", tag))
}

var errEmptyChar = fmt.Errorf("empty char cell")
