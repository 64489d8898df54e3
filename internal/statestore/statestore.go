// Package statestore keeps small typed records per owner (a note or tile
// id). Records are addressed by Key{Owner, Kind} and serialized as JSON, so
// callers never build storage keys by hand.
package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kuitang/studynotes/internal/errs"
)

// Kind names the shape of a stored record.
type Kind string

const (
	// KindQuizSession is an in-flight quiz session.
	KindQuizSession Kind = "quiz_session"
)

var knownKinds = map[Kind]bool{
	KindQuizSession: true,
}

// Key addresses one record.
type Key struct {
	Owner string
	Kind  Kind
}

func (k Key) String() string {
	return k.Owner + "/" + string(k.Kind)
}

// Store is typed per-owner key-value storage.
type Store interface {
	// Get decodes the record at key into dst and reports whether it existed.
	Get(ctx context.Context, key Key, dst any) (bool, error)
	// Put replaces the record at key with value.
	Put(ctx context.Context, key Key, value any) error
	// Delete removes the record at key. Missing records are not an error.
	Delete(ctx context.Context, key Key) error
	// DeleteOwner removes every record for owner.
	DeleteOwner(ctx context.Context, owner string) error
	// ListOwner returns the keys stored for owner, ordered by kind.
	ListOwner(ctx context.Context, owner string) ([]Key, error)
}

func validateKey(key Key) error {
	if err := validateOwner(key.Owner); err != nil {
		return err
	}
	if !knownKinds[key.Kind] {
		return errs.New(errs.InvalidArgument, fmt.Sprintf("unknown state kind %q", key.Kind))
	}
	return nil
}

func validateOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return errs.New(errs.InvalidArgument, "owner id is required")
	}
	return nil
}

func encode(key Key, value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	return data, nil
}

func decode(key Key, data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
