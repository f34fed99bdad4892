package db

import (
	"errors"
	"fmt"

	"github.com/crumbworks/storefront/internal/catalog/schema"
)

// ErrStorageUnavailable is matched by every error returned from the local
// store: the database could not be opened or a transaction failed. There is
// no fallback below the local store, so callers must surface it.
//
//	if errors.Is(err, db.ErrStorageUnavailable) {
//	    // show "could not save" to the operator
//	}
var ErrStorageUnavailable = errors.New("local storage unavailable")

// StorageError describes a failed local store operation.
type StorageError struct {
	Op   string
	Kind schema.Kind
	Err  error
}

func (e *StorageError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("local %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("local %s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is makes every StorageError match ErrStorageUnavailable.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

func storageErr(op string, kind schema.Kind, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Kind: kind, Err: err}
}
