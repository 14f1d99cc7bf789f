package replica

import (
	"errors"
	"fmt"
)

// PeerError reports a peer snapshot that could not be used. Sync logs and
// counts these rather than failing the round.
type PeerError struct {
	Actor string
	Key   string
	Err   error
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("peer %s (%s): %v", e.Actor, e.Key, e.Err)
}

func (e *PeerError) Unwrap() error { return e.Err }

// IsPeerError reports whether err is a PeerError.
func IsPeerError(err error) bool {
	var pe *PeerError
	return errors.As(err, &pe)
}
