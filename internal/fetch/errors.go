package fetch

import (
	"github.com/guestsync/internal/syncerrors"
)

func isSessionExpiry(err error) bool {
	return syncerrors.IsSessionExpired(err)
}
