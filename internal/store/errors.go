package store

import "strings"

// IsBusyError reports a SQLITE_BUSY error, raised when another connection
// holds the write lock.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY")
}

// IsLockedError reports a "database is locked" error.
func IsLockedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}

// IsConflictError reports either form of SQLite write contention. Both are
// worth retrying.
func IsConflictError(err error) bool {
	return IsBusyError(err) || IsLockedError(err)
}
