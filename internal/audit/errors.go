// Package audit implements the audit-trail core: the best-effort log writer, the
// export service, and the change revert engine. Handlers in internal/api/audit are
// thin adapters over this package.
package audit

import "errors"

var (
	// ErrEntryNotFound is returned when the referenced audit entry does not exist.
	ErrEntryNotFound = errors.New("audit: entry not found")
	// ErrUnauthorized is returned when the acting user lacks the role required for the operation.
	ErrUnauthorized = errors.New("audit: operation requires the ADMIN role")
	// ErrNotRevertible is returned for entries that carry no usable prior state (CREATE
	// entries, or entries whose change payload has no before snapshot).
	ErrNotRevertible = errors.New("audit: entry is not revertible")
	// ErrEntityMissing is returned when the live entity a revert targets no longer exists.
	// Recreating deleted entities is a separate capability the revert engine does not perform.
	ErrEntityMissing = errors.New("audit: target entity no longer exists")
	// ErrUnknownEntityType is returned when no reverter is registered for the entry's entity type.
	ErrUnknownEntityType = errors.New("audit: no reverter registered for entity type")
	// ErrUnsupportedFormat is returned for export formats outside csv/excel/pdf.
	ErrUnsupportedFormat = errors.New("audit: unsupported export format")
	// ErrEncryptionUnavailable is returned when an encrypted export is requested but no
	// ENCRYPTION_KEY is configured.
	ErrEncryptionUnavailable = errors.New("audit: encrypted export requested but no encryption key is configured")
	// ErrExportFailed wraps rendering failures. The underlying cause is preserved for
	// logging but not shown verbatim to callers.
	ErrExportFailed = errors.New("audit: export rendering failed")
)
