package ports

import (
	"fmt"

	"github.com/jmgilman/go/errors"
)

// Error kinds surfaced by the archiver. Match them with errors.Is.
var (
	ErrArchiveOpen      = errors.New(errors.CodeInvalidInput, "archive cannot be opened")
	ErrNotWritable      = errors.New(errors.CodeForbidden, "path is not writable")
	ErrDirectoryCreate  = errors.New(errors.CodeInternal, "directory cannot be created")
	ErrEntryNotFound    = errors.New(errors.CodeNotFound, "entry not found")
	ErrSourceUnreadable = errors.New(errors.CodeInvalidInput, "source file cannot be read")
	ErrNotOpen          = errors.New(errors.CodeConflict, "no archive is open")
	ErrUnknownFormat    = errors.New(errors.CodeInvalidConfig, "unknown archive format")
	ErrUnsafePath       = errors.New(errors.CodeForbidden, "entry escapes the destination")
)

// Wrap builds an error of the given kind. The kind stays reachable through
// errors.Is and, when cause is non-nil, so does the cause.
func Wrap(kind errors.PlatformError, cause error, format string, args ...any) error {
	var chain error = kind
	if cause != nil {
		chain = fmt.Errorf("%w: %w", kind, cause)
	}
	return errors.Wrapf(chain, kind.Code(), format, args...)
}
