package mailbox

import (
	"errors"
	"fmt"
)

// FilesystemError indicates a local directory or file operation failed
// while exporting messages, or that a configured mirror upload failed.
// Either aborts the whole download.
type FilesystemError struct {
	Path    string
	Message string
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem error (%s): %s", e.Path, e.Message)
}

// IsFilesystemError reports whether err is or wraps a *FilesystemError.
func IsFilesystemError(err error) bool {
	var fsErr *FilesystemError
	return errors.As(err, &fsErr)
}
