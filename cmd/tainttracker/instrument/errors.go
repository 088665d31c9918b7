package instrument

import "fmt"

// FileError wraps a failure with the file it occurred in. The run
// continues past it; callers report the collected errors at the end.
type FileError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Unwrap exposes the underlying error for errors.Is/As chains.
func (e *FileError) Unwrap() error {
	return e.Err
}
