package upload

import "fmt"

// InputError is a problem with the uploaded file itself. Nothing was
// committed; the caller should answer 400.
type InputError struct {
	UploadID string // empty when the file was rejected before a batch existed
	Err      error
}

func (e *InputError) Error() string { return e.Err.Error() }
func (e *InputError) Unwrap() error { return e.Err }

// DatabaseError is a failure while writing the batch. The transaction was
// rolled back and the batch marked failed; the caller should answer 500.
type DatabaseError struct {
	UploadID string
	Err      error
}

func (e *DatabaseError) Error() string { return fmt.Sprintf("database error: %v", e.Err) }
func (e *DatabaseError) Unwrap() error { return e.Err }
