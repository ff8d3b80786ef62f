package pipeline

import (
	"errors"
	"fmt"
)

// ErrBatchTooLarge matches every *BatchTooLargeError
var ErrBatchTooLarge = errors.New("batch too large")

// BatchTooLargeError rejects a whole batch before any item is touched
type BatchTooLargeError struct {
	Size int
	Max  int
}

func (e *BatchTooLargeError) Error() string {
	return fmt.Sprintf("batch of %d items exceeds the maximum of %d", e.Size, e.Max)
}

func (e *BatchTooLargeError) Is(target error) bool {
	return target == ErrBatchTooLarge
}

// StagePanicError is reported when a stage panics while classifying an item
type StagePanicError struct {
	Stage string
	Value any
}

func (e *StagePanicError) Error() string {
	return fmt.Sprintf("stage %s panicked: %v", e.Stage, e.Value)
}
