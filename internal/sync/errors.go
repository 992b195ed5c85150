package sync

import "errors"

var (
	// ErrMissingID is returned for a listing record without a usable id.
	ErrMissingID = errors.New("record has no id")

	// ErrQueueFull is returned by Queue.Enqueue when no slot is free.
	ErrQueueFull = errors.New("sync queue is full")

	// ErrQueueClosed is returned by Queue.Enqueue after the worker has exited.
	ErrQueueClosed = errors.New("sync queue is closed")
)
