// Package step defines the ports the job composes its stages from: streaming
// item readers, chunked item writers, and one-shot tasklets.
package step

import "context"

// ItemReader streams items from a source. Read returns io.EOF when the source
// is exhausted.
type ItemReader[T any] interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) (T, error)
	Close(ctx context.Context) error
}

// ItemWriter writes item chunks to a sink. Close flushes any buffered state.
type ItemWriter[T any] interface {
	Open(ctx context.Context) error
	Write(ctx context.Context, items []T) error
	Close(ctx context.Context) error
}

// Tasklet is a single self-contained unit of work.
type Tasklet interface {
	Execute(ctx context.Context) error
}
