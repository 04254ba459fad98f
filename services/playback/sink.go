// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package playback

import (
	"context"
	"io"
)

// Sink receives audio buffers from the player in playback order.
type Sink interface {
	// Write delivers one buffer. Write runs on the pump goroutine, so a
	// slow sink backs the queue up rather than reordering audio.
	Write(ctx context.Context, b *Buffer) error
}

// NullSink discards all audio. Used on headless appliances and in tests
// where only queue behavior matters.
type NullSink struct{}

var _ Sink = (*NullSink)(nil)

// Write discards the buffer.
func (NullSink) Write(_ context.Context, _ *Buffer) error {
	return nil
}

// WriterSink streams raw PCM payloads to an io.Writer, typically a pipe
// into the platform audio helper process.
type WriterSink struct {
	w io.Writer
}

var _ Sink = (*WriterSink)(nil)

// NewWriterSink wraps w. The writer must tolerate arbitrary chunk sizes.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Write copies the buffer payload to the underlying writer.
func (s *WriterSink) Write(_ context.Context, b *Buffer) error {
	_, err := s.w.Write(b.Data)
	return err
}
