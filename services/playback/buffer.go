// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package playback queues synthesized PCM16 audio and pumps it to an
// output sink at speech pace.
//
// The player is deliberately decoupled from any audio device API: a Sink
// is just something that accepts buffers, so tests use a recording sink,
// the daemon wires a pipe to the platform audio helper, and the null sink
// serves headless deployments.
package playback

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sample format constraints for 16-bit PCM.
const (
	bytesPerSample = 2
	maxChannels    = 2
)

// ErrOddData is returned when PCM16 payload length is not a multiple of
// the sample size.
var ErrOddData = errors.New("pcm16 data length must be even")

// ErrBadFormat is returned for unsupported sample rates or channel counts.
var ErrBadFormat = errors.New("unsupported audio format")

// Buffer is one contiguous chunk of 16-bit little-endian PCM audio.
//
// Buffers are immutable once created; the player never modifies Data.
type Buffer struct {
	ID         uuid.UUID
	SampleRate int
	Channels   int
	Data       []byte
}

// NewBuffer validates the format and wraps the payload in a Buffer with a
// fresh id. The data slice is not copied; callers hand over ownership.
func NewBuffer(sampleRate, channels int, data []byte) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate %d: %w", sampleRate, ErrBadFormat)
	}
	if channels < 1 || channels > maxChannels {
		return nil, fmt.Errorf("channel count %d: %w", channels, ErrBadFormat)
	}
	if len(data)%(bytesPerSample*channels) != 0 {
		return nil, ErrOddData
	}
	return &Buffer{
		ID:         uuid.New(),
		SampleRate: sampleRate,
		Channels:   channels,
		Data:       data,
	}, nil
}

// Samples returns the number of sample frames in the buffer.
func (b *Buffer) Samples() int {
	return len(b.Data) / (bytesPerSample * b.Channels)
}

// Duration returns the wall-clock playback time of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Samples()) * time.Second / time.Duration(b.SampleRate)
}
