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
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/AleutianVoice/pkg/logging"
)

// ErrQueueFull is returned when the playback queue cannot take another
// buffer. Producers should treat this as backpressure, not drop audio
// silently.
var ErrQueueFull = errors.New("playback queue full")

// ErrNotRunning is returned when buffers are enqueued while the player
// is stopped.
var ErrNotRunning = errors.New("player is not running")

// PlayerConfig configures a Player.
type PlayerConfig struct {
	// QueueDepth bounds the number of buffers waiting to play.
	// Default: 32.
	QueueDepth int

	// Pace holds each buffer on the pump for its playback duration, so
	// the queue drains at speech speed. Sinks that talk to a real audio
	// device block on their own and should leave this off.
	Pace bool

	// OnPlayed, when set, is called from the pump goroutine after each
	// buffer is delivered to the sink. The transcript layer uses it to
	// commit utterances as they finish.
	OnPlayed func(Buffer)
}

// DefaultPlayerConfig returns production defaults.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{QueueDepth: 32}
}

// Player pumps queued audio buffers to a sink, one at a time, in FIFO
// order.
//
// # Thread Safety
//
// All public methods are safe for concurrent use. The sink and OnPlayed
// hook only ever run on the single pump goroutine.
type Player struct {
	sink   Sink
	cfg    PlayerConfig
	logger *logging.Logger

	queue    chan *Buffer
	done     chan struct{}
	inFlight atomic.Int32

	mu      sync.Mutex
	running bool
}

// NewPlayer creates a stopped player over the given sink. A nil logger
// uses the process default.
func NewPlayer(sink Sink, cfg PlayerConfig, logger *logging.Logger) *Player {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultPlayerConfig().QueueDepth
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Player{
		sink:   sink,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan *Buffer, cfg.QueueDepth),
		done:   make(chan struct{}),
	}
}

// Start launches the pump goroutine. Returns an error if the player is
// already running.
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("player is already running")
	}
	p.running = true
	p.done = make(chan struct{}) // Reset for restart after Stop
	p.mu.Unlock()

	p.logger.Info("playback pump starting", "queue_depth", cap(p.queue), "pace", p.cfg.Pace)
	go p.runLoop(ctx)
	return nil
}

// Stop halts the pump. Queued buffers stay queued and play after a
// restart; use Flush to discard them. Safe to call more than once.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return nil
	}
	close(p.done)
	p.running = false
	p.logger.Info("playback pump stopped")
	return nil
}

// Enqueue adds a buffer to the playback queue without blocking.
func (p *Player) Enqueue(b *Buffer) error {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if !running {
		return ErrNotRunning
	}

	select {
	case p.queue <- b:
		return nil
	default:
		return ErrQueueFull
	}
}

// Depth returns the number of buffers waiting in the queue, excluding
// any buffer currently on the pump.
func (p *Player) Depth() int {
	return len(p.queue)
}

// Flush discards all queued buffers and returns how many were dropped.
// The buffer currently playing, if any, finishes. Used on barge-in, when
// the user talks over the assistant and stale audio must not play.
func (p *Player) Flush() int {
	dropped := 0
	for {
		select {
		case <-p.queue:
			dropped++
		default:
			if dropped > 0 {
				p.logger.Debug("playback queue flushed", "dropped", dropped)
			}
			return dropped
		}
	}
}

// Drain blocks until the queue is empty and no buffer is on the pump, or
// until ctx is done.
func (p *Player) Drain(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if len(p.queue) == 0 && p.inFlight.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runLoop is the pump goroutine: dequeue, deliver, pace, notify.
func (p *Player) runLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case b := <-p.queue:
			p.inFlight.Store(1)
			p.play(ctx, b)
			p.inFlight.Store(0)
		}
	}
}

func (p *Player) play(ctx context.Context, b *Buffer) {
	start := time.Now()
	if err := p.sink.Write(ctx, b); err != nil {
		p.logger.Warn("audio sink write failed", "buffer_id", b.ID.String(), "error", err)
		return
	}

	if p.cfg.Pace {
		if remaining := b.Duration() - time.Since(start); remaining > 0 {
			timer := time.NewTimer(remaining)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-p.done:
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}

	if p.cfg.OnPlayed != nil {
		p.cfg.OnPlayed(*b)
	}
}
