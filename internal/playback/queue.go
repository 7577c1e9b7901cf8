// Package playback plays agent audio fragments one at a time, in arrival order.
package playback

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/escal8/voiceagent/domain/repositories"
	"github.com/escal8/voiceagent/internal/audio"
)

// Item is one queued audio fragment
type Item struct {
	AudioBase64 string
	EventID     int
}

// Queue is a FIFO of audio fragments drained by a single goroutine.
// At most one item plays at any time.
type Queue struct {
	player repositories.AudioPlayer
	logger *zap.Logger

	mu            sync.Mutex
	pending       []Item
	playing       bool
	cancelCurrent context.CancelFunc
	format        audio.Format
	closed        bool

	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue creates a queue and starts its drain loop
func NewQueue(player repositories.AudioPlayer, logger *zap.Logger) *Queue {
	q := &Queue{
		player:  player,
		logger:  logger,
		pending: make([]Item, 0),
		format:  audio.DefaultFormat,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go q.drain()
	return q
}

// SetFormat sets the decoder format from a negotiated format name.
// An unsupported name is reported and playback falls back to the default
// 16 kHz format.
func (q *Queue) SetFormat(name string) error {
	format, err := audio.ParseFormat(name)
	if err != nil {
		format = audio.DefaultFormat
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.format = format
	return err
}

// Enqueue appends an item; playback starts if the queue was idle
func (q *Queue) Enqueue(item Item) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, item)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// StopAll halts the current item and clears everything pending
func (q *Queue) StopAll() {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := len(q.pending)
	q.pending = q.pending[:0]
	if q.cancelCurrent != nil {
		q.cancelCurrent()
	}

	q.logger.Debug("Playback stopped", zap.Int("dropped", dropped), zap.Bool("wasPlaying", q.playing))
}

// Len returns the number of items not yet started
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Playing reports whether an item is currently playing
func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Close stops playback and waits for the drain loop to exit
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()

		q.StopAll()
		close(q.quit)
	})
	<-q.done
}

func (q *Queue) drain() {
	defer close(q.done)

	for {
		select {
		case <-q.quit:
			return
		case <-q.wake:
		}

		for {
			ctx, item, format, ok := q.next()
			if !ok {
				break
			}
			q.play(ctx, item, format)
			q.finish()
		}
	}
}

// next dequeues the head item and marks it as playing
func (q *Queue) next() (context.Context, Item, audio.Format, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.pending) == 0 {
		return nil, Item{}, audio.Format{}, false
	}

	item := q.pending[0]
	q.pending = q.pending[1:]

	ctx, cancel := context.WithCancel(context.Background())
	q.playing = true
	q.cancelCurrent = cancel

	return ctx, item, q.format, true
}

func (q *Queue) finish() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancelCurrent != nil {
		q.cancelCurrent()
		q.cancelCurrent = nil
	}
	q.playing = false
}

func (q *Queue) play(ctx context.Context, item Item, format audio.Format) {
	samples, err := audio.DecodeBase64PCM(item.AudioBase64)
	if err != nil {
		q.logger.Error("Failed to decode audio", zap.Int("eventID", item.EventID), zap.Error(err))
		return
	}
	if len(samples) == 0 {
		return
	}

	if err := q.player.Play(ctx, samples, format.SampleRate); err != nil {
		if ctx.Err() != nil {
			q.logger.Debug("Playback interrupted", zap.Int("eventID", item.EventID))
			return
		}
		q.logger.Error("Failed to play audio", zap.Int("eventID", item.EventID), zap.Error(err))
	}
}
