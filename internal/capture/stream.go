package capture

import (
	"sync"

	"github.com/google/uuid"
)

// Kind is the media kind of a track
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Track is a single live audio or video source
type Track interface {
	ID() string
	Kind() Kind

	// Stop releases the source. Stopping does not close Ended.
	Stop()

	// Ended is closed when the source goes away on its own,
	// e.g. the user stops sharing from the desktop.
	Ended() <-chan struct{}
}

// Stream groups tracks captured together
type Stream struct {
	id     string
	tracks []Track
}

// NewStream creates a stream. An empty id gets a random uuid.
func NewStream(id string, tracks ...Track) *Stream {
	if id == "" {
		id = uuid.NewString()
	}
	return &Stream{id: id, tracks: tracks}
}

func (s *Stream) ID() string {
	return s.id
}

// Tracks returns a copy of all tracks
func (s *Stream) Tracks() []Track {
	out := make([]Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *Stream) VideoTracks() []Track {
	return s.tracksOf(KindVideo)
}

func (s *Stream) AudioTracks() []Track {
	return s.tracksOf(KindAudio)
}

func (s *Stream) tracksOf(kind Kind) []Track {
	var out []Track
	for _, t := range s.tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// Stop stops every track of the stream
func (s *Stream) Stop() {
	if s == nil {
		return
	}
	for _, t := range s.tracks {
		t.Stop()
	}
}

// Merge combines the video tracks of screen with the audio tracks of mic into a
// new stream with its own id. Screen audio is dropped when a mic is given.
// With no mic the screen stream is returned as is.
func Merge(screen, mic *Stream) *Stream {
	if mic == nil {
		return screen
	}
	tracks := append(screen.VideoTracks(), mic.AudioTracks()...)
	return NewStream("", tracks...)
}

// BaseTrack is a Track implementation backends can embed
type BaseTrack struct {
	id    string
	kind  Kind
	ended chan struct{}

	mu      sync.Mutex
	stopped bool
	endOnce sync.Once
	onStop  func()
}

// NewBaseTrack creates a track. onStop, when set, runs once on the first Stop.
func NewBaseTrack(id string, kind Kind, onStop func()) *BaseTrack {
	if id == "" {
		id = uuid.NewString()
	}
	return &BaseTrack{
		id:     id,
		kind:   kind,
		ended:  make(chan struct{}),
		onStop: onStop,
	}
}

func (t *BaseTrack) ID() string {
	return t.id
}

func (t *BaseTrack) Kind() Kind {
	return t.kind
}

func (t *BaseTrack) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	onStop := t.onStop
	t.mu.Unlock()

	if onStop != nil {
		onStop()
	}
}

// Stopped reports whether Stop was called
func (t *BaseTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *BaseTrack) Ended() <-chan struct{} {
	return t.ended
}

// End marks the source as gone. Safe to call more than once.
func (t *BaseTrack) End() {
	t.endOnce.Do(func() { close(t.ended) })
}
