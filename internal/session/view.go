package session

import (
	"fmt"
	"sync"
)

// Layout selects which part of the recorder UI is shown
type Layout string

const (
	// LayoutIdle shows the pre-recording box with the start control
	LayoutIdle Layout = "idle"

	// LayoutControls shows the recorder controls and counter
	LayoutControls Layout = "controls"
)

// View is the declarative UI state rendered by surfaces
type View struct {
	Layout        Layout `json:"layout"`
	Countdown     string `json:"countdown"`
	PauseVisible  bool   `json:"pause_visible"`
	ResumeVisible bool   `json:"resume_visible"`
	Counter       string `json:"counter"`
	State         State  `json:"state"`
}

// IdleView is the pre-recording layout
func IdleView(state State) View {
	return View{
		Layout:       LayoutIdle,
		PauseVisible: true,
		Counter:      FormatElapsed(0),
		State:        state,
	}
}

// CountdownText returns the countdown label for the remaining ticks
func CountdownText(remaining int) string {
	if remaining <= 0 {
		return ""
	}
	return fmt.Sprintf("Starting in %d", remaining)
}

// FormatElapsed formats seconds as m:ss, minutes are not capped
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// Surface displays views. Render is called from the controller goroutine.
type Surface interface {
	Render(View)
}

// SurfaceFunc adapts a function to a Surface
type SurfaceFunc func(View)

func (f SurfaceFunc) Render(v View) {
	f(v)
}

// Surfaces fans a view out to several surfaces. Surfaces can be added while running.
type Surfaces struct {
	mu   sync.RWMutex
	list []Surface
}

// NewSurfaces creates a fan-out surface
func NewSurfaces(surfaces ...Surface) *Surfaces {
	s := &Surfaces{}
	for _, surface := range surfaces {
		s.Add(surface)
	}
	return s
}

// Add registers a surface, nil is ignored
func (s *Surfaces) Add(surface Surface) {
	if surface == nil {
		return
	}
	s.mu.Lock()
	s.list = append(s.list, surface)
	s.mu.Unlock()
}

func (s *Surfaces) Render(v View) {
	s.mu.RLock()
	list := make([]Surface, len(s.list))
	copy(list, s.list)
	s.mu.RUnlock()

	for _, surface := range list {
		surface.Render(v)
	}
}
