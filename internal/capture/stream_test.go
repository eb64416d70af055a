package capture

import (
	"testing"
)

func TestNewStream_GeneratesID(t *testing.T) {
	a := NewStream("")
	b := NewStream("")
	if a.ID() == "" || b.ID() == "" {
		t.Fatal("Expected generated stream ids")
	}
	if a.ID() == b.ID() {
		t.Errorf("Expected distinct ids, got %s twice", a.ID())
	}

	named := NewStream("fixed")
	if named.ID() != "fixed" {
		t.Errorf("Expected id 'fixed', got %s", named.ID())
	}
}

func TestMerge_TakesScreenVideoAndMicAudio(t *testing.T) {
	screenVideo := NewBaseTrack("screen-video", KindVideo, nil)
	screenAudio := NewBaseTrack("screen-audio", KindAudio, nil)
	micAudio := NewBaseTrack("mic-audio", KindAudio, nil)

	screen := NewStream("screen", screenVideo, screenAudio)
	mic := NewStream("mic", micAudio)

	merged := Merge(screen, mic)
	if merged.ID() == screen.ID() || merged.ID() == mic.ID() {
		t.Errorf("Expected merged stream to get its own id, got %s", merged.ID())
	}

	tracks := merged.Tracks()
	if len(tracks) != 2 {
		t.Fatalf("Expected 2 tracks, got %d", len(tracks))
	}
	if tracks[0].ID() != "screen-video" {
		t.Errorf("Expected first track screen-video, got %s", tracks[0].ID())
	}
	if tracks[1].ID() != "mic-audio" {
		t.Errorf("Expected second track mic-audio, got %s", tracks[1].ID())
	}
}

func TestMerge_WithoutMicReturnsScreen(t *testing.T) {
	screen := NewStream("screen", NewBaseTrack("", KindVideo, nil))
	if Merge(screen, nil) != screen {
		t.Error("Expected screen stream to be returned unchanged")
	}
}

func TestStreamStop_StopsAllTracks(t *testing.T) {
	calls := 0
	video := NewBaseTrack("", KindVideo, func() { calls++ })
	audio := NewBaseTrack("", KindAudio, nil)
	stream := NewStream("", video, audio)

	stream.Stop()
	stream.Stop()

	if !video.Stopped() || !audio.Stopped() {
		t.Error("Expected all tracks to be stopped")
	}
	if calls != 1 {
		t.Errorf("Expected onStop to run once, ran %d times", calls)
	}

	var nilStream *Stream
	nilStream.Stop()
}

func TestBaseTrack_End(t *testing.T) {
	track := NewBaseTrack("", KindVideo, nil)

	select {
	case <-track.Ended():
		t.Fatal("Track should not be ended yet")
	default:
	}

	track.End()
	track.End()

	select {
	case <-track.Ended():
	default:
		t.Error("Expected track to be ended")
	}
	if track.Stopped() {
		t.Error("Ending a track should not mark it stopped")
	}
}

func TestCodecSpec(t *testing.T) {
	codec := CodecSpec{Container: "webm", Video: "vp8", Audio: "opus"}
	if got := codec.MIMEType(); got != "video/webm;codecs=vp8,opus" {
		t.Errorf("Expected video/webm;codecs=vp8,opus, got %s", got)
	}
	if got := (CodecSpec{}).Extension(); got != "webm" {
		t.Errorf("Expected default extension webm, got %s", got)
	}
	if got := (CodecSpec{Container: "MKV"}).MIMEType(); got != "video/mkv" {
		t.Errorf("Expected video/mkv, got %s", got)
	}
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		name    string
		want    BackendType
		wantErr bool
	}{
		{"", BackendTypeFFmpeg, false},
		{"auto", BackendTypeFFmpeg, false},
		{"FFmpeg", BackendTypeFFmpeg, false},
		{"browser", BackendTypeBrowser, false},
		{"gstreamer", "", true},
	}

	for _, tt := range tests {
		got, err := ParseBackend(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBackend(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBackend(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}
