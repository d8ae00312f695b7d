package engine

import (
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"streamplex/internal/streaming"
)

type fixtureSegment struct {
	Sequence int64
	Duration float64
	Path     string
}

// buildMediaPlaylist renders segments (ascending sequence) as a media
// playlist. ended appends #EXT-X-ENDLIST.
func buildMediaPlaylist(segments []fixtureSegment, ended bool) string {
	var b strings.Builder

	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")

	target := 1
	for _, seg := range segments {
		if d := int(math.Ceil(seg.Duration)); d > target {
			target = d
		}
	}
	var mediaSequence int64
	if len(segments) > 0 {
		mediaSequence = segments[0].Sequence
	}
	b.WriteString(fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", target))
	b.WriteString(fmt.Sprintf("#EXT-X-MEDIA-SEQUENCE:%d\n", mediaSequence))

	for _, seg := range segments {
		b.WriteString(fmt.Sprintf("#EXTINF:%.1f,\n", seg.Duration))
		b.WriteString(seg.Path)
		b.WriteString("\n")
	}

	if ended {
		b.WriteString("#EXT-X-ENDLIST\n")
	}
	return b.String()
}

const masterPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080
hi/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720
mid/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=400000,RESOLUTION=640x360
lo/index.m3u8
`

// origin serves masterPlaylist with three two-second segments per level.
// Segment bodies are segmentSize bytes unless failing is set.
type origin struct {
	*httptest.Server
	failing  atomic.Bool
	requests atomic.Int64
}

const segmentSize = 1000

func newOrigin(t *testing.T) *origin {
	t.Helper()
	o := &origin{}
	segs := []fixtureSegment{
		{Sequence: 0, Duration: 2, Path: "seg0.ts"},
		{Sequence: 1, Duration: 2, Path: "seg1.ts"},
		{Sequence: 2, Duration: 2, Path: "seg2.ts"},
	}
	media := buildMediaPlaylist(segs, true)

	mux := http.NewServeMux()
	mux.HandleFunc("/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(masterPlaylist))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		o.requests.Add(1)
		switch {
		case strings.HasSuffix(r.URL.Path, ".m3u8"):
			w.Write([]byte(media))
		case strings.HasSuffix(r.URL.Path, ".ts"):
			if o.failing.Load() {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(make([]byte, segmentSize))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	o.Server = httptest.NewServer(mux)
	t.Cleanup(o.Close)
	return o
}

// recorder collects engine events.
type recorder struct {
	mu     sync.Mutex
	events []streaming.Event
}

func (r *recorder) handle(ev streaming.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []streaming.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]streaming.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) count(match func(streaming.Event) bool) int {
	n := 0
	for _, ev := range r.snapshot() {
		if match(ev) {
			n++
		}
	}
	return n
}

func isSegmentLoaded(ev streaming.Event) bool {
	_, ok := ev.(streaming.SegmentLoaded)
	return ok
}

func isFatal(ev streaming.Event) bool {
	e, ok := ev.(streaming.EngineError)
	return ok && e.Fatal
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func testConfig() streaming.EngineConfig {
	cfg := streaming.NewEngineConfig(streaming.DefaultSessionConfig())
	cfg.FragLoadingMaxRetry = 1
	cfg.FragLoadingRetryDelay = time.Millisecond
	cfg.FragLoadingTimeout = 2 * time.Second
	return cfg
}
