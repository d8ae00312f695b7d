package engine

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"

	"streamplex/internal/streaming"
)

// ErrNoLevels is returned for a master playlist without playable variants.
var ErrNoLevels = errors.New("manifest has no playable levels")

// variant is one level of the manifest with its media playlist location.
type variant struct {
	level streaming.Level
	uri   string
}

type segment struct {
	uri      string
	seq      uint64
	duration float64
	start    float64 // offset from the first segment of the playlist
}

// mediaPlaylist is the decoded form of one level's segment list.
type mediaPlaylist struct {
	segments       []segment
	targetDuration float64
	closed         bool
}

// indexOfSeq returns the position of sequence number seq, or -1.
func (p *mediaPlaylist) indexOfSeq(seq uint64) int {
	for i, s := range p.segments {
		if s.seq == seq {
			return i
		}
	}
	return -1
}

// indexAt returns the segment covering media time t, clamped to the list.
func (p *mediaPlaylist) indexAt(t float64) int {
	for i, s := range p.segments {
		if t < s.start+s.duration {
			return i
		}
	}
	return len(p.segments)
}

// decodeManifest parses a master or media playlist. A media playlist yields a
// single level whose playlist is returned directly.
func decodeManifest(data []byte, base *url.URL) ([]variant, *mediaPlaylist, error) {
	pl, listType, err := m3u8.DecodeFrom(bytes.NewReader(data), false)
	if err != nil {
		return nil, nil, fmt.Errorf("decode manifest: %w", err)
	}

	switch listType {
	case m3u8.MASTER:
		master := pl.(*m3u8.MasterPlaylist)
		var variants []variant
		for _, v := range master.Variants {
			if v == nil || v.Iframe {
				continue
			}
			uri, err := resolve(base, v.URI)
			if err != nil {
				return nil, nil, err
			}
			variants = append(variants, variant{
				level: streaming.Level{Height: parseHeight(v.Resolution), Bitrate: int(v.Bandwidth)},
				uri:   uri,
			})
		}
		if len(variants) == 0 {
			return nil, nil, ErrNoLevels
		}
		return variants, nil, nil

	case m3u8.MEDIA:
		media, err := newMediaPlaylist(pl.(*m3u8.MediaPlaylist), base)
		if err != nil {
			return nil, nil, err
		}
		return []variant{{uri: base.String()}}, media, nil
	}
	return nil, nil, fmt.Errorf("decode manifest: unknown playlist type %d", listType)
}

func decodeMediaPlaylist(data []byte, base *url.URL) (*mediaPlaylist, error) {
	pl, listType, err := m3u8.DecodeFrom(bytes.NewReader(data), false)
	if err != nil {
		return nil, fmt.Errorf("decode media playlist: %w", err)
	}
	if listType != m3u8.MEDIA {
		return nil, errors.New("decode media playlist: not a media playlist")
	}
	return newMediaPlaylist(pl.(*m3u8.MediaPlaylist), base)
}

func newMediaPlaylist(pl *m3u8.MediaPlaylist, base *url.URL) (*mediaPlaylist, error) {
	out := &mediaPlaylist{targetDuration: pl.TargetDuration, closed: pl.Closed}
	var start float64
	for _, s := range pl.Segments {
		if s == nil {
			continue
		}
		uri, err := resolve(base, s.URI)
		if err != nil {
			return nil, err
		}
		out.segments = append(out.segments, segment{
			uri:      uri,
			seq:      pl.SeqNo + uint64(len(out.segments)),
			duration: s.Duration,
			start:    start,
		})
		start += s.Duration
	}
	return out, nil
}

// parseHeight extracts the height from a "WIDTHxHEIGHT" resolution.
func parseHeight(resolution string) int {
	_, h, ok := strings.Cut(strings.ToLower(resolution), "x")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return 0
	}
	return n
}

func resolve(base *url.URL, ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", ref, err)
	}
	return base.ResolveReference(u).String(), nil
}
