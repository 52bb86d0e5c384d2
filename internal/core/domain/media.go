package domain

import "fmt"

type SessionID string
type SenderID string

// SenderHandle identifies a sender inside the media engine. Zero is never a
// valid handle.
type SenderHandle uint64

// TrackHandle identifies a track inside the media engine. Zero means "no track".
type TrackHandle uint64

// MediaKind is the media type carried by a track or sender.
type MediaKind uint32

const (
	MediaKindAudio MediaKind = iota
	MediaKindVideo
)

func (k MediaKind) String() string {
	switch k {
	case MediaKindAudio:
		return "audio"
	case MediaKindVideo:
		return "video"
	default:
		return fmt.Sprintf("MediaKind(%d)", uint32(k))
	}
}

// Valid reports whether k is one of the known kinds.
func (k MediaKind) Valid() bool {
	return k == MediaKindAudio || k == MediaKindVideo
}

// ParseMediaKind maps "audio" / "video" to a MediaKind.
func ParseMediaKind(s string) (MediaKind, error) {
	switch s {
	case "audio":
		return MediaKindAudio, nil
	case "video":
		return MediaKindVideo, nil
	default:
		return 0, fmt.Errorf("unknown media kind %q", s)
	}
}

func (k MediaKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *MediaKind) UnmarshalText(b []byte) error {
	parsed, err := ParseMediaKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Track describes a track attached to a sender. Width and Height are the
// source resolution and are zero for audio.
type Track struct {
	Handle TrackHandle `json:"handle"`
	ID     string      `json:"id"`
	Kind   MediaKind   `json:"kind"`
	Width  int         `json:"width,omitempty"`
	Height int         `json:"height,omitempty"`
}
