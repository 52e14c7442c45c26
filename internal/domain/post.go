package domain

import (
	"strings"
	"time"
)

// MediaKind classifies a post's attached media.
type MediaKind string

const (
	MediaKindPhoto MediaKind = "photo"
	MediaKindVideo MediaKind = "video"
)

// MediaStatus is the resolution state of a post's media attachment.
type MediaStatus int

const (
	// MediaNone means the post carries no media.
	MediaNone MediaStatus = iota
	// MediaPending means the post has media but its URL is not yet known.
	MediaPending
	// MediaResolving means a resolution is in flight.
	MediaResolving
	// MediaResolved is terminal: the URL is known.
	MediaResolved
	// MediaUnavailable is terminal: resolution attempts were exhausted.
	MediaUnavailable
)

// String returns a short label for logging.
func (s MediaStatus) String() string {
	switch s {
	case MediaNone:
		return "none"
	case MediaPending:
		return "pending"
	case MediaResolving:
		return "resolving"
	case MediaResolved:
		return "resolved"
	case MediaUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further resolution may be attempted.
func (s MediaStatus) Terminal() bool {
	return s == MediaNone || s == MediaResolved || s == MediaUnavailable
}

// MediaState is the tagged media-resolution state carried by a post.
// Attempts is meaningful only while Status is MediaResolving and never
// decreases within one resolution.
type MediaState struct {
	Status   MediaStatus
	Attempts int
	URL      string
	Kind     MediaKind
}

// Post is one unit of channel content with optional media. ID is the
// server-assigned message id, positive and stable.
type Post struct {
	ID        int64
	ChannelID int64
	Text      string
	Date      time.Time
	EditDate  time.Time
	Views     int
	Edited    bool
	Media     MediaState
}

// ParseWireTime parses a timestamp as delivered by the mirror backend
// (RFC3339).
func ParseWireTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// InferMediaKind decides a media kind from an explicit type field, falling
// back to a URL file-extension heuristic when the type is absent.
func InferMediaKind(mediaType, url string) MediaKind {
	switch mediaType {
	case "video":
		return MediaKindVideo
	case "photo", "image":
		return MediaKindPhoto
	}
	lower := strings.ToLower(url)
	for _, ext := range []string{".mp4", ".webm", ".mov"} {
		if strings.HasSuffix(lower, ext) {
			return MediaKindVideo
		}
	}
	return MediaKindPhoto
}
