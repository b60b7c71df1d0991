package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/goicq/internal/event"
)

// FileURLPattern matches links to files hosted by the messenger. The id group
// captures the file id.
var FileURLPattern = regexp.MustCompile(
	`^https?://(?:(?i:files\.icq\.net/get)|(?i:(?:www\.)?icq\.com/files)|(?i:chat\.my\.com/files))/(?P<id>[a-zA-Z0-9]{32,})(?:\?.*)?$`,
)

var (
	ErrUnknownFileType = errors.New("unknown file type")
	ErrFileIDTooShort  = errors.New("file id too short")
)

// MediaKind is the coarse class encoded in a file id.
type MediaKind int

const (
	MediaImage MediaKind = iota + 1
	MediaVideo
	MediaAudio
)

func (k MediaKind) String() string {
	switch k {
	case MediaImage:
		return "image"
	case MediaVideo:
		return "video"
	case MediaAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Subtype is the fine-grained file type selected by the first char of an id.
type Subtype string

const (
	ImageRegular         Subtype = "image"
	ImageSnap            Subtype = "image_snap"
	ImageSticker         Subtype = "image_sticker"
	ImageAnimated        Subtype = "image_animated"
	ImageAnimatedSticker Subtype = "image_animated_sticker"
	VideoRegular         Subtype = "video"
	VideoSnap            Subtype = "video_snap"
	VideoPTS             Subtype = "video_pts"
	VideoPTSReserved     Subtype = "video_pts_reserved"
	VideoSticker         Subtype = "video_sticker"
	AudioRegular         Subtype = "audio"
	AudioSnap            Subtype = "audio_snap"
	AudioPTT             Subtype = "audio_ptt"
	AudioPTTReserved     Subtype = "audio_ptt_reserved"
	SubtypeReserved      Subtype = "reserved"
)

type subtypeInfo struct {
	kind    MediaKind
	subtype Subtype
}

var subtypes = map[byte]subtypeInfo{
	'0': {MediaImage, ImageRegular},
	'1': {MediaImage, ImageSnap},
	'2': {MediaImage, ImageSticker},
	'3': {MediaImage, SubtypeReserved},
	'4': {MediaImage, ImageAnimated},
	'5': {MediaImage, ImageAnimatedSticker},
	'6': {MediaImage, SubtypeReserved},
	'7': {MediaImage, SubtypeReserved},

	'8': {MediaVideo, VideoRegular},
	'9': {MediaVideo, VideoSnap},
	'A': {MediaVideo, VideoPTS},
	'B': {MediaVideo, VideoPTSReserved},
	'C': {MediaVideo, SubtypeReserved},
	'D': {MediaVideo, VideoSticker},
	'E': {MediaVideo, SubtypeReserved},
	'F': {MediaVideo, SubtypeReserved},

	'G': {MediaAudio, AudioRegular},
	'H': {MediaAudio, AudioSnap},
	'I': {MediaAudio, AudioPTT},
	'J': {MediaAudio, AudioPTTReserved},
	'K': {MediaAudio, SubtypeReserved},
	'L': {MediaAudio, SubtypeReserved},
	'M': {MediaAudio, SubtypeReserved},
	'N': {MediaAudio, SubtypeReserved},
}

const base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// decodeBase62 decodes s, which must only contain alphabet chars.
func decodeBase62(s string) (int, error) {
	n := 0
	for i := 0; i < len(s); i++ {
		d := strings.IndexByte(base62Alphabet, s[i])
		if d < 0 {
			return 0, fmt.Errorf("invalid base62 digit %q", s[i])
		}
		n = n*62 + d
	}
	return n, nil
}

// FileID is the metadata packed into the leading characters of a file id.
type FileID struct {
	ID      string
	Kind    MediaKind
	Subtype Subtype
	Width   int // image and video only
	Height  int // image and video only
	Length  int // audio only, seconds
}

// ParseFileID decodes the type and dimensions carried by a file id.
func ParseFileID(id string) (FileID, error) {
	if id == "" {
		return FileID{}, ErrFileIDTooShort
	}
	info, ok := subtypes[id[0]]
	if !ok {
		return FileID{}, fmt.Errorf("%w: %q", ErrUnknownFileType, id[0])
	}
	if len(id) < 5 {
		return FileID{}, fmt.Errorf("%w: %q", ErrFileIDTooShort, id)
	}

	f := FileID{ID: id, Kind: info.kind, Subtype: info.subtype}
	var err error
	switch info.kind {
	case MediaImage, MediaVideo:
		if f.Width, err = decodeBase62(id[1:3]); err != nil {
			return FileID{}, fmt.Errorf("parse file id width: %w", err)
		}
		if f.Height, err = decodeBase62(id[3:5]); err != nil {
			return FileID{}, fmt.Errorf("parse file id height: %w", err)
		}
	case MediaAudio:
		if f.Length, err = decodeBase62(id[3:5]); err != nil {
			return FileID{}, fmt.Errorf("parse file id length: %w", err)
		}
	}
	return f, nil
}

// ExtractFileID returns the file id of a file link, ignoring surrounding
// whitespace.
func ExtractFileID(text string) (string, bool) {
	m := FileURLPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", false
	}
	return m[FileURLPattern.SubexpIndex("id")], true
}

// FileIDFromEvent decodes the file id linked in a message event.
func FileIDFromEvent(ev event.Event) (FileID, error) {
	text, ok := ev.Message()
	if !ok {
		return FileID{}, errors.New("event has no message text")
	}
	id, ok := ExtractFileID(text)
	if !ok {
		return FileID{}, errors.New("message is not a file link")
	}
	return ParseFileID(id)
}
