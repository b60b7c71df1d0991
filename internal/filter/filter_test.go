package filter

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/goicq/internal/event"
)

// counting records how many times it was evaluated.
type counting struct {
	result bool
	calls  int
}

func (c *counting) Match(event.Event) bool {
	c.calls++
	return c.result
}

func im(text string) event.Event {
	return event.New(event.KindIM, map[string]any{
		"message": text,
		"msgId":   "1",
		"source":  map[string]any{"aimId": "100"},
	})
}

func TestAnd_ShortCircuit(t *testing.T) {
	left := &counting{result: false}
	right := &counting{result: true}

	assert.False(t, And(left, right).Match(im("x")))
	assert.Equal(t, 1, left.calls)
	assert.Equal(t, 0, right.calls, "right operand must not run when left fails")
}

func TestOr_ShortCircuit(t *testing.T) {
	left := &counting{result: true}
	right := &counting{result: false}

	assert.True(t, Or(left, right).Match(im("x")))
	assert.Equal(t, 0, right.calls, "right operand must not run when left succeeds")
}

func TestNot(t *testing.T) {
	assert.False(t, Not(Always).Match(im("x")))
	assert.True(t, Not(Never).Match(im("x")))
}

func TestAnyAll_Empty(t *testing.T) {
	ev := im("x")
	assert.False(t, Any().Match(ev))
	assert.True(t, All().Match(ev))
}

func TestAnyAll_StopEarly(t *testing.T) {
	a := &counting{result: true}
	b := &counting{result: true}
	assert.True(t, Any(a, b).Match(im("x")))
	assert.Equal(t, 0, b.calls)

	c := &counting{result: false}
	d := &counting{result: true}
	assert.False(t, All(c, d).Match(im("x")))
	assert.Equal(t, 0, d.calls)
}

func TestCombinators_LazyConstruction(t *testing.T) {
	p := &counting{result: true}
	_ = And(p, Or(p, Not(p)))
	assert.Equal(t, 0, p.calls, "building an expression must not evaluate it")
}

func TestPrimitives_PlainText(t *testing.T) {
	ev := im("hello")

	tests := []struct {
		name string
		p    Predicate
		want bool
	}{
		{"Message", Message, true},
		{"Text", Text, true},
		{"Command", Command, false},
		{"Sticker", Sticker, false},
		{"File", File, false},
		{"Image", Image, false},
		{"Video", Video, false},
		{"Audio", Audio, false},
		{"Link", Link, false},
		{"Chat", Chat, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.Match(ev))
		})
	}
}

var (
	imageID = "02s2s" + strings.Repeat("a", 30)
	videoID = "8010g" + strings.Repeat("B", 30)
	audioID = "G000a" + strings.Repeat("c", 30)
)

func TestPrimitives_Classification(t *testing.T) {
	tests := []struct {
		name  string
		ev    event.Event
		match []Predicate
		miss  []Predicate
	}{
		{
			name:  "slash command",
			ev:    im("/help"),
			match: []Predicate{Message, Command},
			miss:  []Predicate{Text, Link, File},
		},
		{
			name:  "dot command with padding",
			ev:    im("  .status  "),
			match: []Predicate{Command},
			miss:  []Predicate{Text},
		},
		{
			name:  "plain link",
			ev:    im("https://example.com/page"),
			match: []Predicate{Message, Link},
			miss:  []Predicate{Text, File, Command},
		},
		{
			name:  "image file",
			ev:    im("https://files.icq.net/get/" + imageID),
			match: []Predicate{Message, File, Image},
			miss:  []Predicate{Link, Text, Video, Audio},
		},
		{
			name:  "video file on icq.com",
			ev:    im("http://www.ICQ.com/files/" + videoID + "?x=1"),
			match: []Predicate{File, Video},
			miss:  []Predicate{Image, Audio, Link},
		},
		{
			name:  "audio file on chat.my.com",
			ev:    im("https://chat.my.com/files/" + audioID),
			match: []Predicate{File, Audio},
			miss:  []Predicate{Image, Video},
		},
		{
			name: "sticker",
			ev: event.New(event.KindIM, map[string]any{
				"message":   "https://files.icq.net/get/" + imageID,
				"stickerId": "ext:1:sticker:2",
			}),
			match: []Predicate{Sticker, File},
			miss:  []Predicate{Text},
		},
		{
			name: "group chat message",
			ev: event.New(event.KindIM, map[string]any{
				"message":     "hi all",
				"MChat_Attrs": map[string]any{"sender": "200"},
			}),
			match: []Predicate{Message, Text, Chat},
		},
		{
			name: "non-string message",
			ev:   event.New(event.KindIM, map[string]any{"message": 12.0}),
			miss: []Predicate{Message, Text, Command, File, Link, Chat},
		},
		{
			name: "no attributes",
			ev:   event.New(event.KindTyping, nil),
			miss: []Predicate{Message, Text, Sticker, Chat},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i, p := range tt.match {
				assert.True(t, p.Match(tt.ev), "match[%d]", i)
			}
			for i, p := range tt.miss {
				assert.False(t, p.Match(tt.ev), "miss[%d]", i)
			}
		})
	}
}

func TestParseFileID(t *testing.T) {
	f, err := ParseFileID(imageID)
	require.NoError(t, err)
	assert.Equal(t, MediaImage, f.Kind)
	assert.Equal(t, ImageRegular, f.Subtype)
	assert.Equal(t, 2*62+28, f.Width)
	assert.Equal(t, 2*62+28, f.Height)

	f, err = ParseFileID(videoID)
	require.NoError(t, err)
	assert.Equal(t, MediaVideo, f.Kind)
	assert.Equal(t, 1, f.Width)
	assert.Equal(t, 16, f.Height)

	f, err = ParseFileID(audioID)
	require.NoError(t, err)
	assert.Equal(t, MediaAudio, f.Kind)
	assert.Equal(t, 10, f.Length)

	f, err = ParseFileID("I00" + "05" + strings.Repeat("z", 30))
	require.NoError(t, err)
	assert.Equal(t, AudioPTT, f.Subtype)
}

func TestParseFileID_Errors(t *testing.T) {
	_, err := ParseFileID("Z" + strings.Repeat("a", 32))
	assert.ErrorIs(t, err, ErrUnknownFileType)

	_, err = ParseFileID("0ab")
	assert.ErrorIs(t, err, ErrFileIDTooShort)

	_, err = ParseFileID("")
	assert.ErrorIs(t, err, ErrFileIDTooShort)
}

func TestExtractFileID(t *testing.T) {
	id, ok := ExtractFileID(" https://files.icq.net/get/" + imageID + " ")
	require.True(t, ok)
	assert.Equal(t, imageID, id)

	_, ok = ExtractFileID("https://files.icq.net/get/short")
	assert.False(t, ok)

	_, ok = ExtractFileID("see https://files.icq.net/get/" + imageID)
	assert.False(t, ok, "file link must be the whole message")
}

func TestFileIDFromEvent(t *testing.T) {
	f, err := FileIDFromEvent(im("https://icq.com/files/" + audioID))
	require.NoError(t, err)
	assert.Equal(t, MediaAudio, f.Kind)

	_, err = FileIDFromEvent(im("hello"))
	assert.Error(t, err)
}

func TestRegexpAndFrom(t *testing.T) {
	p := And(Regexp(regexp.MustCompile(`^ping$`)), From("100"))
	assert.True(t, p.Match(im(" ping ")))
	assert.False(t, p.Match(im("pong")))

	other := event.New(event.KindIM, map[string]any{
		"message": "ping",
		"source":  map[string]any{"aimId": "999"},
	})
	assert.False(t, p.Match(other))
}

func TestOfKind(t *testing.T) {
	p := OfKind(event.KindTyping, event.KindSentIM)
	assert.True(t, p.Match(event.New(event.KindTyping, nil)))
	assert.False(t, p.Match(im("x")))
}
