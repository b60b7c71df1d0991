package botapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/nextlevelbuilder/goicq/internal/event"
)

// MessageParseType selects which items of a message the receiving client
// should turn into previews or snippets.
type MessageParseType string

const (
	ParseURL       MessageParseType = "url"
	ParseFileShare MessageParseType = "filesharing"
)

// IMOptions are the optional fields of sendIM. A nil Parse leaves parsing to
// the server default; an empty non-nil Parse disables it.
type IMOptions struct {
	Mentions []string
	Parse    []MessageParseType
}

// SendIM sends text to target, split into several messages when it is longer
// than the wrap length.
func (c *Client) SendIM(ctx context.Context, target, text string) error {
	return c.SendIMWithOptions(ctx, target, text, IMOptions{})
}

// SendIMWithOptions is SendIM with mentions and parse control.
func (c *Client) SendIMWithOptions(ctx context.Context, target, text string, opts IMOptions) error {
	for _, chunk := range Wrap(text, c.wrapLength) {
		if err := c.sendChunk(ctx, target, chunk, opts); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) sendChunk(ctx context.Context, target, text string, opts IMOptions) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	form := c.baseParams()
	form.Set("t", target)
	form.Set("message", text)
	if len(opts.Mentions) > 0 {
		form.Set("mentions", strings.Join(opts.Mentions, ","))
	}
	if opts.Parse != nil {
		parse, err := json.Marshal(opts.Parse)
		if err != nil {
			return fmt.Errorf("marshal parse types: %w", err)
		}
		form.Set("parse", string(parse))
	}

	body, err := c.postForm(ctx, "sendIM", "im/sendIM", form)
	if err != nil {
		return err
	}
	data, err := unwrap("sendIM", body)
	if err != nil {
		return err
	}

	var sent struct {
		MsgID string `json:"msgId"`
	}
	if err := json.Unmarshal(data, &sent); err != nil {
		return &TransportError{Op: "sendIM", Err: fmt.Errorf("unmarshal msgId: %w", err)}
	}
	if c.recorder != nil && sent.MsgID != "" {
		c.recorder.RecordSent(sent.MsgID, text)
	}
	return nil
}

// SendSticker sends a sticker by its "ext:<pack>:sticker:<id>" id.
func (c *Client) SendSticker(ctx context.Context, target, stickerID string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	form := c.baseParams()
	form.Set("t", target)
	form.Set("stickerId", stickerID)

	body, err := c.postForm(ctx, "sendSticker", "im/sendSticker", form)
	if err != nil {
		return err
	}
	_, err = unwrap("sendSticker", body)
	return err
}

var typingStatuses = map[event.TypingStatus]bool{
	event.TypingLooking: true,
	event.TypingActive:  true,
	event.TypingTyped:   true,
	event.TypingNone:    true,
}

// SetTyping reports the bot's typing status in the dialog with target.
func (c *Client) SetTyping(ctx context.Context, target string, status event.TypingStatus) error {
	if !typingStatuses[status] {
		return fmt.Errorf("invalid typing status %q", status)
	}
	form := c.baseParams()
	form.Set("t", target)
	form.Set("typingStatus", string(status))

	body, err := c.postForm(ctx, "setTyping", "im/setTyping", form)
	if err != nil {
		return err
	}
	_, err = unwrap("setTyping", body)
	return err
}

// Wrap splits text into chunks of at most length characters, preferring to
// break after whitespace in the second half of a chunk. Lengths count runes.
func Wrap(text string, length int) []string {
	if length <= 0 {
		return []string{text}
	}
	runes := []rune(text)
	if len(runes) <= length {
		return []string{text}
	}

	var chunks []string
	for len(runes) > length {
		cut := length
		for i := length - 1; i >= length/2; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
