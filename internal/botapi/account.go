package botapi

import (
	"context"
	"encoding/json"
	"strings"
)

// ValidateSID checks that the token is a live session id.
func (c *Client) ValidateSID(ctx context.Context) (json.RawMessage, error) {
	body, err := c.get(ctx, "validateSid", "aim/validateSid", c.baseParams())
	if err != nil {
		return nil, err
	}
	return unwrap("validateSid", body)
}

func (c *Client) GetBuddyList(ctx context.Context) (json.RawMessage, error) {
	body, err := c.get(ctx, "getBuddyList", "getBuddyList", c.baseParams())
	if err != nil {
		return nil, err
	}
	return unwrap("getBuddyList", body)
}

// ChatAdd invites members to chatID.
func (c *Client) ChatAdd(ctx context.Context, chatID string, members []string) (json.RawMessage, error) {
	form := c.baseParams()
	form.Set("chat_id", chatID)
	form.Set("members", strings.Join(members, ";"))

	body, err := c.postForm(ctx, "chatAdd", "chat/add", form)
	if err != nil {
		return nil, err
	}
	return unwrap("chatAdd", body)
}

// RemoveBuddy removes buddy from group, or from every group when allGroups
// is set.
func (c *Client) RemoveBuddy(ctx context.Context, buddy, group string, allGroups bool) (json.RawMessage, error) {
	form := c.baseParams()
	form.Set("buddy", buddy)
	if group != "" {
		form.Set("group", group)
	}
	form.Set("allGroups", boolFlag(allGroups))

	body, err := c.postForm(ctx, "removeBuddy", "buddylist/removeBuddy", form)
	if err != nil {
		return nil, err
	}
	return unwrap("removeBuddy", body)
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
