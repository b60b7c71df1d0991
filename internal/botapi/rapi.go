package botapi

import (
	"context"
	"encoding/json"
)

// rapiRequest is the JSON body of a /rapi call.
type rapiRequest struct {
	Method string         `json:"method"`
	ReqID  string         `json:"reqId"`
	AimSID string         `json:"aimsid"`
	Params map[string]any `json:"params"`
}

// rapi calls a chat administration method and returns the raw response.
func (c *Client) rapi(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := c.postJSON(ctx, method, "rapi", rapiRequest{
		Method: method,
		ReqID:  requestID(),
		AimSID: c.token,
		Params: params,
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (c *Client) BlockChatMembers(ctx context.Context, sn string, members []string) (json.RawMessage, error) {
	return c.rapi(ctx, "blockChatMembers", map[string]any{"sn": sn, "members": members})
}

func (c *Client) UnblockChatMembers(ctx context.Context, sn string, members []string) (json.RawMessage, error) {
	return c.rapi(ctx, "unblockChatMembers", map[string]any{"sn": sn, "members": members})
}

// ChatResolvePending approves or rejects pending join requests.
func (c *Client) ChatResolvePending(ctx context.Context, sn string, members []string) (json.RawMessage, error) {
	return c.rapi(ctx, "chatResolvePending", map[string]any{"sn": sn, "members": members})
}

// DeleteMessage deletes msgID in chat sn. shared also deletes it for the
// other participants.
func (c *Client) DeleteMessage(ctx context.Context, sn, msgID string, shared bool) (json.RawMessage, error) {
	params := map[string]any{"sn": sn, "msgId": msgID}
	if shared {
		params["shared"] = true
	}
	return c.rapi(ctx, "delMsg", params)
}

// ChatQuery identifies a chat by stamp or sn.
type ChatQuery struct {
	Stamp       string
	SN          string
	MemberLimit int
}

func (q ChatQuery) params() map[string]any {
	p := map[string]any{}
	if q.Stamp != "" {
		p["stamp"] = q.Stamp
	}
	if q.SN != "" {
		p["sn"] = q.SN
	}
	if q.MemberLimit > 0 {
		p["memberLimit"] = q.MemberLimit
	}
	return p
}

func (c *Client) GetChatInfo(ctx context.Context, q ChatQuery) (json.RawMessage, error) {
	return c.rapi(ctx, "getChatInfo", q.params())
}

func (c *Client) GetChatAdmins(ctx context.Context, q ChatQuery) (json.RawMessage, error) {
	return c.rapi(ctx, "getChatAdmins", q.params())
}

func (c *Client) GetChatBlocked(ctx context.Context, sn string, memberLimit int) (json.RawMessage, error) {
	return c.rapi(ctx, "getChatBlocked", ChatQuery{SN: sn, MemberLimit: memberLimit}.params())
}

func (c *Client) GetChatPending(ctx context.Context, sn string, memberLimit int) (json.RawMessage, error) {
	return c.rapi(ctx, "getPendingList", ChatQuery{SN: sn, MemberLimit: memberLimit}.params())
}

// HistoryQuery selects a range of chat history. PatchVersion defaults to
// "init".
type HistoryQuery struct {
	SN           string
	FromMsgID    string
	Count        int
	PatchVersion string
	TillMsgID    string
}

func (c *Client) GetHistory(ctx context.Context, q HistoryQuery) (json.RawMessage, error) {
	if q.PatchVersion == "" {
		q.PatchVersion = "init"
	}
	params := map[string]any{
		"sn":           q.SN,
		"fromMsgId":    q.FromMsgID,
		"count":        q.Count,
		"patchVersion": q.PatchVersion,
	}
	if q.TillMsgID != "" {
		params["tillMsgId"] = q.TillMsgID
	}
	return c.rapi(ctx, "getHistory", params)
}

// ModChatMember changes the role of memberSN in the chat with stamp.
func (c *Client) ModChatMember(ctx context.Context, stamp, memberSN, role string) (json.RawMessage, error) {
	return c.rapi(ctx, "modChatMember", map[string]any{
		"stamp":    stamp,
		"memberSn": memberSN,
		"role":     role,
	})
}

func (c *Client) PinMessage(ctx context.Context, sn, msgID string, unpin bool) (json.RawMessage, error) {
	params := map[string]any{"sn": sn, "msgId": msgID}
	if unpin {
		params["unpin"] = true
	}
	return c.rapi(ctx, "pinMessage", params)
}
