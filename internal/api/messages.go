package api

import (
	"context"
	"net/url"

	"github.com/tchatapp/tchat/internal/store"
)

// FetchConversation returns the server's current full view of the
// conversation with a peer. The server always returns the entire history,
// not an incremental range; the sync engine relies on that.
func (c *Client) FetchConversation(ctx context.Context, peerID string) ([]store.Message, error) {
	var msgs []store.Message
	if err := c.doRequest(ctx, "GET", "/messages/get/"+url.PathEscape(peerID), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendMessage posts a text message to a peer.
func (c *Client) SendMessage(ctx context.Context, peerID, text string) error {
	body := map[string]string{"message": text}
	return c.doRequest(ctx, "POST", "/messages/send/"+url.PathEscape(peerID), body, nil)
}

// DeleteMessages deletes the conversation history up to and including the
// given message id (the server keys the deletion on the latest message).
func (c *Client) DeleteMessages(ctx context.Context, latestMessageID string) error {
	return c.doRequest(ctx, "DELETE", "/messages/delete/"+url.PathEscape(latestMessageID), nil, nil)
}
