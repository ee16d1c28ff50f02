package api

import (
	"context"
	"fmt"
)

// ListPosts returns the matched posts visible to the operator.
func (c *Client) ListPosts(ctx context.Context) ([]MatchedPost, error) {
	var posts []MatchedPost
	if err := c.get(ctx, "/api/posts/", nil, &posts); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// MarkReviewed marks a matched post as reviewed.
func (c *Client) MarkReviewed(ctx context.Context, postID int64) error {
	return c.post(ctx, fmt.Sprintf("/api/posts/%d/review", postID), nil, nil)
}

// MarkFlagged toggles the flag on a matched post.
func (c *Client) MarkFlagged(ctx context.Context, postID int64) error {
	return c.post(ctx, fmt.Sprintf("/api/posts/%d/flag", postID), nil, nil)
}

// MarkResponseCopied records that a generated response was copied out
// for use.
func (c *Client) MarkResponseCopied(ctx context.Context, responseID int64) (*GeneratedResponse, error) {
	var resp GeneratedResponse
	if err := c.post(ctx, fmt.Sprintf("/api/posts/responses/%d/copied", responseID), nil, &resp); err != nil {
		return nil, fmt.Errorf("mark response copied: %w", err)
	}
	return &resp, nil
}
