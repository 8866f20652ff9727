package facebook

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/fbpage-agent/internal/models"
)

// graphTime is the timestamp layout Graph uses, e.g. 2024-01-02T15:04:05+0000
const graphTime = "2006-01-02T15:04:05-0700"

type pageList struct {
	Data []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		AccessToken string `json:"access_token"`
	} `json:"data"`
}

// ListPages returns the pages the user manages, each with its own page token
func (c *Client) ListPages(ctx context.Context, userToken string) ([]models.Destination, error) {
	query := url.Values{}
	query.Set("fields", "id,name,access_token")
	query.Set("limit", "100")

	var resp pageList
	if err := c.get(ctx, "/me/accounts", userToken, query, &resp); err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}

	pages := make([]models.Destination, 0, len(resp.Data))
	for _, p := range resp.Data {
		pages = append(pages, models.Destination{ID: p.ID, Name: p.Name, AccessToken: p.AccessToken})
	}
	return pages, nil
}

type postList struct {
	Data []struct {
		ID          string `json:"id"`
		Message     string `json:"message"`
		FullPicture string `json:"full_picture"`
		CreatedTime string `json:"created_time"`
	} `json:"data"`
}

// ListPagePosts returns the most recent posts of a page as cross-post candidates.
// Posts without a picture are left out.
func (c *Client) ListPagePosts(ctx context.Context, source models.Destination, limit int) ([]models.SourcePost, error) {
	if limit <= 0 {
		limit = 25
	}
	query := url.Values{}
	query.Set("fields", "id,message,full_picture,created_time")
	query.Set("limit", strconv.Itoa(limit))

	var resp postList
	if err := c.get(ctx, "/"+source.ID+"/posts", source.AccessToken, query, &resp); err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	posts := make([]models.SourcePost, 0, len(resp.Data))
	for _, p := range resp.Data {
		if p.FullPicture == "" {
			continue
		}
		created, _ := time.Parse(graphTime, p.CreatedTime)
		posts = append(posts, models.SourcePost{
			ID:          p.ID,
			PageID:      source.ID,
			Message:     p.Message,
			PictureURL:  p.FullPicture,
			CreatedTime: created,
		})
	}
	return posts, nil
}
