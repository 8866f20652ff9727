package models

import (
	"path/filepath"
	"time"
)

// ItemKind distinguishes the sources a queue item can come from
type ItemKind string

const (
	ItemKindUpload    ItemKind = "upload"     // local image or video file
	ItemKindCrossPost ItemKind = "cross_post" // existing post on another page
	ItemKindNews      ItemKind = "news"       // article from a news feed
)

// QueueItem is one unit of work for a scheduling run
type QueueItem struct {
	Kind ItemKind `json:"kind"`

	// Upload items
	FilePath string `json:"file_path,omitempty"`

	// Cross-post items
	SourcePost *SourcePost `json:"source_post,omitempty"`

	// News items
	Article *Article `json:"article,omitempty"`
}

// SourcePost is an existing remote post selected for cross-posting
type SourcePost struct {
	ID          string    `json:"id"`
	PageID      string    `json:"page_id"`
	Message     string    `json:"message"`
	PictureURL  string    `json:"full_picture"`
	CreatedTime time.Time `json:"created_time"`
}

// Article is a news entry turned into an AI-authored fact card
type Article struct {
	GUID        string    `json:"guid"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	URL         string    `json:"url"`
	FeedName    string    `json:"feed_name"`
	PublishedAt time.Time `json:"published_at"`
}

// SourceID returns the stable identity used for de-duplication
func (q QueueItem) SourceID() string {
	switch q.Kind {
	case ItemKindUpload:
		return filepath.Base(q.FilePath)
	case ItemKindCrossPost:
		if q.SourcePost != nil {
			return q.SourcePost.ID
		}
	case ItemKindNews:
		if q.Article != nil {
			if q.Article.GUID != "" {
				return q.Article.GUID
			}
			return q.Article.URL
		}
	}
	return ""
}

// Label is the short human readable name shown in run logs
func (q QueueItem) Label() string {
	switch q.Kind {
	case ItemKindUpload:
		return filepath.Base(q.FilePath)
	case ItemKindCrossPost:
		if q.SourcePost != nil {
			return "post " + q.SourcePost.ID
		}
	case ItemKindNews:
		if q.Article != nil {
			return truncate(q.Article.Title, 60)
		}
	}
	return string(q.Kind)
}

// Destination is the page a run publishes to, with its own page access token
type Destination struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"-"`
}

// PayloadKind selects which Graph protocol publishes a payload
type PayloadKind string

const (
	PayloadPhoto    PayloadKind = "photo"     // raw image bytes, two-step publish
	PayloadVideo    PayloadKind = "video"     // raw video bytes
	PayloadPhotoURL PayloadKind = "photo_url" // re-post of a remote photo
	PayloadLink     PayloadKind = "link"      // text post with optional link
)

// Payload is the resolved content for a single publish call
type Payload struct {
	Kind     PayloadKind
	Caption  string
	Data     []byte
	FileName string
	MIMEType string
	URL      string // photo URL or article link
}

// PublishResult is the normalized outcome of a publish call
type PublishResult struct {
	PostID      string
	MediaID     string
	ScheduledAt *time.Time
	Published   bool
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PublishRecord describes one successfully published item for external trackers
type PublishRecord struct {
	RunID       string
	ItemKind    ItemKind
	ItemLabel   string
	SourceID    string
	PageID      string
	PageName    string
	PostID      string
	Caption     string
	ScheduledAt *time.Time
	RecordedAt  time.Time
}
