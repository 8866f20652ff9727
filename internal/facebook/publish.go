package facebook

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/fbpage-agent/internal/models"
)

// graphID is the common {"id": ...} create response
type graphID struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

// Publish sends one resolved payload to a page, either immediately or scheduled
// for scheduleAt. It never records anything; the caller decides what a success means.
func (c *Client) Publish(ctx context.Context, payload *models.Payload, dest models.Destination, scheduleAt *time.Time, placeID string) (*models.PublishResult, error) {
	if payload == nil {
		return nil, errors.New("nothing to publish")
	}
	if dest.ID == "" {
		return nil, errors.New("destination page is not set")
	}

	var (
		result *models.PublishResult
		err    error
	)
	switch payload.Kind {
	case models.PayloadPhoto:
		result, err = c.publishPhoto(ctx, payload, dest, scheduleAt, placeID)
	case models.PayloadVideo:
		result, err = c.publishVideo(ctx, payload, dest, scheduleAt, placeID)
	case models.PayloadPhotoURL:
		result, err = c.publishPhotoURL(ctx, payload, dest, scheduleAt, placeID)
	case models.PayloadLink:
		result, err = c.publishLink(ctx, payload, dest, scheduleAt, placeID)
	default:
		return nil, fmt.Errorf("unsupported payload kind %q", payload.Kind)
	}
	if err != nil {
		return nil, err
	}

	if scheduleAt != nil {
		at := *scheduleAt
		result.ScheduledAt = &at
	} else {
		result.Published = true
	}

	c.log.Info().
		Str("page_id", dest.ID).
		Str("kind", string(payload.Kind)).
		Str("post_id", result.PostID).
		Bool("scheduled", scheduleAt != nil).
		Msg("Published to page")

	return result, nil
}

// UploadUnpublishedPhoto is the first step of a photo post: the image is stored
// on the page without appearing in the feed and its media id is returned.
func (c *Client) UploadUnpublishedPhoto(ctx context.Context, dest models.Destination, fileName string, data []byte, temporary bool) (string, error) {
	if len(data) == 0 {
		return "", errors.New("photo upload has no data")
	}
	fields := url.Values{}
	fields.Set("published", "false")
	// scheduled posts may only reference photos uploaded as temporary
	if temporary {
		fields.Set("temporary", "true")
	}

	var resp graphID
	if err := c.postMultipart(ctx, "/"+dest.ID+"/photos", dest.AccessToken, fields, fileName, data, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("photo upload returned no media id")
	}
	return resp.ID, nil
}

func (c *Client) publishPhoto(ctx context.Context, p *models.Payload, dest models.Destination, scheduleAt *time.Time, placeID string) (*models.PublishResult, error) {
	mediaID, err := c.UploadUnpublishedPhoto(ctx, dest, fileNameOr(p.FileName, "photo.jpg"), p.Data, scheduleAt != nil)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("message", p.Caption)
	form.Set("attached_media[0]", fmt.Sprintf(`{"media_fbid":"%s"}`, mediaID))
	setPlace(form, placeID)
	setPublishTime(form, scheduleAt)

	var resp graphID
	if err := c.postForm(ctx, "/"+dest.ID+"/feed", dest.AccessToken, form, &resp); err != nil {
		return nil, err
	}
	return &models.PublishResult{PostID: resp.ID, MediaID: mediaID}, nil
}

// publishVideo uses the single-call video endpoint; unpublished videos cannot
// be attached to a feed post the way photos can.
func (c *Client) publishVideo(ctx context.Context, p *models.Payload, dest models.Destination, scheduleAt *time.Time, placeID string) (*models.PublishResult, error) {
	if len(p.Data) == 0 {
		return nil, errors.New("video upload has no data")
	}
	fields := url.Values{}
	fields.Set("description", p.Caption)
	setPlace(fields, placeID)
	setPublishTime(fields, scheduleAt)

	var resp graphID
	if err := c.postMultipart(ctx, "/"+dest.ID+"/videos", dest.AccessToken, fields, fileNameOr(p.FileName, "video.mp4"), p.Data, &resp); err != nil {
		return nil, err
	}
	return &models.PublishResult{PostID: resp.ID, MediaID: resp.ID}, nil
}

func (c *Client) publishPhotoURL(ctx context.Context, p *models.Payload, dest models.Destination, scheduleAt *time.Time, placeID string) (*models.PublishResult, error) {
	if p.URL == "" {
		return nil, errors.New("photo url is empty")
	}
	form := url.Values{}
	form.Set("url", p.URL)
	form.Set("caption", p.Caption)
	setPlace(form, placeID)
	setPublishTime(form, scheduleAt)

	var resp graphID
	if err := c.postForm(ctx, "/"+dest.ID+"/photos", dest.AccessToken, form, &resp); err != nil {
		return nil, err
	}
	postID := resp.PostID
	if postID == "" {
		postID = resp.ID
	}
	return &models.PublishResult{PostID: postID, MediaID: resp.ID}, nil
}

func (c *Client) publishLink(ctx context.Context, p *models.Payload, dest models.Destination, scheduleAt *time.Time, placeID string) (*models.PublishResult, error) {
	form := url.Values{}
	form.Set("message", p.Caption)
	if p.URL != "" {
		form.Set("link", p.URL)
	}
	setPlace(form, placeID)
	setPublishTime(form, scheduleAt)

	var resp graphID
	if err := c.postForm(ctx, "/"+dest.ID+"/feed", dest.AccessToken, form, &resp); err != nil {
		return nil, err
	}
	return &models.PublishResult{PostID: resp.ID}, nil
}

func setPlace(form url.Values, placeID string) {
	if placeID != "" {
		form.Set("place", placeID)
	}
}

// setPublishTime is the publish/schedule toggle shared by every create call
func setPublishTime(form url.Values, scheduleAt *time.Time) {
	if scheduleAt == nil {
		form.Set("published", "true")
		return
	}
	form.Set("published", "false")
	form.Set("scheduled_publish_time", strconv.FormatInt(scheduleAt.Unix(), 10))
}

func fileNameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
