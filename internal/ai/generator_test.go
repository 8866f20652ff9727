package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/pkg/logger"
)

type fakeCompleter struct {
	reply  string
	err    error
	system string
	user   string
	img    *Image
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string, img *Image) (string, error) {
	f.system, f.user, f.img = system, user, img
	return f.reply, f.err
}

func TestParseCaption(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"caption": "Golden hour at the pier #sunset"}`, "Golden hour at the pier #sunset"},
		{"```json\n{\"caption\": \"Wrapped in a block\"}\n```", "Wrapped in a block"},
		{`"Just quoted text"`, "Just quoted text"},
		{"  plain reply  ", "plain reply"},
		{`{"caption": "   "}`, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, parseCaption(tc.in), tc.in)
	}
}

func TestCaptionFromImage(t *testing.T) {
	fc := &fakeCompleter{reply: `{"caption":"Morning coffee ☕ #cafe"}`}
	g := NewGenerator(fc, logger.Nop())

	got, err := g.CaptionFromImage(context.Background(),
		Image{Data: []byte{0xff, 0xd8}, MIMEType: "image/jpeg"},
		CaptionRequest{Language: "Spanish", Context: "bakery in Lima"})
	require.NoError(t, err)
	assert.Equal(t, "Morning coffee ☕ #cafe", got)

	require.NotNil(t, fc.img)
	assert.Equal(t, "image/jpeg", fc.img.MIMEType)
	assert.Contains(t, fc.system, "Write in Spanish")
	assert.Contains(t, fc.user, "bakery in Lima")

	_, err = g.CaptionFromImage(context.Background(), Image{}, CaptionRequest{})
	assert.Error(t, err)
}

func TestRewriteAndNewsCard(t *testing.T) {
	fc := &fakeCompleter{reply: `{"caption":"fresh"}`}
	g := NewGenerator(fc, logger.Nop())

	got, err := g.RewriteCaption(context.Background(), "old words", CaptionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "fresh", got)
	assert.Nil(t, fc.img)
	assert.Contains(t, fc.user, "old words")
	assert.Contains(t, fc.system, "Write in English")

	_, err = g.NewsCard(context.Background(), models.Article{Title: "Octopuses have three hearts", Summary: "Biology", FeedName: "Science Daily"}, CaptionRequest{Language: "French"})
	require.NoError(t, err)
	assert.Contains(t, fc.user, "Octopuses have three hearts")
	assert.Contains(t, fc.system, "Write in French")
}

func TestGeneratorSurfacesErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	g := NewGenerator(&fakeCompleter{err: boom}, logger.Nop())
	_, err := g.RewriteCaption(context.Background(), "x", CaptionRequest{})
	assert.ErrorIs(t, err, boom)

	g = NewGenerator(&fakeCompleter{reply: `{"caption":""}`}, logger.Nop())
	_, err = g.RewriteCaption(context.Background(), "x", CaptionRequest{})
	assert.ErrorIs(t, err, ErrEmptyCaption)
}
