package mastodon

import (
	"bytes"
	"context"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	gomastodon "github.com/mattn/go-mastodon"

	"github.com/kimhsiao/mastofy/internal/errors"
	"github.com/kimhsiao/mastofy/internal/models"
)

// uploadable lists the top-level media types instances accept.
var uploadable = []string{"image/", "video/", "audio/"}

// UploadMedia uploads one file and returns the server's attachment record.
// Files whose sniffed content is not image, video or audio are rejected
// before any request is made.
func (c *Client) UploadMedia(ctx context.Context, file models.MediaFile) (*models.UploadedMedia, error) {
	if len(file.Data) == 0 {
		return nil, errors.New(errors.ErrValidation, "media file is empty")
	}
	if mime := mimetype.Detect(file.Data); !isUploadable(mime.String()) {
		return nil, errors.New(errors.ErrValidation,
			"unsupported media type "+mime.String()+" for "+file.Name)
	}

	mc, err := c.api()
	if err != nil {
		return nil, err
	}

	var raw *gomastodon.Attachment
	err = call(ctx, nil, func(ctx context.Context) error {
		var err error
		raw, err = mc.UploadMediaFromReader(ctx, bytes.NewReader(file.Data))
		return err
	})
	if err != nil {
		return nil, err
	}
	if raw == nil || raw.ID == "" {
		return nil, errors.Remote("upload response has no media id", nil)
	}
	return &models.UploadedMedia{ID: string(raw.ID), PreviewURL: raw.PreviewURL}, nil
}

func isUploadable(mime string) bool {
	for _, prefix := range uploadable {
		if strings.HasPrefix(mime, prefix) {
			return true
		}
	}
	return false
}
