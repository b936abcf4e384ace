package mastodon

import (
	"context"

	gomastodon "github.com/mattn/go-mastodon"

	"github.com/kimhsiao/mastofy/internal/errors"
	"github.com/kimhsiao/mastofy/internal/models"
)

// FetchFeed returns the newest page of the feed a column shows.
func (c *Client) FetchFeed(ctx context.Context, columnType models.ColumnType, options *models.ColumnOptions) ([]models.TimelineItem, error) {
	var fetch func(ctx context.Context, mc *gomastodon.Client) ([]*gomastodon.Status, error)

	switch columnType {
	case models.ColumnHome:
		fetch = func(ctx context.Context, mc *gomastodon.Client) ([]*gomastodon.Status, error) {
			return mc.GetTimelineHome(ctx, c.pagination())
		}
	case models.ColumnLocal, models.ColumnPublic:
		local := columnType == models.ColumnLocal
		fetch = func(ctx context.Context, mc *gomastodon.Client) ([]*gomastodon.Status, error) {
			return mc.GetTimelinePublic(ctx, local, c.pagination())
		}
	case models.ColumnHashtag:
		tag := models.NormalizeHashtag(options.HashtagOf())
		if tag == "" {
			return nil, errors.New(errors.ErrValidation, "hashtag columns require a hashtag")
		}
		fetch = func(ctx context.Context, mc *gomastodon.Client) ([]*gomastodon.Status, error) {
			return mc.GetTimelineHashtag(ctx, tag, false, c.pagination())
		}
	case models.ColumnNotifications:
		return c.fetchNotifications(ctx)
	default:
		return nil, errors.New(errors.ErrValidation, "unknown column type: "+string(columnType))
	}

	mc, err := c.api()
	if err != nil {
		return nil, err
	}

	var raw []*gomastodon.Status
	err = call(ctx, c.feedExchange(), func(ctx context.Context) error {
		var err error
		raw, err = fetch(ctx, mc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return statusItems(raw), nil
}

func (c *Client) fetchNotifications(ctx context.Context) ([]models.TimelineItem, error) {
	mc, err := c.api()
	if err != nil {
		return nil, err
	}

	var raw []*gomastodon.Notification
	err = call(ctx, c.feedExchange(), func(ctx context.Context) error {
		var err error
		raw, err = mc.GetNotifications(ctx, c.pagination())
		return err
	})
	if err != nil {
		return nil, err
	}
	return notificationItems(raw), nil
}
