package mastodon

import (
	"context"
	"net/http"
	"strings"

	gomastodon "github.com/mattn/go-mastodon"
	"github.com/oklog/ulid/v2"

	"github.com/kimhsiao/mastofy/internal/errors"
	"github.com/kimhsiao/mastofy/internal/models"
)

// Visibility of statuses posted by this client.
const Visibility = "public"

// PostStatus publishes a status with the given attachments. Each call carries
// a fresh Idempotency-Key so a retried request is not posted twice.
func (c *Client) PostStatus(ctx context.Context, content string, mediaIDs []string) (*models.Status, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New(errors.ErrValidation, "status content is empty")
	}
	mc, err := c.api()
	if err != nil {
		return nil, err
	}

	toot := &gomastodon.Toot{Status: content, Visibility: Visibility}
	for _, id := range mediaIDs {
		toot.MediaIDs = append(toot.MediaIDs, gomastodon.ID(id))
	}

	header := http.Header{}
	header.Set("Idempotency-Key", ulid.Make().String())

	var raw *gomastodon.Status
	err = call(ctx, &exchange{header: header}, func(ctx context.Context) error {
		var err error
		raw, err = mc.PostStatus(ctx, toot)
		return err
	})
	if err != nil {
		return nil, err
	}
	return normalizeStatus(raw), nil
}

// Favourite marks a status as favourited.
func (c *Client) Favourite(ctx context.Context, statusID string) (*models.Status, error) {
	return c.react(ctx, statusID, (*gomastodon.Client).Favourite)
}

// Unfavourite removes a favourite.
func (c *Client) Unfavourite(ctx context.Context, statusID string) (*models.Status, error) {
	return c.react(ctx, statusID, (*gomastodon.Client).Unfavourite)
}

// Reblog boosts a status.
func (c *Client) Reblog(ctx context.Context, statusID string) (*models.Status, error) {
	return c.react(ctx, statusID, (*gomastodon.Client).Reblog)
}

// Unreblog removes a boost.
func (c *Client) Unreblog(ctx context.Context, statusID string) (*models.Status, error) {
	return c.react(ctx, statusID, (*gomastodon.Client).Unreblog)
}

type reaction func(mc *gomastodon.Client, ctx context.Context, id gomastodon.ID) (*gomastodon.Status, error)

// react posts a reaction and returns the updated target status. A reblog
// answers with the new boost wrapping the target; the target is returned.
func (c *Client) react(ctx context.Context, statusID string, action reaction) (*models.Status, error) {
	if statusID == "" {
		return nil, errors.New(errors.ErrValidation, "status id is required")
	}
	mc, err := c.api()
	if err != nil {
		return nil, err
	}

	var raw *gomastodon.Status
	err = call(ctx, nil, func(ctx context.Context) error {
		var err error
		raw, err = action(mc, ctx, gomastodon.ID(statusID))
		return err
	})
	if err != nil {
		return nil, err
	}

	status := normalizeStatus(raw)
	if status == nil {
		return nil, errors.Remote("empty response", nil)
	}
	if status.ID != statusID && status.ReblogOf != nil {
		status = status.ReblogOf
	}
	return status, nil
}
