// Package compose holds the post draft: text, uploaded media and submission.
package compose

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kimhsiao/mastofy/internal/errors"
	"github.com/kimhsiao/mastofy/internal/logging"
	"github.com/kimhsiao/mastofy/internal/models"
)

// MaxMedia is the number of attachments a post may carry.
const MaxMedia = 4

// Gateway is the part of the server API the composer needs.
type Gateway interface {
	UploadMedia(ctx context.Context, file models.MediaFile) (*models.UploadedMedia, error)
	PostStatus(ctx context.Context, content string, mediaIDs []string) (*models.Status, error)
}

// Draft is the post being written.
type Draft struct {
	Content string
	Media   []models.UploadedMedia
}

// Composer owns a single draft. Its methods are safe for concurrent use.
type Composer struct {
	gateway           Gateway
	maxImageDimension int
	onPosted          func(*models.Status)

	mu        sync.Mutex
	draft     Draft
	uploading int
	posting   bool
}

// Option configures a Composer.
type Option func(*Composer)

// WithMaxImageDimension sets the longest side kept by uploaded images.
// Zero disables downscaling.
func WithMaxImageDimension(n int) Option {
	return func(c *Composer) {
		c.maxImageDimension = n
	}
}

// WithPostedHook registers a callback run after a successful Submit.
func WithPostedHook(fn func(*models.Status)) Option {
	return func(c *Composer) {
		c.onPosted = fn
	}
}

// New creates a Composer with an empty draft.
func New(gateway Gateway, opts ...Option) *Composer {
	c := &Composer{
		gateway:           gateway,
		maxImageDimension: DefaultMaxImageDimension,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetContent replaces the draft text.
func (c *Composer) SetContent(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft.Content = content
}

// Draft returns a copy of the draft.
func (c *Composer) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Draft{
		Content: c.draft.Content,
		Media:   append([]models.UploadedMedia(nil), c.draft.Media...),
	}
}

// AttachMedia uploads files concurrently and appends them to the draft.
// The attachment limit is checked before any upload. If any upload fails
// nothing is attached.
func (c *Composer) AttachMedia(ctx context.Context, files ...models.MediaFile) ([]models.UploadedMedia, error) {
	if len(files) == 0 {
		return nil, nil
	}

	c.mu.Lock()
	if len(c.draft.Media)+c.uploading+len(files) > MaxMedia {
		c.mu.Unlock()
		return nil, errors.New(errors.ErrValidation,
			fmt.Sprintf("You can only attach up to %d media files", MaxMedia))
	}
	c.uploading += len(files)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.uploading -= len(files)
		c.mu.Unlock()
	}()

	uploaded := make([]models.UploadedMedia, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, file := range files {
		g.Go(func() error {
			prepared := PrepareMedia(file, c.maxImageDimension)
			media, err := c.gateway.UploadMedia(gctx, prepared)
			if err != nil {
				return err
			}
			uploaded[i] = *media
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logging.Error("Media upload failed", err, map[string]interface{}{"files": len(files)})
		return nil, err
	}

	c.mu.Lock()
	c.draft.Media = append(c.draft.Media, uploaded...)
	c.mu.Unlock()

	logging.Info("Media attached", map[string]interface{}{"count": len(uploaded)})
	return uploaded, nil
}

// RemoveMedia drops the attachment at index.
func (c *Composer) RemoveMedia(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= len(c.draft.Media) {
		return errors.New(errors.ErrNotFound, fmt.Sprintf("no attachment at index %d", index))
	}
	c.draft.Media = append(c.draft.Media[:index:index], c.draft.Media[index+1:]...)
	return nil
}

// clearPosted drops what a successful post sent. Text replaced and media
// attached while the post was in flight stay in the draft. c.mu is held.
func (c *Composer) clearPosted(content string, mediaIDs []string) {
	if c.draft.Content == content {
		c.draft.Content = ""
	}

	posted := make(map[string]struct{}, len(mediaIDs))
	for _, id := range mediaIDs {
		posted[id] = struct{}{}
	}
	kept := c.draft.Media[:0:0]
	for _, m := range c.draft.Media {
		if _, ok := posted[m.ID]; !ok {
			kept = append(kept, m)
		}
	}
	c.draft.Media = kept
}

// Submit posts the draft. What was posted is cleared only when the post
// succeeds.
func (c *Composer) Submit(ctx context.Context) (*models.Status, error) {
	c.mu.Lock()
	switch {
	case strings.TrimSpace(c.draft.Content) == "":
		c.mu.Unlock()
		return nil, errors.New(errors.ErrValidation, "Status content is empty")
	case c.uploading > 0:
		c.mu.Unlock()
		return nil, errors.New(errors.ErrValidation, "Media upload in progress")
	case c.posting:
		c.mu.Unlock()
		return nil, errors.New(errors.ErrValidation, "Post already in progress")
	}
	c.posting = true
	content := c.draft.Content
	mediaIDs := make([]string, len(c.draft.Media))
	for i, m := range c.draft.Media {
		mediaIDs[i] = m.ID
	}
	c.mu.Unlock()

	status, err := c.gateway.PostStatus(ctx, content, mediaIDs)

	c.mu.Lock()
	c.posting = false
	if err == nil {
		c.clearPosted(content, mediaIDs)
	}
	c.mu.Unlock()

	if err != nil {
		logging.ErrorWithCode("Failed to post status", string(errors.CodeOf(err)), err)
		return nil, err
	}

	logging.Info("Status posted", map[string]interface{}{"status_id": status.ID, "media": len(mediaIDs)})
	if c.onPosted != nil {
		c.onPosted(status)
	}
	return status, nil
}
