package mastodon

import (
	gomastodon "github.com/mattn/go-mastodon"

	"github.com/kimhsiao/mastofy/internal/models"
)

// flag reads a boolean the server may send as null.
func flag(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func normalizeAccount(a gomastodon.Account) models.Account {
	return models.Account{
		ID:          string(a.ID),
		Username:    a.Username,
		Acct:        a.Acct,
		DisplayName: a.DisplayName,
		AvatarURL:   a.Avatar,
	}
}

// normalizeStatus converts a status and, recursively, the status it boosts.
func normalizeStatus(s *gomastodon.Status) *models.Status {
	if s == nil {
		return nil
	}

	media := make([]models.MediaAttachment, 0, len(s.MediaAttachments))
	for _, m := range s.MediaAttachments {
		media = append(media, models.MediaAttachment{
			ID:         string(m.ID),
			Type:       m.Type,
			URL:        m.URL,
			PreviewURL: m.PreviewURL,
		})
	}

	return &models.Status{
		ID:               string(s.ID),
		Content:          s.Content,
		CreatedAt:        s.CreatedAt,
		Account:          normalizeAccount(s.Account),
		MediaAttachments: media,
		ReblogOf:         normalizeStatus(s.Reblog),
		Favourited:       flag(s.Favourited),
		Reblogged:        flag(s.Reblogged),
		FavouritesCount:  int(s.FavouritesCount),
		ReblogsCount:     int(s.ReblogsCount),
		SpoilerText:      s.SpoilerText,
		Sensitive:        s.Sensitive,
		URL:              s.URL,
	}
}

func normalizeNotification(n *gomastodon.Notification) *models.Notification {
	return &models.Notification{
		ID:        string(n.ID),
		Kind:      models.NotificationKind(n.Type),
		CreatedAt: n.CreatedAt,
		Account:   normalizeAccount(n.Account),
		Status:    normalizeStatus(n.Status),
	}
}

func statusItems(raw []*gomastodon.Status) []models.TimelineItem {
	items := make([]models.TimelineItem, 0, len(raw))
	for _, s := range raw {
		if s == nil {
			continue
		}
		items = append(items, models.StatusItem(normalizeStatus(s)))
	}
	return items
}

func notificationItems(raw []*gomastodon.Notification) []models.TimelineItem {
	items := make([]models.TimelineItem, 0, len(raw))
	for _, n := range raw {
		if n == nil {
			continue
		}
		items = append(items, models.NotificationItem(normalizeNotification(n)))
	}
	return items
}
