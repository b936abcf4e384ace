package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kimhsiao/mastofy/internal/models"
)

// TimeLayout is the timestamp format used in rendered items.
const TimeLayout = "2006-01-02 15:04 MST"

// Item writes a compact text block for one timeline item.
func Item(w io.Writer, item models.TimelineItem) error {
	var b strings.Builder
	switch item.Kind {
	case models.ItemStatus:
		writeStatus(&b, item.Status, "")
	case models.ItemNotification:
		writeNotification(&b, item.Notification)
	default:
		fmt.Fprintf(&b, "(unknown item %q)\n", item.Kind)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Items writes items separated by blank lines.
func Items(w io.Writer, items []models.TimelineItem) error {
	for i, item := range items {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := Item(w, item); err != nil {
			return err
		}
	}
	return nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func author(a models.Account) string {
	handle := a.Acct
	if handle == "" {
		handle = a.Username
	}
	if handle == "" {
		return a.Name()
	}
	return fmt.Sprintf("%s @%s", a.Name(), handle)
}

func writeStatus(b *strings.Builder, s *models.Status, indent string) {
	if s == nil {
		return
	}
	if s.ReblogOf != nil {
		fmt.Fprintf(b, "%s↻ %s boosted · %s\n", indent, s.Account.Name(), timestamp(s.CreatedAt))
		writeStatus(b, s.ReblogOf, indent)
		return
	}

	fmt.Fprintf(b, "%s%s · %s\n", indent, author(s.Account), timestamp(s.CreatedAt))
	if s.SpoilerText != "" {
		fmt.Fprintf(b, "%sCW: %s\n", indent, s.SpoilerText)
	}
	if body := PlainText(s.Content); body != "" {
		for _, line := range strings.Split(body, "\n") {
			if line == "" {
				b.WriteString("\n")
				continue
			}
			fmt.Fprintf(b, "%s%s\n", indent, line)
		}
	}
	for _, m := range s.MediaAttachments {
		fmt.Fprintf(b, "%s[%s] %s\n", indent, m.Type, m.URL)
	}

	counts := fmt.Sprintf("boosts %d · favourites %d", s.ReblogsCount, s.FavouritesCount)
	if s.Reblogged {
		counts += " · boosted"
	}
	if s.Favourited {
		counts += " · favourited"
	}
	fmt.Fprintf(b, "%s%s · id %s\n", indent, counts, s.ID)
}

func writeNotification(b *strings.Builder, n *models.Notification) {
	if n == nil {
		return
	}

	var action string
	switch n.Kind {
	case models.NotificationFollow:
		action = "followed you"
	case models.NotificationFavourite:
		action = "favourited your post"
	case models.NotificationReblog:
		action = "boosted your post"
	case models.NotificationMention:
		action = "mentioned you"
	default:
		action = fmt.Sprintf("sent a %s notification", n.Kind)
	}

	fmt.Fprintf(b, "%s %s · %s\n", author(n.Account), action, timestamp(n.CreatedAt))
	writeStatus(b, n.Status, "  ")
}
