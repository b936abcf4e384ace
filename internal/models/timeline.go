package models

import "time"

// Account is the author of a status or the actor of a notification.
type Account struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Acct        string `json:"acct"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

// Name returns the display name, falling back to the username.
func (a Account) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Username
}

// MediaAttachment is an image, video or audio file attached to a status.
type MediaAttachment struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	URL        string `json:"url"`
	PreviewURL string `json:"previewUrl"`
}

// Status is a single post. ReblogOf is set when the status is a boost of
// another status.
type Status struct {
	ID               string            `json:"id"`
	Content          string            `json:"content"`
	CreatedAt        time.Time         `json:"createdAt"`
	Account          Account           `json:"account"`
	MediaAttachments []MediaAttachment `json:"mediaAttachments"`
	ReblogOf         *Status           `json:"reblogOf,omitempty"`
	Favourited       bool              `json:"favourited"`
	Reblogged        bool              `json:"reblogged"`
	FavouritesCount  int               `json:"favouritesCount"`
	ReblogsCount     int               `json:"reblogsCount"`
	SpoilerText      string            `json:"spoilerText"`
	Sensitive        bool              `json:"sensitive"`
	URL              string            `json:"url,omitempty"`
}

// Clone returns a deep copy of s.
func (s *Status) Clone() *Status {
	if s == nil {
		return nil
	}
	c := *s
	if s.MediaAttachments != nil {
		c.MediaAttachments = append([]MediaAttachment(nil), s.MediaAttachments...)
	}
	c.ReblogOf = s.ReblogOf.Clone()
	return &c
}

// NotificationKind is the event type of a notification.
type NotificationKind string

const (
	NotificationFollow    NotificationKind = "follow"
	NotificationFavourite NotificationKind = "favourite"
	NotificationReblog    NotificationKind = "reblog"
	NotificationMention   NotificationKind = "mention"
)

// Notification is an event addressed to the logged-in account.
type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	CreatedAt time.Time        `json:"createdAt"`
	Account   Account          `json:"account"`
	Status    *Status          `json:"status,omitempty"`
}

// ItemKind discriminates the TimelineItem union.
type ItemKind string

const (
	ItemStatus       ItemKind = "status"
	ItemNotification ItemKind = "notification"
)

// TimelineItem is a Status or a Notification. Exactly one of the pointers is
// set, matching Kind.
type TimelineItem struct {
	Kind         ItemKind      `json:"kind"`
	Status       *Status       `json:"status,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

// StatusItem wraps a status.
func StatusItem(s *Status) TimelineItem {
	return TimelineItem{Kind: ItemStatus, Status: s}
}

// NotificationItem wraps a notification.
func NotificationItem(n *Notification) TimelineItem {
	return TimelineItem{Kind: ItemNotification, Notification: n}
}

// ID returns the server-assigned id of the wrapped value.
func (i TimelineItem) ID() string {
	switch i.Kind {
	case ItemStatus:
		if i.Status != nil {
			return i.Status.ID
		}
	case ItemNotification:
		if i.Notification != nil {
			return i.Notification.ID
		}
	}
	return ""
}

// CreatedAt returns the creation time of the wrapped value.
func (i TimelineItem) CreatedAt() time.Time {
	switch i.Kind {
	case ItemStatus:
		if i.Status != nil {
			return i.Status.CreatedAt
		}
	case ItemNotification:
		if i.Notification != nil {
			return i.Notification.CreatedAt
		}
	}
	return time.Time{}
}

// TargetStatus returns the status a reaction on this item applies to: the
// status itself, or the status attached to a notification.
func (i TimelineItem) TargetStatus() *Status {
	switch i.Kind {
	case ItemStatus:
		return i.Status
	case ItemNotification:
		if i.Notification != nil {
			return i.Notification.Status
		}
	}
	return nil
}

// Clone returns a deep copy of i.
func (i TimelineItem) Clone() TimelineItem {
	c := TimelineItem{Kind: i.Kind, Status: i.Status.Clone()}
	if i.Notification != nil {
		n := *i.Notification
		n.Status = i.Notification.Status.Clone()
		c.Notification = &n
	}
	return c
}
