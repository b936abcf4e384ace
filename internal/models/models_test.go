// Package models tests for timeline data model helpers.
package models

import (
	"encoding/json"
	"testing"
	"time"
)

// =====================================================
// Instance and Hashtag Normalization Tests
// =====================================================

// TestNormalizeInstanceURL verifies scheme and trailing slash stripping.
func TestNormalizeInstanceURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://social.example/", "social.example"},
		{"social.example", "social.example"},
		{"http://social.example", "social.example"},
		{"HTTPS://social.example", "social.example"},
		{"  social.example/  ", "social.example"},
		{"social.example:8443", "social.example:8443"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeInstanceURL(tt.in); got != tt.want {
			t.Errorf("NormalizeInstanceURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestNormalizeHashtag verifies tag cleanup.
func TestNormalizeHashtag(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"golang", "golang"},
		{"#golang", "golang"},
		{"  ##golang ", "golang"},
		{"#", ""},
		{"   ", ""},
		// e + combining acute accent composes to é
		{"cafe\u0301", "caf\u00e9"},
	}

	for _, tt := range tests {
		if got := NormalizeHashtag(tt.in); got != tt.want {
			t.Errorf("NormalizeHashtag(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// =====================================================
// Column Tests
// =====================================================

// TestColumnType verifies validity and default titles.
func TestColumnType(t *testing.T) {
	for _, ct := range ColumnTypes {
		if !ct.Valid() {
			t.Errorf("%q should be valid", ct)
		}
	}
	if ColumnType("direct").Valid() {
		t.Error("unknown type should be invalid")
	}
	if got := ColumnNotifications.DefaultTitle(); got != "Notifications" {
		t.Errorf("DefaultTitle() = %q", got)
	}
	if got := ColumnHome.DefaultTitle(); got != "Home" {
		t.Errorf("DefaultTitle() = %q", got)
	}
}

// TestColumn_JSON verifies the persisted shape omits the pin flag.
func TestColumn_JSON(t *testing.T) {
	c := Column{ID: "c1", Type: ColumnHashtag, Title: "#go", Options: &ColumnOptions{Hashtag: "go"}, Pinned: true}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	want := `{"id":"c1","type":"hashtag","title":"#go","options":{"hashtag":"go"}}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}

	var nilOpts *ColumnOptions
	if nilOpts.HashtagOf() != "" {
		t.Error("HashtagOf() on nil options should be empty")
	}
}

// =====================================================
// TimelineItem Tests
// =====================================================

// TestTimelineItem_accessors verifies the union accessors.
func TestTimelineItem_accessors(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	attached := &Status{ID: "s9", CreatedAt: at.Add(-time.Hour)}

	status := StatusItem(&Status{ID: "s1", CreatedAt: at})
	notif := NotificationItem(&Notification{ID: "n1", Kind: NotificationFavourite, CreatedAt: at, Status: attached})
	follow := NotificationItem(&Notification{ID: "n2", Kind: NotificationFollow, CreatedAt: at})

	if status.ID() != "s1" || !status.CreatedAt().Equal(at) {
		t.Errorf("status accessors = %q, %v", status.ID(), status.CreatedAt())
	}
	if notif.ID() != "n1" || !notif.CreatedAt().Equal(at) {
		t.Errorf("notification accessors = %q, %v", notif.ID(), notif.CreatedAt())
	}
	if notif.TargetStatus() != attached {
		t.Error("TargetStatus() should return the attached status")
	}
	if follow.TargetStatus() != nil {
		t.Error("follow notification has no target status")
	}
	if (TimelineItem{}).ID() != "" {
		t.Error("zero item should have empty id")
	}
}

// TestTimelineItem_JSON verifies the discriminator survives a round trip.
func TestTimelineItem_JSON(t *testing.T) {
	item := NotificationItem(&Notification{ID: "n1", Kind: NotificationMention})

	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	var decoded TimelineItem
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if decoded.Kind != ItemNotification || decoded.Status != nil || decoded.ID() != "n1" {
		t.Errorf("decoded = %+v", decoded)
	}
}

// TestTimelineItem_Clone verifies clones share no mutable state.
func TestTimelineItem_Clone(t *testing.T) {
	orig := StatusItem(&Status{
		ID:               "s1",
		MediaAttachments: []MediaAttachment{{ID: "m1"}},
		ReblogOf:         &Status{ID: "s0", FavouritesCount: 1},
	})

	c := orig.Clone()
	c.Status.FavouritesCount = 10
	c.Status.ReblogOf.FavouritesCount = 10
	c.Status.MediaAttachments[0].ID = "changed"

	if orig.Status.FavouritesCount != 0 || orig.Status.ReblogOf.FavouritesCount != 1 {
		t.Error("Clone() shares status data")
	}
	if orig.Status.MediaAttachments[0].ID != "m1" {
		t.Error("Clone() shares attachments")
	}
}

// TestSession_Valid verifies session completeness.
func TestSession_Valid(t *testing.T) {
	if (Session{AccessToken: "t"}).Valid() {
		t.Error("session without instance should be invalid")
	}
	if !(Session{AccessToken: "t", Instance: "i"}).Valid() {
		t.Error("complete session should be valid")
	}
}

// TestAccount_Name verifies display name fallback.
func TestAccount_Name(t *testing.T) {
	if got := (Account{Username: "alice"}).Name(); got != "alice" {
		t.Errorf("Name() = %q", got)
	}
	if got := (Account{Username: "alice", DisplayName: "Alice"}).Name(); got != "Alice" {
		t.Errorf("Name() = %q", got)
	}
}
