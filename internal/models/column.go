// Package models provides data model definitions for the timeline client.
package models

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ColumnType selects which remote feed a column shows.
type ColumnType string

const (
	ColumnHome          ColumnType = "home"
	ColumnLocal         ColumnType = "local"
	ColumnPublic        ColumnType = "public"
	ColumnNotifications ColumnType = "notifications"
	ColumnHashtag       ColumnType = "hashtag"
)

// ColumnTypes lists every supported column type in display order.
var ColumnTypes = []ColumnType{ColumnHome, ColumnLocal, ColumnPublic, ColumnNotifications, ColumnHashtag}

// Valid reports whether t is a supported column type.
func (t ColumnType) Valid() bool {
	for _, c := range ColumnTypes {
		if c == t {
			return true
		}
	}
	return false
}

// DefaultTitle returns the title given to a new column of this type.
// Hashtag columns are titled after their tag instead.
func (t ColumnType) DefaultTitle() string {
	if t == "" {
		return ""
	}
	return strings.ToUpper(string(t[:1])) + string(t[1:])
}

// ColumnOptions holds per-type column settings.
type ColumnOptions struct {
	Hashtag string `json:"hashtag,omitempty"`
}

// HashtagOf returns the hashtag option, tolerating nil options.
func (o *ColumnOptions) HashtagOf() string {
	if o == nil {
		return ""
	}
	return o.Hashtag
}

// Column is one independently refreshing feed panel.
// Pinned is stored under its own key and filled in by the layout store.
type Column struct {
	ID      string         `json:"id"`
	Type    ColumnType     `json:"type"`
	Title   string         `json:"title"`
	Options *ColumnOptions `json:"options,omitempty"`
	Pinned  bool           `json:"-"`
}

// NormalizeHashtag trims whitespace and leading '#' characters and puts the
// tag in Unicode NFC form, so visually equal tags compare equal.
func NormalizeHashtag(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimLeft(tag, "#＃")
	return norm.NFC.String(strings.TrimSpace(tag))
}
