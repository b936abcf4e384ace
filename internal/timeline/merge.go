package timeline

import (
	"sort"

	"github.com/kimhsiao/mastofy/internal/models"
)

// SortItems drops items whose id was already seen and stably sorts the rest
// newest first. The input slice is not modified.
func SortItems(items []models.TimelineItem) []models.TimelineItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]models.TimelineItem, 0, len(items))
	for _, item := range items {
		id := item.ID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, item)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt().After(out[j].CreatedAt())
	})
	return out
}

// MergeFull returns the sequence a full refresh produces from fetched.
func MergeFull(fetched []models.TimelineItem) []models.TimelineItem {
	return SortItems(fetched)
}

// MergeIncremental inserts the fetched items whose ids are not yet in
// existing and returns the merged sequence with the number of items added.
//
// Existing items keep their relative order and are never dropped. A new item
// goes in front of an existing item only when it is strictly newer; on equal
// timestamps the existing item stays first. When the whole batch is newer
// than the current head the result is the batch followed by existing.
func MergeIncremental(existing, fetched []models.TimelineItem) ([]models.TimelineItem, int) {
	known := make(map[string]struct{}, len(existing))
	for _, item := range existing {
		known[item.ID()] = struct{}{}
	}

	var fresh []models.TimelineItem
	for _, item := range fetched {
		if _, ok := known[item.ID()]; !ok {
			fresh = append(fresh, item)
		}
	}
	fresh = SortItems(fresh)

	if len(fresh) == 0 {
		return append([]models.TimelineItem(nil), existing...), 0
	}

	merged := make([]models.TimelineItem, 0, len(existing)+len(fresh))
	i, j := 0, 0
	for i < len(fresh) && j < len(existing) {
		if fresh[i].CreatedAt().After(existing[j].CreatedAt()) {
			merged = append(merged, fresh[i])
			i++
			continue
		}
		merged = append(merged, existing[j])
		j++
	}
	merged = append(merged, fresh[i:]...)
	merged = append(merged, existing[j:]...)

	return merged, len(fresh)
}

// PrependItem puts item at the front, removing any older copy with the same id.
func PrependItem(items []models.TimelineItem, item models.TimelineItem) []models.TimelineItem {
	id := item.ID()
	out := make([]models.TimelineItem, 0, len(items)+1)
	out = append(out, item)
	for _, existing := range items {
		if existing.ID() != id {
			out = append(out, existing)
		}
	}
	return out
}

// ReplaceStatus returns items with every occurrence of status id replaced by
// result. A status matches when it has the id itself, when it is a boost
// whose inner status has the id, or when it is attached to a notification.
// The bool reports whether anything matched.
func ReplaceStatus(items []models.TimelineItem, id string, result *models.Status) ([]models.TimelineItem, bool) {
	out := make([]models.TimelineItem, len(items))
	copy(out, items)
	if result == nil || id == "" {
		return out, false
	}

	replaced := false
	for i, item := range out {
		switch item.Kind {
		case models.ItemStatus:
			if s, ok := replaceIn(item.Status, id, result); ok {
				out[i].Status = s
				replaced = true
			}
		case models.ItemNotification:
			if item.Notification == nil {
				continue
			}
			if s, ok := replaceIn(item.Notification.Status, id, result); ok {
				n := *item.Notification
				n.Status = s
				out[i].Notification = &n
				replaced = true
			}
		}
	}
	return out, replaced
}

// replaceIn never mutates s; a match yields a fresh copy.
func replaceIn(s *models.Status, id string, result *models.Status) (*models.Status, bool) {
	if s == nil {
		return nil, false
	}

	if s.ID == id {
		if result.ID == id {
			return result.Clone(), true
		}
		// The server answered with the boosted status; keep the wrapper.
		if s.ReblogOf != nil && s.ReblogOf.ID == result.ID {
			c := s.Clone()
			c.ReblogOf = result.Clone()
			return c, true
		}
		return s, false
	}

	if s.ReblogOf != nil && s.ReblogOf.ID == id {
		c := s.Clone()
		c.ReblogOf = result.Clone()
		return c, true
	}
	return s, false
}
