package media

import (
	"strings"
	"time"
)

// Filter narrows search candidates by their descriptive fields. Zero values
// match everything.
type Filter struct {
	// Channel matches case-insensitively as a substring of the channel name.
	Channel string
	// PublishedAfter and PublishedBefore bound the publish date inclusively.
	// Candidates without a publish date pass both bounds.
	PublishedAfter  time.Time
	PublishedBefore time.Time
	// Tags match when a candidate carries at least one of them.
	Tags []string
}

// IsZero reports whether f matches everything.
func (f Filter) IsZero() bool {
	return f.ChannelNeedle() == "" && f.PublishedAfter.IsZero() && f.PublishedBefore.IsZero() && len(f.TagSet()) == 0
}

// ChannelNeedle is the lowercased channel substring, or "" for any channel.
func (f Filter) ChannelNeedle() string {
	return strings.ToLower(strings.TrimSpace(f.Channel))
}

// TagSet returns the lowercased, non-empty filter tags.
func (f Filter) TagSet() map[string]struct{} {
	if len(f.Tags) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(f.Tags))
	for _, tag := range f.Tags {
		if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
			set[tag] = struct{}{}
		}
	}
	return set
}

// Match reports whether a candidate with the given fields passes f.
func (f Filter) Match(channel string, publishedAt time.Time, tags []string) bool {
	if needle := f.ChannelNeedle(); needle != "" {
		if !strings.Contains(strings.ToLower(channel), needle) {
			return false
		}
	}
	if !publishedAt.IsZero() {
		if !f.PublishedAfter.IsZero() && publishedAt.Before(f.PublishedAfter) {
			return false
		}
		if !f.PublishedBefore.IsZero() && publishedAt.After(f.PublishedBefore) {
			return false
		}
	}
	if want := f.TagSet(); len(want) > 0 {
		for _, tag := range tags {
			if _, ok := want[strings.ToLower(strings.TrimSpace(tag))]; ok {
				return true
			}
		}
		return false
	}
	return true
}
