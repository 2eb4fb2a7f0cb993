package youtube

import (
	"context"

	"sage/internal/logging"
	"sage/internal/media"
)

// Describe resolves descriptive metadata for id. It fails with
// not_accessible for private, removed, or age-gated videos.
func (c *Client) Describe(ctx context.Context, id string) (media.Metadata, error) {
	video, err := c.video(ctx, id)
	if err != nil {
		return media.Metadata{}, wrap("validating", "describe", err)
	}
	meta := media.Metadata{
		SourceID:    video.ID,
		URL:         WatchURL(video.ID),
		Title:       video.Title,
		Owner:       video.Author,
		ChannelID:   video.ChannelID,
		PublishedAt: video.PublishDate.UTC(),
		Duration:    video.Duration,
	}
	if meta.SourceID == "" {
		meta.SourceID = id
		meta.URL = WatchURL(id)
	}
	logging.WithContext(ctx, c.logger).Debug("video described",
		logging.String("title", meta.Title),
		logging.String("channel", meta.Owner),
		logging.Duration("duration", meta.Duration),
		logging.Int("caption_tracks", len(video.CaptionTracks)),
	)
	return meta, nil
}

// WatchURL returns the canonical watch URL for a video ID.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
