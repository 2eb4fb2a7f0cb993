package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"sage/internal/media"
	"sage/internal/services"
)

const stageName = "storing"

func storageError(op, message string, err error) error {
	return services.Wrap(services.KindStorageFailure, stageName, op, message, err)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func parseNullTime(value sql.NullString) time.Time {
	if !value.Valid {
		return time.Time{}
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeStrings(values []string) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeStrings(value sql.NullString) []string {
	if !value.Valid || strings.TrimSpace(value.String) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(value.String), &out); err != nil {
		return nil
	}
	return out
}

func encodeSegments(segments []media.Segment) (any, error) {
	if len(segments) == 0 {
		return nil, nil
	}
	rows := make([]segmentRow, len(segments))
	for i, seg := range segments {
		rows[i] = segmentRow{
			OffsetMS:   seg.Offset.Milliseconds(),
			DurationMS: seg.Duration.Milliseconds(),
			Text:       seg.Text,
		}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeSegments(value sql.NullString) []media.Segment {
	if !value.Valid || strings.TrimSpace(value.String) == "" {
		return nil
	}
	var rows []segmentRow
	if err := json.Unmarshal([]byte(value.String), &rows); err != nil {
		return nil
	}
	segments := make([]media.Segment, len(rows))
	for i, row := range rows {
		segments[i] = media.Segment{
			Offset:   time.Duration(row.OffsetMS) * time.Millisecond,
			Duration: time.Duration(row.DurationMS) * time.Millisecond,
			Text:     row.Text,
		}
	}
	return segments
}

// mergeTags lowercases, trims, and de-duplicates tags preserving first-seen
// order.
func mergeTags(groups ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, group := range groups {
		for _, tag := range group {
			cleaned := strings.ToLower(strings.TrimSpace(tag))
			if cleaned == "" {
				continue
			}
			if _, ok := seen[cleaned]; ok {
				continue
			}
			seen[cleaned] = struct{}{}
			out = append(out, cleaned)
		}
	}
	return out
}

const videoColumns = "v.id, v.source_id, v.url, v.title, v.channel, v.channel_id, v.published_at, v.duration_seconds, v.tags_json, v.ingested_at"

func scanVideo(scanner interface{ Scan(dest ...any) error }, extra ...any) (Video, error) {
	var (
		video       Video
		url         sql.NullString
		title       sql.NullString
		channel     sql.NullString
		channelID   sql.NullString
		publishedAt sql.NullString
		duration    float64
		tags        sql.NullString
		ingestedAt  string
	)
	dest := []any{&video.ID, &video.SourceID, &url, &title, &channel, &channelID, &publishedAt, &duration, &tags, &ingestedAt}
	dest = append(dest, extra...)
	if err := scanner.Scan(dest...); err != nil {
		return Video{}, err
	}
	video.URL = url.String
	video.Title = title.String
	video.Channel = channel.String
	video.ChannelID = channelID.String
	video.PublishedAt = parseNullTime(publishedAt)
	video.Duration = time.Duration(duration * float64(time.Second))
	video.Tags = decodeStrings(tags)
	if t, err := parseTimeString(ingestedAt); err == nil {
		video.IngestedAt = t
	}
	return video, nil
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
