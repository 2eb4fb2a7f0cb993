package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ytdl "github.com/kkdai/youtube/v2"

	"sage/internal/logging"
	"sage/internal/media"
	"sage/internal/services"
)

// Download writes the best audio-only stream for id into dir and returns
// the materialized file.
func (c *Client) Download(ctx context.Context, id, dir string) (media.Download, error) {
	video, err := c.video(ctx, id)
	if err != nil {
		return media.Download{}, wrap("slow_path_download", "lookup formats", err)
	}
	format, ok := SelectAudioFormat(video.Formats)
	if !ok {
		return media.Download{}, services.Wrap(services.KindMediaUnavailable, "slow_path_download", "select format",
			"no audio-only stream offered", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return media.Download{}, services.Wrap(services.KindInternal, "slow_path_download", "ensure work dir", "", err)
	}

	stream, size, err := c.yt.GetStreamContext(ctx, video, format)
	if err != nil {
		return media.Download{}, wrap("slow_path_download", "open stream", err)
	}
	defer stream.Close()

	dest := filepath.Join(dir, id+audioExtension(format.MimeType))
	tmp, err := os.CreateTemp(dir, id+".*.part")
	if err != nil {
		return media.Download{}, services.Wrap(services.KindInternal, "slow_path_download", "create temp file", "", err)
	}
	tmpPath := tmp.Name()
	written, copyErr := copyContext(ctx, tmp, stream)
	closeErr := tmp.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return media.Download{}, wrap("slow_path_download", "copy stream", copyErr)
	}
	if written == 0 {
		_ = os.Remove(tmpPath)
		return media.Download{}, services.Wrap(services.KindMediaUnavailable, "slow_path_download", "copy stream", "empty audio stream", nil)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return media.Download{}, services.Wrap(services.KindInternal, "slow_path_download", "finalize download", "", err)
	}

	logging.WithContext(ctx, c.logger).Info("audio downloaded",
		logging.String("path", dest),
		logging.String("mime_type", format.MimeType),
		logging.Int("bitrate", format.Bitrate),
		logging.Int64("bytes", written),
		logging.Int64("expected_bytes", size),
		logging.String(logging.FieldEventType, "audio_downloaded"),
	)
	return media.Download{
		Path:     dest,
		MimeType: format.MimeType,
		Size:     written,
		Duration: video.Duration,
	}, nil
}

// SelectAudioFormat returns the audio-only format to download. mp4 audio is
// preferred, then higher bitrate; the default audio track wins when a video
// carries several dubs.
func SelectAudioFormat(formats ytdl.FormatList) (*ytdl.Format, bool) {
	candidates := make([]*ytdl.Format, 0, len(formats))
	for i := range formats {
		if strings.HasPrefix(formats[i].MimeType, "audio/") {
			candidates = append(candidates, &formats[i])
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if da, db := isDefaultTrack(a), isDefaultTrack(b); da != db {
			return da
		}
		if ma, mb := strings.Contains(a.MimeType, "mp4"), strings.Contains(b.MimeType, "mp4"); ma != mb {
			return ma
		}
		return a.Bitrate > b.Bitrate
	})
	return candidates[0], true
}

func isDefaultTrack(f *ytdl.Format) bool {
	return f.AudioTrack == nil || f.AudioTrack.AudioIsDefault
}

func audioExtension(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "mp4"):
		return ".m4a"
	case strings.Contains(mimeType, "webm"):
		return ".webm"
	default:
		return ".audio"
	}
}

func copyContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		nr, readErr := src.Read(buf)
		if nr > 0 {
			nw, writeErr := dst.Write(buf[:nr])
			written += int64(nw)
			if writeErr != nil {
				return written, fmt.Errorf("write audio: %w", writeErr)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}
			return written, readErr
		}
	}
}
