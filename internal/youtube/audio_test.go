package youtube_test

import (
	"testing"

	ytdl "github.com/kkdai/youtube/v2"

	"sage/internal/youtube"
)

func TestSelectAudioFormat(t *testing.T) {
	formats := ytdl.FormatList{
		{ItagNo: 18, MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, Bitrate: 500000},
		{ItagNo: 251, MimeType: `audio/webm; codecs="opus"`, Bitrate: 160000},
		{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, Bitrate: 128000},
		{ItagNo: 139, MimeType: `audio/mp4; codecs="mp4a.40.5"`, Bitrate: 48000},
	}
	format, ok := youtube.SelectAudioFormat(formats)
	if !ok {
		t.Fatal("expected a format")
	}
	if format.ItagNo != 140 {
		t.Fatalf("selected itag %d, want 140", format.ItagNo)
	}
}

func TestSelectAudioFormatNoAudio(t *testing.T) {
	formats := ytdl.FormatList{{ItagNo: 18, MimeType: "video/mp4"}}
	if _, ok := youtube.SelectAudioFormat(formats); ok {
		t.Fatal("expected no audio format")
	}
}
