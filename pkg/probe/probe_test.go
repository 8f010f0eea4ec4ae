package probe

import (
	"testing"

	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumberPair(t *testing.T) {
	tests := []struct {
		input    string
		expected *int
	}{
		{input: "3", expected: pointerutil.Int(3)},
		{input: "3/12", expected: pointerutil.Int(3)},
		{input: " 07 / 20 ", expected: pointerutil.Int(7)},
		{input: "", expected: nil},
		{input: "abc", expected: nil},
		{input: "/5", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseNumberPair(tt.input))
		})
	}
}

func TestParseFFProbeOutput(t *testing.T) {
	t.Run("full output", func(t *testing.T) {
		data := []byte(`{
			"streams": [
				{"codec_type": "video", "codec_name": "mjpeg"},
				{"codec_type": "audio", "codec_name": "mp3", "bit_rate": "128000", "channels": 2, "sample_rate": "44100"}
			],
			"chapters": [
				{"start_time": "0.000000", "end_time": "100.500000", "tags": {"title": "One"}},
				{"start_time": "100.500000", "end_time": "200.000000", "tags": {"title": "Two"}}
			],
			"format": {
				"duration": "200.000000",
				"size": "3200000",
				"bit_rate": "129500",
				"tags": {
					"title": "Part 1",
					"artist": "Someone",
					"album": "A Book",
					"track": "1/12",
					"disc": "1",
					"OverDrive MediaMarkers": "<Markers></Markers>"
				}
			}
		}`)

		info, err := parseFFProbeOutput(data)
		require.NoError(t, err)
		assert.Equal(t, 200.0, info.DurationSeconds)
		assert.Equal(t, "mp3", info.Codec)
		assert.Equal(t, 128000, info.BitrateBps) // stream bitrate wins over format
		assert.Equal(t, 2, info.Channels)
		assert.Equal(t, 44100, info.SampleRate)
		assert.Equal(t, int64(3200000), info.SizeBytes)
		assert.Equal(t, "Part 1", info.Tags.Title)
		assert.Equal(t, "1/12", info.Tags.TrackNumber)
		assert.Equal(t, "<Markers></Markers>", info.Tags.OverdriveMediaMarker)
		require.Len(t, info.Chapters, 2)
		assert.Equal(t, "One", info.Chapters[0].Title)
		assert.Equal(t, 100.5, info.Chapters[0].End)
	})

	t.Run("no audio stream", func(t *testing.T) {
		data := []byte(`{"streams": [{"codec_type": "video"}], "format": {"duration": "10"}}`)
		_, err := parseFFProbeOutput(data)
		assert.EqualError(t, err, "no audio stream")
	})

	t.Run("tag casing is ignored", func(t *testing.T) {
		data := []byte(`{
			"streams": [{"codec_type": "audio", "codec_name": "aac"}],
			"format": {"duration": "10", "tags": {"TITLE": "Upper", "Track": "4"}}
		}`)
		info, err := parseFFProbeOutput(data)
		require.NoError(t, err)
		assert.Equal(t, "Upper", info.Tags.Title)
		assert.Equal(t, "4", info.Tags.TrackNumber)
	})
}

func TestParseChplChapters(t *testing.T) {
	// Version 0 box with two chapters at 0s and 60s (100ns units).
	data := []byte{0, 0, 0, 0} // version + flags
	data = append(data, 0, 0, 0, 0)
	data = append(data, 0, 0, 0, 2) // count
	data = append(data, 0, 0, 0, 0, 0, 0, 0, 0, 3, 'O', 'n', 'e')
	data = append(data, 0, 0, 0, 0, 0x23, 0xC3, 0x46, 0x00, 3, 'T', 'w', 'o')

	chapters := parseChplChapters(data, 120)
	require.Len(t, chapters, 2)
	assert.Equal(t, "One", chapters[0].Title)
	assert.Equal(t, 0.0, chapters[0].Start)
	assert.Equal(t, 60.0, chapters[0].End)
	assert.Equal(t, 60.0, chapters[1].Start)
	assert.Equal(t, 120.0, chapters[1].End)
}
