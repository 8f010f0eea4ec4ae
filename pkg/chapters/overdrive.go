package chapters

import (
	"encoding/xml"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/kikubooks/kiku/pkg/models"
)

// OverDrive audiobooks carry a MediaMarkers tag on every part file:
//
//	<Markers>
//	  <Marker><Name>Chapter 1</Name><Time>0:00.000</Time></Marker>
//	  ...
//	</Markers>
//
// Times are minutes:seconds.millis relative to the start of that file.

type overdriveMarkers struct {
	XMLName xml.Name          `xml:"Markers"`
	Markers []overdriveMarker `xml:"Marker"`
}

type overdriveMarker struct {
	Name string `xml:"Name"`
	Time string `xml:"Time"`
}

// Subchapter markers like "Chapter 2 (03:45)" or "Chapter 2 continued" are
// noise and get dropped.
var subchapterRE = regexp.MustCompile(`([(]\d|[cC]ontinued)`)

// assembleFromOverdriveMarkers builds the book chapter timeline from the
// per-file marker tags. Every file must carry a parseable tag; any miss
// abandons the whole path so the caller can fall back.
func assembleFromOverdriveMarkers(files []*models.AudioFile) (models.ChapterList, error) {
	chapters := models.ChapterList{}
	offset := 0.0
	for _, af := range files {
		var parsed overdriveMarkers
		if err := xml.Unmarshal([]byte(af.MetaTags.OverdriveMediaMarker), &parsed); err != nil {
			return nil, errors.Wrapf(err, "parsing media markers for %q", af.Filepath)
		}
		for _, marker := range parsed.Markers {
			if subchapterRE.MatchString(marker.Name) {
				continue
			}
			start, err := parseMarkerTime(marker.Time)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing marker time for %q", af.Filepath)
			}
			chapters = append(chapters, models.Chapter{
				ID:    len(chapters),
				Start: offset + start,
				Title: strings.TrimSpace(marker.Name),
			})
		}
		offset += af.DurationSeconds
	}
	if len(chapters) == 0 {
		return nil, errors.New("no usable media markers")
	}
	setEndTimes(chapters, offset)
	return chapters, nil
}

// parseMarkerTime converts "MM:SS.mmm" (or "HH:MM:SS.mmm") to seconds.
// Minutes can exceed 59 in long parts.
func parseMarkerTime(s string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, errors.Errorf("malformed marker time %q", s)
	}
	total := 0.0
	for _, part := range parts {
		n, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "malformed marker time %q", s)
		}
		total = total*60 + n
	}
	return total, nil
}

// setEndTimes chains each chapter's end to the next chapter's start, closing
// the last one at the total duration.
func setEndTimes(chapters models.ChapterList, totalDuration float64) {
	for i := range chapters {
		if i < len(chapters)-1 {
			chapters[i].End = chapters[i+1].Start
		} else {
			chapters[i].End = totalDuration
		}
	}
}
