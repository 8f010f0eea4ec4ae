package audio

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	discRE    = regexp.MustCompile(`(?i)\b(?:disc|cd) ?(\d\d?)\b`)
	discDirRE = regexp.MustCompile(`(?i)^cd(\d{1,3})$`)
	numberRE  = regexp.MustCompile(`\d{1,4}`)
)

// BookContext holds the book-level metadata stripped from filenames before
// number extraction, so that "1984 - Part 03.mp3" doesn't parse the title as
// a track number.
type BookContext struct {
	Title         string
	Author        string
	Series        string
	PublishedYear string
}

// IsDiscFolder reports whether a directory name looks like a disc subfolder
// (e.g. "CD01"), meaning its files belong to the parent book folder.
func IsDiscFolder(name string) bool {
	return discDirRE.MatchString(name)
}

// ParseTrackAndDisc extracts track and disc numbers from an audio file path.
// The track number is the first run of digits left in the basename after
// stripping the book metadata and any "disc NN"/"cd NN" marker. A parent
// directory named like "CD01" overrides any disc number found in the name.
func ParseTrackAndDisc(path string, ctx BookContext) (track, disc *int) {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	for _, s := range []string{ctx.Title, ctx.Author, ctx.Series, ctx.PublishedYear} {
		if s != "" {
			base = strings.Replace(base, s, "", 1)
		}
	}

	if m := discRE.FindStringSubmatch(base); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			disc = &n
		}
		base = discRE.ReplaceAllString(base, "")
	}

	parent := filepath.Base(filepath.Dir(path))
	if m := discDirRE.FindStringSubmatch(parent); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			disc = &n
		}
	}

	if m := numberRE.FindString(base); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			track = &n
		}
	}
	return track, disc
}
