// Package audio resolves the play order of a book's audio files. Track and
// disc numbers come from two unreliable sources (metadata tags and filename
// patterns), and the resolver picks whichever source is internally consistent
// for the whole file set.
package audio

import (
	"sort"

	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/kikubooks/kiku/pkg/models"
)

// ResolveOrder assigns a 1-based Index to every file that has a resolvable
// track number and Index -1 (with Error set) to every file that doesn't. It
// returns the files in play order, invalid files last. The input slice is not
// reordered.
//
// Disc key selection: metadata disc numbers are used when every file has one
// and the sorted values are sequential (each step increases by at most 1);
// otherwise filename disc numbers under the same test; otherwise no disc key.
// Track key selection: whichever source yields more distinct values after
// deduplication, ties going to metadata.
func ResolveOrder(files []*models.AudioFile) []*models.AudioFile {
	if len(files) == 0 {
		return nil
	}

	ordered := make([]*models.AudioFile, len(files))
	copy(ordered, files)

	// A single file needs no inference.
	if len(ordered) == 1 {
		ordered[0].Index = 1
		ordered[0].Error = nil
		return ordered
	}

	var discsFromMeta, discsFromFilename []int
	var tracksFromMeta, tracksFromFilename []int
	for _, af := range ordered {
		if af.DiscNumFromMeta != nil {
			discsFromMeta = append(discsFromMeta, *af.DiscNumFromMeta)
		}
		if af.DiscNumFromFilename != nil {
			discsFromFilename = append(discsFromFilename, *af.DiscNumFromFilename)
		}
		if af.TrackNumFromMeta != nil {
			tracksFromMeta = append(tracksFromMeta, *af.TrackNumFromMeta)
		}
		if af.TrackNumFromFilename != nil {
			tracksFromFilename = append(tracksFromFilename, *af.TrackNumFromFilename)
		}
	}
	sort.Ints(discsFromMeta)
	sort.Ints(discsFromFilename)
	sort.Ints(tracksFromMeta)
	sort.Ints(tracksFromFilename)

	discFromFilename := false
	hasDiscKey := false
	if len(discsFromMeta) == len(ordered) && isSequential(discsFromMeta) {
		hasDiscKey = true
	} else if len(discsFromFilename) == len(ordered) && isSequential(discsFromFilename) {
		hasDiscKey = true
		discFromFilename = true
	}

	// Ties go to metadata, so filename has to win outright.
	trackFromFilename := len(dedupe(tracksFromFilename)) > len(dedupe(tracksFromMeta))

	valid := make([]*models.AudioFile, 0, len(ordered))
	invalid := make([]*models.AudioFile, 0)
	for _, af := range ordered {
		if af.TrackNum(trackFromFilename) == nil {
			af.Index = -1
			af.Error = pointerutil.String("failed to get track number")
			invalid = append(invalid, af)
			continue
		}
		af.Error = nil
		valid = append(valid, af)
	}

	sort.Slice(valid, func(i, j int) bool {
		a, b := valid[i], valid[j]
		if hasDiscKey {
			da, db := discNumOrZero(a, discFromFilename), discNumOrZero(b, discFromFilename)
			if da != db {
				return da < db
			}
		}
		ta, tb := *a.TrackNum(trackFromFilename), *b.TrackNum(trackFromFilename)
		if ta != tb {
			return ta < tb
		}
		// Equal keys sort by path so the result doesn't depend on input order.
		return a.Filepath < b.Filepath
	})

	for i, af := range valid {
		af.Index = i + 1
	}

	return append(valid, invalid...)
}

// isSequential reports whether each successive value increases by at most 1.
// Duplicates are allowed (multiple tracks on the same disc).
func isSequential(nums []int) bool {
	if len(nums) == 0 {
		return false
	}
	prev := nums[0]
	for _, n := range nums[1:] {
		if n-prev > 1 {
			return false
		}
		prev = n
	}
	return true
}

// dedupe collapses duplicates in an already-sorted slice.
func dedupe(nums []int) []int {
	if len(nums) < 2 {
		return nums
	}
	out := nums[:1]
	for _, n := range nums[1:] {
		if n > out[len(out)-1] {
			out = append(out, n)
		}
	}
	return out
}

func discNumOrZero(af *models.AudioFile, fromFilename bool) int {
	if n := af.DiscNum(fromFilename); n != nil {
		return *n
	}
	return 0
}
