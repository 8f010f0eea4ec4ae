package probe

import (
	"bytes"
	"encoding/binary"
	"os"
	"strconv"

	gomp4 "github.com/abema/go-mp4"
	"github.com/pkg/errors"

	"github.com/kikubooks/kiku/pkg/models"
)

// Box types used by the MP4 fast path. The © in iTunes atom names is 0xA9.
var (
	boxTypeMoov = gomp4.BoxTypeMoov()
	boxTypeMvhd = gomp4.BoxTypeMvhd()
	boxTypeUdta = gomp4.BoxTypeUdta()
	boxTypeMeta = gomp4.BoxTypeMeta()
	boxTypeIlst = gomp4.BoxTypeIlst()
	boxTypeChpl = gomp4.StrToBoxType("chpl")

	atomTitle  = [4]byte{0xA9, 'n', 'a', 'm'}
	atomArtist = [4]byte{0xA9, 'A', 'R', 'T'}
	atomAlbum  = [4]byte{0xA9, 'a', 'l', 'b'}
	atomTrack  = [4]byte{'t', 'r', 'k', 'n'}
	atomDisc   = [4]byte{'d', 'i', 's', 'k'}
)

// probeMP4 reads duration, tags, and Nero chapters from an .m4b/.m4a without
// spawning ffprobe. Anything it can't handle surfaces as an error so the
// caller falls back.
func probeMP4(path string) (*MediaInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	info := &MediaInfo{Codec: "aac"}
	var chplData []byte
	inIlst := false

	_, err = gomp4.ReadBoxStructure(f, func(h *gomp4.ReadHandle) (interface{}, error) {
		switch h.BoxInfo.Type {
		case boxTypeMoov, boxTypeUdta, boxTypeMeta:
			return h.Expand()
		case boxTypeMvhd:
			payload, _, err := h.ReadPayload()
			if err != nil {
				return nil, errors.WithStack(err)
			}
			if mvhd, ok := payload.(*gomp4.Mvhd); ok && mvhd.Timescale > 0 {
				duration := mvhd.DurationV1
				if mvhd.Version == 0 {
					duration = uint64(mvhd.DurationV0)
				}
				info.DurationSeconds = float64(duration) / float64(mvhd.Timescale)
			}
			return nil, nil
		case boxTypeIlst:
			inIlst = true
			defer func() { inIlst = false }()
			return h.Expand()
		case boxTypeChpl:
			var buf bytes.Buffer
			if _, err := h.ReadData(&buf); err != nil {
				return nil, errors.WithStack(err)
			}
			chplData = buf.Bytes()
			return nil, nil
		default:
			if inIlst {
				var buf bytes.Buffer
				if _, err := h.ReadData(&buf); err != nil {
					return nil, errors.WithStack(err)
				}
				applyIlstAtom(h.BoxInfo.Type, buf.Bytes(), &info.Tags)
			}
			return nil, nil
		}
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if info.DurationSeconds == 0 {
		return nil, errors.New("no mvhd duration")
	}

	info.Chapters = parseChplChapters(chplData, info.DurationSeconds)

	if fi, err := f.Stat(); err == nil {
		info.SizeBytes = fi.Size()
		if info.DurationSeconds > 0 {
			info.BitrateBps = int(float64(fi.Size()*8) / info.DurationSeconds)
		}
	}
	return info, nil
}

// applyIlstAtom fills in tags from one ilst child. The payload wraps a data
// box: [4 size][4 "data"][1 version][3 type][4 locale][value].
func applyIlstAtom(boxType gomp4.BoxType, data []byte, tags *models.AudioMetaTags) {
	value := extractDataValue(data)
	if value == nil {
		return
	}
	switch [4]byte(boxType) {
	case atomTitle:
		tags.Title = string(value)
	case atomArtist:
		tags.Artist = string(value)
	case atomAlbum:
		tags.Album = string(value)
	case atomTrack:
		// trkn value: [2 reserved][2 track][2 total][2 reserved]
		if len(value) >= 4 {
			if n := int(binary.BigEndian.Uint16(value[2:4])); n > 0 {
				tags.TrackNumber = strconv.Itoa(n)
			}
		}
	case atomDisc:
		if len(value) >= 4 {
			if n := int(binary.BigEndian.Uint16(value[2:4])); n > 0 {
				tags.DiscNumber = strconv.Itoa(n)
			}
		}
	}
}

func extractDataValue(data []byte) []byte {
	// Skip the data box header (size + type), then version/type/locale.
	if len(data) < 16 || !bytes.Equal(data[4:8], []byte("data")) {
		return nil
	}
	return data[16:]
}

// parseChplChapters decodes the Nero chapter list box. Timestamps are in
// 100-nanosecond units. Format per entry: [8 timestamp][1 title len][title].
func parseChplChapters(data []byte, totalDuration float64) models.ChapterList {
	if len(data) < 9 {
		return nil
	}
	version := data[0]
	offset := 4
	var count int
	if version == 0 {
		offset += 4
		if len(data) < offset+4 {
			return nil
		}
		count = int(binary.BigEndian.Uint32(data[offset:]))
		offset += 4
	} else {
		offset++
		if len(data) <= offset {
			return nil
		}
		count = int(data[offset])
		offset++
	}

	var chapters models.ChapterList
	for i := 0; i < count && offset+9 <= len(data); i++ {
		timestamp := binary.BigEndian.Uint64(data[offset:])
		offset += 8
		titleLen := int(data[offset])
		offset++
		if offset+titleLen > len(data) {
			break
		}
		title := string(data[offset : offset+titleLen])
		offset += titleLen
		chapters = append(chapters, models.Chapter{
			ID:    i,
			Start: float64(timestamp) / 1e7,
			Title: title,
		})
	}
	for i := range chapters {
		if i < len(chapters)-1 {
			chapters[i].End = chapters[i+1].Start
		} else {
			chapters[i].End = totalDuration
		}
	}
	return chapters
}
