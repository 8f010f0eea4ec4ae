package models

import (
	"database/sql/driver"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// Chapter is a single entry in a book's playback timeline. Start and End are
// seconds from the beginning of the full audiobook, not of any one file.
type Chapter struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Title string  `json:"title"`
}

// ChapterList is stored as a JSON column.
type ChapterList []Chapter

func (cl ChapterList) Value() (driver.Value, error) {
	if cl == nil {
		return nil, nil
	}
	data, err := json.Marshal(cl)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return string(data), nil
}

func (cl *ChapterList) Scan(src interface{}) error {
	if src == nil {
		*cl = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("unsupported chapter list column type %T", src)
	}
	if len(data) == 0 {
		*cl = nil
		return nil
	}
	return errors.WithStack(json.Unmarshal(data, cl))
}
