package chat

import (
	"encoding/json"
	"fmt"
	"math/rand"
)

// Question is one stored guessr question. Data holds the content JSON
// produced by the import pipeline.
type Question struct {
	ID       string
	SourceID string
	Category string
	Data     []byte
}

// DataPoint is one labelled point of a question's series.
type DataPoint struct {
	Key      string `json:"key"`
	Value    any    `json:"value,omitempty"`
	MoreInfo any    `json:"moreInfo,omitempty"`
}

// SeriesPoint is one x/y point of a plotted series, as sent to clients.
type SeriesPoint struct {
	X        any `json:"x"`
	Y        any `json:"y"`
	MoreInfo any `json:"moreInfo,omitempty"`
}

// QuestionContent is the parsed question payload. Anything beyond the fixed
// fields (axis labels, bounds, randomization switches) rides along in
// Extensions and round-trips through JSON at the top level.
type QuestionContent struct {
	Title      string
	Subtitle   string
	Sources    []map[string]any
	Data       []DataPoint
	Extensions map[string]any
}

// UnmarshalJSON splits the fixed fields from the extension fields.
func (c *QuestionContent) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*c = QuestionContent{Extensions: make(map[string]any)}
	for key, val := range raw {
		var err error
		switch key {
		case "title":
			err = json.Unmarshal(val, &c.Title)
		case "subtitle":
			err = json.Unmarshal(val, &c.Subtitle)
		case "sources":
			err = json.Unmarshal(val, &c.Sources)
		case "data":
			err = json.Unmarshal(val, &c.Data)
		default:
			var ext any
			if err = json.Unmarshal(val, &ext); err == nil {
				c.Extensions[key] = ext
			}
		}
		if err != nil {
			return fmt.Errorf("question content field %q: %w", key, err)
		}
	}
	return nil
}

// MarshalJSON flattens the extensions back to the top level.
func (c QuestionContent) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extensions)+4)
	for key, val := range c.Extensions {
		out[key] = val
	}
	out["title"] = c.Title
	out["subtitle"] = c.Subtitle
	out["sources"] = c.Sources
	out["data"] = c.Data
	return json.Marshal(out)
}

// boolExtension reads a boolean extension field, false when absent or not a
// bool.
func (c QuestionContent) boolExtension(name string) bool {
	v, ok := c.Extensions[name].(bool)
	return ok && v
}

// maxRandomizedKeys is how many data points survive randomizeKeysUsed.
const maxRandomizedKeys = 6

// Content parses the question data and applies its randomization switches:
// randomizeKeysUsed draws a random subset of the data points,
// randomizeKeyOrder shuffles them. Each call draws independently.
func (q *Question) Content() (*QuestionContent, error) {
	var c QuestionContent
	if err := json.Unmarshal(q.Data, &c); err != nil {
		return nil, fmt.Errorf("parse question %s: %w", q.ID, err)
	}
	if c.boolExtension("randomizeKeysUsed") {
		rand.Shuffle(len(c.Data), func(i, j int) {
			c.Data[i], c.Data[j] = c.Data[j], c.Data[i]
		})
		if len(c.Data) > maxRandomizedKeys {
			c.Data = c.Data[:maxRandomizedKeys]
		}
	}
	if c.boolExtension("randomizeKeyOrder") {
		rand.Shuffle(len(c.Data), func(i, j int) {
			c.Data[i], c.Data[j] = c.Data[j], c.Data[i]
		})
	}
	return &c, nil
}

// Stripped returns a copy safe to show before the reveal: every data point
// keeps only its key.
func (c *QuestionContent) Stripped() *QuestionContent {
	out := &QuestionContent{
		Title:      c.Title,
		Subtitle:   c.Subtitle,
		Sources:    c.Sources,
		Data:       make([]DataPoint, len(c.Data)),
		Extensions: make(map[string]any, len(c.Extensions)+1),
	}
	for k, v := range c.Extensions {
		out.Extensions[k] = v
	}
	for i, p := range c.Data {
		out.Data[i] = DataPoint{Key: p.Key}
	}
	return out
}

// SourceSeries returns the true series for the reveal payload.
func (c *QuestionContent) SourceSeries() []SeriesPoint {
	series := make([]SeriesPoint, len(c.Data))
	for i, p := range c.Data {
		series[i] = SeriesPoint{X: p.Key, Y: p.Value, MoreInfo: p.MoreInfo}
	}
	return series
}
