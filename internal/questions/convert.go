// Package questions implements the question import pipeline: it fetches
// labelled spreadsheet columns from the sheets endpoint and converts them
// into the question JSON the guessr rounds are played from.
package questions

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Cell value types a column can declare.
type columnType int

const (
	typeString columnType = iota
	typeFloat
	typeBoolean
)

type column struct {
	name     string
	typ      columnType
	required bool
	list     bool
}

// columnGroup folds several list columns into one list of objects, e.g. the
// keys/values/moreInfo columns into the "data" points.
type columnGroup struct {
	name     string
	children map[string]string // column name -> object field
}

var sheetGroups = []columnGroup{
	{name: "sources", children: map[string]string{
		"sourceFormat":  "format",
		"sourceLinkUrl": "url",
	}},
	{name: "data", children: map[string]string{
		"keys":     "key",
		"values":   "value",
		"moreInfo": "moreInfo",
	}},
}

var sheetColumns = map[string][]column{
	"LineGraph": {
		{name: "title", typ: typeString, required: true},
		{name: "subtitle", typ: typeString, required: true},
		{name: "randomizeKeyOrder", typ: typeBoolean},
		{name: "randomizeKeysUsed", typ: typeBoolean},
		{name: "yMin", typ: typeFloat},
		{name: "yMax", typ: typeFloat},
		{name: "sourceFormat", typ: typeString, required: true, list: true},
		{name: "sourceLinkUrl", typ: typeString, required: true, list: true},
		{name: "keys", typ: typeString, required: true, list: true},
		{name: "values", typ: typeFloat, required: true, list: true},
		{name: "moreInfo", typ: typeString, list: true},
	},
	// Rank questions carry string values and no axis bounds.
	"Rank": {
		{name: "title", typ: typeString, required: true},
		{name: "subtitle", typ: typeString, required: true},
		{name: "randomizeKeyOrder", typ: typeBoolean},
		{name: "randomizeKeysUsed", typ: typeBoolean},
		{name: "sourceFormat", typ: typeString, required: true, list: true},
		{name: "sourceLinkUrl", typ: typeString, required: true, list: true},
		{name: "keys", typ: typeString, required: true, list: true},
		{name: "values", typ: typeString, required: true, list: true},
		{name: "moreInfo", typ: typeString, list: true},
	},
}

// ValueRange is one worksheet's cells as returned by the sheets endpoint.
type ValueRange struct {
	Range  string     `json:"range"`
	Values [][]string `json:"values"`
}

// Converted is one question produced from a worksheet row group.
type Converted struct {
	Category string
	Data     map[string]any
}

var (
	camelStrip = regexp.MustCompile(`[^a-zA-Z0-9\s_-]`)
	camelSplit = regexp.MustCompile(`[\s_-]`)
)

// camelCase normalizes a header label ("Source link URL" -> "sourceLinkUrl").
func camelCase(label string) string {
	parts := camelSplit.Split(camelStrip.ReplaceAllString(label, ""), -1)
	var b strings.Builder
	for i, part := range parts {
		word := strings.ToLower(part)
		if i > 0 && word != "" {
			word = strings.ToUpper(word[:1]) + word[1:]
		}
		b.WriteString(word)
	}
	return b.String()
}

// ConvertValueRange converts one worksheet into questions. The first row
// holds column labels; each following row group (a row plus the blank-keyed
// rows after it) becomes one question.
func ConvertValueRange(vr ValueRange) ([]Converted, error) {
	category, _, _ := strings.Cut(vr.Range, "!")
	cols, ok := sheetColumns[category]
	if !ok {
		return nil, fmt.Errorf("unsupported question type: %s", category)
	}
	if len(vr.Values) == 0 {
		return nil, fmt.Errorf("worksheet %s has no header row", vr.Range)
	}

	labelIndex := make(map[string]int, len(vr.Values[0]))
	for i, label := range vr.Values[0] {
		labelIndex[camelCase(label)] = i
	}
	byIndex := make(map[int]column, len(cols))
	for _, col := range cols {
		idx, ok := labelIndex[col.name]
		if !ok {
			return nil, fmt.Errorf("column not found for %s %s", category, col.name)
		}
		byIndex[idx] = col
	}

	groupOf := make(map[string]*columnGroup)
	for i := range sheetGroups {
		for child := range sheetGroups[i].children {
			groupOf[child] = &sheetGroups[i]
		}
	}

	var out []Converted
	rows := vr.Values[1:]
	for start := 0; start < len(rows); {
		end := start + 1
		for end < len(rows) {
			row := rows[end]
			if len(row) > 0 && strings.TrimSpace(row[0]) != "" {
				break
			}
			end++
		}

		data, err := convertRowGroup(category, rows[start:end], byIndex, groupOf)
		if err != nil {
			return nil, err
		}
		out = append(out, Converted{Category: category, Data: data})
		start = end
	}
	return out, nil
}

func convertRowGroup(category string, rows [][]string, byIndex map[int]column, groupOf map[string]*columnGroup) (map[string]any, error) {
	data := make(map[string]any)
	scalarLists := make(map[string][]any)
	objectLists := make(map[string][]map[string]any)

	for _, col := range sheetColumns[category] {
		if _, grouped := groupOf[col.name]; !grouped && col.list {
			scalarLists[col.name] = nil
		}
	}
	for _, g := range sheetGroups {
		objectLists[g.name] = nil
	}

	for rowIdx, row := range rows {
		for colIdx, cell := range row {
			col, ok := byIndex[colIdx]
			if !ok {
				continue
			}
			el, err := parseCell(cell, col.typ)
			if err != nil {
				return nil, fmt.Errorf("%s row %d column %s: %w", category, rowIdx+2, col.name, err)
			}
			if g, grouped := groupOf[col.name]; grouped {
				lst := objectLists[g.name]
				for len(lst) <= rowIdx {
					lst = append(lst, make(map[string]any))
				}
				lst[rowIdx][g.children[col.name]] = el
				objectLists[g.name] = lst
			} else if col.list {
				if el != nil {
					scalarLists[col.name] = append(scalarLists[col.name], el)
				}
			} else if el != nil {
				if _, exists := data[col.name]; !exists {
					data[col.name] = el
				}
			}
		}
	}

	for name, lst := range scalarLists {
		if lst == nil {
			lst = []any{}
		}
		data[name] = lst
	}
	for name, lst := range objectLists {
		kept := make([]map[string]any, 0, len(lst))
		for _, obj := range lst {
			allNil := true
			for _, v := range obj {
				if v != nil {
					allNil = false
					break
				}
			}
			if !allNil {
				kept = append(kept, obj)
			}
		}
		data[name] = kept
	}

	if err := postProcess(category, data); err != nil {
		return nil, err
	}
	return data, nil
}

func parseCell(cell string, typ columnType) (any, error) {
	if cell == "" {
		return nil, nil
	}
	switch typ {
	case typeString:
		return cell, nil
	case typeFloat:
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing number %q: %w", cell, err)
		}
		return f, nil
	case typeBoolean:
		return strings.EqualFold(cell, "true"), nil
	}
	return nil, fmt.Errorf("unknown column type %d", typ)
}

// postProcess fills missing LineGraph axis bounds from the data, rounded
// outward to the precision one order of magnitude below the data's range.
func postProcess(category string, data map[string]any) error {
	if category != "LineGraph" {
		return nil
	}
	_, hasMin := data["yMin"]
	_, hasMax := data["yMax"]
	if hasMin && hasMax {
		return nil
	}
	points, _ := data["data"].([]map[string]any)
	min, max := math.Inf(1), math.Inf(-1)
	found := false
	for _, p := range points {
		v, ok := p["value"].(float64)
		if !ok {
			continue
		}
		found = true
		min = math.Min(min, v)
		max = math.Max(max, v)
	}
	if !found {
		return fmt.Errorf("LineGraph processing can't find any data points")
	}
	span := max - min
	if span == 0 {
		span = 1
	}
	precision := math.Pow(10, math.Ceil(math.Log10(span))-1)
	if !hasMin {
		data["yMin"] = math.Floor(min/precision) * precision
	}
	if !hasMax {
		data["yMax"] = math.Ceil(max/precision) * precision
	}
	return nil
}
