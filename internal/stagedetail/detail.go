// Package stagedetail loads, validates and exports the per-stage payloads
// the worker keeps for a finished job.
package stagedetail

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"ditatrack/internal/progress"
	"ditatrack/internal/util/format"
)

type PreprocessingStats struct {
	FileType       string         `json:"file_type" yaml:"file_type"`
	MarkdownLength int            `json:"markdown_length" yaml:"markdown_length"`
	Excerpt        string         `json:"excerpt,omitempty" yaml:"excerpt,omitempty"`
	Statistics     map[string]any `json:"statistics,omitempty" yaml:"statistics,omitempty"`
}

type Chunk struct {
	ID         string  `json:"id" yaml:"id"`
	Title      string  `json:"title" yaml:"title"`
	Level      int     `json:"level" yaml:"level"`
	Type       string  `json:"type" yaml:"type"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

type ChunkList struct {
	TotalChunks int            `json:"total_chunks" yaml:"total_chunks"`
	Chunks      []Chunk        `json:"chunks" yaml:"chunks"`
	HasMore     bool           `json:"has_more" yaml:"has_more"`
	Statistics  map[string]any `json:"statistics,omitempty" yaml:"statistics,omitempty"`
}

type ConversionStats struct {
	Total       int     `json:"total" yaml:"total"`
	Succeeded   int     `json:"succeeded" yaml:"succeeded"`
	Failed      int     `json:"failed" yaml:"failed"`
	SuccessRate float64 `json:"success_rate" yaml:"success_rate"`
}

type QualityScores struct {
	ConversionStats `yaml:",inline"`
	AvgQualityScore float64        `json:"avg_quality_score" yaml:"avg_quality_score"`
	Summary         map[string]any `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Detail is the decoded payload of one stage. Exactly one of the typed
// fields is set, matching Stage.
type Detail struct {
	JobID         string              `json:"job_id" yaml:"job_id"`
	Stage         progress.StageIndex `json:"stage" yaml:"stage"`
	Title         string              `json:"title" yaml:"title"`
	Preprocessing *PreprocessingStats `json:"preprocessing,omitempty" yaml:"preprocessing,omitempty"`
	Semantic      *ChunkList          `json:"semantic,omitempty" yaml:"semantic,omitempty"`
	Conversion    *ConversionStats    `json:"conversion,omitempty" yaml:"conversion,omitempty"`
	Quality       *QualityScores      `json:"quality,omitempty" yaml:"quality,omitempty"`
}

// Summary is a one-line description kept on the job once loaded.
func (d Detail) Summary() string {
	switch {
	case d.Preprocessing != nil:
		p := d.Preprocessing
		ft := p.FileType
		if ft == "" {
			ft = "document"
		}
		return fmt.Sprintf("%s, %s of markdown", ft, format.HumanizeBytes(int64(p.MarkdownLength)))
	case d.Semantic != nil:
		return fmt.Sprintf("%d chunks", d.Semantic.TotalChunks)
	case d.Conversion != nil:
		c := d.Conversion
		return fmt.Sprintf("%d/%d topics converted (%s)", c.Succeeded, c.Total, format.Ratio(c.SuccessRate))
	case d.Quality != nil:
		q := d.Quality
		return fmt.Sprintf("avg quality %.2f over %d topics", q.AvgQualityScore, q.Total)
	}
	return ""
}

// Rows flattens the detail into label/value pairs for tables and sheets.
func (d Detail) Rows() [][2]string {
	var rows [][2]string
	add := func(k, v string) { rows = append(rows, [2]string{k, v}) }
	add("Job", d.JobID)
	add("Stage", fmt.Sprintf("%d %s", d.Stage, d.Title))

	switch {
	case d.Preprocessing != nil:
		p := d.Preprocessing
		add("File type", p.FileType)
		add("Markdown length", strconv.Itoa(p.MarkdownLength))
		addStats(add, p.Statistics)
	case d.Semantic != nil:
		s := d.Semantic
		add("Total chunks", strconv.Itoa(s.TotalChunks))
		add("Chunks shown", strconv.Itoa(len(s.Chunks)))
		add("More available", strconv.FormatBool(s.HasMore))
		addStats(add, s.Statistics)
	case d.Conversion != nil:
		addConversion(add, *d.Conversion)
	case d.Quality != nil:
		q := d.Quality
		addConversion(add, q.ConversionStats)
		add("Average quality", strconv.FormatFloat(q.AvgQualityScore, 'f', 2, 64))
		addStats(add, q.Summary)
	}
	return rows
}

func addConversion(add func(k, v string), c ConversionStats) {
	add("Topics", strconv.Itoa(c.Total))
	add("Converted", strconv.Itoa(c.Succeeded))
	add("Failed", strconv.Itoa(c.Failed))
	add("Success rate", format.Ratio(c.SuccessRate))
}

func addStats(add func(k, v string), stats map[string]any) {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, statValue(stats[k]))
	}
}

func statValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// wire shapes

type layer1Body struct {
	FileType       *string        `json:"file_type"`
	MarkdownLength int            `json:"markdown_length"`
	Markdown       string         `json:"markdown"`
	Statistics     map[string]any `json:"statistics"`
}

type chunkBody struct {
	ID             json.RawMessage `json:"id"`
	Title          string          `json:"title"`
	Level          int             `json:"level"`
	Classification struct {
		Type       string  `json:"type"`
		Confidence float64 `json:"confidence"`
	} `json:"classification"`
}

type layer2Body struct {
	TotalChunks int            `json:"total_chunks"`
	Chunks      []chunkBody    `json:"chunks"`
	HasMore     bool           `json:"has_more"`
	Statistics  map[string]any `json:"statistics"`
}

type layer34Body struct {
	Total           int             `json:"total"`
	Success         json.RawMessage `json:"success"`
	Failed          int             `json:"failed"`
	SuccessRate     float64         `json:"success_rate"`
	AvgQualityScore float64         `json:"avg_quality_score"`
	Summary         map[string]any  `json:"summary"`
}

const excerptLen = 280

func decode(jobID string, idx progress.StageIndex, raw []byte) (Detail, error) {
	d := Detail{JobID: jobID, Stage: idx, Title: idx.Title()}
	switch idx {
	case 1:
		var b layer1Body
		if err := json.Unmarshal(raw, &b); err != nil {
			return Detail{}, err
		}
		p := &PreprocessingStats{MarkdownLength: b.MarkdownLength, Statistics: b.Statistics}
		if b.FileType != nil {
			p.FileType = *b.FileType
		}
		p.Excerpt = excerpt(b.Markdown, excerptLen)
		d.Preprocessing = p
	case 2:
		var b layer2Body
		if err := json.Unmarshal(raw, &b); err != nil {
			return Detail{}, err
		}
		cl := &ChunkList{TotalChunks: b.TotalChunks, HasMore: b.HasMore, Statistics: b.Statistics}
		for i, c := range b.Chunks {
			id := strings.Trim(string(c.ID), `"`)
			if id == "" || id == "null" {
				id = "chunk_" + strconv.Itoa(i+1)
			}
			cl.Chunks = append(cl.Chunks, Chunk{
				ID:         id,
				Title:      c.Title,
				Level:      c.Level,
				Type:       c.Classification.Type,
				Confidence: c.Classification.Confidence,
			})
		}
		d.Semantic = cl
	case 3, 4:
		var b layer34Body
		if err := json.Unmarshal(raw, &b); err != nil {
			return Detail{}, err
		}
		cs := ConversionStats{Total: b.Total, Failed: b.Failed, SuccessRate: b.SuccessRate}
		// success is a count in these payloads; a bare boolean means the
		// worker did not report one.
		if n, err := strconv.Atoi(strings.TrimSpace(string(b.Success))); err == nil {
			cs.Succeeded = n
		} else {
			cs.Succeeded = max(0, b.Total-b.Failed)
		}
		if idx == 3 {
			d.Conversion = &cs
		} else {
			d.Quality = &QualityScores{ConversionStats: cs, AvgQualityScore: b.AvgQualityScore, Summary: b.Summary}
		}
	default:
		return Detail{}, fmt.Errorf("invalid stage %d", idx)
	}
	return d, nil
}

func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
