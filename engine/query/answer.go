package query

import (
	"sort"
	"strings"

	"github.com/WessleyAI/manualkg/engine/graph"
	"github.com/spf13/cast"
)

// Step is one numbered procedure step of an answer.
type Step struct {
	No   int    `json:"step_no"`
	Text string `json:"text"`
}

// Answer is the structured result of one question. The media slices are nil
// when no image edge matched.
type Answer struct {
	Section          []string `json:"section,omitempty"`
	Desc             []string `json:"desc"`
	Feature          []string `json:"feature,omitempty"`
	Cause            []string `json:"cause,omitempty"`
	Solution         []string `json:"solution,omitempty"`
	Answers          []string `json:"answers,omitempty"`
	Steps            []Step   `json:"steps,omitempty"`
	SubSections      []string `json:"sub_sections,omitempty"`
	Notes            []string `json:"notes,omitempty"`
	Cautions         []string `json:"cautions,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
	MediaURL         []string `json:"media_url"`
	MediaContentType []string `json:"media_content_type"`
	MediaFileSize    []string `json:"media_file_size"`
}

// Empty reports whether the answer carries no content.
func (a Answer) Empty() bool {
	return len(a.Section) == 0 && len(a.Desc) == 0 && len(a.Feature) == 0 &&
		len(a.Cause) == 0 && len(a.Answers) == 0 && len(a.Steps) == 0
}

// ParseRows folds the rows of a winning tier into one answer. Values are
// de-duplicated in first-seen order; steps are ordered by step number.
func ParseRows(rows []graph.Row) Answer {
	var (
		a    Answer
		seen = make(map[string]map[string]bool)
	)
	add := func(field string, dst *[]string, v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		if seen[field] == nil {
			seen[field] = make(map[string]bool)
		}
		if seen[field][v] {
			return
		}
		seen[field][v] = true
		*dst = append(*dst, v)
	}
	steps := make(map[Step]bool)

	for _, row := range rows {
		add("section", &a.Section, str(row["name"]))
		desc := str(row["description"])
		if key := str(row["spec_key"]); key != "" && desc != "" {
			desc = key + ": " + desc
		}
		add("desc", &a.Desc, desc)
		add("feature", &a.Feature, str(row["feature"]))
		add("cause", &a.Cause, str(row["cause"]))
		for _, s := range list(row["solutions"]) {
			add("solution", &a.Solution, str(s))
		}
		for _, s := range list(row["answers"]) {
			add("answers", &a.Answers, str(s))
		}
		for _, s := range list(row["features"]) {
			add("feature", &a.Feature, str(s))
		}
		for _, s := range list(row["sub_sections"]) {
			add("sub_sections", &a.SubSections, str(s))
		}
		for _, v := range list(row["steps"]) {
			m := cast.ToStringMap(v)
			st := Step{No: cast.ToInt(m["step_no"]), Text: str(m["text"])}
			if st.Text != "" && !steps[st] {
				steps[st] = true
				a.Steps = append(a.Steps, st)
			}
		}
		for _, v := range list(row["extras"]) {
			m := cast.ToStringMap(v)
			text := str(m["text"])
			switch str(m["kind"]) {
			case "HAS_NOTE":
				add("notes", &a.Notes, text)
			case "HAS_CAUTION":
				add("cautions", &a.Cautions, text)
			case "HAS_WARNING":
				add("warnings", &a.Warnings, text)
			}
		}
		for _, v := range list(row["images"]) {
			m := cast.ToStringMap(v)
			url := str(m["media_url"])
			if url == "" || seen["media"][url] {
				continue
			}
			if seen["media"] == nil {
				seen["media"] = make(map[string]bool)
			}
			seen["media"][url] = true
			a.MediaURL = append(a.MediaURL, url)
			a.MediaContentType = append(a.MediaContentType, str(m["media_content_type"]))
			a.MediaFileSize = append(a.MediaFileSize, str(m["media_file_size"]))
		}
	}
	sort.SliceStable(a.Steps, func(i, j int) bool { return a.Steps[i].No < a.Steps[j].No })
	return a
}

func str(v any) string {
	if v == nil {
		return ""
	}
	return cast.ToString(v)
}

func list(v any) []any {
	switch x := v.(type) {
	case []any:
		return x
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	}
	return nil
}
