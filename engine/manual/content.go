package manual

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/spf13/cast"
)

// Raw dictionary keys used by the extraction layer.
const (
	KeyDescription       = "Description"
	KeyDescriptionPoints = "Description points"
	KeyProcedure         = "Procedure"
	KeySummary           = "Summary"
	KeyPrerequisites     = "Prerequisites"
	KeyTableDetails      = "table_details"
	KeyEntry             = "entry"
)

// ContentKind tags a SectionContent variant.
type ContentKind int

const (
	ContentProcedure ContentKind = iota
	ContentNotes
	ContentCautions
	ContentWarnings
	ContentFigures
	ContentFeatures
	ContentTable
	ContentChecklist
	ContentSubSection
)

var contentKindNames = [...]string{
	"procedure", "note", "caution", "warning", "figure",
	"features", "table_details", "checklist", "sub_section",
}

func (k ContentKind) String() string {
	if int(k) < len(contentKindNames) {
		return contentKindNames[k]
	}
	return fmt.Sprintf("ContentKind(%d)", int(k))
}

// SectionContent is one child of an operation section. The concrete types
// are Procedure, Advisory, Figures, Features, Table, Checklists and Section.
type SectionContent interface {
	Kind() ContentKind
}

// Figure is an image descriptor as emitted by the extraction layer.
type Figure struct {
	FilePath string `json:"file_path"`
	Size     string `json:"size,omitempty"`
	FileType string `json:"file_type,omitempty"`
}

// Figures is a list of images attached directly to a section.
type Figures []Figure

func (Figures) Kind() ContentKind { return ContentFigures }

// AdvisoryKind distinguishes notes, cautions and warnings.
type AdvisoryKind int

const (
	AdvisoryNote AdvisoryKind = iota
	AdvisoryCaution
	AdvisoryWarning
)

func (k AdvisoryKind) String() string {
	switch k {
	case AdvisoryCaution:
		return "caution"
	case AdvisoryWarning:
		return "warning"
	default:
		return "note"
	}
}

// Point is one "Description points" entry of an advisory.
type Point struct {
	Description []string
	Figures     []Figure
}

// Advisory is a note, caution or warning block.
type Advisory struct {
	Type   AdvisoryKind
	Points []Point
}

func (a Advisory) Kind() ContentKind {
	switch a.Type {
	case AdvisoryCaution:
		return ContentCautions
	case AdvisoryWarning:
		return ContentWarnings
	default:
		return ContentNotes
	}
}

// Step is one numbered procedure step.
type Step struct {
	Description []string
	Points      []string
	Figures     []Figure
	Advisories  []Advisory
}

// Procedure is an ordered list of steps.
type Procedure []Step

func (Procedure) Kind() ContentKind { return ContentProcedure }

// Feature is a named product feature.
type Feature struct {
	Name        string
	Description []string
	Figures     []Figure
	Advisories  []Advisory
}

// Features is the "features" list of a section.
type Features []Feature

func (Features) Kind() ContentKind { return ContentFeatures }

// Table is tabular data; each row maps header cells to values.
type Table struct {
	Title  string
	Header []string
	Rows   []map[string]string
}

func (Table) Kind() ContentKind { return ContentTable }

// Checklist is a titled list of items.
type Checklist struct {
	Title string
	Items []string
}

// Checklists is a table_details block whose rows carry "entry" lists.
type Checklists []Checklist

func (Checklists) Kind() ContentKind { return ContentChecklist }

// Summary is the folded description of a section.
type Summary struct {
	Description   []string
	Prerequisites []Advisory
}

// Section is a titled operation section with ordered children.
type Section struct {
	Title    string
	Summary  *Summary
	Children []SectionContent
}

func (Section) Kind() ContentKind { return ContentSubSection }

var spaceRun = regexp.MustCompile(`\s+`)

// CleanTitle collapses repeated whitespace and lower-cases a section title.
func CleanTitle(s string) string {
	return strings.ToLower(strings.TrimSpace(spaceRun.ReplaceAllString(s, " ")))
}

// CollapseSpace collapses whitespace runs to single spaces and trims.
func CollapseSpace(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// ParseSections decodes an operation data dictionary into top-level sections.
// Keys are visited in sorted order.
func ParseSections(data map[string]any) ([]Section, error) {
	out := make([]Section, 0, len(data))
	for _, title := range sortedKeys(data) {
		sec, err := ParseSection(title, data[title])
		if err != nil {
			return nil, err
		}
		out = append(out, sec)
	}
	return out, nil
}

// ParseSection decodes one section body. Known keys become typed children;
// any other map-valued key becomes a nested Section.
func ParseSection(title string, raw any) (Section, error) {
	sec := Section{Title: CollapseSpace(title)}
	body, err := cast.ToStringMapE(raw)
	if err != nil {
		// A bare string or list body is a description-only section.
		if desc := Texts(raw); len(desc) > 0 {
			sec.Summary = &Summary{Description: desc}
			return sec, nil
		}
		return Section{}, domain.NewShapeError(title, err)
	}

	keys := sortedKeys(body)
	for _, k := range keys {
		switch CleanTitle(k) {
		case "summary":
			s, err := parseSummary(body[k])
			if err != nil {
				return Section{}, domain.NewShapeError(title+"."+k, err)
			}
			sec.Summary = &s
		case "description":
			if sec.Summary == nil {
				sec.Summary = &Summary{}
			}
			sec.Summary.Description = append(sec.Summary.Description, Texts(body[k])...)
		}
	}

	for _, k := range keys {
		v := body[k]
		switch CleanTitle(k) {
		case "summary", "description":
			continue
		case "procedure":
			sec.Children = append(sec.Children, ParseProcedure(v))
		case "note", "notes":
			sec.Children = append(sec.Children, ParseAdvisory(AdvisoryNote, v))
		case "caution", "cautions":
			sec.Children = append(sec.Children, ParseAdvisory(AdvisoryCaution, v))
		case "warning", "warnings":
			sec.Children = append(sec.Children, ParseAdvisory(AdvisoryWarning, v))
		case "figure", "figures":
			sec.Children = append(sec.Children, Figures(ParseFigures(v)))
		case "features", "feature":
			sec.Children = append(sec.Children, parseFeatures(v))
		case KeyTableDetails:
			sec.Children = append(sec.Children, parseTable(k, v))
		default:
			child, err := ParseSection(k, v)
			if err != nil {
				return Section{}, domain.NewShapeError(title+"."+k, err)
			}
			sec.Children = append(sec.Children, child)
		}
	}
	return sec, nil
}

func parseSummary(raw any) (Summary, error) {
	if s, ok := raw.(string); ok {
		return Summary{Description: Texts(s)}, nil
	}
	if _, ok := raw.([]any); ok {
		return Summary{Description: Texts(raw)}, nil
	}
	m, err := cast.ToStringMapE(raw)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{Description: append(Texts(m[KeyDescription]), Texts(m[KeyDescriptionPoints])...)}
	if pre, ok := m[KeyPrerequisites]; ok {
		s.Prerequisites = parseAdvisories(pre)
	}
	return s, nil
}

// ParseProcedure decodes a list of step dictionaries. Bare strings are
// accepted as description-only steps.
func ParseProcedure(raw any) Procedure {
	var steps Procedure
	for _, item := range asList(raw) {
		if s, ok := item.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				steps = append(steps, Step{Description: []string{s}})
			}
			continue
		}
		m, err := cast.ToStringMapE(item)
		if err != nil {
			continue
		}
		steps = append(steps, Step{
			Description: Texts(m[KeyDescription]),
			Points:      Texts(m[KeyDescriptionPoints]),
			Figures:     ParseFigures(lookup(m, "figure", "figures")),
			Advisories:  parseAdvisories(m),
		})
	}
	return steps
}

// parseAdvisories collects the note/caution/warning children of m.
func parseAdvisories(raw any) []Advisory {
	m, err := cast.ToStringMapE(raw)
	if err != nil {
		return nil
	}
	var out []Advisory
	for _, k := range sortedKeys(m) {
		switch CleanTitle(k) {
		case "note", "notes":
			out = append(out, ParseAdvisory(AdvisoryNote, m[k]))
		case "caution", "cautions":
			out = append(out, ParseAdvisory(AdvisoryCaution, m[k]))
		case "warning", "warnings":
			out = append(out, ParseAdvisory(AdvisoryWarning, m[k]))
		}
	}
	return out
}

// ParseAdvisory decodes a note/caution/warning block. The block is either a
// dict with "Description points" or directly a list of points.
func ParseAdvisory(kind AdvisoryKind, raw any) Advisory {
	a := Advisory{Type: kind}
	src := raw
	if m, err := cast.ToStringMapE(raw); err == nil {
		if pts, ok := m[KeyDescriptionPoints]; ok {
			src = pts
		} else {
			src = []any{m}
		}
	}
	for _, item := range asList(src) {
		switch t := item.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				a.Points = append(a.Points, Point{Description: []string{s}})
			}
		default:
			m, err := cast.ToStringMapE(t)
			if err != nil {
				continue
			}
			p := Point{
				Description: append(Texts(m[KeyDescription]), Texts(m[KeyDescriptionPoints])...),
				Figures:     ParseFigures(lookup(m, "figure", "figures")),
			}
			if len(p.Description) > 0 || len(p.Figures) > 0 {
				a.Points = append(a.Points, p)
			}
		}
	}
	return a
}

// ParseFigures decodes a figure dict or a list of them.
func ParseFigures(raw any) []Figure {
	var out []Figure
	for _, item := range asList(raw) {
		m, err := cast.ToStringMapE(item)
		if err != nil {
			continue
		}
		f := Figure{
			FilePath: strings.TrimSpace(cast.ToString(lookup(m, "file_path", "filePath", "path"))),
			Size:     cast.ToString(m["size"]),
			FileType: cast.ToString(lookup(m, "file_type", "fileType", "type")),
		}
		if f.FilePath != "" {
			out = append(out, f)
		}
	}
	return out
}

func parseFeatures(raw any) Features {
	var out Features
	if m, err := cast.ToStringMapE(raw); err == nil {
		// {"Feature name": {...}} form.
		if _, single := m["Feature"]; !single {
			for _, name := range sortedKeys(m) {
				out = append(out, parseFeature(name, m[name]))
			}
			return out
		}
		raw = []any{m}
	}
	for _, item := range asList(raw) {
		if s, ok := item.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, Feature{Name: s})
			}
			continue
		}
		m, err := cast.ToStringMapE(item)
		if err != nil {
			continue
		}
		name := strings.TrimSpace(cast.ToString(lookup(m, "Feature", "feature", "Name", "name")))
		if name == "" {
			continue
		}
		out = append(out, parseFeature(name, m))
	}
	return out
}

func parseFeature(name string, raw any) Feature {
	f := Feature{Name: CollapseSpace(name)}
	m, err := cast.ToStringMapE(raw)
	if err != nil {
		f.Description = Texts(raw)
		return f
	}
	f.Description = append(Texts(m[KeyDescription]), Texts(m[KeyDescriptionPoints])...)
	f.Figures = ParseFigures(lookup(m, "figure", "figures"))
	f.Advisories = parseAdvisories(m)
	return f
}

// parseTable decodes table_details. Rows carrying an "entry" list turn the
// whole block into checklists.
func parseTable(title string, raw any) SectionContent {
	t := Table{Title: title}
	src := raw
	if m, err := cast.ToStringMapE(raw); err == nil {
		t.Title = firstNonEmpty(cast.ToString(m["title"]), title)
		t.Header = StringList(m["header"])
		src = m["rows"]
	}

	rows := asList(src)
	var lists Checklists
	for _, r := range rows {
		m, err := cast.ToStringMapE(r)
		if err != nil {
			continue
		}
		if e, ok := m[KeyEntry]; ok {
			lists = append(lists, Checklist{
				Title: strings.TrimSpace(cast.ToString(lookup(m, "title", "Title", "name"))),
				Items: StringList(e),
			})
		}
	}
	if len(lists) > 0 {
		return lists
	}

	for _, r := range rows {
		row := make(map[string]string)
		switch v := r.(type) {
		case []any:
			for i, cell := range v {
				key := fmt.Sprintf("col_%d", i+1)
				if i < len(t.Header) {
					key = t.Header[i]
				}
				row[key] = CollapseSpace(cast.ToString(cell))
			}
		default:
			m, err := cast.ToStringMapE(v)
			if err != nil {
				continue
			}
			for k, cell := range m {
				row[k] = CollapseSpace(strings.Join(StringList(cell), ", "))
			}
		}
		if len(row) > 0 {
			t.Rows = append(t.Rows, row)
		}
	}
	return t
}

// Texts flattens a description value (string, list of strings, list of
// {"Description": ...} dicts) into trimmed, non-empty fragments.
func Texts(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if s := CollapseSpace(t); s != "" {
			return []string{s}
		}
		return nil
	case []string:
		var out []string
		for _, s := range t {
			out = append(out, Texts(s)...)
		}
		return out
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, Texts(item)...)
		}
		return out
	}
	if m, err := cast.ToStringMapE(v); err == nil {
		return Texts(m[KeyDescription])
	}
	return Texts(cast.ToString(v))
}

func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []map[string]any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out
	default:
		return []any{v}
	}
}

func lookup(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SortedKeys returns the keys of m in sorted order.
func SortedKeys(m map[string]any) []string { return sortedKeys(m) }

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
