package similarity

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/WessleyAI/manualkg/engine/extract"
	"github.com/WessleyAI/manualkg/engine/semantic"
	"github.com/WessleyAI/manualkg/pkg/infoext"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Entry is one canonical question key with its representative phrasings.
type Entry struct {
	Key      string   `yaml:"key"`
	Category string   `yaml:"category"`
	Relation string   `yaml:"relation"`
	Intent   string   `yaml:"intent"`
	Phrases  []string `yaml:"phrases"`
}

type scopeDoc struct {
	Product    string  `yaml:"product"`
	SubProduct string  `yaml:"sub_product"`
	Section    string  `yaml:"section"`
	Entries    []Entry `yaml:"entries"`
}

type catalogDoc struct {
	Sections       map[string][]string            `yaml:"sections"`
	SectionAliases map[string]string              `yaml:"section_aliases"`
	Synonyms       map[string][]string            `yaml:"synonyms"`
	Rules          map[string]map[string][]string `yaml:"rules"`
	Scopes         []scopeDoc                     `yaml:"scopes"`
}

// rule is one Tier 1 override phrase.
type rule struct {
	key      string
	phrase   string
	products map[string]bool
}

// Catalog is the immutable configuration of the pipeline. Safe for
// concurrent reads.
type Catalog struct {
	supported map[string]map[string]bool
	aliases   map[string]string
	synonyms  map[string]string
	rules     []rule
	scopes    map[string][]Entry
	byKey     map[string]Entry
}

// ParseCatalog decodes a YAML (or JSON) catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc catalogDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("similarity: parse catalog: %w", err)
	}
	if len(doc.Sections) == 0 {
		return nil, fmt.Errorf("similarity: parse catalog: no sections")
	}

	c := &Catalog{
		supported: make(map[string]map[string]bool),
		aliases:   make(map[string]string),
		synonyms:  make(map[string]string),
		scopes:    make(map[string][]Entry),
		byKey:     make(map[string]Entry),
	}
	for sec, products := range doc.Sections {
		set := make(map[string]bool, len(products))
		for _, p := range products {
			set[normalizeProduct(p)] = true
		}
		c.supported[lower(sec)] = set
	}
	for alias, sec := range doc.SectionAliases {
		c.aliases[lower(alias)] = lower(sec)
	}
	for canonical, variants := range doc.Synonyms {
		for _, v := range variants {
			c.synonyms[lower(v)] = canonical
		}
	}

	keys := make([]string, 0, len(doc.Rules))
	for k := range doc.Rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		phrases := make([]string, 0, len(doc.Rules[k]))
		for p := range doc.Rules[k] {
			phrases = append(phrases, p)
		}
		sort.Strings(phrases)
		for _, p := range phrases {
			r := rule{key: k, phrase: lower(p), products: make(map[string]bool)}
			for _, prod := range doc.Rules[k][p] {
				r.products[normalizeProduct(prod)] = true
			}
			c.rules = append(c.rules, r)
		}
	}

	for _, sd := range doc.Scopes {
		s := semantic.Scope{
			Product:    normalizeProduct(sd.Product),
			SubProduct: lower(sd.SubProduct),
			Section:    c.Section(sd.Section),
		}
		entries := make([]Entry, 0, len(sd.Entries))
		for _, e := range sd.Entries {
			if e.Key == "" || len(e.Phrases) == 0 {
				return nil, fmt.Errorf("similarity: parse catalog: scope %s: entry %q has no phrases", s, e.Key)
			}
			if e.Category == "" {
				e.Category = e.Key
			}
			norm := make([]string, 0, len(e.Phrases))
			for _, p := range e.Phrases {
				if t := infoext.Extract(c.Normalize(p)).Text; t != "" {
					norm = append(norm, t)
				}
			}
			e.Phrases = norm
			entries = append(entries, e)
			c.byKey[s.Key(e.Key)] = e
		}
		c.scopes[s.String()] = entries
	}
	return c, nil
}

// LoadCatalog reads a catalog file from disk.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("similarity: read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the catalog compiled into the binary.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

// Section resolves a section name or alias ("trob") to its canonical name.
func (c *Catalog) Section(name string) string {
	n := lower(name)
	if a, ok := c.aliases[n]; ok {
		return a
	}
	return n
}

// Supports reports whether questions about section are answered for product.
func (c *Catalog) Supports(section, product string) bool {
	return c.supported[c.Section(section)][normalizeProduct(product)]
}

// Normalize lower-cases text and collapses known synonyms to their
// canonical word token by token.
func (c *Catalog) Normalize(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	for i, f := range fields {
		core := strings.Trim(f, ".,!?;:'\"()")
		if canonical, ok := c.synonyms[core]; ok {
			fields[i] = strings.Replace(f, core, canonical, 1)
		}
	}
	return strings.Join(fields, " ")
}

// Scope resolves the cached scope for a request. A sub-product type without
// its own entries falls back to the product-wide scope.
func (c *Catalog) Scope(product, subProduct, section string) (semantic.Scope, []Entry, bool) {
	s := semantic.Scope{Product: normalizeProduct(product), SubProduct: lower(subProduct), Section: c.Section(section)}
	if e, ok := c.scopes[s.String()]; ok {
		return s, e, true
	}
	s.SubProduct = ""
	e, ok := c.scopes[s.String()]
	return s, e, ok
}

// Scopes lists every configured scope.
func (c *Catalog) Scopes() []semantic.Scope {
	out := make([]semantic.Scope, 0, len(c.scopes))
	for k := range c.scopes {
		parts := strings.SplitN(k, "|", 3)
		out = append(out, semantic.Scope{Product: parts[0], SubProduct: parts[1], Section: parts[2]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Entry returns the catalog entry of key within s.
func (c *Catalog) Entry(s semantic.Scope, key string) (Entry, bool) {
	e, ok := c.byKey[s.Key(key)]
	return e, ok
}

// matchRule returns the longest rule phrase contained in text that applies
// to product.
func (c *Catalog) matchRule(text, product string) (rule, bool) {
	var (
		best  rule
		found bool
	)
	for _, r := range c.rules {
		if len(r.products) > 0 && !r.products[product] {
			continue
		}
		if strings.Contains(text, r.phrase) && (!found || len(r.phrase) > len(best.phrase)) {
			best, found = r, true
		}
	}
	return best, found
}

func normalizeProduct(p string) string {
	if n, err := extract.NormalizeProduct(p); err == nil {
		return n
	}
	return lower(p)
}

func lower(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
