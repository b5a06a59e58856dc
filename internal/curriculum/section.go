package curriculum

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// SectionType tags a content block.
type SectionType string

const (
	SectionText    SectionType = "text"
	SectionConcept SectionType = "concept"
	SectionMath    SectionType = "math"
	SectionCode    SectionType = "code"
	SectionExample SectionType = "example"
)

// Section is one ordered content block of a lesson. The concrete type is one of
// TextSection, ConceptSection, MathSection, CodeSection or ExampleSection.
type Section interface {
	Type() SectionType
	isSection()
}

// TextSection is a plain paragraph.
type TextSection struct {
	Content string `json:"content"`
}

// ConceptSection introduces a named idea.
type ConceptSection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// MathSection explains a formula.
type MathSection struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	Formula string `json:"formula"`
}

// CodeSection shows a code sample.
type CodeSection struct {
	Title    string `json:"title,omitempty"`
	Language string `json:"language"`
	Code     string `json:"code"`
}

// ExampleSection is a worked problem.
type ExampleSection struct {
	Title    string `json:"title,omitempty"`
	Problem  string `json:"problem"`
	Solution string `json:"solution"`
	Formula  string `json:"formula,omitempty"`
}

func (TextSection) Type() SectionType    { return SectionText }
func (ConceptSection) Type() SectionType { return SectionConcept }
func (MathSection) Type() SectionType    { return SectionMath }
func (CodeSection) Type() SectionType    { return SectionCode }
func (ExampleSection) Type() SectionType { return SectionExample }

func (TextSection) isSection()    {}
func (ConceptSection) isSection() {}
func (MathSection) isSection()    {}
func (CodeSection) isSection()    {}
func (ExampleSection) isSection() {}

func (s TextSection) MarshalJSON() ([]byte, error) {
	type plain TextSection
	return json.Marshal(struct {
		Type SectionType `json:"type"`
		plain
	}{SectionText, plain(s)})
}

func (s ConceptSection) MarshalJSON() ([]byte, error) {
	type plain ConceptSection
	return json.Marshal(struct {
		Type SectionType `json:"type"`
		plain
	}{SectionConcept, plain(s)})
}

func (s MathSection) MarshalJSON() ([]byte, error) {
	type plain MathSection
	return json.Marshal(struct {
		Type SectionType `json:"type"`
		plain
	}{SectionMath, plain(s)})
}

func (s CodeSection) MarshalJSON() ([]byte, error) {
	type plain CodeSection
	return json.Marshal(struct {
		Type SectionType `json:"type"`
		plain
	}{SectionCode, plain(s)})
}

func (s ExampleSection) MarshalJSON() ([]byte, error) {
	type plain ExampleSection
	return json.Marshal(struct {
		Type SectionType `json:"type"`
		plain
	}{SectionExample, plain(s)})
}

// Sections is an ordered list of content blocks decoded from tagged YAML maps.
type Sections []Section

// rawSection is the on-disk shape: a type tag plus every variant's fields.
type rawSection struct {
	Type     SectionType `yaml:"type"`
	Title    string      `yaml:"title"`
	Content  string      `yaml:"content"`
	Formula  string      `yaml:"formula"`
	Language string      `yaml:"language"`
	Code     string      `yaml:"code"`
	Problem  string      `yaml:"problem"`
	Solution string      `yaml:"solution"`
}

// UnmarshalYAML decodes each block into its variant, rejecting blocks that
// miss a field their type requires.
func (s *Sections) UnmarshalYAML(node *yaml.Node) error {
	var raws []rawSection
	if err := node.Decode(&raws); err != nil {
		return err
	}

	out := make(Sections, 0, len(raws))
	for i, r := range raws {
		sec, err := r.section()
		if err != nil {
			return fmt.Errorf("section %d: %w", i, err)
		}
		out = append(out, sec)
	}
	*s = out
	return nil
}

func (r rawSection) section() (Section, error) {
	switch r.Type {
	case SectionText:
		if r.Content == "" {
			return nil, fmt.Errorf("text section requires content")
		}
		return TextSection{Content: r.Content}, nil
	case SectionConcept:
		if r.Title == "" || r.Content == "" {
			return nil, fmt.Errorf("concept section requires title and content")
		}
		return ConceptSection{Title: r.Title, Content: r.Content}, nil
	case SectionMath:
		if r.Formula == "" {
			return nil, fmt.Errorf("math section requires formula")
		}
		return MathSection{Title: r.Title, Content: r.Content, Formula: r.Formula}, nil
	case SectionCode:
		if r.Code == "" || r.Language == "" {
			return nil, fmt.Errorf("code section requires code and language")
		}
		return CodeSection{Title: r.Title, Language: r.Language, Code: r.Code}, nil
	case SectionExample:
		if r.Problem == "" || r.Solution == "" {
			return nil, fmt.Errorf("example section requires problem and solution")
		}
		return ExampleSection{Title: r.Title, Problem: r.Problem, Solution: r.Solution, Formula: r.Formula}, nil
	default:
		return nil, fmt.Errorf("unknown section type %q", r.Type)
	}
}
