package pipeline

import (
	"fmt"
	"strings"
	"text/template"
)

// Prompts holds the two instruction templates for the text-generation capability.
type Prompts struct {
	clean     *template.Template
	summarize *template.Template
	language  string
}

type promptData struct {
	Text     string
	Language string
}

// NewPrompts parses the cleaning and summary templates. Both receive .Text;
// .Language carries the summary's target language.
func NewPrompts(clean, summarize, language string) (*Prompts, error) {
	ct, err := template.New("clean").Option("missingkey=error").Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("parse clean prompt: %w", err)
	}
	st, err := template.New("summarize").Option("missingkey=error").Parse(summarize)
	if err != nil {
		return nil, fmt.Errorf("parse summarize prompt: %w", err)
	}
	return &Prompts{clean: ct, summarize: st, language: language}, nil
}

func (p *Prompts) Clean(transcript string) (string, error) {
	return render(p.clean, promptData{Text: transcript, Language: p.language})
}

func (p *Prompts) Summarize(cleaned string) (string, error) {
	return render(p.summarize, promptData{Text: cleaned, Language: p.language})
}

func (p *Prompts) Language() string {
	return p.language
}

func render(t *template.Template, data promptData) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return sb.String(), nil
}
