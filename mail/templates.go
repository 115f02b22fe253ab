package mail

import (
	_ "embed"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teranos/pegabatch/errors"
)

//go:embed templates.yaml
var defaultTemplates []byte

// Template is a subject and body pair with <PLACEHOLDER> markers.
type Template struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// Render replaces each <KEY> marker with its value.
func (t Template) Render(vars map[string]string) (subject, body string) {
	subject, body = t.Subject, t.Body
	for k, v := range vars {
		marker := "<" + k + ">"
		subject = strings.ReplaceAll(subject, marker, v)
		body = strings.ReplaceAll(body, marker, v)
	}
	return subject, body
}

// Templates holds every notification text.
type Templates struct {
	Results Template `yaml:"results"`
	Error   Template `yaml:"error"`
}

// LoadTemplates parses YAML templates. Missing entries keep the defaults.
func LoadTemplates(data []byte) (Templates, error) {
	t := DefaultTemplates()
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Templates{}, errors.Wrap(err, "parse mail templates")
	}
	return t, nil
}

// DefaultTemplates returns the built-in Portuguese texts.
func DefaultTemplates() Templates {
	var t Templates
	if err := yaml.Unmarshal(defaultTemplates, &t); err != nil {
		panic("mail: embedded templates are invalid: " + err.Error())
	}
	return t
}
