package render

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/notifyhub/notification-pipeline/internal/domain"
)

// Template is one entry of the catalog. Subject is only used by EMAIL.
type Template struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// Catalog maps template identifiers to their text.
// It is built once at startup and read concurrently afterwards.
type Catalog struct {
	templates map[string]Template
}

type catalogFile struct {
	Templates map[string]Template `yaml:"templates"`
}

// NewCatalog builds a catalog from an in-memory map.
func NewCatalog(templates map[string]Template) *Catalog {
	c := &Catalog{templates: make(map[string]Template, len(templates))}
	for id, t := range templates {
		c.templates[id] = t
	}
	return c
}

// LoadCatalog reads a YAML file of the form:
//
//	templates:
//	  welcome:
//	    subject: "Welcome, {{name}}"
//	    body: "Hi {{name}}, welcome to our church!"
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog parses catalog YAML.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse template catalog: %w", err)
	}
	for id, t := range f.Templates {
		if t.Body == "" {
			return nil, fmt.Errorf("template %q has an empty body", id)
		}
	}
	return NewCatalog(f.Templates), nil
}

// Render resolves the body of template id with vars.
func (c *Catalog) Render(id string, vars map[string]string) (string, error) {
	t, ok := c.templates[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownTemplate, id)
	}
	return Resolve(t.Body, vars)
}

// RenderSubject resolves the catalog subject of id, falling back to the
// caller-supplied subject when the template does not define one.
func (c *Catalog) RenderSubject(id, fallback string, vars map[string]string) (string, error) {
	t, ok := c.templates[id]
	if !ok || t.Subject == "" {
		return Resolve(fallback, vars)
	}
	return Resolve(t.Subject, vars)
}

// Len returns the number of templates loaded.
func (c *Catalog) Len() int { return len(c.templates) }
