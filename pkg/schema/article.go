// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
)

// ArticleSchemaName is the registry name of the scraped article contract.
const ArticleSchemaName = "ScrapedArticle"

// Article is the typed form of an object validated against ArticleSchema.
type Article struct {
	Title       string            `mapstructure:"title" json:"title"`
	Author      string            `mapstructure:"author" json:"author,omitempty"`
	Date        string            `mapstructure:"date" json:"date,omitempty"`
	Summary     string            `mapstructure:"summary" json:"summary,omitempty"`
	Paragraphs  []string          `mapstructure:"paragraphs" json:"paragraphs"`
	Keywords    []string          `mapstructure:"keywords" json:"keywords,omitempty"`
	ReadingTime string            `mapstructure:"reading_time" json:"reading_time,omitempty"`
	SourceURL   string            `mapstructure:"source_url" json:"source_url,omitempty"`
	Images      []string          `mapstructure:"images" json:"images,omitempty"`
	Metadata    map[string]string `mapstructure:"metadata" json:"metadata,omitempty"`
}

// ArticleSchema requires a title and paragraphs; every other field is optional.
var ArticleSchema = &Schema{
	Name:        ArticleSchemaName,
	Description: "Structured content extracted from a web page.",
	Fields: []Field{
		{Name: "title", Type: Scalar(KindString), Required: true, Description: "Page or article title"},
		{Name: "author", Type: Scalar(KindString), Description: "Author name"},
		{Name: "date", Type: Scalar(KindString), Description: "Publication date as written on the page"},
		{Name: "summary", Type: Scalar(KindString), Description: "Short summary of the content"},
		{Name: "paragraphs", Type: ListOf(KindString), Required: true, Description: "Paragraphs of the content in order"},
		{Name: "keywords", Type: ListOf(KindString), Description: "Keywords describing the content"},
		{Name: "reading_time", Type: Scalar(KindString), Description: "Estimated reading time"},
		{Name: "source_url", Type: Scalar(KindString), Description: "URL of the source page"},
		{Name: "images", Type: ListOf(KindString), Description: "Image URLs found on the page"},
		{Name: "metadata", Type: MapOf(KindString), Description: "Page metadata such as title and description"},
	},
}

// Decode converts a validated object into a typed struct such as Article.
func Decode(obj Object, out any) error {
	if err := mapstructure.Decode(map[string]any(obj), out); err != nil {
		return fmt.Errorf("decode structured output: %w", err)
	}
	return nil
}

// Registry holds named schemas referenced from crew definitions.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*Schema)}
}

// DefaultRegistry returns a registry with the built-in schemas registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(ArticleSchema)
	return r
}

// Register adds s under its name. Names are unique.
func (r *Registry) Register(s *Schema) error {
	if s == nil || s.Name == "" {
		return fmt.Errorf("schema name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schemas[s.Name]; ok {
		return fmt.Errorf("schema %q already registered", s.Name)
	}
	r.schemas[s.Name] = s
	return nil
}

// Lookup returns the schema registered under name.
func (r *Registry) Lookup(name string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// Names returns the registered schema names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
