package events

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	goquerycache "github.com/dgduncan/go-query-cache"
)

//go:embed tags.yaml
var defaultTagGraph []byte

// idPlaceholder stands for the entity id of the mutation arguments.
const idPlaceholder = "{id}"

// TagGraph lists the tags every mutation invalidates. It is configuration:
// keeping it in one file makes the invalidation rules easy to audit.
type TagGraph struct {
	mutations map[string][]goquerycache.Tag
}

type tagGraphFile struct {
	Mutations map[string][]string `yaml:"mutations"`
}

// DefaultTagGraph returns the graph shipped with the package.
func DefaultTagGraph() *TagGraph {
	g, err := LoadTagGraph(bytes.NewReader(defaultTagGraph))
	if err != nil {
		panic(fmt.Sprintf("embedded tag graph: %v", err))
	}
	return g
}

// LoadTagGraphFile reads a graph from a YAML file.
func LoadTagGraphFile(path string) (*TagGraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return LoadTagGraph(f)
}

// LoadTagGraph parses a YAML graph of the form
//
//	mutations:
//	  joinEvent: [Event:LIST, UserEvents:LIST]
//	  deleteEvent: ["Event:{id}", Event:LIST]
func LoadTagGraph(r io.Reader) (*TagGraph, error) {
	var file tagGraphFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode tag graph: %w", err)
	}

	g := &TagGraph{mutations: make(map[string][]goquerycache.Tag, len(file.Mutations))}
	for name, raw := range file.Mutations {
		tags := make([]goquerycache.Tag, 0, len(raw))
		for _, s := range raw {
			t, err := parseTag(s)
			if err != nil {
				return nil, fmt.Errorf("mutation %s: %w", name, err)
			}
			tags = append(tags, t)
		}
		g.mutations[name] = tags
	}
	return g, nil
}

func parseTag(s string) (goquerycache.Tag, error) {
	typ, id, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || typ == "" || id == "" {
		return goquerycache.Tag{}, fmt.Errorf("malformed tag %q, want Type:id", s)
	}
	return goquerycache.Tag{Type: typ, ID: id}, nil
}

// Mutations returns the mutation names present in the graph, sorted.
func (g *TagGraph) Mutations() []string {
	names := make([]string, 0, len(g.mutations))
	for name := range g.mutations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tags returns the tag templates of mutation, placeholders unresolved.
func (g *TagGraph) Tags(mutation string) []goquerycache.Tag {
	return append([]goquerycache.Tag(nil), g.mutations[mutation]...)
}

// invalidates turns the graph entry of mutation into an InvalidatesTags
// function. Templates whose id cannot be resolved from the arguments are
// dropped.
func (g *TagGraph) invalidates(mutation string) goquerycache.TagsFunc {
	templates := g.mutations[mutation]
	if len(templates) == 0 {
		return nil
	}

	return func(_ json.RawMessage, args any) []goquerycache.Tag {
		tags := make([]goquerycache.Tag, 0, len(templates))
		for _, t := range templates {
			if t.ID != idPlaceholder {
				tags = append(tags, t)
				continue
			}
			id, ok := entityID(args)
			if !ok {
				continue
			}
			tags = append(tags, goquerycache.Tag{Type: t.Type, ID: id})
		}
		return tags
	}
}

// entityIdentifier is implemented by mutation arguments that target a
// single entity.
type entityIdentifier interface {
	EntityID() string
}

func entityID(args any) (string, bool) {
	switch v := args.(type) {
	case entityIdentifier:
		return v.EntityID(), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case string:
		return v, v != ""
	case *int:
		if v != nil {
			return entityID(*v)
		}
	case *int64:
		if v != nil {
			return entityID(*v)
		}
	case *string:
		if v != nil {
			return entityID(*v)
		}
	}
	return "", false
}
