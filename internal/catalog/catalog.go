// Package catalog holds the static reference data: region groups, inspectorates
// and the health-center posts guards can cover. It is loaded once at startup and
// never mutated afterwards.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Guizzs26/gcm-presence/pkg/encoding"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

const StatusInactive = "inactive"

type Region struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

type Inspectorate struct {
	ID     string `yaml:"id" json:"id"`
	Name   string `yaml:"name" json:"name"`
	Region string `yaml:"region" json:"region"`
}

type Coords struct {
	Row int `yaml:"row" json:"row"`
	Col int `yaml:"col" json:"col"`
}

type Post struct {
	ID           string `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	Location     string `yaml:"location" json:"location"`
	Region       string `yaml:"region" json:"region"`
	Inspectorate string `yaml:"inspectorate" json:"inspectorate"`
	Status       string `yaml:"status,omitempty" json:"status,omitempty"`
	Coords       Coords `yaml:"coords" json:"coords"`
}

func (p Post) Active() bool {
	return p.Status != StatusInactive
}

type Catalog struct {
	Regions       []Region       `yaml:"regions" json:"regions"`
	Inspectorates []Inspectorate `yaml:"inspectorates" json:"inspectorates"`
	Posts         []Post         `yaml:"posts" json:"posts"`

	regionByID map[string]Region
	inspByID   map[string]Inspectorate
	postByID   map[string]Post
}

// Default returns the catalog compiled into the binary
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a YAML catalog from disk. An empty path yields the default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(encoding.ToUTF8(b))
}

func Parse(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

// index builds the lookup maps and enforces referential integrity
func (c *Catalog) index() error {
	c.regionByID = make(map[string]Region, len(c.Regions))
	c.inspByID = make(map[string]Inspectorate, len(c.Inspectorates))
	c.postByID = make(map[string]Post, len(c.Posts))

	var errs []error
	for _, r := range c.Regions {
		if r.ID == "" {
			errs = append(errs, errors.New("region with empty id"))
			continue
		}
		if _, dup := c.regionByID[r.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate region %s", r.ID))
		}
		c.regionByID[r.ID] = r
	}
	for _, i := range c.Inspectorates {
		if _, dup := c.inspByID[i.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate inspectorate %s", i.ID))
		}
		if _, ok := c.regionByID[i.Region]; !ok {
			errs = append(errs, fmt.Errorf("inspectorate %s references unknown region %q", i.ID, i.Region))
		}
		c.inspByID[i.ID] = i
	}
	for _, p := range c.Posts {
		if p.ID == "" {
			errs = append(errs, errors.New("post with empty id"))
			continue
		}
		if _, dup := c.postByID[p.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate post %s", p.ID))
		}
		if _, ok := c.regionByID[p.Region]; !ok {
			errs = append(errs, fmt.Errorf("post %s references unknown region %q", p.ID, p.Region))
		}
		if insp, ok := c.inspByID[p.Inspectorate]; !ok {
			errs = append(errs, fmt.Errorf("post %s references unknown inspectorate %q", p.ID, p.Inspectorate))
		} else if insp.Region != p.Region {
			errs = append(errs, fmt.Errorf("post %s is in %s but its inspectorate %s is in %s", p.ID, p.Region, insp.ID, insp.Region))
		}
		c.postByID[p.ID] = p
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid catalog: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Catalog) Region(id string) (Region, bool) {
	r, ok := c.regionByID[id]
	return r, ok
}

func (c *Catalog) Inspectorate(id string) (Inspectorate, bool) {
	i, ok := c.inspByID[id]
	return i, ok
}

func (c *Catalog) Post(id string) (Post, bool) {
	p, ok := c.postByID[id]
	return p, ok
}

// PostsIn returns the posts of a region in catalog order. An empty region means all posts.
func (c *Catalog) PostsIn(region string) []Post {
	out := make([]Post, 0, len(c.Posts))
	for _, p := range c.Posts {
		if region == "" || p.Region == region {
			out = append(out, p)
		}
	}
	return out
}

// InspectoratesIn mirrors PostsIn for inspectorates
func (c *Catalog) InspectoratesIn(region string) []Inspectorate {
	out := make([]Inspectorate, 0, len(c.Inspectorates))
	for _, i := range c.Inspectorates {
		if region == "" || i.Region == region {
			out = append(out, i)
		}
	}
	return out
}
