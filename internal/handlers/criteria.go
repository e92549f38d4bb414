package handlers

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

var ErrUnknownCriteria = errors.New("unknown criteria")

// Requirement is one checkable clause of a criterion. A requirement is met
// when any of its keywords appears in the document.
type Requirement struct {
	ID          string   `yaml:"id" json:"id"`
	Description string   `yaml:"description" json:"description"`
	Keywords    []string `yaml:"keywords" json:"keywords"`
}

type Criterion struct {
	ID           string        `yaml:"id" json:"id"`
	Title        string        `yaml:"title" json:"title"`
	Requirements []Requirement `yaml:"requirements" json:"requirements"`
}

func (c Criterion) Validate() error {
	if c.ID == "" {
		return errors.New("criterion id is required")
	}
	if len(c.Requirements) == 0 {
		return fmt.Errorf("criterion %s: at least one requirement is required", c.ID)
	}
	seen := make(map[string]bool, len(c.Requirements))
	for _, r := range c.Requirements {
		if r.ID == "" {
			return fmt.Errorf("criterion %s: requirement id is required", c.ID)
		}
		if seen[r.ID] {
			return fmt.Errorf("criterion %s: duplicate requirement id: %s", c.ID, r.ID)
		}
		seen[r.ID] = true
		if len(r.Keywords) == 0 {
			return fmt.Errorf("criterion %s: requirement %s has no keywords", c.ID, r.ID)
		}
	}
	return nil
}

// Catalog is an immutable set of criteria keyed by id.
type Catalog struct {
	criteria map[string]Criterion
}

func NewCatalog(criteria ...Criterion) (*Catalog, error) {
	c := &Catalog{criteria: make(map[string]Criterion, len(criteria))}
	for _, cr := range criteria {
		if err := cr.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.criteria[cr.ID]; dup {
			return nil, fmt.Errorf("duplicate criterion id: %s", cr.ID)
		}
		c.criteria[cr.ID] = cr
	}
	return c, nil
}

func (c *Catalog) Get(id string) (Criterion, error) {
	cr, ok := c.criteria[id]
	if !ok {
		return Criterion{}, fmt.Errorf("%w: %s", ErrUnknownCriteria, id)
	}
	return cr, nil
}

func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.criteria))
	for id := range c.criteria {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadCatalog reads criteria from a YAML file of the form
//
//	criteria:
//	  - id: data-governance
//	    title: Data governance
//	    requirements:
//	      - id: dg-1
//	        description: A data owner is assigned
//	        keywords: [data owner, data steward]
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read criteria file: %w", err)
	}

	var file struct {
		Criteria []Criterion `yaml:"criteria"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal criteria file: %w", err)
	}
	if len(file.Criteria) == 0 {
		return nil, fmt.Errorf("criteria file %s defines no criteria", path)
	}
	return NewCatalog(file.Criteria...)
}

// DefaultCatalog returns the built-in digital government criteria.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultCriteria...)
	if err != nil {
		panic(err)
	}
	return c
}

var defaultCriteria = []Criterion{
	{
		ID:    "data-governance",
		Title: "Data governance",
		Requirements: []Requirement{
			{ID: "dg-1", Description: "Data ownership is assigned", Keywords: []string{"data owner", "data steward", "data ownership"}},
			{ID: "dg-2", Description: "Data is classified by sensitivity", Keywords: []string{"classification", "classified", "confidential"}},
			{ID: "dg-3", Description: "Retention periods are defined", Keywords: []string{"retention", "archiv", "disposal"}},
			{ID: "dg-4", Description: "Data quality is monitored", Keywords: []string{"data quality", "accuracy", "completeness"}},
		},
	},
	{
		ID:    "cybersecurity",
		Title: "Cybersecurity controls",
		Requirements: []Requirement{
			{ID: "cs-1", Description: "Access is controlled by role", Keywords: []string{"access control", "role-based", "least privilege"}},
			{ID: "cs-2", Description: "Sensitive data is encrypted", Keywords: []string{"encrypt", "tls", "at rest"}},
			{ID: "cs-3", Description: "Incidents have a response plan", Keywords: []string{"incident response", "incident management", "breach"}},
			{ID: "cs-4", Description: "Systems are backed up", Keywords: []string{"backup", "disaster recovery", "business continuity"}},
		},
	},
	{
		ID:    "digital-services",
		Title: "Digital service delivery",
		Requirements: []Requirement{
			{ID: "ds-1", Description: "Services are available online", Keywords: []string{"online", "e-service", "portal"}},
			{ID: "ds-2", Description: "User satisfaction is measured", Keywords: []string{"satisfaction", "survey", "feedback"}},
			{ID: "ds-3", Description: "Services meet accessibility standards", Keywords: []string{"accessibility", "wcag", "disabilit"}},
		},
	},
}
