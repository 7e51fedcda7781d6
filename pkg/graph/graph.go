// Package graph loads diagram documents and imports them into the graph store.
//
// A document is YAML (or JSON, which YAML accepts):
//
//	id: onboarding
//	name: Company onboarding
//	nodes:
//	  - id: start
//	    type: start
//	  - id: created
//	    type: trigger
//	    data: {events: [create], mappingIds: ["3"]}
//	connections:
//	  - source: start
//	    target: created
//	  - source: check
//	    target: notify
//	    kind: "true"
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dukex/flowstate/pkg/models"
	"github.com/dukex/flowstate/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDiagram wraps every validation failure of a document.
var ErrInvalidDiagram = errors.New("invalid diagram")

// Document is the on-disk form of a diagram.
type Document struct {
	ID          string               `yaml:"id"          json:"id"          validate:"required"`
	Name        string               `yaml:"name"        json:"name"`
	Nodes       []NodeDocument       `yaml:"nodes"       json:"nodes"       validate:"required,min=1,dive"`
	Connections []ConnectionDocument `yaml:"connections" json:"connections" validate:"dive"`
}

type NodeDocument struct {
	ID   string         `yaml:"id"   json:"id"   validate:"required"`
	Type string         `yaml:"type" json:"type" validate:"required"`
	Name string         `yaml:"name" json:"name"`
	Data map[string]any `yaml:"data" json:"data"`
}

type ConnectionDocument struct {
	ID     string `yaml:"id"     json:"id"`
	Source string `yaml:"source" json:"source" validate:"required"`
	Target string `yaml:"target" json:"target" validate:"required"`
	Kind   string `yaml:"kind"   json:"kind"   validate:"omitempty,oneof=true false yes no"`
}

// Loader turns documents into validated diagrams.
type Loader struct {
	validate *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// LoadFile reads and validates the document at path.
func (l *Loader) LoadFile(path string) (*models.Diagram, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open diagram %s: %w", path, err)
	}
	defer file.Close()

	return l.Load(file)
}

// Load decodes and validates one document.
func (l *Loader) Load(r io.Reader) (*models.Diagram, error) {
	var document Document

	err := yaml.NewDecoder(r).Decode(&document)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDiagram, err)
	}

	return l.Build(document)
}

// Build validates a decoded document and converts it to a diagram.
func (l *Loader) Build(document Document) (*models.Diagram, error) {
	err := l.validate.Struct(document)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDiagram, err)
	}

	diagram := &models.Diagram{ID: document.ID, Name: document.Name}
	seen := make(map[string]bool, len(document.Nodes))

	var problems []error

	for _, n := range document.Nodes {
		if seen[n.ID] {
			problems = append(problems, fmt.Errorf("duplicate node id %q", n.ID))

			continue
		}

		seen[n.ID] = true

		node := &models.DiagramNode{
			DiagramID: document.ID,
			NodeID:    n.ID,
			NodeType:  models.NodeType(n.Type),
			Name:      n.Name,
		}

		if n.Data != nil {
			node.Data, err = json.Marshal(n.Data)
			if err != nil {
				problems = append(problems, fmt.Errorf("node %s data: %w", n.ID, err))

				continue
			}
		}

		err = models.ValidateNodeData(node)
		if err != nil {
			problems = append(problems, err)

			continue
		}

		diagram.Nodes = append(diagram.Nodes, node)
	}

	for i, c := range document.Connections {
		if !seen[c.Source] || !seen[c.Target] {
			problems = append(problems, fmt.Errorf("connection %s -> %s references an unknown node", c.Source, c.Target))

			continue
		}

		id := c.ID
		if id == "" {
			id = fmt.Sprintf("%s-%s-%d", c.Source, c.Target, i)
		}

		diagram.Connections = append(diagram.Connections, &models.Connection{
			ID:           id,
			DiagramID:    document.ID,
			SourceNodeID: c.Source,
			TargetNodeID: c.Target,
			Data:         models.ConnectionData{Kind: c.Kind},
		})
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w %s: %w", ErrInvalidDiagram, document.ID, errors.Join(problems...))
	}

	return diagram, nil
}

// Import saves the diagram in one transaction, replacing any previous version
// with the same id.
func Import(ctx context.Context, p persistence.Persistence, diagram *models.Diagram) error {
	err := p.InTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		return tx.Graph().SaveDiagram(ctx, diagram)
	})
	if err != nil {
		return fmt.Errorf("failed to save diagram %s: %w", diagram.ID, err)
	}

	return nil
}
