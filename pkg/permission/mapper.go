// Package permission maps backend grants to the actions the user interface
// offers.
package permission

import (
	"fmt"
	"os"
	"slices"

	"github.com/goccy/go-yaml"

	"github.com/openkcm/session-client/pkg/session"
)

type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionManage Action = "manage"
)

// Table maps a backend grant to the actions it allows.
type Table map[string][]Action

// DefaultTable is used for grants not overridden by configuration.
var DefaultTable = Table{
	"read":   {ActionView},
	"write":  {ActionCreate, ActionEdit},
	"delete": {ActionDelete},
	"manage": {ActionView, ActionCreate, ActionEdit, ActionDelete, ActionManage},
}

type Mapper struct {
	table Table
}

// NewMapper returns a Mapper using DefaultTable with overrides applied.
func NewMapper(overrides Table) *Mapper {
	table := make(Table, len(DefaultTable)+len(overrides))
	for grant, actions := range DefaultTable {
		table[grant] = slices.Clone(actions)
	}
	for grant, actions := range overrides {
		table[grant] = slices.Clone(actions)
	}

	return &Mapper{table: table}
}

// LoadMapper reads overrides from a YAML file of the form
//
//	grants:
//	  write: [create]
//
// An empty path yields the defaults.
func LoadMapper(path string) (*Mapper, error) {
	if path == "" {
		return NewMapper(nil), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading permission mapping: %w", err)
	}

	var file struct {
		Grants Table `yaml:"grants"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing permission mapping: %w", err)
	}

	return NewMapper(file.Grants), nil
}

// Actions returns the sorted, de-duplicated actions allowed by grants.
// Unknown grants allow nothing.
func (m *Mapper) Actions(grants []string) []Action {
	var actions []Action
	for _, grant := range grants {
		actions = append(actions, m.table[grant]...)
	}
	slices.Sort(actions)

	return slices.Compact(actions)
}

// Can reports whether user may perform action on resource.
func (m *Mapper) Can(user session.User, resource string, action Action) bool {
	return slices.Contains(m.Actions(user.Permissions[resource]), action)
}
