// Package reconcile converges stored state to a declared target. Each
// reconciler snapshots the store, plans the difference with a pure function
// and applies only that difference, so running it again is a no-op.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"chirp/internal/models"
	"chirp/internal/observability"

	"gopkg.in/yaml.v3"
)

// RoleSpec declares one managed role.
type RoleSpec struct {
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
	Default     bool     `yaml:"default"`
}

// RoleTable is the declared set of managed roles.
type RoleTable []RoleSpec

type roleFile struct {
	Roles RoleTable `yaml:"roles"`
}

// DefaultRoleTable returns the built-in role table.
func DefaultRoleTable() RoleTable {
	return RoleTable{
		{Name: models.RoleUser, Permissions: []string{"FOLLOW", "COMMENT", "WRITE"}, Default: true},
		{Name: models.RoleModerator, Permissions: []string{"FOLLOW", "COMMENT", "WRITE", "MODERATE"}},
		{Name: models.RoleAdministrator, Permissions: []string{"FOLLOW", "COMMENT", "WRITE", "MODERATE", "ADMIN"}},
	}
}

// LoadRoleTable reads a YAML role table. An empty path yields the default table.
func LoadRoleTable(path string) (RoleTable, error) {
	if path == "" {
		return DefaultRoleTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, models.NewConfigurationError(fmt.Sprintf("read roles file %s: %v", path, err))
	}
	return ParseRoleTable(data)
}

// ParseRoleTable decodes and validates a YAML role table.
func ParseRoleTable(data []byte) (RoleTable, error) {
	var f roleFile
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, models.NewConfigurationError(fmt.Sprintf("parse roles file: %v", err))
	}
	if err := f.Roles.Validate(); err != nil {
		return nil, err
	}
	return f.Roles, nil
}

// Validate checks the table is usable: at least one role, unique non-empty
// names, known permission names and exactly one default.
func (t RoleTable) Validate() error {
	if len(t) == 0 {
		return models.NewConfigurationError("role table is empty")
	}
	seen := make(map[string]struct{}, len(t))
	defaults := 0
	for _, spec := range t {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return models.NewConfigurationError("role name must not be empty")
		}
		if _, dup := seen[name]; dup {
			return models.NewConfigurationError(fmt.Sprintf("role %q declared twice", name))
		}
		seen[name] = struct{}{}
		if _, err := spec.mask(); err != nil {
			return models.NewConfigurationError(fmt.Sprintf("role %q: %v", name, err))
		}
		if spec.Default {
			defaults++
		}
	}
	if defaults != 1 {
		return models.NewConfigurationError(fmt.Sprintf("role table must declare exactly one default role, found %d", defaults))
	}
	return nil
}

func (s RoleSpec) mask() (models.Permission, error) {
	var p models.Permission
	for _, name := range s.Permissions {
		flag, err := models.ParsePermission(name)
		if err != nil {
			return 0, err
		}
		p |= flag
	}
	return p, nil
}

// RolePlan is the set of writes needed to converge the role store.
type RolePlan struct {
	Create   []models.Role
	Update   []models.Role
	Defaults int
}

// Empty reports whether the store already matches the table.
func (p RolePlan) Empty() bool {
	return len(p.Create) == 0 && len(p.Update) == 0
}

// Changes returns creates followed by updates.
func (p RolePlan) Changes() []models.Role {
	out := make([]models.Role, 0, len(p.Create)+len(p.Update))
	out = append(out, p.Create...)
	return append(out, p.Update...)
}

// PlanRoles diffs the current roles against the table. Roles the table does
// not name are left alone but still count towards the projected defaults.
func PlanRoles(current []models.Role, table RoleTable) (RolePlan, error) {
	if err := table.Validate(); err != nil {
		return RolePlan{}, err
	}

	byName := make(map[string]models.Role, len(current))
	for _, r := range current {
		byName[r.Name] = r
	}

	var plan RolePlan
	managed := make(map[string]struct{}, len(table))
	for _, spec := range table {
		name := strings.TrimSpace(spec.Name)
		managed[name] = struct{}{}
		mask, _ := spec.mask()
		if spec.Default {
			plan.Defaults++
		}

		existing, ok := byName[name]
		if !ok {
			plan.Create = append(plan.Create, models.Role{Name: name, Permissions: mask, IsDefault: spec.Default})
			continue
		}
		if existing.Permissions != mask || existing.IsDefault != spec.Default {
			existing.Permissions = mask
			existing.IsDefault = spec.Default
			plan.Update = append(plan.Update, existing)
		}
	}

	for _, r := range current {
		if _, ok := managed[r.Name]; !ok && r.IsDefault {
			plan.Defaults++
		}
	}
	if plan.Defaults != 1 {
		return plan, models.NewConfigurationError(fmt.Sprintf("reconciliation would leave %d default roles", plan.Defaults))
	}
	return plan, nil
}

// RoleStore is the persistence surface Roles needs.
type RoleStore interface {
	List(ctx context.Context) ([]models.Role, error)
	ApplyChanges(ctx context.Context, roles []models.Role) error
}

// Roles converges the role store to table and returns the applied plan.
func Roles(ctx context.Context, store RoleStore, table RoleTable) (RolePlan, error) {
	if err := table.Validate(); err != nil {
		return RolePlan{}, err
	}

	current, err := store.List(ctx)
	if err != nil {
		return RolePlan{}, fmt.Errorf("list roles: %w", err)
	}

	plan, err := PlanRoles(current, table)
	if err != nil {
		return plan, err
	}
	if plan.Empty() {
		observability.Logger.InfoContext(ctx, "Roles already reconciled", slog.Int("roles", len(current)))
		return plan, nil
	}

	if err := store.ApplyChanges(ctx, plan.Changes()); err != nil {
		return plan, fmt.Errorf("apply role changes: %w", err)
	}

	observability.ReconcileChanges.WithLabelValues("role", "create").Add(float64(len(plan.Create)))
	observability.ReconcileChanges.WithLabelValues("role", "update").Add(float64(len(plan.Update)))
	observability.Logger.InfoContext(ctx, "Roles reconciled",
		slog.Int("created", len(plan.Create)),
		slog.Int("updated", len(plan.Update)),
	)
	return plan, nil
}
