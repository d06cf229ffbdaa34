// Package catalogfile reads action catalogs from YAML or TOML files and
// registers them with the catalog service.
//
// Format (YAML):
//
//	application: billing
//	actions:
//	  - action_id: view_invoice
//	    action_name: View invoice
//	    resource_id: invoice
//	    resource_name: Invoice
//	    instances:
//	      - instance_id: invoice-42
//	        instance_name: Invoice 42
//
// The TOML form uses the same keys with [[actions]] and [[actions.instances]] tables.
package catalogfile

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/keyward-dev/keyward/internal/service"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for files that are neither YAML nor TOML.
var ErrUnsupportedFormat = errors.New("unsupported catalog file format")

// File is one application's catalog.
type File struct {
	Application string   `yaml:"application" toml:"application"`
	Actions     []Action `yaml:"actions" toml:"actions"`
}

// Action describes an action and the instances of its resource.
type Action struct {
	ActionID     string     `yaml:"action_id" toml:"action_id"`
	ActionName   string     `yaml:"action_name" toml:"action_name"`
	ResourceID   string     `yaml:"resource_id" toml:"resource_id"`
	ResourceName string     `yaml:"resource_name" toml:"resource_name"`
	Description  string     `yaml:"description" toml:"description"`
	Instances    []Instance `yaml:"instances" toml:"instances"`
}

// Instance is one instance entry.
type Instance struct {
	InstanceID   string `yaml:"instance_id" toml:"instance_id"`
	InstanceName string `yaml:"instance_name" toml:"instance_name"`
}

// Parse decodes data according to the extension of name.
func Parse(name string, data []byte) (*File, error) {
	var f File
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, errors.Wrapf(err, "decode %s", name)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &f); err != nil {
			return nil, errors.Wrapf(err, "decode %s", name)
		}
	default:
		return nil, errors.Wrap(ErrUnsupportedFormat, name)
	}

	if err := f.validate(); err != nil {
		return nil, errors.Wrap(err, name)
	}
	return &f, nil
}

func (f *File) validate() error {
	if !service.IsIdentifier(f.Application) {
		return errors.Errorf("invalid application %q", f.Application)
	}
	seen := make(map[string]bool, len(f.Actions))
	for i, a := range f.Actions {
		if !service.IsIdentifier(a.ActionID) {
			return errors.Errorf("actions[%d]: invalid action_id %q", i, a.ActionID)
		}
		if seen[a.ActionID] {
			return errors.Errorf("actions[%d]: duplicate action_id %q", i, a.ActionID)
		}
		seen[a.ActionID] = true
		if a.ActionName == "" {
			return errors.Errorf("actions[%d]: action_name is required", i)
		}
		if len(a.Instances) > 0 && a.ResourceID == "" {
			return errors.Errorf("actions[%d]: instances need a resource_id", i)
		}
		for j, inst := range a.Instances {
			if !service.IsIdentifier(inst.InstanceID) {
				return errors.Errorf("actions[%d].instances[%d]: invalid instance_id %q", i, j, inst.InstanceID)
			}
		}
	}
	return nil
}

// ReadFile reads and parses a catalog file.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return Parse(path, data)
}

// Glob expands doublestar patterns such as "catalogs/**/*.yaml" into a
// sorted, deduplicated list of files.
func Glob(patterns ...string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.Wrapf(err, "expand %s", pattern)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Summary counts what an import touched.
type Summary struct {
	File      string `json:"file"`
	Created   int    `json:"actions_created"`
	Updated   int    `json:"actions_updated"`
	Instances int    `json:"instances"`
}

// Import registers the catalog: missing actions are created, existing ones
// get their descriptive fields refreshed, and instances are upserted.
func Import(ctx context.Context, catalog *service.CatalogService, actor string, f *File) (*Summary, error) {
	summary := &Summary{}
	for _, a := range f.Actions {
		existing, err := catalog.FindAction(ctx, f.Application, a.ActionID)
		switch {
		case err == nil:
			if existing.ResourceID != a.ResourceID {
				return nil, errors.Errorf("action %s: resource_id cannot change from %q to %q on import", a.ActionID, existing.ResourceID, a.ResourceID)
			}
			name, resName, desc := a.ActionName, a.ResourceName, a.Description
			if _, err := catalog.UpdateAction(ctx, actor, existing.ID.String(), service.UpdateActionRequest{
				ActionName:   &name,
				ResourceName: &resName,
				Description:  &desc,
			}); err != nil {
				return nil, errors.Wrapf(err, "update action %s", a.ActionID)
			}
			summary.Updated++
		case errors.Is(err, service.ErrNotFound):
			existing, err = catalog.RegisterAction(ctx, actor, service.RegisterActionRequest{
				Application:  f.Application,
				ActionID:     a.ActionID,
				ActionName:   a.ActionName,
				ResourceID:   a.ResourceID,
				ResourceName: a.ResourceName,
				Description:  a.Description,
			})
			if err != nil {
				return nil, errors.Wrapf(err, "register action %s", a.ActionID)
			}
			summary.Created++
		default:
			return nil, errors.Wrapf(err, "look up action %s", a.ActionID)
		}

		if len(a.Instances) == 0 {
			continue
		}
		rows := make([]service.InstanceInput, 0, len(a.Instances))
		for _, inst := range a.Instances {
			name := inst.InstanceName
			if name == "" {
				name = inst.InstanceID
			}
			rows = append(rows, service.InstanceInput{InstanceID: inst.InstanceID, InstanceName: name})
		}
		if _, err := catalog.RegisterInstances(ctx, f.Application, existing.ID.String(), rows); err != nil {
			return nil, errors.Wrapf(err, "register instances for %s", a.ActionID)
		}
		summary.Instances += len(rows)
	}
	return summary, nil
}
