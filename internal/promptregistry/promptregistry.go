// Package promptregistry implements a version-indexed store of prompt
// templates, loaded once at startup from a directory of YAML
// descriptors and immutable afterwards.
package promptregistry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

// Descriptor is one versioned prompt template.
type Descriptor struct {
	Version      string    `yaml:"version"`
	SystemPrompt string    `yaml:"system_prompt"`
	UserTemplate string    `yaml:"user_template"` // contains the literal token "{instruction}"
	Description  string    `yaml:"description"`
	Tags         []string  `yaml:"tags"`
	CreatedAt    time.Time `yaml:"created_at"`
	Examples     []string  `yaml:"examples"`
}

const instructionSlot = "{instruction}"

// Render substitutes instruction into the template's named slot.
func (d Descriptor) Render(instruction string) string {
	return strings.ReplaceAll(d.UserTemplate, instructionSlot, instruction)
}

// Registry is the immutable, load-once-at-startup prompt store.
type Registry struct {
	byVersion map[string]Descriptor
	ordered   []string // versions, sorted by numeric-component descending
	def       string
}

// Load reads every *.yaml / *.yml file in dir as a Descriptor and
// builds an immutable Registry. defaultVersion is the version the
// Gateway falls back to when a request asks for a version that is
// absent.
func Load(dir, defaultVersion string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("promptregistry: read dir %s: %w", dir, err)
	}

	byVersion := make(map[string]Descriptor)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("promptregistry: read %s: %w", name, err)
		}
		var d Descriptor
		if err := yaml.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("promptregistry: parse %s: %w", name, err)
		}
		if d.Version == "" {
			return nil, fmt.Errorf("promptregistry: %s: missing version", name)
		}
		byVersion[d.Version] = d
	}

	versions := make([]string, 0, len(byVersion))
	for v := range byVersion {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool {
		return compareVersions(versions[i], versions[j]) > 0
	})

	if defaultVersion == "" && len(versions) > 0 {
		defaultVersion = versions[0]
	}

	return &Registry{byVersion: byVersion, ordered: versions, def: defaultVersion}, nil
}

// Lookup returns the descriptor for an exact version.
func (r *Registry) Lookup(version string) (Descriptor, bool) {
	d, ok := r.byVersion[version]
	return d, ok
}

// ListVersions returns every known version, numeric-component
// descending (newest first).
func (r *Registry) ListVersions() []string {
	out := make([]string, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Default returns the registry's configured default version.
func (r *Registry) Default() string { return r.def }

// Latest returns the descriptor for the highest known version.
func (r *Registry) Latest() (Descriptor, bool) {
	if len(r.ordered) == 0 {
		return Descriptor{}, false
	}
	return r.Lookup(r.ordered[0])
}

// Resolve picks the effective version for a request: if requested is
// present in the registry it is used as-is; otherwise the registry's
// default is used and fellBack reports true so the caller can log a
// warning.
func (r *Registry) Resolve(requested string) (effective string, fellBack bool) {
	if requested != "" {
		if _, ok := r.byVersion[requested]; ok {
			return requested, false
		}
	}
	return r.def, true
}

// compareVersions orders dotted numeric version strings
// ("1.10" > "1.9") by comparing each dot-separated component
// numerically; a non-numeric component falls back to string
// comparison for that component.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv string
		if i < len(as) {
			av = as[i]
		}
		if i < len(bs) {
			bv = bs[i]
		}
		an, aerr := strconv.Atoi(av)
		bn, berr := strconv.Atoi(bv)
		if aerr == nil && berr == nil {
			if an != bn {
				return an - bn
			}
			continue
		}
		if av != bv {
			return strings.Compare(av, bv)
		}
	}
	return 0
}
