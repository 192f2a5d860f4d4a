package permissions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Definition describes a capability registered by modules at bootstrap.
type Definition struct {
	Name        string
	DisplayName string
	Description string
	Category    string
}

type catalog struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
}

var globalCatalog = &catalog{
	definitions: make(map[string]*Definition),
}

var (
	errNilDefinition = errors.New("permission: nil definition")
	errEmptyName     = errors.New("permission: name is required")

	// ErrDuplicateName signals a second registration under an existing name.
	ErrDuplicateName = errors.New("permission: already registered")
	// ErrUnknownPermission signals a reference to a name the catalog never registered.
	ErrUnknownPermission = errors.New("permission: unknown permission")
)

// Register adds a permission definition to the catalog. The catalog is
// populated during bootstrap only and treated as immutable afterwards.
func Register(def *Definition) error {
	if def == nil {
		return errNilDefinition
	}

	name := strings.TrimSpace(def.Name)
	if name == "" {
		return errEmptyName
	}

	cp := *def
	cp.Name = name
	cp.Category = strings.TrimSpace(cp.Category)

	globalCatalog.mu.Lock()
	defer globalCatalog.mu.Unlock()

	if _, exists := globalCatalog.definitions[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}

	globalCatalog.definitions[name] = &cp
	return nil
}

// Get returns a copy of the definition when registered.
func Get(name string) (*Definition, bool) {
	globalCatalog.mu.RLock()
	defer globalCatalog.mu.RUnlock()

	def, ok := globalCatalog.definitions[name]
	if !ok {
		return nil, false
	}
	cp := *def
	return &cp, true
}

// All returns every registered definition ordered by name.
func All() []*Definition {
	globalCatalog.mu.RLock()
	defer globalCatalog.mu.RUnlock()

	out := make([]*Definition, 0, len(globalCatalog.definitions))
	for _, def := range globalCatalog.definitions {
		cp := *def
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ByCategory gathers definitions registered under the specified category.
func ByCategory(category string) []*Definition {
	category = strings.TrimSpace(category)

	var out []*Definition
	for _, def := range All() {
		if def.Category == category {
			out = append(out, def)
		}
	}
	return out
}

// Validate checks that every supplied name is registered, returning the first
// unknown name wrapped in ErrUnknownPermission.
func Validate(names []string) error {
	globalCatalog.mu.RLock()
	defer globalCatalog.mu.RUnlock()

	for _, name := range names {
		if _, ok := globalCatalog.definitions[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPermission, name)
		}
	}
	return nil
}

// reset clears catalog entries. Intended for testing only.
func reset() {
	globalCatalog.mu.Lock()
	defer globalCatalog.mu.Unlock()
	globalCatalog.definitions = make(map[string]*Definition)
}
