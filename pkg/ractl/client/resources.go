package client

import (
	"fmt"
	"sort"
	"strings"
)

type Operation string

const (
	OpList   Operation = "list"
	OpGet    Operation = "get"
	OpQuery  Operation = "query"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

var knownOperations = map[Operation]bool{
	OpList:   true,
	OpGet:    true,
	OpQuery:  true,
	OpCreate: true,
	OpUpdate: true,
	OpDelete: true,
}

var allOperations = []Operation{OpList, OpGet, OpQuery, OpCreate, OpUpdate, OpDelete}

// Resource describes one API collection: the endpoint it lives at, the
// operations ractl allows on it and which of them address a single record.
type Resource struct {
	Name       string
	Path       string
	Operations []Operation
	IDRequired []Operation
}

func (r Resource) Allows(op Operation) bool {
	for _, allowed := range r.Operations {
		if allowed == op {
			return true
		}
	}
	return false
}

func (r Resource) RequiresID(op Operation) bool {
	for _, required := range r.IDRequired {
		if required == op {
			return true
		}
	}
	return false
}

var recordOperations = []Operation{OpGet, OpUpdate, OpDelete}

// registry is checked once at startup by mustValidateRegistry.
var registry = []Resource{
	{Name: "resources", Path: "resources", Operations: allOperations, IDRequired: recordOperations},
	{Name: "resource_groups", Path: "resource_groups", Operations: allOperations, IDRequired: recordOperations},
	{Name: "resource_to_group", Path: "resource_to_group", Operations: allOperations, IDRequired: recordOperations},
	{Name: "iterations", Path: "iterations", Operations: allOperations, IDRequired: recordOperations},
	{Name: "requests", Path: "requests", Operations: allOperations, IDRequired: recordOperations},
	{Name: "allocation", Path: "allocation", Operations: allOperations, IDRequired: recordOperations},
}

var registryIndex = mustValidateRegistry(registry)

func mustValidateRegistry(resources []Resource) map[string]Resource {
	index, err := validateRegistry(resources)
	if err != nil {
		panic(err)
	}
	return index
}

func validateRegistry(resources []Resource) (map[string]Resource, error) {
	index := make(map[string]Resource, len(resources))
	for _, r := range resources {
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("resource with path %q has no name", r.Path)
		}
		if strings.Trim(r.Path, "/") == "" {
			return nil, fmt.Errorf("resource %s has no path", r.Name)
		}
		if _, dup := index[r.Name]; dup {
			return nil, fmt.Errorf("resource %s registered twice", r.Name)
		}
		if len(r.Operations) == 0 {
			return nil, fmt.Errorf("resource %s allows no operations", r.Name)
		}
		for _, op := range r.Operations {
			if !knownOperations[op] {
				return nil, fmt.Errorf("resource %s: unknown operation %q", r.Name, op)
			}
		}
		for _, op := range r.IDRequired {
			if !r.Allows(op) {
				return nil, fmt.Errorf("resource %s: id requirement for disallowed operation %q", r.Name, op)
			}
		}
		index[r.Name] = r
	}
	return index, nil
}

// Lookup returns the registered resource with the given name.
func Lookup(name string) (Resource, error) {
	r, ok := registryIndex[name]
	if !ok {
		return Resource{}, fmt.Errorf("unknown resource %q (available: %s)", name, strings.Join(ResourceNames(), ", "))
	}
	return r, nil
}

// Resources returns the registry sorted by name.
func Resources() []Resource {
	out := make([]Resource, 0, len(registryIndex))
	for _, r := range registryIndex {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func ResourceNames() []string {
	names := make([]string, 0, len(registryIndex))
	for name := range registryIndex {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolve checks that op is allowed on resource and that an id is given
// exactly when the operation needs one.
func resolve(resource string, op Operation, id string) (Resource, error) {
	r, err := Lookup(resource)
	if err != nil {
		return Resource{}, err
	}
	if !r.Allows(op) {
		return Resource{}, fmt.Errorf("operation %s is not allowed on %s", op, r.Name)
	}
	if r.RequiresID(op) && strings.TrimSpace(id) == "" {
		return Resource{}, fmt.Errorf("operation %s on %s requires an id", op, r.Name)
	}
	return r, nil
}
