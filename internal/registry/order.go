// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package registry

import (
	"fmt"
	"strings"

	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
)

// frame is one level of the explicit DFS stack used by Order.
type frame struct {
	id   string
	deps []string
	next int
}

// Order returns the enabled plugin ids in initialization order: every
// dependency precedes its dependents. Roots are visited in id order so the
// result is deterministic. Dependencies outside the enabled set are not
// initialized and therefore not followed.
//
// The traversal is an iterative depth-first search. A plugin reached again
// while still on the stack means a cycle, reported as
// registry.order.circular_dependency before any hook has run.
func (r *Registry) Order() ([]string, error) {
	roots := r.Enabled()
	order := make([]string, 0, len(roots))
	visited := make(map[string]bool, len(roots))
	visiting := make(map[string]bool)

	for _, root := range roots {
		if visited[root] {
			continue
		}

		visiting[root] = true
		stack := []*frame{{id: root, deps: r.enabledDeps(root)}}

		for len(stack) > 0 {
			top := stack[len(stack)-1]

			if top.next < len(top.deps) {
				dep := top.deps[top.next]
				top.next++

				if visited[dep] {
					continue
				}
				if visiting[dep] {
					return nil, circular(stack, dep)
				}

				visiting[dep] = true
				stack = append(stack, &frame{id: dep, deps: r.enabledDeps(dep)})
				continue
			}

			stack = stack[:len(stack)-1]
			delete(visiting, top.id)
			visited[top.id] = true
			order = append(order, top.id)
		}
	}

	return order, nil
}

func (r *Registry) enabledDeps(id string) []string {
	b, ok := r.bundles[id]
	if !ok {
		return nil
	}
	deps := make([]string, 0, len(b.Descriptor.Dependencies))
	for _, dep := range b.Descriptor.Dependencies {
		if r.enabled[dep] {
			deps = append(deps, dep)
		}
	}
	return deps
}

// circular builds the cycle error from the current DFS stack, naming the
// plugin that closed the loop and the path back to it.
func circular(stack []*frame, closing string) error {
	var path []string
	for i := range stack {
		if stack[i].id == closing {
			for _, f := range stack[i:] {
				path = append(path, f.id)
			}
			break
		}
	}
	path = append(path, closing)

	return plugerr.New(plugerr.CodeRegistryCircularDependency,
		fmt.Sprintf("circular dependency detected involving %q: %s", closing, strings.Join(path, " -> ")),
		plugerr.FieldPlugin(closing), plugerr.Field("cycle", path))
}
