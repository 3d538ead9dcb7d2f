// Package ranking narrows an IndexMap to the files or scopes a reader asked for.
package ranking

import (
	"sort"
	"strings"

	"github.com/phobologic/callindex/internal/codebase"
	"github.com/phobologic/callindex/internal/fqsen"
	"github.com/phobologic/callindex/internal/model"
)

// SelectFiles returns a new IndexMap with only the top-ranked files.
// If maxFiles is <= 0 or >= len(files), all files are returned.
func SelectFiles(im *model.IndexMap, maxFiles int) *model.IndexMap {
	if maxFiles <= 0 || maxFiles >= len(im.Files) {
		return im
	}

	selected := im.Files[:maxFiles]
	selectedPaths := make(map[string]struct{}, maxFiles)
	for i := range selected {
		selectedPaths[selected[i].Path] = struct{}{}
	}

	var deps []model.Dependency
	for i := range im.Deps {
		d := &im.Deps[i]
		_, srcOK := selectedPaths[d.Source]
		_, tgtOK := selectedPaths[d.Target]
		if srcOK && tgtOK {
			deps = append(deps, *d)
		}
	}

	// Callables declared in selected files drive the edge filter.
	var callables []*model.Method
	selectedDefs := make(map[string]struct{})
	for _, m := range im.Callables {
		if _, ok := selectedPaths[m.File]; ok {
			callables = append(callables, m)
			selectedDefs[m.FQSEN.String()] = struct{}{}
		}
	}

	var callEdges []model.CallEdge
	for i := range im.CallEdges {
		ce := &im.CallEdges[i]
		if _, ok := selectedDefs[ce.Caller]; ok {
			callEdges = append(callEdges, *ce)
		}
	}

	var unresolved []model.Unresolved
	for i := range im.Unresolved {
		if _, ok := selectedPaths[im.Unresolved[i].File]; ok {
			unresolved = append(unresolved, im.Unresolved[i])
		}
	}

	return &model.IndexMap{
		RepoName:    im.RepoName,
		Root:        im.Root,
		Files:       selected,
		Callables:   callables,
		CallEdges:   callEdges,
		Unresolved:  unresolved,
		Unused:      filterNames(im.Unused, selectedDefs),
		Deps:        deps,
		Diagnostics: im.Diagnostics,
	}
}

// FilterByClass returns a new IndexMap focused on one class scope: every
// callable registered under class (inherited ones included), the edges into
// and out of them, and the files that declare either end of those edges.
func FilterByClass(im *model.IndexMap, mm *codebase.MethodMap, class fqsen.ClassName) *model.IndexMap {
	scope := mm.GetForClassScope(class)
	members := make([]string, 0, len(scope))
	for member := range scope {
		members = append(members, member)
	}
	sort.Strings(members)

	matched := make(map[string]struct{}, len(scope))
	var callables []*model.Method
	for _, member := range members {
		m := scope[member]
		callables = append(callables, m)
		matched[m.FQSEN.String()] = struct{}{}
	}

	related := make(map[string]struct{})
	var callEdges []model.CallEdge
	for i := range im.CallEdges {
		ce := &im.CallEdges[i]
		_, callerOK := matched[ce.Caller]
		_, calleeOK := matched[ce.Callee]
		if callerOK || calleeOK {
			callEdges = append(callEdges, *ce)
			related[ce.Caller] = struct{}{}
			related[ce.Callee] = struct{}{}
		}
	}

	matchedFiles := make(map[string]struct{})
	for _, m := range im.Callables {
		name := m.FQSEN.String()
		_, isMatched := matched[name]
		_, isRelated := related[name]
		if isMatched || isRelated {
			matchedFiles[m.File] = struct{}{}
		}
	}
	for _, m := range callables {
		matchedFiles[m.File] = struct{}{}
	}

	var files []model.FileInfo
	for i := range im.Files {
		if _, ok := matchedFiles[im.Files[i].Path]; ok {
			files = append(files, im.Files[i])
		}
	}

	var deps []model.Dependency
	for i := range im.Deps {
		d := &im.Deps[i]
		_, srcOK := matchedFiles[d.Source]
		_, tgtOK := matchedFiles[d.Target]
		if srcOK && tgtOK {
			deps = append(deps, *d)
		}
	}

	var unresolved []model.Unresolved
	for i := range im.Unresolved {
		if _, ok := matched[im.Unresolved[i].Caller]; ok {
			unresolved = append(unresolved, im.Unresolved[i])
		}
	}

	return &model.IndexMap{
		RepoName:   im.RepoName,
		Root:       im.Root,
		Files:      files,
		Callables:  callables,
		CallEdges:  callEdges,
		Unresolved: unresolved,
		Unused:     filterNames(im.Unused, matched),
		Deps:       deps,
	}
}

// FilterByFile returns a new IndexMap containing only files whose path
// contains substr (case-insensitive), with all dependency edges touching
// those files and call edges from callables declared in those files.
func FilterByFile(im *model.IndexMap, substr string) *model.IndexMap {
	lower := strings.ToLower(substr)

	matchedFiles := make(map[string]struct{})
	var files []model.FileInfo
	for i := range im.Files {
		if strings.Contains(strings.ToLower(im.Files[i].Path), lower) {
			matchedFiles[im.Files[i].Path] = struct{}{}
			files = append(files, im.Files[i])
		}
	}

	var deps []model.Dependency
	for i := range im.Deps {
		d := &im.Deps[i]
		_, srcOK := matchedFiles[d.Source]
		_, tgtOK := matchedFiles[d.Target]
		if srcOK || tgtOK {
			deps = append(deps, *d)
		}
	}

	var callables []*model.Method
	defs := make(map[string]struct{})
	for _, m := range im.Callables {
		if _, ok := matchedFiles[m.File]; ok {
			callables = append(callables, m)
			defs[m.FQSEN.String()] = struct{}{}
		}
	}

	var callEdges []model.CallEdge
	for i := range im.CallEdges {
		ce := &im.CallEdges[i]
		if _, ok := defs[ce.Caller]; ok {
			callEdges = append(callEdges, *ce)
		}
	}

	var unresolved []model.Unresolved
	for i := range im.Unresolved {
		if _, ok := matchedFiles[im.Unresolved[i].File]; ok {
			unresolved = append(unresolved, im.Unresolved[i])
		}
	}

	return &model.IndexMap{
		RepoName:   im.RepoName,
		Root:       im.Root,
		Files:      files,
		Callables:  callables,
		CallEdges:  callEdges,
		Unresolved: unresolved,
		Unused:     filterNames(im.Unused, defs),
		Deps:       deps,
	}
}

func filterNames(names []string, keep map[string]struct{}) []string {
	var out []string
	for _, n := range names {
		if _, ok := keep[n]; ok {
			out = append(out, n)
		}
	}
	return out
}
