// Package graph resolves call sites against the callable registry, builds
// the file dependency graph and computes PageRank.
package graph

import (
	"math"
	"sort"
	"strings"

	"github.com/phobologic/callindex/internal/codebase"
	"github.com/phobologic/callindex/internal/discover"
	"github.com/phobologic/callindex/internal/fqsen"
	"github.com/phobologic/callindex/internal/model"
)

// TopLevel is the caller name used for calls made outside any callable.
const TopLevel = "<main>"

// Resolve returns the FQSEN a call site refers to when the registry holds
// it. Unqualified function calls inside a namespace fall back to the global
// function of the same name, as PHP does at runtime.
func Resolve(mm *codebase.MethodMap, cs model.CallSite) (fqsen.Callable, bool) {
	for _, candidate := range candidates(cs) {
		if mm.Has(candidate) {
			return candidate, true
		}
	}
	return nil, false
}

func candidates(cs model.CallSite) []fqsen.Callable {
	switch cs.Kind {
	case model.FunctionCall:
		local := fqsen.NewFunctionName(cs.Namespace, cs.Name)
		if cs.Qualified || local.Namespace == fqsen.GlobalNamespace {
			return []fqsen.Callable{local}
		}
		return []fqsen.Callable{local, fqsen.NewFunctionName(fqsen.GlobalNamespace, cs.Name)}
	case model.StaticCall, model.InstanceCall:
		if cs.Class.IsZero() {
			return nil
		}
		return []fqsen.Callable{fqsen.NewMethodName(cs.Class, cs.Name)}
	}
	return nil
}

// CallGraph is the result of resolving every call site in a codebase.
type CallGraph struct {
	Edges      []model.CallEdge
	Unresolved []model.Unresolved
	// Called holds every callable reached by at least one resolved call.
	Called map[*model.Method]struct{}
}

// BuildCallGraph resolves the call sites of fileInfos against cb. Resolved
// calls become deduplicated caller → callee edges named by the callee's
// declared FQSEN; the rest are reported as unresolved. A registry miss after
// a successful Has is recorded on cb as an internal diagnostic.
func BuildCallGraph(cb *codebase.CodeBase, fileInfos []model.FileInfo) CallGraph {
	mm := cb.Methods()
	g := CallGraph{Called: make(map[*model.Method]struct{})}

	type edgeKey struct{ caller, callee string }
	seen := make(map[edgeKey]struct{})

	for i := range fileInfos {
		for _, cs := range fileInfos[i].CallSites {
			caller := callerName(cs)
			name, ok := Resolve(mm, cs)
			if !ok {
				g.Unresolved = append(g.Unresolved, model.Unresolved{
					Caller: caller,
					Call:   callText(cs),
					File:   cs.File,
					Line:   cs.Line,
				})
				continue
			}
			m, err := mm.Get(name)
			if err != nil {
				cb.Report(model.Diagnostic{
					Kind:    codebase.Internal,
					Subject: name.String(),
					File:    cs.File,
					Line:    cs.Line,
					Message: err.Error(),
				})
				continue
			}
			g.Called[m] = struct{}{}

			key := edgeKey{caller, m.FQSEN.String()}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			g.Edges = append(g.Edges, model.CallEdge{Caller: key.caller, Callee: key.callee})
		}
	}

	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].Caller != g.Edges[j].Caller {
			return g.Edges[i].Caller < g.Edges[j].Caller
		}
		return g.Edges[i].Callee < g.Edges[j].Callee
	})
	sort.SliceStable(g.Unresolved, func(i, j int) bool {
		if g.Unresolved[i].File != g.Unresolved[j].File {
			return g.Unresolved[i].File < g.Unresolved[j].File
		}
		return g.Unresolved[i].Line < g.Unresolved[j].Line
	})

	return g
}

// BuildGraph creates file dependency edges from resolved calls: Source calls
// a callable declared in Target.
func BuildGraph(mm *codebase.MethodMap, fileInfos []model.FileInfo) []model.Dependency {
	type edgeKey struct{ src, tgt string }
	edgeSymbols := make(map[edgeKey][]string)

	for i := range fileInfos {
		fi := &fileInfos[i]
		for _, cs := range fi.CallSites {
			name, ok := Resolve(mm, cs)
			if !ok {
				continue
			}
			m, err := mm.Get(name)
			if err != nil || m.File == fi.Path {
				continue // no self-edges
			}
			key := edgeKey{fi.Path, m.File}
			callee := m.FQSEN.String()
			// Only add symbol if not already present
			if !contains(edgeSymbols[key], callee) {
				edgeSymbols[key] = append(edgeSymbols[key], callee)
			}
		}
	}

	var deps []model.Dependency
	for key, syms := range edgeSymbols {
		deps = append(deps, model.Dependency{
			Source:  key.src,
			Target:  key.tgt,
			Symbols: syms,
		})
	}

	// Sort for deterministic output
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].Source != deps[j].Source {
			return deps[i].Source < deps[j].Source
		}
		return deps[i].Target < deps[j].Target
	})

	return deps
}

// Unused returns the FQSENs of registered callables that no resolved call
// reaches. Magic methods and callables declared in test files are skipped
// since the runtime or the test harness invokes them.
func Unused(mm *codebase.MethodMap, called map[*model.Method]struct{}) []string {
	seen := make(map[*model.Method]struct{})
	var out []string
	for _, members := range mm.GetAll() {
		for _, m := range members {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			if _, ok := called[m]; ok {
				continue
			}
			if isMagic(m) || discover.IsTestFile(m.File) {
				continue
			}
			out = append(out, m.FQSEN.String())
		}
	}
	sort.Strings(out)
	return out
}

func isMagic(m *model.Method) bool {
	mn, ok := m.FQSEN.(fqsen.MethodName)
	return ok && strings.HasPrefix(mn.Name, "__")
}

func callerName(cs model.CallSite) string {
	if cs.Caller == nil {
		return TopLevel
	}
	return cs.Caller.String()
}

// callText renders an unresolved call. Method calls, $this calls included,
// name the class they were looked up in.
func callText(cs model.CallSite) string {
	switch cs.Kind {
	case model.StaticCall, model.InstanceCall:
		return cs.Class.String() + "::" + cs.Name + "()"
	}
	if cs.Qualified {
		return fqsen.Join(cs.Namespace, cs.Name) + "()"
	}
	return cs.Name + "()"
}

// Rank applies PageRank to file_infos and sorts them by rank descending.
func Rank(fileInfos []model.FileInfo, deps []model.Dependency) {
	if len(fileInfos) == 0 {
		return
	}

	if len(deps) == 0 {
		uniform := 1.0 / float64(len(fileInfos))
		for i := range fileInfos {
			fileInfos[i].Rank = uniform
		}
		return
	}

	// Build adjacency for PageRank
	// Edge from source to target means source references target.
	// Count edges per (source, target) pair.
	outEdges := make(map[string][]string) // node → list of targets (with repeats for multi-edges)
	outDegree := make(map[string]int)     // total out-edges per node
	nodes := make(map[string]struct{})

	for i := range fileInfos {
		nodes[fileInfos[i].Path] = struct{}{}
	}

	for _, d := range deps {
		// Each symbol is an edge
		for range d.Symbols {
			outEdges[d.Source] = append(outEdges[d.Source], d.Target)
			outDegree[d.Source]++
		}
	}

	ranks := pageRank(nodes, outEdges, outDegree, 0.85, 100, 1e-6)

	for i := range fileInfos {
		fileInfos[i].Rank = ranks[fileInfos[i].Path]
	}

	sort.Slice(fileInfos, func(i, j int) bool {
		return fileInfos[i].Rank > fileInfos[j].Rank
	})
}

func pageRank(
	nodes map[string]struct{},
	outEdges map[string][]string,
	outDegree map[string]int,
	alpha float64,
	maxIter int,
	tol float64,
) map[string]float64 {
	n := len(nodes)
	if n == 0 {
		return nil
	}

	rank := make(map[string]float64, n)
	initial := 1.0 / float64(n)
	for node := range nodes {
		rank[node] = initial
	}

	teleport := (1.0 - alpha) / float64(n)

	for iter := 0; iter < maxIter; iter++ {
		newRank := make(map[string]float64, n)

		// Dangling node contribution (nodes with no outgoing edges)
		var danglingSum float64
		for node := range nodes {
			if outDegree[node] == 0 {
				danglingSum += rank[node]
			}
		}
		danglingContrib := alpha * danglingSum / float64(n)

		for node := range nodes {
			newRank[node] = teleport + danglingContrib
		}

		// Distribute rank through edges
		for src, targets := range outEdges {
			deg := float64(outDegree[src])
			contrib := alpha * rank[src] / deg
			for _, tgt := range targets {
				newRank[tgt] += contrib
			}
		}

		// Check convergence
		var diff float64
		for node := range nodes {
			diff += math.Abs(newRank[node] - rank[node])
		}

		rank = newRank

		if diff < tol {
			break
		}
	}

	return rank
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
