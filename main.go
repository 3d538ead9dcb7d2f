// callindex builds an FQSEN-keyed index of PHP methods and functions and
// prints it, with the resolved call graph, in TOON format.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/callindex/internal/codebase"
	"github.com/phobologic/callindex/internal/config"
	"github.com/phobologic/callindex/internal/discover"
	"github.com/phobologic/callindex/internal/fqsen"
	"github.com/phobologic/callindex/internal/graph"
	"github.com/phobologic/callindex/internal/lang"
	"github.com/phobologic/callindex/internal/model"
	"github.com/phobologic/callindex/internal/parse"
	"github.com/phobologic/callindex/internal/ranking"
	"github.com/phobologic/callindex/internal/snapshot"
	"github.com/phobologic/callindex/internal/toon"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("callindex", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		maxFiles    int
		className   string
		fileFilter  string
		cachePath   string
		maxFileSize int
		verbose     bool
		quiet       bool
		showVersion bool
	)

	fs.IntVar(&maxFiles, "n", 0, "maximum number of files to include")
	fs.IntVar(&maxFiles, "max-files", 0, "maximum number of files to include")
	fs.StringVar(&className, "class", "", `only show callables visible in this class scope (e.g. \App\Widget)`)
	fs.StringVar(&fileFilter, "file", "", "only show files whose path contains this substring")
	fs.StringVar(&cachePath, "cache", "", "snapshot file path")
	fs.IntVar(&maxFileSize, "max-file-size", 0, "skip files larger than this many bytes (default from config)")
	fs.BoolVar(&verbose, "v", false, "log debug events")
	fs.BoolVar(&quiet, "q", false, "only log errors")
	fs.BoolVar(&showVersion, "V", false, "show version and exit")
	fs.BoolVar(&showVersion, "version", false, "show version and exit")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}

	if showVersion {
		_, _ = fmt.Fprintf(stdout, "callindex %s\n", version)
		return nil
	}

	logger := newLogger(stderr, verbose, quiet)

	root := "."
	if fs.NArg() > 0 {
		root = fs.Arg(0)
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", root)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if maxFileSize > 0 {
		cfg.MaxFileSize = maxFileSize
	}

	// Discover files
	files, err := discover.Files(root, cfg)
	if err != nil {
		return fmt.Errorf("discovering files: %w", err)
	}

	// Filter by size
	files = filterBySize(root, files, cfg.MaxFileSize, logger)
	if len(files) == 0 {
		return fmt.Errorf("no parseable files found")
	}

	cb := codebase.New(codebase.WithLogger(logger))
	fileInfos, err := loadCodeBase(root, cachePath, files, cb, logger)
	if err != nil {
		return err
	}

	// Build graph and rank
	calls := graph.BuildCallGraph(cb, fileInfos)
	deps := graph.BuildGraph(cb.Methods(), fileInfos)
	graph.Rank(fileInfos, deps)

	im := &model.IndexMap{
		RepoName:    filepath.Base(root),
		Root:        filepath.Base(root),
		Files:       fileInfos,
		Callables:   registered(cb.Methods()),
		CallEdges:   calls.Edges,
		Unresolved:  calls.Unresolved,
		Unused:      graph.Unused(cb.Methods(), calls.Called),
		Deps:        deps,
		Diagnostics: cb.Diagnostics(),
	}

	if className != "" {
		im = ranking.FilterByClass(im, cb.Methods(), fqsen.ParseClassName(className))
	}
	if fileFilter != "" {
		im = ranking.FilterByFile(im, fileFilter)
	}

	// Select top N files
	if maxFiles > 0 {
		im = ranking.SelectFiles(im, maxFiles)
	}

	_, _ = fmt.Fprintln(stdout, toon.Encode(im))
	return nil
}

func newLogger(w io.Writer, verbose, quiet bool) zerolog.Logger {
	level := zerolog.WarnLevel
	switch {
	case quiet:
		level = zerolog.ErrorLevel
	case verbose:
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{
		Out:          w,
		NoColor:      true,
		PartsExclude: []string{zerolog.TimestampFieldName},
	}
	return zerolog.New(out).Level(level)
}

// loadCodeBase populates cb either from a fresh snapshot at cachePath or by
// scanning files, and returns the per-file call sites. A scan refreshes the
// snapshot when cachePath is set.
func loadCodeBase(root, cachePath string, files []discover.FileEntry, cb *codebase.CodeBase, logger zerolog.Logger) ([]model.FileInfo, error) {
	if cachePath != "" {
		if fileInfos, ok := restoreSnapshot(root, cachePath, files, cb, logger); ok {
			return fileInfos, nil
		}
	}

	// Parse files concurrently
	fileInfos := parseFilesConcurrent(root, files, logger)
	if len(fileInfos) == 0 {
		return nil, fmt.Errorf("no files could be parsed")
	}

	// Registration happens on this goroutine only.
	for i := range fileInfos {
		if err := cb.AddFile(&fileInfos[i]); err != nil {
			return nil, err
		}
	}
	cb.ImportInherited()

	if cachePath != "" {
		s, err := snapshot.Capture(root, cb, fileInfos)
		if err == nil {
			err = snapshot.Write(cachePath, s)
		}
		if err != nil {
			logger.Warn().Err(err).Str("file", cachePath).Msg("snapshot not written")
		}
	}
	return fileInfos, nil
}

func restoreSnapshot(root, cachePath string, files []discover.FileEntry, cb *codebase.CodeBase, logger zerolog.Logger) ([]model.FileInfo, bool) {
	s, err := snapshot.Read(cachePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn().Err(err).Str("file", cachePath).Msg("ignoring snapshot")
		}
		return nil, false
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	if !s.Fresh(root, paths) {
		logger.Debug().Str("file", cachePath).Msg("snapshot stale")
		return nil, false
	}

	fileInfos, err := s.Restore(cb)
	if err != nil {
		logger.Warn().Err(err).Str("file", cachePath).Msg("ignoring snapshot")
		return nil, false
	}
	logger.Debug().Str("file", cachePath).Int("files", len(fileInfos)).Msg("snapshot restored")
	return fileInfos, true
}

// registered returns every distinct callable in mm, ordered by file and line.
func registered(mm *codebase.MethodMap) []*model.Method {
	seen := make(map[*model.Method]struct{})
	var out []*model.Method
	for _, members := range mm.GetAll() {
		for _, m := range members {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].FQSEN.String() < out[j].FQSEN.String()
	})
	return out
}

func filterBySize(root string, files []discover.FileEntry, maxSize int, logger zerolog.Logger) []discover.FileEntry {
	var kept []discover.FileEntry
	for _, f := range files {
		fi, err := os.Stat(filepath.Join(root, f.Path))
		if err != nil {
			kept = append(kept, f) // keep if can't stat
			continue
		}
		if maxSize > 0 && fi.Size() > int64(maxSize) {
			logger.Warn().Str("file", f.Path).Int("limit", maxSize).Msg("skipped oversized file")
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

func parseFilesConcurrent(root string, files []discover.FileEntry, logger zerolog.Logger) []model.FileInfo {
	type result struct {
		index int
		info  model.FileInfo
		ok    bool
	}

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	work := make(chan int, len(files))
	results := make(chan result, len(files))

	var wg sync.WaitGroup

	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Each goroutine gets its own parser
			parsers := make(map[string]*parserPair)

			for idx := range work {
				f := files[idx]
				pp, ok := parsers[f.Language]
				if !ok {
					l := lang.Languages[f.Language]
					q, err := l.GetTagQuery()
					if err != nil {
						logger.Warn().Err(err).Str("language", f.Language).Msg("failed to compile query")
						continue
					}
					pp = &parserPair{parser: l.NewParser(), query: q}
					parsers[f.Language] = pp
				}

				source, err := os.ReadFile(filepath.Join(root, f.Path))
				if err != nil {
					logger.Warn().Err(err).Str("file", f.Path).Msg("failed to read")
					continue
				}

				results <- result{
					index: idx,
					info:  parse.ExtractFile(pp.parser, pp.query, source, f.Path),
					ok:    true,
				}
			}
		}()
	}

	for i := range files {
		work <- i
	}
	close(work)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results in original order
	indexed := make([]model.FileInfo, len(files))
	valid := make([]bool, len(files))
	for r := range results {
		indexed[r.index] = r.info
		valid[r.index] = r.ok
	}

	var fileInfos []model.FileInfo
	for i, v := range valid {
		if v {
			fileInfos = append(fileInfos, indexed[i])
		}
	}

	return fileInfos
}

type parserPair struct {
	parser *sitter.Parser
	query  *sitter.Query
}

// flagsWithValue lists flags that take a value argument.
var flagsWithValue = map[string]bool{
	"-n": true, "--n": true,
	"-max-files": true, "--max-files": true,
	"-class": true, "--class": true,
	"-file": true, "--file": true,
	"-cache": true, "--cache": true,
	"-max-file-size": true, "--max-file-size": true,
}

// reorderArgs moves positional arguments after all flags so Go's flag package
// can parse them correctly (it stops at the first non-flag arg).
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(args[i]) > 0 && args[i][0] == '-' {
			flags = append(flags, args[i])
			if flagsWithValue[args[i]] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}
