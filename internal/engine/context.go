package engine

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

const (
	contextMaxDepth        = 3
	contextMaxFilesPerKind = 10
	contextMaxPriority     = 5
)

var contextCategories = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".go":   "go",
	".rb":   "ruby",
	".java": "java",
	".rs":   "rust",
	".php":  "php",
	".sh":   "shell",
	".sql":  "sql",
	".html": "markup",
	".css":  "styles",
	".json": "config",
	".yaml": "config",
	".yml":  "config",
	".toml": "config",
	".ini":  "config",
	".cfg":  "config",
	".env":  "config",
	".md":   "docs",
	".txt":  "docs",
}

// Files whose presence says the most about a codebase; surfaced first in
// agent prompts.
var priorityFileNames = map[string]bool{
	"main.py":          true,
	"app.py":           true,
	"main.go":          true,
	"index.js":         true,
	"index.ts":         true,
	"setup.py":         true,
	"pyproject.toml":   true,
	"requirements.txt": true,
	"package.json":     true,
	"go.mod":           true,
	"dockerfile":       true,
	"makefile":         true,
	"readme.md":        true,
}

// WorkspaceContext is a lightweight census of the working directory used to
// ground agent prompts. Analysis failure is non-fatal; the run continues with
// an error placeholder summary.
type WorkspaceContext struct {
	Directory     string
	TotalFiles    int
	FilesByKind   map[string][]string
	PriorityFiles []string
	Err           error
}

// AnalyzeWorkspace walks the working directory to a bounded depth and
// categorizes code and config files. Hidden entries and common vendor
// directories are skipped.
func AnalyzeWorkspace(dir string) *WorkspaceContext {
	wc := &WorkspaceContext{
		Directory:   dir,
		FilesByKind: make(map[string][]string),
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		if rel == "." {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor" || name == "__pycache__" {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if strings.Count(rel, string(filepath.Separator))+1 >= contextMaxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		wc.TotalFiles++
		if priorityFileNames[strings.ToLower(name)] && len(wc.PriorityFiles) < contextMaxPriority {
			wc.PriorityFiles = append(wc.PriorityFiles, rel)
		}
		if kind, ok := contextCategories[strings.ToLower(filepath.Ext(name))]; ok {
			if len(wc.FilesByKind[kind]) < contextMaxFilesPerKind {
				wc.FilesByKind[kind] = append(wc.FilesByKind[kind], rel)
			}
		}
		return nil
	})
	if err != nil {
		wc.Err = err
	}
	return wc
}

// Summary renders a compact textual census for inclusion in agent prompts.
func (wc *WorkspaceContext) Summary() string {
	if wc == nil {
		return "Workspace context unavailable."
	}
	if wc.Err != nil {
		return fmt.Sprintf("Workspace context unavailable: %v", wc.Err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Working directory: %s\n", wc.Directory)
	fmt.Fprintf(&b, "Total files: %d\n", wc.TotalFiles)

	if len(wc.PriorityFiles) > 0 {
		fmt.Fprintf(&b, "Key files: %s\n", strings.Join(wc.PriorityFiles, ", "))
	}

	kinds := make([]string, 0, len(wc.FilesByKind))
	for kind := range wc.FilesByKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		files := wc.FilesByKind[kind]
		fmt.Fprintf(&b, "%s (%d): %s\n", kind, len(files), strings.Join(files, ", "))
	}
	return b.String()
}
