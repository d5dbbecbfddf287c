package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultListDepth = 3
	maxListDepth     = 10
)

// ListDirectoryTool lists files and directories under a path, optionally
// recursing to a bounded depth. Hidden entries are skipped unless requested.
type ListDirectoryTool struct{}

func NewListDirectoryTool() *ListDirectoryTool {
	return &ListDirectoryTool{}
}

func (t *ListDirectoryTool) Name() string {
	return "list_directory"
}

func (t *ListDirectoryTool) Description() string {
	return "List files and directories in a specified path. Supports bounded recursive listing."
}

type listedEntry struct {
	name  string
	isDir bool
	size  int64
	depth int
}

func (t *ListDirectoryTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path := "."
	if p, ok := args["path"].(string); ok && p != "" {
		path = p
	}

	recursive := false
	if r, ok := args["recursive"].(bool); ok {
		recursive = r
	}

	showHidden := false
	if sh, ok := args["show_hidden"].(bool); ok {
		showHidden = sh
	}

	maxDepth := defaultListDepth
	switch md := args["max_depth"].(type) {
	case int:
		maxDepth = md
	case float64:
		// JSON-decoded arguments arrive as float64.
		maxDepth = int(md)
	}
	if maxDepth < 1 {
		maxDepth = 1
	}
	if maxDepth > maxListDepth {
		maxDepth = maxListDepth
	}

	var entries []listedEntry

	if recursive {
		err := filepath.WalkDir(path, func(currentPath string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			relPath, _ := filepath.Rel(path, currentPath)
			if relPath == "." {
				return nil
			}
			depth := strings.Count(relPath, string(filepath.Separator)) + 1

			if depth > maxDepth {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if !showHidden && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return err
			}
			entries = append(entries, listedEntry{
				name:  d.Name(),
				isDir: d.IsDir(),
				size:  info.Size(),
				depth: depth,
			})
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to walk directory: %w", err)
		}
	} else {
		dirEntries, err := os.ReadDir(path)
		if err != nil {
			return "", fmt.Errorf("failed to read directory: %w", err)
		}
		for _, entry := range dirEntries {
			if !showHidden && strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			entries = append(entries, listedEntry{
				name:  entry.Name(),
				isDir: entry.IsDir(),
				size:  info.Size(),
				depth: 1,
			})
		}
	}

	fileCount := 0
	dirCount := 0
	var totalSize int64
	for _, e := range entries {
		if e.isDir {
			dirCount++
		} else {
			fileCount++
			totalSize += e.size
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Directory listing for: %s\n", path)
	fmt.Fprintf(&b, "Total: %d files, %d directories\n", fileCount, dirCount)
	if totalSize > 0 {
		fmt.Fprintf(&b, "Total size: %d bytes\n", totalSize)
	}
	b.WriteString("\nFiles and directories:\n")
	for _, e := range entries {
		indent := strings.Repeat("  ", e.depth-1)
		if e.isDir {
			fmt.Fprintf(&b, "%s%s/\n", indent, e.name)
		} else {
			fmt.Fprintf(&b, "%s%s (%d bytes)\n", indent, e.name, e.size)
		}
	}

	return b.String(), nil
}
