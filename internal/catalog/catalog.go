// Package catalog lists projects, albums and files below the dashboard root.
// Listings are plain directory reads; all paths go through the sandbox.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"imgdash/internal/sandbox"
)

// ErrNotDirectory is returned when a listing target is missing or not a directory.
var ErrNotDirectory = errors.New("not a directory")

// RootDir is the marker used by clients to address a project's top level.
const RootDir = "-"

// Catalog reads listings below the sandbox root.
type Catalog struct {
	sandbox *sandbox.Sandbox
}

// Albums is the album view of one project.
type Albums struct {
	Albums []string `json:"albums"`
	IsFlat bool     `json:"is_flat"`
}

// Files holds the sorted image and text names of one directory.
type Files struct {
	Images []string `json:"images"`
	Texts  []string `json:"texts"`
}

// New returns a Catalog confined to box.
func New(box *sandbox.Sandbox) *Catalog {
	return &Catalog{sandbox: box}
}

// Projects returns the sorted names of directories directly under the root.
func (c *Catalog) Projects() ([]string, error) {
	return c.subdirs(c.sandbox.Root())
}

// ProjectDir resolves a project name to its directory.
func (c *Catalog) ProjectDir(project string) (string, error) {
	path, err := c.sandbox.Resolve(project)
	if err != nil {
		return "", err
	}
	if path == c.sandbox.Root() || strings.ContainsAny(project, `/\`) || !isDir(path) {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, project)
	}
	return path, nil
}

// Albums lists the subdirectories of a project. A missing or flat project
// reports IsFlat with no albums.
func (c *Catalog) Albums(project string) (Albums, error) {
	path, err := c.sandbox.Resolve(project)
	if err != nil {
		return Albums{}, err
	}
	if !isDir(path) {
		return Albums{Albums: []string{}, IsFlat: true}, nil
	}
	names, err := c.subdirs(path)
	if err != nil {
		return Albums{}, err
	}
	if len(names) == 0 {
		return Albums{Albums: []string{}, IsFlat: true}, nil
	}
	return Albums{Albums: names, IsFlat: false}, nil
}

// Files lists image and text files in project/subpath; subpath RootDir or
// empty means the project directory itself.
func (c *Catalog) Files(project, subpath string) (Files, error) {
	segments := []string{project}
	if subpath != "" && subpath != RootDir {
		segments = append(segments, subpath)
	}
	path, err := c.sandbox.Resolve(segments...)
	if err != nil {
		return Files{}, err
	}
	if !isDir(path) {
		return Files{}, fmt.Errorf("%w: %s", ErrNotDirectory, path)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return Files{}, err
	}
	files := Files{Images: []string{}, Texts: []string{}}
	for _, entry := range entries {
		if !isRegularEntry(path, entry) {
			continue
		}
		switch name := entry.Name(); {
		case IsImage(name):
			files.Images = append(files.Images, name)
		case IsText(name):
			files.Texts = append(files.Texts, name)
		}
	}
	sort.Strings(files.Images)
	sort.Strings(files.Texts)
	return files, nil
}

// File resolves a root-relative path to an existing regular file.
func (c *Catalog) File(rel string) (string, error) {
	path, err := c.sandbox.Resolve(rel)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%q: %w", rel, fs.ErrNotExist)
	}
	return path, nil
}

func (c *Catalog) subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || (entry.Type()&fs.ModeSymlink != 0 && isDir(filepath.Join(dir, entry.Name()))) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// isRegularEntry follows symlinks so linked files list the same way File
// serves them.
func isRegularEntry(dir string, entry fs.DirEntry) bool {
	if entry.Type().IsRegular() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, entry.Name()))
	return err == nil && info.Mode().IsRegular()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
