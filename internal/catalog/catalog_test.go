package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"imgdash/internal/sandbox"
)

func newFixture(t *testing.T) (*Catalog, string) {
	t.Helper()
	root := t.TempDir()
	mustMkdir(t, filepath.Join(root, "beta"))
	mustMkdir(t, filepath.Join(root, "alpha", "epoch-2"))
	mustMkdir(t, filepath.Join(root, "alpha", "epoch-1"))
	mustMkdir(t, filepath.Join(root, "flat"))
	mustWrite(t, filepath.Join(root, "notes.txt"))
	mustWrite(t, filepath.Join(root, "flat", "b.PNG"))
	mustWrite(t, filepath.Join(root, "flat", "a.jpg"))
	mustWrite(t, filepath.Join(root, "flat", "loss.log"))
	mustWrite(t, filepath.Join(root, "flat", "model.pt"))
	mustWrite(t, filepath.Join(root, "alpha", "epoch-1", "sample.webp"))

	box, err := sandbox.New(root)
	if err != nil {
		t.Fatalf("new sandbox: %v", err)
	}
	return New(box), box.Root()
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func mustWrite(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestProjectsSortedDirectoriesOnly(t *testing.T) {
	catalog, _ := newFixture(t)
	projects, err := catalog.Projects()
	if err != nil {
		t.Fatalf("projects: %v", err)
	}
	if want := []string{"alpha", "beta", "flat"}; !reflect.DeepEqual(projects, want) {
		t.Fatalf("expected %v, got %v", want, projects)
	}
}

func TestAlbums(t *testing.T) {
	catalog, _ := newFixture(t)

	albums, err := catalog.Albums("alpha")
	if err != nil {
		t.Fatalf("albums: %v", err)
	}
	if albums.IsFlat || !reflect.DeepEqual(albums.Albums, []string{"epoch-1", "epoch-2"}) {
		t.Fatalf("unexpected albums %+v", albums)
	}

	flat, err := catalog.Albums("flat")
	if err != nil {
		t.Fatalf("albums: %v", err)
	}
	if !flat.IsFlat || len(flat.Albums) != 0 {
		t.Fatalf("expected flat project, got %+v", flat)
	}

	missing, err := catalog.Albums("missing")
	if err != nil {
		t.Fatalf("albums: %v", err)
	}
	if !missing.IsFlat {
		t.Fatalf("expected missing project to be flat, got %+v", missing)
	}

	if _, err := catalog.Albums(".."); !errors.Is(err, sandbox.ErrPathTraversal) {
		t.Fatalf("expected traversal error, got %v", err)
	}
}

func TestFiles(t *testing.T) {
	catalog, _ := newFixture(t)

	files, err := catalog.Files("flat", RootDir)
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if want := []string{"a.jpg", "b.PNG"}; !reflect.DeepEqual(files.Images, want) {
		t.Fatalf("expected images %v, got %v", want, files.Images)
	}
	if want := []string{"loss.log"}; !reflect.DeepEqual(files.Texts, want) {
		t.Fatalf("expected texts %v, got %v", want, files.Texts)
	}

	nested, err := catalog.Files("alpha", "epoch-1")
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(nested.Images) != 1 || nested.Images[0] != "sample.webp" {
		t.Fatalf("unexpected nested files %+v", nested)
	}

	if _, err := catalog.Files("alpha", "nope"); !errors.Is(err, ErrNotDirectory) {
		t.Fatalf("expected ErrNotDirectory, got %v", err)
	}
	if _, err := catalog.Files("alpha", "../../etc"); !errors.Is(err, sandbox.ErrPathTraversal) {
		t.Fatalf("expected traversal error, got %v", err)
	}
}

func TestFilesFollowsSymlinks(t *testing.T) {
	catalog, root := newFixture(t)
	flat := filepath.Join(root, "flat")
	links := map[string]string{
		"linked.png": filepath.Join(flat, "a.jpg"),
		"linked.txt": filepath.Join(flat, "loss.log"),
		"album.png":  filepath.Join(root, "alpha", "epoch-1"),
		"broken.png": filepath.Join(flat, "missing.png"),
	}
	for name, target := range links {
		if err := os.Symlink(target, filepath.Join(flat, name)); err != nil {
			t.Skipf("symlink unsupported: %v", err)
		}
	}

	files, err := catalog.Files("flat", RootDir)
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if want := []string{"a.jpg", "b.PNG", "linked.png"}; !reflect.DeepEqual(files.Images, want) {
		t.Fatalf("expected images %v, got %v", want, files.Images)
	}
	if want := []string{"linked.txt", "loss.log"}; !reflect.DeepEqual(files.Texts, want) {
		t.Fatalf("expected texts %v, got %v", want, files.Texts)
	}
	if _, err := catalog.File("flat/linked.png"); err != nil {
		t.Fatalf("expected listed symlink to be served: %v", err)
	}
}

func TestProjectDir(t *testing.T) {
	catalog, root := newFixture(t)

	dir, err := catalog.ProjectDir("alpha")
	if err != nil {
		t.Fatalf("project dir: %v", err)
	}
	if dir != filepath.Join(root, "alpha") {
		t.Fatalf("unexpected dir %q", dir)
	}
	for _, name := range []string{"missing", "notes.txt", "", ".", "alpha/epoch-1"} {
		if _, err := catalog.ProjectDir(name); !errors.Is(err, ErrNotDirectory) {
			t.Fatalf("ProjectDir(%q): expected ErrNotDirectory, got %v", name, err)
		}
	}
	if _, err := catalog.ProjectDir("../x"); !errors.Is(err, sandbox.ErrPathTraversal) {
		t.Fatalf("expected traversal error, got %v", err)
	}
}

func TestFile(t *testing.T) {
	catalog, root := newFixture(t)
	path, err := catalog.File("flat/a.jpg")
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if path != filepath.Join(root, "flat", "a.jpg") {
		t.Fatalf("unexpected path %q", path)
	}
	if _, err := catalog.File("flat"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not exist for directory, got %v", err)
	}
	if _, err := catalog.File("../secret"); !errors.Is(err, sandbox.ErrPathTraversal) {
		t.Fatalf("expected traversal error, got %v", err)
	}
}

func TestMediaClassification(t *testing.T) {
	cases := []struct {
		name      string
		image     bool
		text      bool
		transient bool
	}{
		{name: "a.JPG", image: true},
		{name: "dir/b.jpeg", image: true},
		{name: "c.tiff", image: true},
		{name: "d.svg", image: true},
		{name: "notes.txt", text: true},
		{name: "run.YAML", text: true},
		{name: "e.png.swp", transient: true},
		{name: "f.png~", transient: true},
		{name: "g.tmp", transient: true},
		{name: "sub/.DS_Store", transient: true},
		{name: "weights.pt"},
	}
	for _, tc := range cases {
		if got := IsImage(tc.name); got != tc.image {
			t.Fatalf("IsImage(%q) = %v", tc.name, got)
		}
		if got := IsText(tc.name); got != tc.text {
			t.Fatalf("IsText(%q) = %v", tc.name, got)
		}
		if got := IsTransient(tc.name); got != tc.transient {
			t.Fatalf("IsTransient(%q) = %v", tc.name, got)
		}
	}
}
