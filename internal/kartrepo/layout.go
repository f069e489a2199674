// Package kartrepo resolves a Kart repository's on-disk layout and loads
// its process-level configuration. It does not open the object store
// itself — that's internal/objstore's job — but it decides *where* that
// store lives and under what directory name.
package kartrepo

import (
	"os"
	"path/filepath"

	"github.com/kart-vcs/kart/internal/kerr"
)

// Layout distinguishes the two supported on-disk arrangements.
type Layout int

const (
	// Tidy: the object store lives inside a hidden subdirectory of the
	// working directory (".kart/" or legacy ".sno/"), alongside the
	// working-copy files.
	Tidy Layout = iota
	// Bare: the repository root *is* the object store; there is no
	// working-copy-adjacent directory structure.
	Bare
)

// privateDirNames lists the directory names a reader must recognise, in
// preference order. Kart itself always writes ".kart"; ".sno" is accepted
// for repositories written by the tool's previous era.
var privateDirNames = []string{".kart", ".sno"}

// Handle describes a located repository: its working directory (for tidy
// layouts, equal to the repo root; for bare layouts, empty), the private
// directory holding the object store and Kart's own state, and which
// layout it is.
type Handle struct {
	WorkDir    string
	PrivateDir string
	Layout     Layout
}

// Discover walks upward from startDir looking for a Kart repository,
// exactly as `git rev-parse --show-toplevel` would, but recognising both
// the tidy private-directory convention and a bare store whose root
// holds HEAD, objects/ and refs/ directly.
func Discover(startDir string) (*Handle, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, kerr.Wrap(kerr.InvalidArgument, err, "resolving start directory")
	}

	for {
		if h := probe(dir); h != nil {
			return h, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil, kerr.NotAKartRepo(startDir)
}

func probe(dir string) *Handle {
	for _, name := range privateDirNames {
		p := filepath.Join(dir, name)
		if isDir(p) {
			return &Handle{WorkDir: dir, PrivateDir: p, Layout: Tidy}
		}
	}
	// A bare repository root looks like a plain object-store directory:
	// it has HEAD, objects/ and refs/ directly, with no working-copy
	// siblings. We distinguish it from a tidy repo's private dir by the
	// presence of KART_README.txt one level up not applying; bare repos
	// simply *are* the store root.
	if isFile(filepath.Join(dir, "HEAD")) && isDir(filepath.Join(dir, "objects")) && isDir(filepath.Join(dir, "refs")) {
		return &Handle{WorkDir: "", PrivateDir: dir, Layout: Bare}
	}
	return nil
}

func isDir(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

// GitRedirectPath returns the path of the one-line ".git" redirect file
// that a tidy-layout repository writes so that ordinary git tooling run
// inside the working directory finds Kart's object store.
func (h *Handle) GitRedirectPath() string {
	if h.Layout != Tidy {
		return ""
	}
	return filepath.Join(h.WorkDir, ".git")
}

// WriteGitRedirect writes the ".git" one-line redirect file pointing at
// the private directory, e.g. "gitdir: .kart".
func (h *Handle) WriteGitRedirect() error {
	if h.Layout != Tidy {
		return nil
	}
	rel, err := filepath.Rel(h.WorkDir, h.PrivateDir)
	if err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "computing relative private dir")
	}
	content := "gitdir: " + rel + "\n"
	return os.WriteFile(h.GitRedirectPath(), []byte(content), 0o644)
}
