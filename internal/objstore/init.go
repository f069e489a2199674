package objstore

import (
	"os"
	"path/filepath"

	"github.com/kart-vcs/kart/internal/kartrepo"
	"github.com/kart-vcs/kart/internal/kerr"
)

// readmeContents is written at the root of every freshly-initialised tidy
// repository as a marker file (KART_README.txt).
const readmeContents = "This directory contains a Kart repository.\n\nSee https://kartproject.org for details.\n"

// InitTidy creates a new tidy-layout repository at workDir: a private
// ".kart" directory holding the object store, a ".git" redirect file, and
// a README marker. It returns the opened store plus the located handle.
func InitTidy(workDir string) (*Repository, *kartrepo.Handle, error) {
	absDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, nil, kerr.Wrap(kerr.InvalidArgument, err, "resolving %s", workDir)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return nil, nil, kerr.Wrap(kerr.IntegrityError, err, "creating %s", absDir)
	}

	h := &kartrepo.Handle{WorkDir: absDir, PrivateDir: filepath.Join(absDir, ".kart"), Layout: kartrepo.Tidy}
	if err := os.MkdirAll(h.PrivateDir, 0o755); err != nil {
		return nil, nil, kerr.Wrap(kerr.IntegrityError, err, "creating %s", h.PrivateDir)
	}

	repo, err := Init(h)
	if err != nil {
		return nil, nil, err
	}

	if err := h.WriteGitRedirect(); err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(filepath.Join(absDir, "KART_README.txt"), []byte(readmeContents), 0o644); err != nil {
		return nil, nil, kerr.Wrap(kerr.IntegrityError, err, "writing README")
	}
	if err := WriteLockedIndexSentinel(h.PrivateDir); err != nil {
		return nil, nil, err
	}

	cfg := kartrepo.DefaultConfig()
	if err := cfg.Save(h.PrivateDir); err != nil {
		return nil, nil, err
	}

	return repo, h, nil
}
