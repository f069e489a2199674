package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/kart-vcs/kart/internal/kartrepo"
	"github.com/kart-vcs/kart/internal/kerr"
	"github.com/kart-vcs/kart/internal/objstore"
)

// cmdClone mirrors the shape of InitTidy, but seeds the private directory
// from a remote clone instead of an empty store: go-git's own clone does
// the transport and object-store population, and the tidy-layout
// scaffolding (README, git redirect, locked index sentinel, config, then
// a checkout of HEAD) is applied on top exactly as InitTidy applies it to
// a freshly-created store.
func cmdClone(ctx context.Context, url, dir string) error {
	if dir == "" {
		dir = inferCloneDir(url)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return kerr.Wrap(kerr.InvalidArgument, err, "resolving %s", dir)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "creating %s", absDir)
	}

	h := &kartrepo.Handle{WorkDir: absDir, PrivateDir: filepath.Join(absDir, ".kart"), Layout: kartrepo.Tidy}
	if err := os.MkdirAll(h.PrivateDir, 0o755); err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "creating %s", h.PrivateDir)
	}

	storer := filesystem.NewStorage(osfs.New(h.PrivateDir), nil)
	if _, err := git.CloneContext(ctx, storer, nil, &git.CloneOptions{URL: url}); err != nil {
		return kerr.Wrap(kerr.Transport, err, "cloning %s", url)
	}

	if err := h.WriteGitRedirect(); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(absDir, "KART_README.txt"), []byte(readmeContents), 0o644); err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "writing README")
	}
	if err := objstore.WriteLockedIndexSentinel(h.PrivateDir); err != nil {
		return err
	}
	cfg := kartrepo.DefaultConfig()
	if err := cfg.Save(h.PrivateDir); err != nil {
		return err
	}

	repo, err := objstore.Open(h)
	if err != nil {
		return err
	}

	headCommit, err := repo.ResolveRef(defaultRefName)
	if err != nil {
		fmt.Printf("Cloned into %s (no commits yet)\n", absDir)
		return nil
	}
	if err := checkoutTo(ctx, repo, h, headCommit); err != nil {
		return err
	}
	fmt.Printf("Cloned into %s\n", absDir)
	return nil
}

const readmeContents = "This directory contains a Kart repository.\n\nSee https://kartproject.org for details.\n"

func inferCloneDir(url string) string {
	name := strings.TrimSuffix(filepath.Base(url), ".git")
	if name == "" || name == "." || name == "/" {
		return "kart-clone"
	}
	return name
}
