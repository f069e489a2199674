package main

import (
	"context"
	"fmt"

	"github.com/kart-vcs/kart/internal/objstore"
)

func cmdInit(ctx context.Context, dir string) error {
	_, h, err := objstore.InitTidy(dir)
	if err != nil {
		return err
	}
	fmt.Printf("Initialised empty Kart repository in %s\n", h.WorkDir)
	return nil
}
