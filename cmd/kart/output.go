package main

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/kart-vcs/kart/internal/diff"
)

var (
	colorInsert = color.New(color.FgGreen)
	colorDelete = color.New(color.FgRed)
	colorUpdate = color.New(color.FgYellow)
	colorDim    = color.New(color.Faint)
)

func colorError(s string) string {
	return color.New(color.FgRed).Sprint(s)
}

// printDelta renders one delta the way `kart diff`'s text output does:
// a status letter and the delta's dataset/part/key path. No object hashes
// are printed.
func printDelta(datasetPath, part string, d diff.Delta) {
	line := fmt.Sprintf("%s  %s/%s/%s", string(d.Status), datasetPath, part, d.Key())
	switch d.Status {
	case diff.StatusInsert:
		colorInsert.Println(line)
	case diff.StatusDelete:
		colorDelete.Println(line)
	default:
		colorUpdate.Println(line)
	}
}
