// Package cli implements the bookflow command surface.
package cli

import (
	"fmt"
	"os"
)

func Run(args []string) int {
	if len(args) == 0 {
		printRootUsage(os.Stderr)
		return 2
	}
	switch args[0] {
	case "run":
		return runRunCommand(args[1:])
	case "generate":
		return runGenerateCommand(args[1:])
	case "runs":
		return runRunsCommand(args[1:])
	case "select":
		return runSelectCommand(args[1:])
	case "doctor":
		return runDoctorCommand(args[1:])
	case "help", "-h", "--help":
		printRootUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		printRootUsage(os.Stderr)
		return 2
	}
}

func printRootUsage(w *os.File) {
	fmt.Fprint(w, `bookflow - book to AI-artifact orchestration

Usage:
  bookflow run       start or resume a book-to-artifact run
  bookflow generate  run guarded artifact generation against a notebook
  bookflow runs      list recorded runs
  bookflow select    interactively pick chapters for a paused run
  bookflow doctor    check the environment and guard state
  bookflow help      show this help

Environment:
  BOOKFLOW_HOME      base directory for state (default ~/.bookflow)
  BOOKFLOW_PROFILE   default auth profile for the notebook CLI
  BOOKFLOW_NLM_BIN   notebook CLI binary name (default nlm)
`)
}
