// Package main provides the entry point for the corpusvault CLI.
package main

import (
	"os"

	"github.com/corpusvault/corpusvault/cmd/corpusvault/cmd"
	"github.com/corpusvault/corpusvault/internal/errkind"
)

func main() {
	err := cmd.Execute()
	if err == nil {
		return
	}
	if errkind.Is(err, errkind.Usage) {
		os.Exit(2)
	}
	os.Exit(1)
}
