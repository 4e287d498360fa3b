package main

import (
	"fmt"

	"github.com/kestrelops/venvorch/version"
)

// VersionCmd prints build version information embedded via -ldflags.
type VersionCmd struct{}

func (cmd *VersionCmd) Run(cli *CLI) error {
	v := version.Get()
	if v.GitCommit == "" {
		fmt.Println("venvorchd dev build")
		return nil
	}
	fmt.Printf("venvorchd %s (branch %s, built %s)\n", v.GitCommit, v.GitBranch, v.BuildTime)
	return nil
}
