package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	oldVersion, oldBuildTime, oldGitCommit := Version, BuildTime, GitCommit
	t.Cleanup(func() { Version, BuildTime, GitCommit = oldVersion, oldBuildTime, oldGitCommit })

	Version, BuildTime, GitCommit = "1.2.3", "2025-06-01", "abcdef"

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "psikit 1.2.3")
	assert.Contains(t, out.String(), "Built: 2025-06-01")
	assert.Contains(t, out.String(), "Commit: abcdef")
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "notify-grace", "migrate", "version"}, names)
}
