package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"crawl", "query", "export", "runs"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "prospector", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCommand_LogLevelFlag(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, flag)
	assert.Empty(t, flag.DefValue)
	assert.NotEmpty(t, rootCmd.Example)
}

func TestLoadConfig_LevelOverride(t *testing.T) {
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer os.Chdir(orig) //nolint:errcheck
	t.Setenv("PROSPECTOR_LOG_LEVEL", "warn")

	c, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "warn", c.Log.Level)

	c, err = loadConfig("debug")
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Log.Level)

	_, err = loadConfig("chatty")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init logger")
}

func TestCrawlCommand_Flags(t *testing.T) {
	for _, name := range []string{"query", "describe", "source", "max-pages", "output", "xlsx", "resume"} {
		assert.NotNil(t, crawlCmd.Flags().Lookup(name), "crawl should have --%s flag", name)
	}
	assert.Equal(t, "false", crawlCmd.Flags().Lookup("resume").DefValue)
}

func TestExportCommand_Flags(t *testing.T) {
	require.NotNil(t, exportCmd.Flags().Lookup("input"))
	require.NotNil(t, exportCmd.Flags().Lookup("xlsx"))
}

func TestQueryCommand_RequiresDescription(t *testing.T) {
	assert.Error(t, queryCmd.Args(queryCmd, nil))
	assert.NoError(t, queryCmd.Args(queryCmd, []string{"confeitarias", "em", "recife"}))
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["show"])

	flag := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)
}
