package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"serve", "scan", "signals", "quote", "trade", "market", "settings"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "postsignal", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestScanCommand_Flags(t *testing.T) {
	for _, name := range []string{"file", "url", "bus-url", "out", "format", "follow"} {
		assert.NotNil(t, scanCmd.Flags().Lookup(name), "scan command should have --%s flag", name)
	}
	assert.Equal(t, "table", scanCmd.Flags().Lookup("format").DefValue)
}

func TestSignalsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range signalsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "stats", "clear", "redrive"} {
		assert.True(t, names[name], "expected signals subcommand %q", name)
	}
	assert.NotNil(t, signalsCmd.PersistentFlags().Lookup("bus-url"))
	assert.NotNil(t, signalsListCmd.Flags().Lookup("limit"))
	assert.NotNil(t, signalsRedriveCmd.Flags().Lookup("limit"))
}

func TestMarketCommand_Flags(t *testing.T) {
	for _, name := range []string{"bus-url", "format", "timeframe", "candles"} {
		assert.NotNil(t, marketCmd.Flags().Lookup(name), "market --%s", name)
	}
	assert.Equal(t, "1H", marketCmd.Flags().Lookup("timeframe").DefValue)
	assert.Error(t, marketCmd.Args(marketCmd, nil))
}

func TestSettingsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range settingsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"set", "enable", "disable"} {
		assert.True(t, names[name], "expected settings subcommand %q", name)
	}
	assert.NotNil(t, settingsSetCmd.Flags().Lookup("pref"))
}

func TestParsePrefs(t *testing.T) {
	got, err := parsePrefs([]string{"theme=dark", " lang = en "})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"theme": "dark", "lang": "en"}, got)

	_, err = parsePrefs([]string{"novalue"})
	assert.Error(t, err)
	_, err = parsePrefs(nil)
	assert.Error(t, err)
}

func TestQuoteAndTrade_Flags(t *testing.T) {
	for _, c := range []string{"from", "to", "amount", "slippage", "decimals", "bus-url", "format"} {
		assert.NotNil(t, quoteCmd.Flags().Lookup(c), "quote --%s", c)
		assert.NotNil(t, tradeCmd.Flags().Lookup(c), "trade --%s", c)
	}
	assert.Equal(t, "SOL", quoteCmd.Flags().Lookup("from").DefValue)
	assert.NotNil(t, tradeCmd.Flags().Lookup("wallet"))
	assert.Nil(t, quoteCmd.Flags().Lookup("wallet"))
}
