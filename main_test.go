package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryListText(t *testing.T) {
	finished := time.Date(2026, 10, 18, 9, 30, 0, 0, time.Local)
	list := historyList{
		{Mode: "publish", Kind: "published", Title: "柠檬方块", URL: "https://www.xiaohongshu.com/explore/1", FinishedAt: finished},
		{Mode: "draft", Kind: "failed", Stage: "LoggingIn", ErrorKind: "LoginTimeout", Reason: "login timed out", FinishedAt: finished},
	}

	text, err := list.ToText()
	require.NoError(t, err)
	assert.Contains(t, text, "2026-10-18 09:30")
	assert.Contains(t, text, "https://www.xiaohongshu.com/explore/1")
	assert.Contains(t, text, "[LoginTimeout] login timed out")

	js, err := historyList(nil).ToJSON()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(js))

	md, err := historyList{{Title: "a|b", Kind: "drafted"}}.ToMarkdown()
	require.NoError(t, err)
	assert.Contains(t, md, `a\|b`)
}

func TestOutputInfersFormatFromExtension(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	out := addOutputFlags(cmd, "text")
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, cmd.Flags().Set("output", path))

	require.NoError(t, out.write(historyList{{ID: "a", Kind: "drafted"}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id": "a"`)
}

