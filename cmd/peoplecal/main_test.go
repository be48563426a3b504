package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	configPath string
	dataDir    string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	return &cli{
		configPath: filepath.Join(dir, "config.yaml"),
		dataDir:    filepath.Join(dir, "data"),
	}
}

func (c *cli) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", c.configPath, "--data-dir", c.dataDir, "--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAddListAndExport(t *testing.T) {
	c := newCLI(t)

	out, err := c.run(t, "add", "Ada", "Lovelace", "--birthday", "December 10, 1815", "--every", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "Added Ada Lovelace")

	_, err = c.run(t, "add", "Ada", "Lovelace")
	assert.Error(t, err)

	out, err = c.run(t, "birthdays", "--window", "366")
	require.NoError(t, err)
	assert.Contains(t, out, "Ada Lovelace")

	out, err = c.run(t, "contacts")
	require.NoError(t, err)
	assert.Contains(t, out, "never contacted")

	_, err = c.run(t, "contact", "Ada", "Lovelace")
	require.NoError(t, err)
	out, err = c.run(t, "contacts")
	require.NoError(t, err)
	assert.Contains(t, out, "all caught up")

	out, err = c.run(t, "export")
	require.NoError(t, err)
	assert.Contains(t, out, "SUMMARY:Ada Lovelace's Birthday")
	assert.Contains(t, out, "DTSTART;VALUE=DATE:18151210")

	// The config file was written on first run.
	_, err = os.Stat(c.configPath)
	assert.NoError(t, err)
}

func TestCheckAndDone(t *testing.T) {
	c := newCLI(t)
	_, err := c.run(t, "add", "Grace", "--birthday", "1906-12-09")
	require.NoError(t, err)

	// Adding already scheduled the task, so the check usually finds it.
	out, err := c.run(t, "check", "--window", "366")
	require.NoError(t, err)

	var entryID string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "[[Grace]]'s Birthday") {
			entryID = strings.Fields(line)[2]
			break
		}
	}
	require.NotEmpty(t, entryID, out)

	out, err = c.run(t, "done", entryID)
	require.NoError(t, err)
	assert.Contains(t, out, "DONE [[Grace]]'s Birthday")

	_, err = c.run(t, "done", "no-such-entry")
	assert.Error(t, err)
}

func TestImportFile(t *testing.T) {
	c := newCLI(t)
	path := filepath.Join(t.TempDir(), "b.ics")
	require.NoError(t, os.WriteFile(path, []byte(`BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:x
DTSTART;VALUE=DATE:19120623
SUMMARY:Alan's Birthday
END:VEVENT
END:VCALENDAR
`), 0o600))

	out, err := c.run(t, "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "created 1")

	out, err = c.run(t, "agenda", "--days", "366")
	require.NoError(t, err)
	assert.Contains(t, out, "Alan")

	_, err = c.run(t, "import")
	assert.Error(t, err)
}

func TestEveryAndBirthday(t *testing.T) {
	c := newCLI(t)
	_, err := c.run(t, "add", "Linus")
	require.NoError(t, err)

	out, err := c.run(t, "every", "Linus", "14")
	require.NoError(t, err)
	assert.Contains(t, out, "every 14 days")

	_, err = c.run(t, "every", "Linus", "soon")
	assert.Error(t, err)

	out, err = c.run(t, "birthday", "Linus", "1969-12-28")
	require.NoError(t, err)
	assert.Contains(t, out, "1969-12-28")
}
