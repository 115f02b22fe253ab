package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pegabatch/am"
	"github.com/teranos/pegabatch/errors"
	"github.com/teranos/pegabatch/tracker"
)

var (
	rootOnce sync.Once
	testRoot *cobra.Command
)

func root() *cobra.Command {
	rootOnce.Do(func() {
		pterm.DisableStyling()
		testRoot = &cobra.Command{Use: "pegabatch", SilenceUsage: true, SilenceErrors: true}
		AddGlobalFlags(testRoot)
		testRoot.AddCommand(JobsCmd, RunCmd, CacheCmd, CooldownCmd, AmCmd, DbCmd, VersionCmd)
	})
	return testRoot
}

// env isolates configuration and returns the database path to pass as --db.
func env(t *testing.T) (dir, dbPath string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir = t.TempDir()
	t.Chdir(dir)
	t.Setenv("PEGABATCH_INBOX_DIR", filepath.Join(dir, "in"))
	t.Setenv("PEGABATCH_INBOX_WORK_DIR", filepath.Join(dir, "tmp"))
	t.Setenv("PEGABATCH_INBOX_OUT_DIR", filepath.Join(dir, "out"))
	am.Reset()
	t.Cleanup(am.Reset)
	return dir, filepath.Join(dir, "pegabatch.db")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	r := root()
	var out bytes.Buffer
	r.SetOut(&out)
	r.SetErr(&out)
	r.SetArgs(args)
	err := r.ExecuteContext(context.Background())
	return out.String(), err
}

func writeSheet(t *testing.T, dir, name string, ids ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := "Perfil\n" + strings.Join(ids, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestJobsAddListAndUpdateState(t *testing.T) {
	dir, db := env(t)
	sheet := writeSheet(t, t.TempDir(), "lista.csv", "alice")

	out, err := execute(t, "--db", db, "jobs", "add", sheet, "--id", "7", "--email", "ana@example.org", "--from", "")
	require.NoError(t, err)
	assert.Contains(t, out, "Request 7 queued")
	assert.FileExists(t, filepath.Join(dir, "in", "7_lista.csv"))

	out, err = execute(t, "--db", db, "--json", "jobs", "ls", "--status", "")
	require.NoError(t, err)
	var reqs []tracker.Request
	require.NoError(t, json.Unmarshal([]byte(out), &reqs))
	require.Len(t, reqs, 1)
	assert.Equal(t, "7", reqs[0].ID)
	assert.Equal(t, "ana@example.org", reqs[0].Email)

	out, err = execute(t, "--db", db, "--json=false", "jobs", "update-state", "7", "--state", "complete")
	require.NoError(t, err)
	assert.Equal(t, "Item 7 atualizado com sucesso!\n", out)

	_, err = execute(t, "--db", db, "jobs", "update-state", "7", "--state", "done")
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = execute(t, "--db", db, "jobs", "update-state", "99", "--state", "waiting")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestJobsAddRejectsNonSpreadsheet(t *testing.T) {
	_, db := env(t)
	notes := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("x"), 0o644))

	_, err := execute(t, "--db", db, "jobs", "add", notes, "--id", "8", "--from", "")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestJobsAddNeedsExactlyOneSource(t *testing.T) {
	_, db := env(t)
	_, err := execute(t, "--db", db, "jobs", "add", "--from", "")
	assert.True(t, errors.IsInvalidRequestError(err))
}

// scoringAPI answers every identifier with a fixed score and a large quota.
func scoringAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("profile")
		fmt.Fprintf(w, `{"profiles":[{"username":%q,"bot_probability":{"all":0.3}}],
			"twitter_data":{"user_name":%q},"rate_limit":{"remaining":100,"toReset":5}}`, id, id)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunCompletesQueuedRequest(t *testing.T) {
	dir, db := env(t)
	api := scoringAPI(t)
	t.Setenv("PEGABATCH_PEGABOT_BASE_URL", api.URL)
	t.Setenv("PEGABATCH_PEGABOT_REQUESTS_PER_SECOND", "-1")

	sheet := writeSheet(t, t.TempDir(), "lista.csv", "alice", "@bob")
	_, err := execute(t, "--db", db, "jobs", "add", sheet, "--id", "5", "--from", "")
	require.NoError(t, err)

	out, err := execute(t, "--db", db, "--json=false", "run")
	require.NoError(t, err)
	assert.Contains(t, out, "Completed: 1")

	out, err = execute(t, "--db", db, "--json", "jobs", "status", "5")
	require.NoError(t, err)
	var view jobStatus
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, tracker.StatusComplete, view.Request.Status)
	assert.Equal(t, 100, view.Request.Progress)
	assert.Zero(t, view.CheckpointRows, "checkpoint is cleared once the job completes")

	entries, err := os.ReadDir(filepath.Join(dir, "out"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".zip", filepath.Ext(entries[0].Name()))

	out, err = execute(t, "--db", db, "--json", "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, `"Entries": 2`)

	out, err = execute(t, "--db", db, "--json=false", "cache", "purge", "--older-than", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Purged 2 entries")
}

func TestCooldownShowAndClear(t *testing.T) {
	_, db := env(t)

	out, err := execute(t, "--db", db, "--json=false", "cooldown", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "No cooldown set")

	out, err = execute(t, "--db", db, "cooldown", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Cooldown cleared")
}

func TestAmInitRefusesOverwrite(t *testing.T) {
	dir, _ := env(t)
	path := filepath.Join(dir, "am.toml")

	out, err := execute(t, "am", "init", path, "--force=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")
	assert.FileExists(t, path)

	_, err = execute(t, "am", "init", path, "--force=false")
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestAmShowMasksSecrets(t *testing.T) {
	env(t)
	t.Setenv("PEGABATCH_PEGABOT_API_KEY", "s3cret")

	out, err := execute(t, "--json=false", "am", "show", "--format", "sources")
	require.NoError(t, err)
	assert.Contains(t, out, "quota.threshold")
	assert.NotContains(t, out, "s3cret")
}

func TestNestSettings(t *testing.T) {
	got := nestSettings([]am.SettingInfo{
		{Key: "quota.threshold", Value: 10},
		{Key: "quota.reset_unit", Value: "minutes"},
		{Key: "database.path", Value: "x.db"},
	})
	assert.Equal(t, map[string]any{
		"quota":    map[string]any{"threshold": 10, "reset_unit": "minutes"},
		"database": map[string]any{"path": "x.db"},
	}, got)
}

func TestDbMigrateAndVersion(t *testing.T) {
	_, db := env(t)

	out, err := execute(t, "--db", db, "--json=false", "db", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version")

	out, err = execute(t, "--json=false", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "pegabatch")
}

func TestFormatErrorIncludesHints(t *testing.T) {
	err := errors.WithHint(errors.New("boom"), "try again")
	got := FormatError(err)
	assert.Contains(t, got, "boom")
	assert.Contains(t, got, "try again")
}
