package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const libraryDir = "../fragments/testdata/library"

// writeConfig creates a replica directory with its own database and blob
// store and returns the config file path. share and catalogs may be empty.
func writeConfig(t *testing.T, share string, catalogs ...string) string {
	t.Helper()
	dir := t.TempDir()

	var b strings.Builder
	fmt.Fprintf(&b, "library:\n  path: %s\n  blobs: %s\n", filepath.Join(dir, "crate.db"), filepath.Join(dir, "blobs"))
	if share != "" {
		fmt.Fprintf(&b, "sync:\n  share: %s\n  prefix: test\n", share)
	}
	fmt.Fprintf(&b, "providers:\n  mode: offline\n  min_interval: 0s\n  cache_ttl: 0s\n")
	if len(catalogs) > 0 {
		b.WriteString("  catalogs:\n")
		for _, c := range catalogs {
			fmt.Fprintf(&b, "    - %s\n", c)
		}
	}
	b.WriteString("log:\n  level: error\n")

	path := filepath.Join(dir, "crate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

// dbPath returns the database a config file points at.
func dbPath(config string) string {
	return filepath.Join(filepath.Dir(config), "crate.db")
}

func execute(t *testing.T, config string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SilenceErrors = true
	cmd.SetArgs(append([]string{"--config", config}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

// executeJSON runs a command with JSON output and decodes its data.
func executeJSON(t *testing.T, config string, data any, args ...string) {
	t.Helper()
	out, err := execute(t, config, append(args, "--format", "json")...)
	require.NoError(t, err, out)

	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, data))
}

type listedEntity struct {
	Key     string  `json:"key"`
	Name    *string `json:"name"`
	Title   *string `json:"title"`
	Country *string `json:"country"`
}

func importLibrary(t *testing.T, config string) ImportResult {
	t.Helper()
	var result ImportResult
	executeJSON(t, config, &result, "import", libraryDir)
	return result
}

func keyOf(t *testing.T, result ImportResult, label string) string {
	t.Helper()
	for _, e := range result.Imported {
		if e.Label == label {
			return e.Key
		}
	}
	t.Fatalf("no imported entity %q", label)
	return ""
}

func TestImportCommand(t *testing.T) {
	config := writeConfig(t, "")

	result := importLibrary(t, config)
	require.Len(t, result.Imported, 3)
	assert.Empty(t, result.Errors)
	assert.NotEmpty(t, keyOf(t, result, "post"))
	assert.NotEmpty(t, keyOf(t, result, "bjork"))

	out, err := execute(t, config, "import", libraryDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 3 entities")

	// Re-importing merges into the same entities.
	var artists []listedEntity
	executeJSON(t, config, &artists, "list", "artist")
	require.Len(t, artists, 1)
	assert.Equal(t, keyOf(t, result, "bjork"), artists[0].Key)
}

func TestImportInvalidFragments(t *testing.T) {
	config := writeConfig(t, "")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.cue"), []byte("release: x: {title: 42}\n"), 0o644))

	out, err := execute(t, config, "import", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Contains(t, fmt.Sprint(resp.Error.Details), "bad.cue")
}

func TestGetCommand(t *testing.T) {
	config := writeConfig(t, "")
	result := importLibrary(t, config)
	post := keyOf(t, result, "post")

	out, err := execute(t, config, "get", "release:"+post)
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "Post"`)
	assert.NotContains(t, out, `"country": "IS"`)

	out, err = execute(t, config, "get", "release:"+post, "--expand")
	require.NoError(t, err)
	assert.Contains(t, out, `"country": "IS"`, "expanded credit carries the stored artist")

	_, err = execute(t, config, "get", "release:missing")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = execute(t, config, "get", "not-a-ref")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestListRelated(t *testing.T) {
	config := writeConfig(t, "")
	result := importLibrary(t, config)

	var releases []listedEntity
	executeJSON(t, config, &releases, "list", "release", "--related", "artist:"+keyOf(t, result, "bjork"))
	var titles []string
	for _, r := range releases {
		titles = append(titles, *r.Title)
	}
	assert.ElementsMatch(t, []string{"Post", "Homogenic"}, titles)

	out, err := execute(t, config, "list", "genre")
	require.NoError(t, err)
	assert.Contains(t, out, "No entities found.")
}

func TestFindCommand(t *testing.T) {
	config := writeConfig(t, "")
	importLibrary(t, config)

	var found []listedEntity
	executeJSON(t, config, &found, "find", "release", "--where", "date>=1996-01-01")
	require.Len(t, found, 1)
	assert.Equal(t, "Homogenic", *found[0].Title)

	executeJSON(t, config, &found, "find", "release", "--where", "title=Post", "--where", "date<1996-01-01")
	require.Len(t, found, 1)
	assert.Equal(t, "Post", *found[0].Title)

	_, err := execute(t, config, "find", "release", "--where", "no operator")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestParseCondition(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"title=Post", "{title Post}"},
		{"length>=300000", "{length >= 300000}"},
		{"media.format!=CD", "{media.format != CD}"},
		{"date<1996", "{date < 1996}"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := parseCondition(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, fmt.Sprint(p))
		})
	}

	_, err := parseCondition("=Post")
	assert.Error(t, err)
}

func TestSetAndLog(t *testing.T) {
	config := writeConfig(t, "")
	result := importLibrary(t, config)
	ref := "artist:" + keyOf(t, result, "bjork")

	out, err := execute(t, config, "set", ref, "country", `"GB"`)
	require.NoError(t, err)
	assert.Contains(t, out, `"country": "GB"`)

	out, err = execute(t, config, "log", ref)
	require.NoError(t, err)
	assert.Contains(t, out, `set `+ref+` country = "IS"`)
	assert.Contains(t, out, `set `+ref+` country = "GB"`)

	_, err = execute(t, config, "set", ref, "country", "GB")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLinkCommand(t *testing.T) {
	config := writeConfig(t, "")
	result := importLibrary(t, config)
	homogenic := "release:" + keyOf(t, result, "homogenic")
	post := "release:" + keyOf(t, result, "post")

	out, err := execute(t, config, "link", homogenic, post)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Linked")

	var related []listedEntity
	executeJSON(t, config, &related, "list", "release", "--related", homogenic)
	require.Len(t, related, 1)
	assert.Equal(t, "Post", *related[0].Title)
}

func TestVerifyCommand(t *testing.T) {
	config := writeConfig(t, "")
	result := importLibrary(t, config)
	_, err := execute(t, config, "set", "artist:"+keyOf(t, result, "bjork"), "sort_name", `"Björk"`)
	require.NoError(t, err)

	var verified VerifyResult
	executeJSON(t, config, &verified, "verify")
	assert.True(t, verified.Consistent)
	assert.Empty(t, verified.Drifted)
	assert.Positive(t, verified.Events)
}

func TestSyncCommand(t *testing.T) {
	share := t.TempDir()
	a := writeConfig(t, share)
	b := writeConfig(t, share)
	importLibrary(t, a)

	var first SyncResult
	executeJSON(t, a, &first, "sync")
	assert.Equal(t, 0, first.Peers)

	var second SyncResult
	executeJSON(t, b, &second, "sync")
	assert.Equal(t, 1, second.Peers)
	assert.Positive(t, second.Applied)

	var releases []listedEntity
	executeJSON(t, b, &releases, "list", "release")
	assert.Len(t, releases, 2)

	_, err := execute(t, writeConfig(t, ""), "sync")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGetLookupFromCatalog(t *testing.T) {
	catalog := writeConfig(t, "")
	imported := importLibrary(t, catalog)
	_, err := execute(t, catalog, "set", "artist:"+keyOf(t, imported, "bjork"), "sort_name", `"Guðmundsdóttir, Björk"`)
	require.NoError(t, err)

	local := writeConfig(t, "", dbPath(catalog))
	result := importLibrary(t, local)
	ref := "artist:" + keyOf(t, result, "bjork")

	out, err := execute(t, local, "get", ref, "--lookup")
	require.NoError(t, err)
	assert.Contains(t, out, "Guðmundsdóttir")

	out, err = execute(t, local, "get", ref)
	require.NoError(t, err)
	assert.NotContains(t, out, "Guðmundsdóttir", "lookup without --save does not persist")

	_, err = execute(t, local, "get", ref, "--lookup", "--save")
	require.NoError(t, err)
	out, err = execute(t, local, "get", ref)
	require.NoError(t, err)
	assert.Contains(t, out, "Guðmundsdóttir")
}

func TestBlobCommands(t *testing.T) {
	config := writeConfig(t, "")
	result := importLibrary(t, config)
	post := "release:" + keyOf(t, result, "post")

	cover := filepath.Join(t.TempDir(), "cover.jpg")
	require.NoError(t, os.WriteFile(cover, []byte("not really a jpeg"), 0o644))

	var added []AddedBlob
	executeJSON(t, config, &added, "blob", "add", cover, "--artwork", post)
	require.Len(t, added, 1)
	assert.True(t, added[0].Created)

	out, err := execute(t, config, "blob", "list")
	require.NoError(t, err)
	assert.Contains(t, out, string(added[0].Digest))

	out, err = execute(t, config, "get", post)
	require.NoError(t, err)
	assert.Contains(t, out, string(added[0].Digest))

	executeJSON(t, config, &added, "blob", "add", cover)
	assert.False(t, added[0].Created)
}

func TestGetLookupMissingCatalog(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nowhere.db")
	local := writeConfig(t, "", missing)
	result := importLibrary(t, local)

	_, err := execute(t, local, "get", "artist:"+keyOf(t, result, "bjork"), "--lookup")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, statErr := os.Stat(missing)
	assert.True(t, os.IsNotExist(statErr), "catalogs are never created")
}
