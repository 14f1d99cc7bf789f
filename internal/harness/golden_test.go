package harness

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_Scenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		scenario, err := LoadScenario(file)
		require.NoError(t, err)
		t.Run(scenario.Name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

func TestAssertGolden_FromResult(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "concurrent_edit.yaml"))
	require.NoError(t, err)
	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.NoError(t, AssertGolden(t, "concurrent_edit", result))
}

func TestTraceSnapshotJSON(t *testing.T) {
	snapshot := TraceSnapshot{
		ScenarioName: "s",
		Trace: []TraceEvent{
			{Seq: 1, Peer: "a", Op: "sync", Report: &SyncCounts{Peers: 1}},
			{Seq: 2, Peer: "a", Op: "save", Ref: "artist:a-0001", Events: []string{"set artist:a-0001 name"}},
		},
		State: map[string][]json.RawMessage{
			"a": {json.RawMessage(`{"name":"X","key":"a-0001"}`)},
		},
	}

	data, err := snapshot.Marshal()
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"s","state":{"a":[{"key":"a-0001","name":"X"}]},"trace":[`+
			`{"op":"sync","peer":"a","report":{"applied":0,"duplicate":0,"peers":1,"stale":0},"seq":1},`+
			`{"events":["set artist:a-0001 name"],"op":"save","peer":"a","ref":"artist:a-0001","seq":2}]}`,
		string(data))

	again, err := snapshot.Marshal()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}
