package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testConfig = `
gear: form-qc
pinned_datatype: UDS
datatypes:
  - name: UDS
    longitudinal: true
  - name: NP
    depends_on: [UDS]
pool:
  size: 1
`

const testRules = `package rules

#UDS: {
	visitdate: string
	ptid:      string & !=""
}

#NP: {
	visitdate: string
}
`

const testRequests = `
records:
  - id: uds-1
    participant: p1
    datatype: UDS
    fields: {visitdate: "2024-01-10", ptid: p1}
  - id: uds-2
    participant: p1
    datatype: UDS
    fields: {visitdate: "2024-02-10", ptid: ""}
  - id: np-1
    participant: p1
    datatype: NP
    fields: {visitdate: "2024-01-10"}
requests:
  - participant: p1
    datatype: UDS
    records: [uds-1]
`

// workspace is a temp directory holding a database path, a config, a rules
// directory and a request file.
type workspace struct {
	dir      string
	db       string
	config   string
	rules    string
	requests string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	ws := workspace{
		dir:      dir,
		db:       filepath.Join(dir, "qc.db"),
		config:   filepath.Join(dir, "qcsched.yaml"),
		rules:    filepath.Join(dir, "rules"),
		requests: filepath.Join(dir, "requests.yaml"),
	}
	require.NoError(t, os.MkdirAll(ws.rules, 0755))
	ws.write(t, ws.config, testConfig)
	ws.write(t, filepath.Join(ws.rules, "forms.cue"), testRules)
	ws.write(t, ws.requests, testRequests)
	return ws
}

func (ws workspace) write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// execute runs the root command and returns stdout. Logs go to a separate
// buffer so JSON output stays parseable.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	logs := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(logs)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
