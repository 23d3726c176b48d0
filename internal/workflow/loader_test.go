package workflow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aisanity/aisanity/internal/config"
	aerrors "github.com/aisanity/aisanity/internal/errors"
	"github.com/aisanity/aisanity/internal/testutil"
)

func requireCode(t *testing.T, err error, code string) *aerrors.AisanityError {
	t.Helper()
	require.Error(t, err)
	var aerr *aerrors.AisanityError
	require.ErrorAs(t, err, &aerr)
	require.Equal(t, code, aerr.Code, "error: %v", err)
	return aerr
}

func TestLoader_LoadLinear(t *testing.T) {
	dir := testutil.WriteWorkflowFile(t, "", testutil.LinearWorkflowYAML)
	l := NewLoader("", nil)

	defs, err := l.Load(dir)
	require.NoError(t, err)

	require.Contains(t, defs.Workflows, "hello")
	w := defs.Workflows["hello"]
	assert.Equal(t, "hello", w.Name)
	assert.Equal(t, "start", w.InitialState)
	assert.Equal(t, []string{"end", "start"}, w.StateNames())
	assert.Equal(t, []string{"hi"}, w.States["start"].Args)
	assert.Equal(t, "end", w.States["start"].Transitions.Success)
	assert.True(t, w.States["end"].IsTerminal())
	require.NotNil(t, defs.Metadata)
	assert.Equal(t, "1.0", defs.Metadata.Version)
}

func TestLoader_LoadBranching(t *testing.T) {
	dir := testutil.WriteWorkflowFile(t, "", testutil.BranchingWorkflowYAML)
	l := NewLoader("", nil)

	w, err := l.GetWorkflow("deploy", dir)
	require.NoError(t, err)

	assert.EqualValues(t, 600000, w.GlobalTimeout)
	build := w.States["build"]
	assert.EqualValues(t, 120000, build.Timeout)
	assert.Equal(t, Transitions{Success: "confirm", Failure: "report", Timeout: "report"}, build.Transitions)

	c := w.States["confirm"].Confirmation
	require.NotNil(t, c)
	assert.Equal(t, "Deploy to {env}?", c.Message)
	assert.EqualValues(t, 30000, c.Timeout)
	assert.False(t, c.DefaultAccept)
	assert.Equal(t, []string{"done", "report"}, w.TerminalStates())
}

func TestLoader_Cache(t *testing.T) {
	dir := testutil.WriteWorkflowFile(t, "", testutil.LinearWorkflowYAML)
	l := NewLoader("", nil)

	first, err := l.Load(dir)
	require.NoError(t, err)
	second, err := l.Load(dir + string(filepath.Separator) + ".")
	require.NoError(t, err)
	assert.Same(t, first, second, "normalized path hits the cache")
	assert.Equal(t, 1, l.Cache.Len())

	// Edits are invisible until the cache is cleared
	updated := strings.Replace(testutil.LinearWorkflowYAML, "Say hello and goodbye", "Updated", 1)
	testutil.WriteWorkflowFile(t, dir, updated)

	cached, err := l.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "Say hello and goodbye", cached.Workflows["hello"].Description)

	l.ClearCache()
	assert.Equal(t, 0, l.Cache.Len())

	fresh, err := l.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "Updated", fresh.Workflows["hello"].Description)
	assert.NotSame(t, first, fresh)
}

func TestLoader_Invalidate(t *testing.T) {
	a := testutil.WriteWorkflowFile(t, "", testutil.LinearWorkflowYAML)
	b := testutil.WriteWorkflowFile(t, "", testutil.BranchingWorkflowYAML)
	l := NewLoader("", nil)

	_, err := l.Load(a)
	require.NoError(t, err)
	_, err = l.Load(b)
	require.NoError(t, err)
	require.Equal(t, 2, l.Cache.Len())

	l.Invalidate(a)
	assert.Equal(t, 1, l.Cache.Len())
}

func TestLoader_CachesAreIndependent(t *testing.T) {
	dir := testutil.WriteWorkflowFile(t, "", testutil.LinearWorkflowYAML)
	a := NewLoader("", nil)
	b := NewLoader("", nil)

	_, err := a.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Cache.Len())
	assert.Equal(t, 0, b.Cache.Len())
}

func TestLoader_MissingFile(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader("", nil)

	_, err := l.Load(dir)
	aerr := requireCode(t, err, aerrors.CodeFileMissing)
	assert.Equal(t, filepath.Join(dir, config.DefaultWorkflowFile), aerr.Detail("path"))
	assert.Equal(t, aerrors.KindFileMissing, aerr.Kind())

	names, err := l.ListWorkflows(dir)
	require.NoError(t, err, "listing tolerates a missing file")
	assert.NotNil(t, names)
	assert.Empty(t, names)

	_, err = l.GetWorkflow("hello", dir)
	requireCode(t, err, aerrors.CodeFileMissing)
}

func TestLoader_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, config.DefaultWorkflowFile), 0755))

	_, err := NewLoader("", nil).Load(dir)
	requireCode(t, err, aerrors.CodeFileInvalid)
}

func TestLoader_PermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	dir := testutil.WriteWorkflowFile(t, "", testutil.LinearWorkflowYAML)
	path := filepath.Join(dir, config.DefaultWorkflowFile)
	require.NoError(t, os.Chmod(path, 0000))
	t.Cleanup(func() { _ = os.Chmod(path, 0644) })

	_, err := NewLoader("", nil).Load(dir)
	requireCode(t, err, aerrors.CodeFilePermission)

	_, err = NewLoader("", nil).ListWorkflows(dir)
	requireCode(t, err, aerrors.CodeFilePermission)
}

func TestLoader_CustomFileName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flows.yml")
	require.NoError(t, os.WriteFile(path, []byte(testutil.LinearWorkflowYAML), 0644))

	l := NewLoader("flows.yml", nil)
	assert.Equal(t, path, l.Path(dir))
	names, err := l.ListWorkflows(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, names)

	abs := NewLoader(path, nil)
	assert.Equal(t, path, abs.Path(t.TempDir()))
}

func TestLoader_GetWorkflowNotFound(t *testing.T) {
	dir := testutil.WriteWorkflowFile(t, "", testutil.LinearWorkflowYAML)

	_, err := NewLoader("", nil).GetWorkflow("missing", dir)
	aerr := requireCode(t, err, aerrors.CodeWorkflowNotFound)
	assert.Equal(t, aerrors.KindValidation, aerr.Kind())
	assert.Equal(t, []string{"hello"}, aerr.Detail("available"))
}

func TestListWorkflows_Sorted(t *testing.T) {
	content := `workflows:
  zeta:
    name: zeta
    initialState: a
    states:
      a:
        command: echo
  alpha:
    name: alpha
    initialState: a
    states:
      a:
        command: echo
`
	dir := testutil.WriteWorkflowFile(t, "", content)
	names, err := NewLoader("", nil).ListWorkflows(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)
}

func TestParse_SyntaxError(t *testing.T) {
	_, err := Parse([]byte("workflows:\n\thello: {}\n"), "wf.yml")
	aerr := requireCode(t, err, aerrors.CodeParseError)
	assert.Equal(t, 2, aerr.Detail("line"))
	assert.Equal(t, "wf.yml", aerr.Detail("path"))
}

func TestParse_Empty(t *testing.T) {
	for _, data := range []string{"", "# only a comment\n"} {
		_, err := Parse([]byte(data), "wf.yml")
		requireCode(t, err, aerrors.CodeValidation)
	}
}

func TestParse_SchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		field   string
		line    int
		message string
	}{
		{
			name: "unknown field",
			yaml: `workflows:
  hello:
    name: hello
    initialState: start
    states:
      start:
        comand: echo
`,
			field:   "workflows.hello.states.start.comand",
			line:    7,
			message: "comand",
		},
		{
			name: "duplicate state",
			yaml: `workflows:
  hello:
    name: hello
    initialState: start
    states:
      start:
        command: echo
      start:
        command: echo
`,
			field:   "workflows.hello.states.start",
			line:    8,
			message: "already defined",
		},
		{
			name: "wrong type",
			yaml: `workflows:
  hello:
    name: hello
    initialState: start
    states:
      start:
        command: echo
        timeout: soon
`,
			field:   "workflows.hello.states.start.timeout",
			line:    8,
			message: "soon",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), "wf.yml")
			aerr := requireCode(t, err, aerrors.CodeValidation)
			assert.Equal(t, tt.field, aerr.Detail("field"))
			assert.Equal(t, tt.line, aerr.Detail("line"))
			assert.Contains(t, aerr.Message, tt.message)
		})
	}
}

func TestParse_SemanticErrors(t *testing.T) {
	const header = `workflows:
  hello:
    name: hello
    initialState: start
    states:
      start:
`
	tests := []struct {
		name    string
		body    string
		field   string
		message string
	}{
		{"missing command", "        args: [\"hi\"]\n", "workflows.hello.states.start.command", "is required"},
		{"blank command", "        command: \"   \"\n", "workflows.hello.states.start.command", "is required"},
		{"dangling transition", "        command: echo\n        transitions:\n          success: nowhere\n", "workflows.hello.states.start.transitions.success", "non-existent state \"nowhere\""},
		{"negative timeout", "        command: echo\n        timeout: -5\n", "workflows.hello.states.start.timeout", "non-negative"},
		{"bad stdin", "        command: cat\n        stdin: tty\n", "workflows.hello.states.start.stdin", "\"inherit\" or \"pipe\""},
		{"bad placeholder", "        command: echo\n        args: [\"{bad-name}\"]\n", "workflows.hello.states.start.args.0", "invalid placeholder name"},
		{"long confirmation", "        command: echo\n        confirmation:\n          message: \"" + strings.Repeat("x", 501) + "\"\n", "workflows.hello.states.start.confirmation.message", "exceeds 500"},
		{"bad env key", "        command: env\n        env:\n          BAD-KEY: x\n", "workflows.hello.states.start.env.BAD-KEY", "invalid environment variable name"},
		{"empty state", "", "workflows.hello.states.start", "state definition is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(header+tt.body), "wf.yml")
			aerr := requireCode(t, err, aerrors.CodeValidation)
			assert.Equal(t, tt.field, aerr.Detail("field"))
			assert.Contains(t, aerr.Message, tt.message)
		})
	}
}

func TestParse_WorkflowLevelErrors(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"no workflows", "workflows: {}\n", "workflows"},
		{"missing name", "workflows:\n  x:\n    initialState: a\n    states:\n      a:\n        command: echo\n", "workflows.x.name"},
		{"missing initial state", "workflows:\n  x:\n    name: x\n    states:\n      a:\n        command: echo\n", "workflows.x.initialState"},
		{"unknown initial state", "workflows:\n  x:\n    name: x\n    initialState: b\n    states:\n      a:\n        command: echo\n", "workflows.x.initialState"},
		{"no states", "workflows:\n  x:\n    name: x\n    initialState: a\n    states: {}\n", "workflows.x.states"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), "wf.yml")
			aerr := requireCode(t, err, aerrors.CodeValidation)
			assert.Equal(t, tt.field, aerr.Detail("field"))
		})
	}
}

func TestParse_ReportsEveryProblemWithLines(t *testing.T) {
	yaml := `workflows:
  hello:
    name: hello
    initialState: start
    states:
      start:
        args: ["hi"]
        transitions:
          success: nowhere
`
	_, err := Parse([]byte(yaml), "wf.yml")
	aerr := requireCode(t, err, aerrors.CodeValidation)

	assert.Equal(t, "workflows.hello.states.start.command", aerr.Detail("field"))
	assert.Equal(t, 6, aerr.Detail("line"), "missing key reports its parent's line")

	problems, ok := aerr.Detail("problems").([]string)
	require.True(t, ok)
	require.Len(t, problems, 2)
	assert.Equal(t, `line 9: workflows.hello.states.start.transitions.success: references non-existent state "nowhere"`, problems[1])
}

func TestProblem_String(t *testing.T) {
	p := Problem{Path: []string{"workflows", "x", "name"}, Message: "is required", Line: 3}
	assert.Equal(t, "workflows.x.name", p.Field())
	assert.Equal(t, "line 3: workflows.x.name: is required", p.String())
	assert.Equal(t, "oops", Problem{Message: "oops"}.String())
}
