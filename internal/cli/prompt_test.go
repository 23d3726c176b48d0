package cli

import (
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuffix(t *testing.T) {
	assert.Equal(t, "[Y/n]", Suffix(true))
	assert.Equal(t, "[y/N]", Suffix(false))
}

func TestValidateMessage(t *testing.T) {
	assert.NoError(t, ValidateMessage("Deploy to production?"))
	assert.NoError(t, ValidateMessage(strings.Repeat("x", MaxMessageLength)))
	assert.Error(t, ValidateMessage(strings.Repeat("x", MaxMessageLength+1)))
	assert.Error(t, ValidateMessage("line\nbreak"))
	assert.Error(t, ValidateMessage("bell\a"))
}

func TestEscapeMessage_RoundTripsThroughBash(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}

	messages := []string{
		`plain`,
		`say "hi"`,
		`cost $HOME and ${PATH}`,
		"run `id` now",
		`semi; colon && more`,
		`back\slash`,
		`it's fine`,
		`$(rm -rf /)`,
	}

	for _, msg := range messages {
		t.Run(msg, func(t *testing.T) {
			script := `printf '%s' "` + EscapeMessage(msg) + `"`
			out, err := exec.Command("bash", "-c", script).Output()
			require.NoError(t, err)
			assert.Equal(t, msg, string(out))
		})
	}
}

func TestEscapeMessage_Newlines(t *testing.T) {
	assert.Equal(t, "a b", EscapeMessage("a\nb"))
}

func TestConfirmCommand(t *testing.T) {
	cmd, args, err := ConfirmCommand(`Deploy "$env"?`, true, 30*time.Second)
	require.NoError(t, err)

	assert.Equal(t, Shell, cmd)
	require.Len(t, args, 2)
	assert.Equal(t, "-c", args[0])

	script := args[1]
	assert.Contains(t, script, `"Deploy \"\$env\"?"`)
	assert.Contains(t, script, `"[Y/n]"`)
	assert.Contains(t, script, "-t 30.000")
	assert.Contains(t, script, "</dev/tty")
	assert.Contains(t, script, "y|Y) exit 0")
	assert.Contains(t, script, "n|N) exit 1")
	assert.Contains(t, script, "*) exit 0")
	assert.Contains(t, script, "if [ $rc -gt 128 ]; then printf '\\n' >/dev/tty; exit 124; fi")
	assert.Contains(t, script, "if [ $rc -ne 0 ]; then printf '\\n' >/dev/tty; exit 0; fi")
}

func TestConfirmCommand_DefaultNo(t *testing.T) {
	_, args, err := ConfirmCommand("Continue?", false, 0)
	require.NoError(t, err)

	script := args[1]
	assert.Contains(t, script, `"[y/N]"`)
	assert.NotContains(t, script, "-t ")
	assert.Contains(t, script, "*) exit 1")
}

func TestConfirmCommand_InvalidMessage(t *testing.T) {
	_, _, err := ConfirmCommand("bad\x1b[31m", false, time.Second)
	assert.Error(t, err)
}

func TestSelectCommand(t *testing.T) {
	options := []SelectOption{
		{Value: "deploy", Label: "Deploy"},
		{Value: "build", Label: "Build `all`"},
	}

	cmd, args, err := SelectCommand("Select a workflow:", options)
	require.NoError(t, err)
	assert.Equal(t, Shell, cmd)

	script := args[1]
	assert.Contains(t, script, `"Select a workflow:"`)
	assert.Contains(t, script, `1 "Deploy"`)
	assert.Contains(t, script, "2 \"Build \\`all\\`\"")
	assert.Contains(t, script, "read -r choice </dev/tty")

	_, _, err = SelectCommand("Pick", nil)
	assert.Error(t, err)
}

func TestParseSelection(t *testing.T) {
	options := []SelectOption{
		{Value: "a", Label: "Option A"},
		{Value: "b", Label: "Option B"},
	}

	tests := []struct {
		response string
		want     string
		wantErr  bool
	}{
		{"1", "a", false},
		{" 2\n", "b", false},
		{"", "", false},
		{"q", "", false},
		{"Cancel", "", false},
		{"3", "", true},
		{"0", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.response, func(t *testing.T) {
			got, err := ParseSelection(tt.response, options)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
