// Package testutil provides test infrastructure, fixtures, and fakes for
// aisanity packages.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aisanity/aisanity/internal/config"
)

// LinearWorkflowYAML is a two-state workflow that always succeeds.
const LinearWorkflowYAML = `workflows:
  hello:
    name: hello
    description: Say hello and goodbye
    initialState: start
    states:
      start:
        command: echo
        args: ["hi"]
        transitions:
          success: end
      end:
        command: echo
        args: ["bye"]
        transitions: {}
metadata:
  version: "1.0"
`

// BranchingWorkflowYAML exercises every transition kind, a confirmation
// and template placeholders.
const BranchingWorkflowYAML = `workflows:
  deploy:
    name: deploy
    description: Build, confirm and deploy
    initialState: build
    globalTimeout: 600000
    states:
      build:
        command: make
        args: ["build", "BRANCH={branch}"]
        timeout: 120000
        transitions:
          success: confirm
          failure: report
          timeout: report
      confirm:
        command: echo
        args: ["deploying {env}"]
        confirmation:
          message: "Deploy to {env}?"
          timeout: 30000
          defaultAccept: false
        transitions:
          success: deploy
          failure: report
      deploy:
        command: kubectl
        args: ["apply", "-f", "deploy/{env}.yaml"]
        transitions:
          success: done
          failure: report
      report:
        command: echo
        args: ["deployment failed"]
        transitions: {}
      done:
        command: echo
        args: ["deployed"]
        transitions: {}
`

// NewTestConfig returns the default configuration with debug logging and
// a log file under a temporary directory.
func NewTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Logging.Level = config.LogLevelDebug
	cfg.Logging.File = filepath.Join(t.TempDir(), "aisanity.log")
	return cfg
}

// WriteWorkflowFile writes content as the workflow definition file in dir
// (a fresh temporary directory when dir is empty) and returns dir.
func WriteWorkflowFile(t *testing.T, dir, content string) string {
	t.Helper()

	if dir == "" {
		dir = t.TempDir()
	}
	path := filepath.Join(dir, config.DefaultWorkflowFile)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write workflow file: %v", err)
	}
	return dir
}
