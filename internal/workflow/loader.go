package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/aisanity/aisanity/internal/config"
	aerrors "github.com/aisanity/aisanity/internal/errors"
	"github.com/aisanity/aisanity/internal/logging"
)

// Cache holds parsed definitions keyed by normalized workspace path.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Definitions
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Definitions)}
}

// Get returns the cached definitions for key.
func (c *Cache) Get(key string) (*Definitions, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.entries[key]
	return d, ok
}

// Put stores definitions under key.
func (c *Cache) Put(key string, defs *Definitions) {
	c.mu.Lock()
	c.entries[key] = defs
	c.mu.Unlock()
}

// Delete drops one entry.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*Definitions)
	c.mu.Unlock()
}

// Len returns the number of cached workspaces.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Loader reads the workflow definition file of a workspace.
type Loader struct {
	// FileName is the definition file, relative to the workspace unless
	// absolute. Default: config.DefaultWorkflowFile
	FileName string

	// Cache holds parsed definitions until ClearCache.
	Cache *Cache

	logger *slog.Logger
}

// NewLoader creates a loader with its own cache. An empty fileName uses
// the default definition file name.
func NewLoader(fileName string, logger *slog.Logger) *Loader {
	if fileName == "" {
		fileName = config.DefaultWorkflowFile
	}
	return &Loader{
		FileName: fileName,
		Cache:    NewCache(),
		logger:   logging.OrDiscard(logger),
	}
}

// Path returns the definition file path for workspace.
func (l *Loader) Path(workspace string) string {
	if filepath.IsAbs(l.FileName) {
		return l.FileName
	}
	return filepath.Join(cacheKey(workspace), l.FileName)
}

// Load returns the validated definitions for workspace, from the cache
// when present.
func (l *Loader) Load(workspace string) (*Definitions, error) {
	key := cacheKey(workspace)
	if defs, ok := l.Cache.Get(key); ok {
		return defs, nil
	}

	path := l.Path(workspace)
	data, err := readDefinitionFile(path)
	if err != nil {
		return nil, err
	}

	defs, err := Parse(data, path)
	if err != nil {
		return nil, err
	}

	l.logger.Debug("loaded workflow definitions", "path", path, "workflows", len(defs.Workflows))
	l.Cache.Put(key, defs)
	return defs, nil
}

// GetWorkflow returns the named workflow from workspace.
func (l *Loader) GetWorkflow(name, workspace string) (*Workflow, error) {
	defs, err := l.Load(workspace)
	if err != nil {
		return nil, err
	}
	w, ok := defs.Workflows[name]
	if !ok {
		return nil, aerrors.WorkflowNotFound(name, defs.Names())
	}
	return w, nil
}

// ListWorkflows returns the sorted workflow names of workspace. A missing
// definition file yields an empty list.
func (l *Loader) ListWorkflows(workspace string) ([]string, error) {
	defs, err := l.Load(workspace)
	if err != nil {
		if aerrors.HasCode(err, aerrors.CodeFileMissing) {
			return []string{}, nil
		}
		return nil, err
	}
	return defs.Names(), nil
}

// ClearCache drops every cached workspace.
func (l *Loader) ClearCache() {
	l.Cache.Clear()
}

// Invalidate drops the cached definitions of one workspace.
func (l *Loader) Invalidate(workspace string) {
	l.Cache.Delete(cacheKey(workspace))
}

func cacheKey(workspace string) string {
	if abs, err := filepath.Abs(workspace); err == nil {
		return abs
	}
	return filepath.Clean(workspace)
}

func readDefinitionFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, aerrors.FileMissing(path)
	case errors.Is(err, fs.ErrPermission):
		return nil, aerrors.FilePermission(path, err)
	case err != nil:
		return nil, aerrors.FileInvalid(path, err.Error())
	case info.IsDir():
		return nil, aerrors.FileInvalid(path, "is a directory")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, aerrors.FilePermission(path, err)
		}
		return nil, aerrors.FileInvalid(path, err.Error())
	}
	return data, nil
}

var lineRe = regexp.MustCompile(`line (\d+)`)

// errorLine extracts the line number yaml.v3 embeds in its messages.
func errorLine(msg string) int {
	m := lineRe.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// Parse decodes and validates a definition file. path is used in errors.
func Parse(data []byte, path string) (*Definitions, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, aerrors.ParseError(path, errorLine(err.Error()), 0, err)
	}
	if root.Kind == 0 || (root.Kind == yaml.DocumentNode && len(root.Content) == 0) {
		return nil, aerrors.Validation("workflows", "definition file is empty").
			WithDetail("path", path)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var defs Definitions
	if err := dec.Decode(&defs); err != nil && !errors.Is(err, io.EOF) {
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) && len(typeErr.Errors) > 0 {
			return nil, schemaError(&root, path, typeErr.Errors)
		}
		return nil, aerrors.ParseError(path, errorLine(err.Error()), 0, err)
	}

	if problems := defs.Validate(); len(problems) > 0 {
		for i := range problems {
			problems[i].Line = lineOf(&root, problems[i].Path)
		}
		return nil, problemsError(path, problems)
	}
	return &defs, nil
}

var typeErrPrefixRe = regexp.MustCompile(`^line \d+: `)

// schemaError converts decoder type errors (unknown fields, duplicate
// keys, wrong types) into a validation error at the offending key.
func schemaError(root *yaml.Node, path string, msgs []string) error {
	problems := make([]Problem, 0, len(msgs))
	for _, msg := range msgs {
		line := errorLine(msg)
		problems = append(problems, Problem{
			Path:    keyPathAtLine(root, line),
			Message: typeErrPrefixRe.ReplaceAllString(msg, ""),
			Line:    line,
		})
	}
	return problemsError(path, problems)
}

func problemsError(path string, problems []Problem) error {
	first := problems[0]
	all := make([]string, len(problems))
	for i, p := range problems {
		all[i] = p.String()
	}

	e := aerrors.Validation(first.Field(), first.Message).
		WithDetail("path", path).
		WithDetail("problems", all)
	if first.Line > 0 {
		e.WithDetail("line", first.Line)
	}
	return e
}

// Problem is one validation failure at a field path.
type Problem struct {
	Path    []string
	Message string
	Line    int // 0 when unknown
}

// Field returns the dotted field path.
func (p Problem) Field() string {
	return strings.Join(p.Path, ".")
}

func (p Problem) String() string {
	s := p.Message
	if f := p.Field(); f != "" {
		s = f + ": " + s
	}
	if p.Line > 0 {
		s = fmt.Sprintf("line %d: %s", p.Line, s)
	}
	return s
}

// documentRoot unwraps the document node.
func documentRoot(n *yaml.Node) *yaml.Node {
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		return n.Content[0]
	}
	return n
}

// lineOf returns the line of the deepest node along path that exists.
func lineOf(root *yaml.Node, path []string) int {
	n := documentRoot(root)
	line := n.Line
	for _, seg := range path {
		switch n.Kind {
		case yaml.MappingNode:
			next := -1
			for i := 0; i+1 < len(n.Content); i += 2 {
				if n.Content[i].Value == seg {
					next = i
					break
				}
			}
			if next < 0 {
				return line
			}
			line = n.Content[next].Line
			n = n.Content[next+1]
		case yaml.SequenceNode:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(n.Content) {
				return line
			}
			n = n.Content[idx]
			line = n.Line
		default:
			return line
		}
	}
	return line
}

// keyPathAtLine returns the path of the first mapping key on line.
func keyPathAtLine(root *yaml.Node, line int) []string {
	if line <= 0 {
		return nil
	}
	var walk func(n *yaml.Node, prefix []string) []string
	walk = func(n *yaml.Node, prefix []string) []string {
		switch n.Kind {
		case yaml.MappingNode:
			for i := 0; i+1 < len(n.Content); i += 2 {
				key, val := n.Content[i], n.Content[i+1]
				path := append(append([]string(nil), prefix...), key.Value)
				if key.Line == line {
					return path
				}
				if found := walk(val, path); found != nil {
					return found
				}
			}
		case yaml.SequenceNode:
			for i, item := range n.Content {
				if found := walk(item, append(append([]string(nil), prefix...), strconv.Itoa(i))); found != nil {
					return found
				}
			}
		}
		return nil
	}
	return walk(documentRoot(root), nil)
}
