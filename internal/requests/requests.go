package requests

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// PauseServiceEntry is the sentinel list entry that tells the service to
// stop dispatching new experiments until the entry is removed again.
const PauseServiceEntry = "PAUSE_SERVICE"

// Request is one experiment request from the requests file. Entries are
// kept newest first and Experiment must stay unique across the file.
type Request struct {
	Experiment  string   `yaml:"experiment"`
	Fuzzers     []string `yaml:"fuzzers"`
	Description string   `yaml:"description,omitempty"`
	Trials      int      `yaml:"trials,omitempty"`
	Type        string   `yaml:"type,omitempty"`
}

// File is a parsed requests file. The decoded requests are kept next to
// the raw document tree so comments, key order and list order survive a
// parse and re-encode cycle.
type File struct {
	doc      *yaml.Node
	requests []Request
	paused   bool
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read requests file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func Parse(data []byte) (*File, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse requests file: %w", err)
	}

	f := &File{doc: &doc}
	if doc.Kind == 0 {
		// empty input, start a fresh document holding an empty list
		f.doc = emptyDocument()
		return f, nil
	}

	seq, err := f.sequence()
	if err != nil {
		return nil, err
	}

	for i, item := range seq.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			if item.Value == PauseServiceEntry {
				f.paused = true
				continue
			}
			return nil, fmt.Errorf("entry %d: unexpected scalar %q", i, item.Value)
		case yaml.MappingNode:
			var req Request
			if err := item.Decode(&req); err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			f.requests = append(f.requests, req)
		default:
			return nil, fmt.Errorf("entry %d: unexpected yaml node", i)
		}
	}
	return f, nil
}

// Requests returns the decoded entries in file order, newest first.
// The pause sentinel is not included.
func (f *File) Requests() []Request {
	return f.requests
}

// Paused reports whether the file carries the PAUSE_SERVICE entry.
func (f *File) Paused() bool {
	return f.paused
}

// Insert prepends a request, keeping the newest-first convention. The
// rest of the document tree is left untouched.
func (f *File) Insert(req Request) error {
	seq, err := f.sequence()
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := node.Encode(req); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	seq.Content = append([]*yaml.Node{&node}, seq.Content...)
	f.requests = append([]Request{req}, f.requests...)
	return nil
}

func (f *File) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f.doc); err != nil {
		return fmt.Errorf("encode requests file: %w", err)
	}
	return enc.Close()
}

func (f *File) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *File) Save(path string) error {
	data, err := f.Bytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (f *File) sequence() (*yaml.Node, error) {
	if f.doc.Kind != yaml.DocumentNode || len(f.doc.Content) == 0 {
		return nil, errors.New("requests file: expected a top level list")
	}
	root := f.doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		// a file holding only comments decodes to a null document;
		// turn it into an empty list in place so comments survive
		root.Kind = yaml.SequenceNode
		root.Tag = ""
		root.Value = ""
		return root, nil
	}
	if root.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("requests file: expected a top level list, got %s", root.Tag)
	}
	return root, nil
}

func emptyDocument() *yaml.Node {
	return &yaml.Node{
		Kind: yaml.DocumentNode,
		Content: []*yaml.Node{{
			Kind: yaml.SequenceNode,
		}},
	}
}
