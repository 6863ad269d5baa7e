package gcb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// StartImmediately is the wait_for entry that releases a step from the
// implicit dependency on every earlier step.
const StartImmediately = "-"

// Step is one unit of a cloud build. Name is the builder image the
// step runs in, not an identifier; steps are identified by ID.
type Step struct {
	Name       string   `yaml:"name" json:"name"`
	Args       []string `yaml:"args,omitempty" json:"args,omitempty"`
	ID         string   `yaml:"id,omitempty" json:"id,omitempty"`
	WaitFor    []string `yaml:"wait_for,omitempty" json:"wait_for,omitempty"`
	Entrypoint string   `yaml:"entrypoint,omitempty" json:"entrypoint,omitempty"`
	Env        []string `yaml:"env,omitempty" json:"env,omitempty"`
	Dir        string   `yaml:"dir,omitempty" json:"dir,omitempty"`
}

// Build is a parsed cloud build plan. The typed step and image views
// are kept next to the raw document tree so unknown keys, comments and
// ordering survive a parse and re-encode cycle.
type Build struct {
	doc    *yaml.Node
	steps  []Step
	images []string
}

type buildDoc struct {
	Steps  []Step   `yaml:"steps"`
	Images []string `yaml:"images"`
}

func Load(path string) (*Build, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read build plan: %w", err)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

func Parse(data []byte) (*Build, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse build plan: %w", err)
	}
	if doc.Kind == 0 {
		return nil, errors.New("build plan is empty")
	}
	return fromDoc(&doc)
}

// New assembles a build plan from scratch, producing the same document
// shape a hand-written plan file would parse into.
func New(steps []Step, images []string) (*Build, error) {
	var doc yaml.Node
	if err := doc.Encode(buildDoc{Steps: steps, Images: images}); err != nil {
		return nil, fmt.Errorf("encode build plan: %w", err)
	}
	root := &yaml.Node{
		Kind:    yaml.DocumentNode,
		Content: []*yaml.Node{&doc},
	}
	return fromDoc(root)
}

func fromDoc(doc *yaml.Node) (*Build, error) {
	var decoded buildDoc
	if err := doc.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode build plan: %w", err)
	}
	return &Build{
		doc:    doc,
		steps:  decoded.Steps,
		images: decoded.Images,
	}, nil
}

// Steps returns the typed steps in declaration order.
func (b *Build) Steps() []Step {
	return b.steps
}

// Images returns the container images the plan publishes.
func (b *Build) Images() []string {
	return b.images
}

func (b *Build) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(b.doc); err != nil {
		return fmt.Errorf("encode build plan: %w", err)
	}
	return enc.Close()
}

func (b *Build) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := b.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *Build) Save(path string) error {
	data, err := b.Bytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// copyNode clones a node tree. Alias nodes keep their original target;
// cloud build plans do not use anchors so this never matters in
// practice.
func copyNode(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	clone := *n
	if len(n.Content) > 0 {
		clone.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			clone.Content[i] = copyNode(child)
		}
	}
	return &clone
}
