package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ToolInput is one entry of a tool-arguments file: the tool to call and
// the arguments to call it with.
type ToolInput struct {
	Name      string
	Arguments map[string]any
}

// LoadToolInputs reads a file mapping tool names to call arguments.
//
// The format follows the extension: .yaml/.yml is YAML, .toml is TOML,
// anything else is a JSON object. JSON and YAML entries keep file order;
// a repeated JSON key keeps its first position and its last value. TOML
// entries are sorted by name. Each value must be an object; null means
// no arguments.
func LoadToolInputs(path string) ([]ToolInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tools config: %w", err)
	}

	var inputs []ToolInput
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		inputs, err = parseYAMLInputs(data)
	case ".toml":
		inputs, err = parseTOMLInputs(data)
	default:
		inputs, err = parseJSONInputs(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse tools config %s: %w", path, err)
	}
	return inputs, nil
}

func parseJSONInputs(data []byte) ([]ToolInput, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("top level must be an object mapping tool names to arguments")
	}

	inputs := []ToolInput{}
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name := tok.(string) // object keys are always strings

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("tool %q: %w", name, err)
		}
		args, err := jsonArguments(name, raw)
		if err != nil {
			return nil, err
		}

		if i, seen := index[name]; seen {
			inputs[i].Arguments = args
			continue
		}
		index[name] = len(inputs)
		inputs = append(inputs, ToolInput{Name: name, Arguments: args})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after top-level object")
	}
	return inputs, nil
}

func jsonArguments(name string, raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, nil
	}
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("arguments for tool %q must be an object", name)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("tool %q: %w", name, err)
	}
	return args, nil
}

func parseYAMLInputs(data []byte) ([]ToolInput, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("file is empty")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("top level must be a mapping of tool names to arguments")
	}

	inputs := []ToolInput{}
	index := make(map[string]int)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		name := key.Value

		args := map[string]any{}
		switch {
		case val.Kind == yaml.ScalarNode && val.Tag == "!!null":
		case val.Kind == yaml.MappingNode:
			if err := val.Decode(&args); err != nil {
				return nil, fmt.Errorf("tool %q: %w", name, err)
			}
		default:
			return nil, fmt.Errorf("arguments for tool %q must be a mapping (line %d)", name, val.Line)
		}

		if j, seen := index[name]; seen {
			inputs[j].Arguments = args
			continue
		}
		index[name] = len(inputs)
		inputs = append(inputs, ToolInput{Name: name, Arguments: args})
	}
	return inputs, nil
}

func parseTOMLInputs(data []byte) ([]ToolInput, error) {
	var tables map[string]any
	if err := toml.Unmarshal(data, &tables); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	inputs := make([]ToolInput, 0, len(names))
	for _, name := range names {
		args, ok := tables[name].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("arguments for tool %q must be a table", name)
		}
		inputs = append(inputs, ToolInput{Name: name, Arguments: args})
	}
	return inputs, nil
}
