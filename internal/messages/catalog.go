package messages

import (
	"bytes"
	"encoding/json"
	"fmt"
	"globekeys/internal/models"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileExtensions are the catalog formats, in lookup order
var FileExtensions = []string{".json", ".yml", ".yaml", ".toml"}

func isCatalogExt(ext string) bool {
	for _, e := range FileExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// decodeFile parses a catalog file body. Keys are prefixed with namespace.
func decodeFile(path string, data []byte, namespace string) ([]models.MessageEntry, error) {
	switch filepath.Ext(path) {
	case ".json":
		return decodeJSON(data, namespace)
	case ".yml", ".yaml":
		return decodeYAML(data, namespace)
	case ".toml":
		return decodeTOML(data, namespace)
	}
	return nil, fmt.Errorf("unsupported catalog format: %s", path)
}

// encodeFile renders entries, whose keys are relative to the file, in the
// format of path. It also returns keys dropped for colliding with others.
func encodeFile(path string, entries []models.MessageEntry) ([]byte, []string, error) {
	t, dropped := buildTree(entries)
	var (
		data []byte
		err  error
	)
	switch filepath.Ext(path) {
	case ".json":
		data, err = encodeJSON(t)
	case ".yml", ".yaml":
		data, err = encodeYAML(t)
	case ".toml":
		data, err = toml.Marshal(t.plain())
	default:
		err = fmt.Errorf("unsupported catalog format: %s", path)
	}
	return data, dropped, err
}

// decodeJSON reads string leaves in document order
func decodeJSON(data []byte, namespace string) ([]models.MessageEntry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("catalog must be a JSON object")
	}
	var out []models.MessageEntry
	if err := decodeJSONObject(dec, namespace, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeJSONObject(dec *json.Decoder, prefix string, out *[]models.MessageEntry) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected JSON token %v", tok)
		}
		full := joinKey(prefix, key)

		tok, err = dec.Token()
		if err != nil {
			return err
		}
		switch v := tok.(type) {
		case string:
			*out = append(*out, models.MessageEntry{Key: full, Message: v})
		case json.Delim:
			switch v {
			case '{':
				if err := decodeJSONObject(dec, full, out); err != nil {
					return err
				}
			case '[':
				if err := skipJSON(dec); err != nil {
					return err
				}
			}
		}
	}
	// Closing brace.
	_, err := dec.Token()
	return err
}

// skipJSON consumes tokens up to the end of the array just opened
func skipJSON(dec *json.Decoder) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '[', '{':
				depth++
			case ']', '}':
				depth--
			}
		}
	}
	return nil
}

func encodeJSON(t *tree) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSONTree(&buf, t, 0); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func writeJSONTree(buf *bytes.Buffer, t *tree, depth int) error {
	if len(t.keys) == 0 {
		buf.WriteString("{}")
		return nil
	}
	indent := strings.Repeat("  ", depth+1)
	buf.WriteString("{\n")
	for i, k := range t.keys {
		buf.WriteString(indent)
		if err := writeJSONString(buf, k); err != nil {
			return err
		}
		buf.WriteString(": ")
		if child, ok := t.children[k]; ok {
			if err := writeJSONTree(buf, child, depth+1); err != nil {
				return err
			}
		} else if err := writeJSONString(buf, t.values[k]); err != nil {
			return err
		}
		if i < len(t.keys)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString(strings.Repeat("  ", depth))
	buf.WriteByte('}')
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}

// decodeYAML reads string leaves in document order. A comment right above a
// key is that message's description.
func decodeYAML(data []byte, namespace string) ([]models.MessageEntry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, nil
	}
	var out []models.MessageEntry
	decodeYAMLMap(root, namespace, &out)
	return out, nil
}

func decodeYAMLMap(m *yaml.Node, prefix string, out *[]models.MessageEntry) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		k, v := m.Content[i], m.Content[i+1]
		if k.Kind != yaml.ScalarNode || k.Tag != "!!str" {
			continue
		}
		if v.Kind == yaml.AliasNode && v.Alias != nil {
			v = v.Alias
		}
		full := joinKey(prefix, k.Value)

		switch {
		case v.Kind == yaml.MappingNode:
			decodeYAMLMap(v, full, out)
		case v.Kind == yaml.ScalarNode && v.Tag == "!!str":
			description := commentText(k.HeadComment)
			if description == "" && i == 0 {
				description = commentText(m.HeadComment)
			}
			*out = append(*out, models.MessageEntry{Key: full, Message: v.Value, Description: description})
		}
	}
}

// commentText strips comment markers from a yaml.v3 head comment
func commentText(comment string) string {
	if comment == "" {
		return ""
	}
	lines := strings.Split(comment, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimPrefix(line, "#"))
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func encodeYAML(t *tree) ([]byte, error) {
	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{yamlMapping(t)}}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func yamlMapping(t *tree) *yaml.Node {
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range t.keys {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}
		if c, ok := t.comments[k]; ok {
			key.HeadComment = yamlComment(c)
		}
		var value *yaml.Node
		if child, ok := t.children[k]; ok {
			value = yamlMapping(child)
		} else {
			value = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t.values[k]}
		}
		m.Content = append(m.Content, key, value)
	}
	return m
}

func yamlComment(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = "# " + strings.TrimSpace(line)
	}
	return strings.Join(lines, "\n")
}

// decodeTOML reads string leaves. TOML tables carry no order, so keys are
// returned sorted.
func decodeTOML(data []byte, namespace string) ([]models.MessageEntry, error) {
	var nested map[string]interface{}
	if err := toml.Unmarshal(data, &nested); err != nil {
		return nil, err
	}
	flat := Flatten(nested)
	out := make([]models.MessageEntry, 0, len(flat))
	for _, key := range SortedKeys(flat) {
		out = append(out, models.MessageEntry{Key: joinKey(namespace, key), Message: flat[key]})
	}
	return out, nil
}
