package messages

import (
	"globekeys/internal/models"
	"sort"
	"strings"
)

// Flatten turns a decoded nested catalog into dotted keys. Only string
// leaves become messages; other scalars are ignored.
func Flatten(nested map[string]interface{}) map[string]string {
	out := make(map[string]string)
	flattenInto(out, nested, "")
	return out
}

func flattenInto(out map[string]string, nested map[string]interface{}, prefix string) {
	for key, value := range nested {
		full := joinKey(prefix, key)
		switch v := value.(type) {
		case string:
			out[full] = v
		case map[string]interface{}:
			flattenInto(out, v, full)
		}
	}
}

// SortedKeys returns the keys of m in byte order
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// tree is an insertion-ordered nested catalog used when writing files
type tree struct {
	keys     []string
	children map[string]*tree
	values   map[string]string
	comments map[string]string
}

func newTree() *tree {
	return &tree{
		children: make(map[string]*tree),
		values:   make(map[string]string),
		comments: make(map[string]string),
	}
}

// Unflatten is the inverse of Flatten. It also reports the keys it had to
// drop, see buildTree.
func Unflatten(entries []models.MessageEntry) (map[string]interface{}, []string) {
	t, dropped := buildTree(entries)
	return t.plain(), dropped
}

// buildTree builds the nested form of entries, keeping their order. An entry
// whose key collides with an existing leaf or branch (e.g. "a" next to "a.b")
// is dropped; the first writer wins.
func buildTree(entries []models.MessageEntry) (*tree, []string) {
	root := newTree()
	var dropped []string
	for _, e := range entries {
		if !root.insert(strings.Split(e.Key, "."), e.Message, e.Description) {
			dropped = append(dropped, e.Key)
		}
	}
	return root, dropped
}

func (t *tree) insert(parts []string, message, description string) bool {
	head := parts[0]
	if len(parts) == 1 {
		if _, ok := t.children[head]; ok {
			return false
		}
		if _, ok := t.values[head]; ok {
			return false
		}
		t.keys = append(t.keys, head)
		t.values[head] = message
		if description != "" {
			t.comments[head] = description
		}
		return true
	}

	if _, ok := t.values[head]; ok {
		return false
	}
	child, ok := t.children[head]
	if !ok {
		child = newTree()
		t.children[head] = child
		t.keys = append(t.keys, head)
	}
	return child.insert(parts[1:], message, description)
}

// plain converts the tree to nested maps for encoders that sort keys anyway
func (t *tree) plain() map[string]interface{} {
	out := make(map[string]interface{}, len(t.keys))
	for _, k := range t.keys {
		if child, ok := t.children[k]; ok {
			out[k] = child.plain()
			continue
		}
		out[k] = t.values[k]
	}
	return out
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
