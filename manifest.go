package gojafetchlocation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// OriginMode is the state of the manifest's extra.router.origin setting.
type OriginMode int

const (
	// OriginUnset means no origin is configured. Development server
	// resolution is used outside production, and production requests are
	// left host-relative.
	OriginUnset OriginMode = iota

	// OriginDisabled means the origin is explicitly false, which disables
	// the location polyfill and fetch rewriting entirely.
	OriginDisabled

	// OriginURL means an explicit production origin is configured.
	OriginURL
)

// String returns the string representation of the mode.
func (m OriginMode) String() string {
	switch m {
	case OriginUnset:
		return "unset"
	case OriginDisabled:
		return "disabled"
	case OriginURL:
		return "url"
	default:
		return fmt.Sprintf("OriginMode(%d)", int(m))
	}
}

// Origin models extra.router.origin: absent, false, or a URL string.
type Origin struct {
	url  string
	mode OriginMode
}

// UnsetOrigin returns an origin with no value configured.
func UnsetOrigin() Origin { return Origin{} }

// DisabledOrigin returns the origin equivalent to an explicit false.
func DisabledOrigin() Origin { return Origin{mode: OriginDisabled} }

// URLOrigin returns an origin configured with the given URL.
func URLOrigin(u string) Origin { return Origin{mode: OriginURL, url: u} }

// Mode returns the origin mode.
func (o Origin) Mode() OriginMode { return o.mode }

// Disabled reports whether the origin was explicitly set to false.
func (o Origin) Disabled() bool { return o.mode == OriginDisabled }

// URL returns the configured origin, or "" if the mode is not OriginURL.
func (o Origin) URL() string { return o.url }

// Configured reports whether a non-empty origin URL is configured. An empty
// string is treated the same as an absent value.
func (o Origin) Configured() bool { return o.mode == OriginURL && o.url != "" }

// Manifest is the subset of the app config read by this package.
type Manifest struct {
	Origin Origin
}

// ParseManifest parses an app config document, either JSON or YAML. Both
// the app.json form (a top-level "expo" object) and a bare config object are
// accepted. Only extra.router.origin is interpreted.
func ParseManifest(data []byte) (*Manifest, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("gojafetchlocation: parse manifest: %w", err)
	}

	m := &Manifest{}

	root := documentRoot(&doc)
	if root == nil {
		return m, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("gojafetchlocation: manifest must be an object, got %s", nodeKind(root))
	}
	if expo := mappingValue(root, "expo"); expo != nil && expo.Kind == yaml.MappingNode {
		root = expo
	}

	node := root
	for _, key := range [...]string{"extra", "router", "origin"} {
		if node.Kind != yaml.MappingNode {
			return m, nil
		}
		if node = mappingValue(node, key); node == nil {
			return m, nil
		}
	}

	origin, err := decodeOrigin(node)
	if err != nil {
		return nil, err
	}
	m.Origin = origin
	return m, nil
}

// LoadManifest reads and parses the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gojafetchlocation: read manifest: %w", err)
	}
	return ParseManifest(b)
}

func decodeOrigin(node *yaml.Node) (Origin, error) {
	if node.Kind != yaml.ScalarNode {
		return Origin{}, fmt.Errorf("gojafetchlocation: extra.router.origin must be a string or false, got %s", nodeKind(node))
	}
	switch node.Tag {
	case "!!null":
		return UnsetOrigin(), nil
	case "!!str":
		return URLOrigin(node.Value), nil
	case "!!bool":
		var v bool
		if err := node.Decode(&v); err != nil {
			return Origin{}, fmt.Errorf("gojafetchlocation: extra.router.origin: %w", err)
		}
		if !v {
			return DisabledOrigin(), nil
		}
	}
	return Origin{}, fmt.Errorf("gojafetchlocation: extra.router.origin must be a string or false, got %q", node.Value)
}

func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return nil
		}
		return resolveAlias(doc.Content[0])
	}
	if doc.Kind == 0 {
		return nil
	}
	return doc
}

// mappingValue returns the value for key, with aliases resolved. The last
// occurrence of a duplicated key wins, as with JSON.parse.
func mappingValue(node *yaml.Node, key string) *yaml.Node {
	var value *yaml.Node
	for i := 0; i+1 < len(node.Content); i += 2 {
		if resolveAlias(node.Content[i]).Value == key {
			value = node.Content[i+1]
		}
	}
	return resolveAlias(value)
}

func resolveAlias(node *yaml.Node) *yaml.Node {
	for node != nil && node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.SequenceNode:
		return "array"
	case yaml.MappingNode:
		return "object"
	case yaml.AliasNode:
		return "alias"
	case yaml.ScalarNode:
		return "scalar " + node.Tag
	default:
		return "unknown"
	}
}
