package extract

import (
	"fmt"
	"reflect"

	"github.com/chatgraph/chatgraph/pkg/common"
)

// ValidateGraphDocument checks a parsed candidate document against the
// graph contract and returns the first violation found. A false result
// carries a human-readable reason for the retry log.
func ValidateGraphDocument(doc *common.GraphDocument) (bool, string) {
	if doc == nil {
		return false, "empty model output"
	}
	if doc.Nodes == nil {
		return false, "missing nodes field"
	}
	if doc.Relations == nil {
		return false, "missing relations field"
	}
	if len(doc.Nodes) == 0 {
		return false, "no node data"
	}

	for i, node := range doc.Nodes {
		if node.ID == "" {
			return false, fmt.Sprintf("node %d has no usable id", i)
		}
		if node.Label == "" {
			return false, fmt.Sprintf("node %q has no label", node.ID)
		}
		for key, value := range node.Props {
			if !isValidPropertyValue(value) {
				return false, fmt.Sprintf("node %q property %q is not a flat scalar or homogeneous array", node.ID, key)
			}
		}
	}

	for i, rel := range doc.Relations {
		if rel.Start == "" || rel.End == "" || rel.Type == "" {
			return false, fmt.Sprintf("relation %d is missing start, end or type", i)
		}
		if rel.Properties == nil {
			continue
		}
		props, ok := rel.Properties.(map[string]any)
		if !ok {
			return false, fmt.Sprintf("relation %d properties must be an object", i)
		}
		for key, value := range props {
			if !isValidPropertyValue(value) {
				return false, fmt.Sprintf("relation %d property %q is not a flat scalar or homogeneous array", i, key)
			}
		}
	}

	return true, ""
}

// isValidPropertyValue reports whether a decoded JSON value is a scalar or
// a homogeneous array of one scalar type. Nested objects and mixed or
// nested arrays are rejected because the graph store cannot hold them as
// node properties.
func isValidPropertyValue(value any) bool {
	switch v := value.(type) {
	case nil, bool, string, float64, int, int64:
		return true
	case []any:
		if len(v) == 0 {
			return true
		}
		if !isScalar(v[0]) {
			return false
		}
		first := reflect.TypeOf(v[0])
		for _, elem := range v[1:] {
			if !isScalar(elem) || reflect.TypeOf(elem) != first {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func isScalar(value any) bool {
	switch value.(type) {
	case bool, string, float64, int, int64:
		return true
	default:
		return false
	}
}
