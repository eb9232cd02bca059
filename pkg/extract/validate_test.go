package extract

import (
	"strings"
	"testing"

	"github.com/chatgraph/chatgraph/pkg/common"
)

func validDocument() *common.GraphDocument {
	return &common.GraphDocument{
		Nodes: []common.GraphNode{
			{ID: "wxid_a", Label: "User", Props: map[string]any{
				"nickname": "Li",
				"age":      float64(30),
				"tags":     []any{"friend", "colleague"},
			}},
			{ID: "wxid_b", Label: "User", Props: map[string]any{}},
		},
		Relations: []common.GraphRelation{
			{Start: "wxid_a", End: "wxid_b", Type: "Friend", Properties: map[string]any{
				"month":           []any{"2023-01", "2023-02"},
				"total_msg_count": float64(12),
			}},
		},
	}
}

func TestValidateGraphDocument_Valid(t *testing.T) {
	ok, reason := ValidateGraphDocument(validDocument())
	if !ok {
		t.Fatalf("expected valid document, got reason %q", reason)
	}

	doc := validDocument()
	doc.Relations = []common.GraphRelation{}
	if ok, reason := ValidateGraphDocument(doc); !ok {
		t.Fatalf("document with empty relations must be valid, got %q", reason)
	}
}

func TestValidateGraphDocument_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(doc *common.GraphDocument)
		reason string
	}{
		{
			name:   "missing nodes field",
			mutate: func(doc *common.GraphDocument) { doc.Nodes = nil },
			reason: "missing nodes field",
		},
		{
			name:   "missing relations field",
			mutate: func(doc *common.GraphDocument) { doc.Relations = nil },
			reason: "missing relations field",
		},
		{
			name:   "no nodes",
			mutate: func(doc *common.GraphDocument) { doc.Nodes = []common.GraphNode{} },
			reason: "no node data",
		},
		{
			name:   "node without id",
			mutate: func(doc *common.GraphDocument) { doc.Nodes[0].ID = "" },
			reason: "no usable id",
		},
		{
			name:   "node without label",
			mutate: func(doc *common.GraphDocument) { doc.Nodes[0].Label = "" },
			reason: "no label",
		},
		{
			name: "nested object property",
			mutate: func(doc *common.GraphDocument) {
				doc.Nodes[0].Props["address"] = map[string]any{"city": "Beijing"}
			},
			reason: "not a flat scalar",
		},
		{
			name: "mixed array property",
			mutate: func(doc *common.GraphDocument) {
				doc.Nodes[0].Props["mixed"] = []any{"a", float64(1)}
			},
			reason: "not a flat scalar",
		},
		{
			name: "nested array property",
			mutate: func(doc *common.GraphDocument) {
				doc.Nodes[0].Props["nested"] = []any{[]any{"a"}}
			},
			reason: "not a flat scalar",
		},
		{
			name: "relation missing type",
			mutate: func(doc *common.GraphDocument) {
				doc.Relations[0].Type = ""
			},
			reason: "missing start, end or type",
		},
		{
			name: "relation properties not an object",
			mutate: func(doc *common.GraphDocument) {
				doc.Relations[0].Properties = "close friends"
			},
			reason: "must be an object",
		},
		{
			name: "relation nested property",
			mutate: func(doc *common.GraphDocument) {
				doc.Relations[0].Properties = map[string]any{"detail": map[string]any{}}
			},
			reason: "not a flat scalar",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validDocument()
			tt.mutate(doc)
			ok, reason := ValidateGraphDocument(doc)
			if ok {
				t.Fatal("expected invalid document")
			}
			if !strings.Contains(reason, tt.reason) {
				t.Fatalf("reason %q does not contain %q", reason, tt.reason)
			}
		})
	}
}

func TestValidateGraphDocument_Nil(t *testing.T) {
	if ok, _ := ValidateGraphDocument(nil); ok {
		t.Fatal("nil document must be invalid")
	}
}

func TestValidateGraphDocument_RelationWithoutProperties(t *testing.T) {
	doc := validDocument()
	doc.Relations[0].Properties = nil
	if ok, reason := ValidateGraphDocument(doc); !ok {
		t.Fatalf("relation without properties must be valid, got %q", reason)
	}
}
