package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/chatgraph/chatgraph/pkg/common"
	"github.com/chatgraph/chatgraph/pkg/logger"
)

const (
	userLabel     = "User"
	countryLabel  = "Country"
	provinceLabel = "Province"
	cityLabel     = "City"

	hasAddressType        = "HAS_ADDRESS"
	locatedInProvinceType = "LOCATED_IN_PROVINCE"
	locatedInCountryType  = "LOCATED_IN_COUNTRY"
)

// Merger writes validated graph documents into a Store. It derives the
// address hierarchy from user nodes before pushing the document's own
// nodes and relations, so address edges always have both endpoints.
type Merger struct {
	store Store
}

func NewMerger(store Store) *Merger {
	return &Merger{store: store}
}

// MergeDocument merges one validated document into the graph store and
// returns the number of nodes and relations pushed. Relations whose
// endpoints are not nodes of the same document are skipped with a log
// line rather than failing the merge.
func (m *Merger) MergeDocument(ctx context.Context, doc *common.GraphDocument) (int, int, error) {
	if err := m.mergeAddressHierarchy(ctx, doc.Nodes); err != nil {
		return 0, 0, err
	}

	labelByID := make(map[string]string, len(doc.Nodes))
	for _, node := range doc.Nodes {
		labelByID[node.ID] = node.Label
	}

	nodeCount := 0
	for _, node := range doc.Nodes {
		if err := m.store.UpsertNode(ctx, nodeRefByID(node.Label, node.ID), node.Props); err != nil {
			return nodeCount, 0, fmt.Errorf("failed to merge node %q: %w", node.ID, err)
		}
		nodeCount++
	}

	relationCount := 0
	for _, rel := range doc.Relations {
		startLabel, startOK := labelByID[rel.Start]
		endLabel, endOK := labelByID[rel.End]
		if !startOK || !endOK {
			logger.Warn("Skipping relation with unknown endpoint", "start", rel.Start, "end", rel.End, "type", rel.Type)
			continue
		}
		err := m.store.UpsertRelation(ctx,
			nodeRefByID(startLabel, rel.Start),
			nodeRefByID(endLabel, rel.End),
			rel.Type,
			rel.PropertyMap(),
		)
		if err != nil {
			return nodeCount, relationCount, fmt.Errorf("failed to merge relation %q->%q: %w", rel.Start, rel.End, err)
		}
		relationCount++
	}

	return nodeCount, relationCount, nil
}

// mergeAddressHierarchy creates Country, Province and City nodes for the
// address fields of every User node and links them. Each distinct place is
// merged once per document. A missing component leaves its key empty
// rather than absent, so merge keys stay non-null.
func (m *Merger) mergeAddressHierarchy(ctx context.Context, nodes []common.GraphNode) error {
	merged := make(map[string]bool)

	for _, node := range nodes {
		if node.Label != userLabel {
			continue
		}
		country := stringProp(node.Props, "country")
		province := stringProp(node.Props, "province")
		city := stringProp(node.Props, "city")
		if country == "" && province == "" && city == "" {
			continue
		}

		var countryRef, provinceRef, cityRef *NodeRef
		if country != "" {
			countryRef = &NodeRef{Label: countryLabel, Keys: map[string]any{"countryName": country}}
		}
		if province != "" {
			provinceRef = &NodeRef{Label: provinceLabel, Keys: map[string]any{
				"countryName":  country,
				"provinceName": province,
			}}
		}
		if city != "" {
			cityRef = &NodeRef{Label: cityLabel, Keys: map[string]any{
				"countryName":  country,
				"provinceName": province,
				"cityName":     city,
			}}
		}

		for _, ref := range []*NodeRef{countryRef, provinceRef, cityRef} {
			if ref == nil || merged[refKey(*ref)] {
				continue
			}
			if err := m.store.UpsertNode(ctx, *ref, nil); err != nil {
				return fmt.Errorf("failed to merge %s node: %w", ref.Label, err)
			}
			merged[refKey(*ref)] = true
		}

		links := []struct {
			start, end *NodeRef
			relType    string
		}{
			{cityRef, provinceRef, locatedInProvinceType},
			{cityRef, countryRef, locatedInCountryType},
			{provinceRef, countryRef, locatedInCountryType},
		}
		for _, link := range links {
			if link.start == nil || link.end == nil {
				continue
			}
			key := refKey(*link.start) + "|" + link.relType + "|" + refKey(*link.end)
			if merged[key] {
				continue
			}
			if err := m.store.UpsertRelation(ctx, *link.start, *link.end, link.relType, nil); err != nil {
				return fmt.Errorf("failed to link %s to %s: %w", link.start.Label, link.end.Label, err)
			}
			merged[key] = true
		}

		place := countryRef
		if provinceRef != nil {
			place = provinceRef
		}
		if cityRef != nil {
			place = cityRef
		}
		userRef := nodeRefByID(userLabel, node.ID)
		if err := m.store.UpsertNode(ctx, userRef, nil); err != nil {
			return fmt.Errorf("failed to merge user node %q: %w", node.ID, err)
		}
		if err := m.store.UpsertRelation(ctx, userRef, *place, hasAddressType, nil); err != nil {
			return fmt.Errorf("failed to link user %q to address: %w", node.ID, err)
		}
	}

	return nil
}

func nodeRefByID(label, id string) NodeRef {
	return NodeRef{Label: label, Keys: map[string]any{"id": id}}
}

func stringProp(props map[string]any, key string) string {
	value, _ := props[key].(string)
	return strings.TrimSpace(value)
}

func refKey(ref NodeRef) string {
	parts := make([]string, 0, len(ref.Keys)+1)
	parts = append(parts, ref.Label)
	for _, key := range []string{"id", "countryName", "provinceName", "cityName"} {
		if value, ok := ref.Keys[key]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", key, value))
		}
	}
	return strings.Join(parts, "|")
}
