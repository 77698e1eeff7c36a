// Package card synthesizes the textual summaries ("cards") that represent
// graph nodes in the vector index. A card is a pure function of the node
// and its one-hop neighborhood: all lists are sorted and bounded, so
// identical graph state yields byte-identical text.
package card

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/OFFIS-RIT/bimrag/pkg/common"
	"github.com/OFFIS-RIT/bimrag/pkg/store"
)

const (
	defaultMaxProperties = 12
	defaultMaxNeighbors  = 8
)

// Builder produces cards for graph nodes.
type Builder struct {
	maxProperties int
	maxNeighbors  int
}

// NewBuilderParams configures a Builder. Zero values select defaults.
type NewBuilderParams struct {
	MaxProperties int
	MaxNeighbors  int
}

// NewBuilder creates a card builder.
func NewBuilder(params NewBuilderParams) *Builder {
	b := &Builder{
		maxProperties: params.MaxProperties,
		maxNeighbors:  params.MaxNeighbors,
	}
	if b.maxProperties <= 0 {
		b.maxProperties = defaultMaxProperties
	}
	if b.maxNeighbors <= 0 {
		b.maxNeighbors = defaultMaxNeighbors
	}
	return b
}

// Build renders the card for one node given its one-hop neighborhood.
// Depth is fixed at one hop; deeper context is added at query time by the
// retrieval engine, not baked into the card.
func (b *Builder) Build(node common.Node, neighbors []common.Neighbor) common.Card {
	parts := make([]string, 0, 8)

	if node.Name != "" {
		parts = append(parts, "name: "+node.Name)
	}
	parts = append(parts, "type: "+node.IfcType)
	if node.SourceTag != "" {
		parts = append(parts, "source: "+node.SourceTag)
	}

	if section := b.neighborSection("in", neighbors, func(n common.Neighbor) bool {
		return n.Edge.Type == common.EdgeContainedIn && n.Edge.TargetID == n.Node.GlobalID
	}); section != "" {
		parts = append(parts, section)
	}
	if section := b.neighborSection("contains", neighbors, func(n common.Neighbor) bool {
		return n.Edge.Type == common.EdgeContainedIn && n.Edge.SourceID == n.Node.GlobalID
	}); section != "" {
		parts = append(parts, section)
	}
	if section := b.neighborSection("systems", neighbors, func(n common.Neighbor) bool {
		return n.Edge.Type == common.EdgeMemberOf && n.Edge.TargetID == n.Node.GlobalID
	}); section != "" {
		parts = append(parts, section)
	}
	if section := b.neighborSection("members", neighbors, func(n common.Neighbor) bool {
		return n.Edge.Type == common.EdgeMemberOf && n.Edge.SourceID == n.Node.GlobalID
	}); section != "" {
		parts = append(parts, section)
	}
	if section := b.neighborSection("connects", neighbors, func(n common.Neighbor) bool {
		return n.Edge.Type == common.EdgeConnectsTo
	}); section != "" {
		parts = append(parts, section)
	}

	if props := b.propertySection(node); props != "" {
		parts = append(parts, props)
	}
	if aliases := aliasSection(node); aliases != "" {
		parts = append(parts, aliases)
	}

	return common.Card{
		NodeID: node.GlobalID,
		Text:   strings.Join(parts, " | "),
	}
}

// BuildAll walks every node in the store and renders its card.
func (b *Builder) BuildAll(ctx context.Context, storeClient store.GraphStorage) ([]common.Card, error) {
	nodes, err := storeClient.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes for card build: %w", err)
	}

	cards := make([]common.Card, 0, len(nodes))
	for _, node := range nodes {
		neighbors, err := storeClient.Neighbors(ctx, node.GlobalID)
		if err != nil {
			return nil, fmt.Errorf("failed to load neighbors of %s: %w", node.GlobalID, err)
		}
		cards = append(cards, b.Build(node, neighbors))
	}
	return cards, nil
}

// neighborSection renders one "label: a; b; c" part from the neighbors
// matching the filter, sorted and capped for determinism.
func (b *Builder) neighborSection(label string, neighbors []common.Neighbor, match func(common.Neighbor) bool) string {
	entries := make([]string, 0, len(neighbors))
	seen := make(map[string]struct{}, len(neighbors))
	for _, neighbor := range neighbors {
		if !match(neighbor) {
			continue
		}
		entry := neighbor.Node.IfcType
		if neighbor.Node.Name != "" {
			entry += " " + neighbor.Node.Name
		}
		if _, dup := seen[entry]; dup {
			continue
		}
		seen[entry] = struct{}{}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return ""
	}
	sort.Strings(entries)
	if len(entries) > b.maxNeighbors {
		entries = entries[:b.maxNeighbors]
	}
	return label + ": " + strings.Join(entries, "; ")
}

func (b *Builder) propertySection(node common.Node) string {
	keys := node.PropertyKeys()
	if len(keys) > b.maxProperties {
		keys = keys[:b.maxProperties]
	}
	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		value := node.Properties[key].Render()
		if value == "" {
			continue
		}
		pairs = append(pairs, key+"="+value)
	}
	if len(pairs) == 0 {
		return ""
	}
	return "props: " + strings.Join(pairs, "; ")
}

// aliasSection adds domain synonyms that help recall for maintenance
// vocabulary ("room" for IfcSpace, "AHU" for air handlers, ...).
func aliasSection(node common.Node) string {
	var aliases []string
	name := strings.ToLower(node.Name)

	if node.IfcType == "IfcSpace" {
		aliases = append(aliases, "room", "space", "area")
	}
	if node.IfcType == "IfcUnitaryEquipment" || strings.Contains(name, "ahu") || strings.Contains(name, "air handling unit") {
		aliases = append(aliases, "AHU", "air handling unit", "air handler")
	}
	if strings.HasPrefix(node.IfcType, "IfcFlowController") || strings.Contains(name, "vav") {
		aliases = append(aliases, "VAV", "variable air volume", "air terminal box")
	}
	if strings.HasPrefix(node.IfcType, "IfcFlowTerminal") || strings.Contains(name, "diffuser") {
		aliases = append(aliases, "diffuser", "register", "grille", "outlet", "terminal")
	}
	if len(aliases) == 0 {
		return ""
	}
	sort.Strings(aliases)
	return "alias: " + strings.Join(dedupeSorted(aliases), "; ")
}

func dedupeSorted(in []string) []string {
	out := in[:0]
	var prev string
	for i, v := range in {
		if i > 0 && v == prev {
			continue
		}
		out = append(out, v)
		prev = v
	}
	return out
}
