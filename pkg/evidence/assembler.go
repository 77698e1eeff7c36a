// Package evidence renders a retrieved evidence set into the grouped,
// token-bounded text block handed to the answer prompt. Rendering is pure:
// the same evidence set always produces the same text.
package evidence

import (
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/bimrag/pkg/common"
	"github.com/OFFIS-RIT/bimrag/pkg/schema"

	"github.com/pkoukk/tiktoken-go"
)

const (
	defaultMaxTokens = 3000
	tokenEncoding    = "o200k_base"
)

// Assembler formats evidence sets under a token budget.
type Assembler struct {
	maxTokens int
}

// NewAssemblerParams configures an Assembler. Zero values select defaults.
type NewAssemblerParams struct {
	MaxTokens int
}

// NewAssembler creates an evidence assembler.
func NewAssembler(params NewAssemblerParams) *Assembler {
	a := &Assembler{maxTokens: params.MaxTokens}
	if a.maxTokens <= 0 {
		a.maxTokens = defaultMaxTokens
	}
	return a
}

// Render produces the evidence text: nodes grouped into storeys, spaces,
// systems and elements, then the relationships among the rendered nodes.
// Nodes are consumed in evidence order (descending score), and rendering
// stops when the token budget is reached, so the lowest-scored evidence is
// dropped first. Returns the text and the number of nodes rendered.
func (a *Assembler) Render(set common.EvidenceSet) (string, int, error) {
	if set.Empty() {
		return "", 0, nil
	}

	enc, err := tiktoken.GetEncoding(tokenEncoding)
	if err != nil {
		return "", 0, fmt.Errorf("failed to load token encoding: %w", err)
	}

	groups := map[string][]string{}
	order := []string{"Storeys", "Spaces", "Systems", "Elements"}

	budget := a.maxTokens
	rendered := make(map[string]struct{}, len(set.Nodes))
	for _, node := range set.Nodes {
		line := nodeLine(node.Node)
		cost := len(enc.Encode(line, nil, nil))
		if cost > budget {
			break
		}
		budget -= cost
		group := groupOf(node.Node)
		groups[group] = append(groups[group], line)
		rendered[node.Node.GlobalID] = struct{}{}
	}

	var b strings.Builder
	for _, group := range order {
		lines := groups[group]
		if len(lines) == 0 {
			continue
		}
		b.WriteString(group + ":\n")
		for _, line := range lines {
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}

	names := make(map[string]string, len(set.Nodes))
	for _, node := range set.Nodes {
		names[node.Node.GlobalID] = displayName(node.Node)
	}

	relLines := make([]string, 0, len(set.Edges))
	for _, edge := range set.Edges {
		if _, ok := rendered[edge.SourceID]; !ok {
			continue
		}
		if _, ok := rendered[edge.TargetID]; !ok {
			continue
		}
		line := fmt.Sprintf("%s --%s--> %s", names[edge.SourceID], edge.Type, names[edge.TargetID])
		cost := len(enc.Encode(line, nil, nil))
		if cost > budget {
			break
		}
		budget -= cost
		relLines = append(relLines, line)
	}
	if len(relLines) > 0 {
		b.WriteString("Relationships:\n")
		for _, line := range relLines {
			b.WriteString(line + "\n")
		}
	}

	return strings.TrimRight(b.String(), "\n"), len(rendered), nil
}

// nodeLine renders one evidence node as
// "<name> (<type>) [<global id>]: k=v; k=v".
func nodeLine(node common.Node) string {
	var b strings.Builder
	b.WriteString(displayName(node))
	b.WriteString(" (" + node.IfcType + ") [" + node.GlobalID + "]")

	keys := node.PropertyKeys()
	if len(keys) > 0 {
		pairs := make([]string, 0, len(keys))
		for _, key := range keys {
			value := node.Properties[key].Render()
			if value == "" {
				continue
			}
			pairs = append(pairs, key+"="+value)
		}
		if len(pairs) > 0 {
			b.WriteString(": " + strings.Join(pairs, "; "))
		}
	}
	return b.String()
}

func displayName(node common.Node) string {
	if node.Name != "" {
		return node.Name
	}
	return node.GlobalID
}

func groupOf(node common.Node) string {
	switch node.IfcType {
	case "IfcSpace":
		return "Spaces"
	case "IfcBuildingStorey", "IfcBuilding", "IfcSite":
		return "Storeys"
	}
	if schema.ClassLabel(node.IfcType) == schema.SystemLabel {
		return "Systems"
	}
	return "Elements"
}
