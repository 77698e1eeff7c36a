package graph

import (
	"sort"

	"github.com/OFFIS-RIT/bimrag/pkg/common"
	"github.com/OFFIS-RIT/bimrag/pkg/ifcjson"
	"github.com/OFFIS-RIT/bimrag/pkg/schema"
)

// MapResult holds the node records mapped from one document plus the
// per-record skip counts the run summary aggregates.
type MapResult struct {
	Nodes []common.Node
	// MissingIdentity counts entities of mapped types that carry no
	// usable globalId. Nothing can be merged safely for them.
	MissingIdentity int
	// MultiValueSkipped counts property keys dropped because their value
	// was not a plain scalar.
	MultiValueSkipped int
}

// MapEntities converts one parsed ifcJSON document into node records.
// Entities of unmapped types (geometry, styles, relationship records) are
// skipped without error. The mapping is pure and order-independent:
// the same entity always yields the same record, and conflicts between
// documents are resolved at ingestion time, not here.
func MapEntities(doc *ifcjson.Document, sourceTag string) MapResult {
	var result MapResult

	for localID, entity := range doc.Instances {
		ifcType := entity.Type()
		if !schema.Mapped(ifcType) {
			continue
		}
		globalID := entity.GlobalID(localID)
		if globalID == "" {
			result.MissingIdentity++
			continue
		}

		props, skipped := ifcjson.FlattenPropertySets(entity)
		result.MultiValueSkipped += len(skipped)

		result.Nodes = append(result.Nodes, common.Node{
			GlobalID:   globalID,
			IfcType:    ifcType,
			Name:       entity.Name(),
			Labels:     schema.Labels(ifcType),
			SourceTag:  sourceTag,
			Properties: props,
		})
	}

	// Document maps iterate in random order; sort so downstream logging
	// and tests see a stable sequence.
	sort.Slice(result.Nodes, func(i, j int) bool {
		return result.Nodes[i].GlobalID < result.Nodes[j].GlobalID
	})
	return result
}
