package graph

import (
	"sort"

	"github.com/OFFIS-RIT/bimrag/pkg/common"
	"github.com/OFFIS-RIT/bimrag/pkg/ifcjson"
)

// RelationResult holds the edges extracted from one document. Edges whose
// endpoints could not be resolved to a globalId by the end of the document
// are counted in UnresolvedDropped, never silently lost.
type RelationResult struct {
	Edges             []common.Edge
	UnresolvedDropped int
}

// pendingEdge is an edge whose endpoints are still local reference ids.
// All relationship records are collected first and resolved against the
// full document, so declaration order inside the file does not matter.
type pendingEdge struct {
	edgeType common.EdgeType
	source   string
	target   string
	// unordered marks connectivity pairs that collapse into a single
	// canonical CONNECTS_TO edge.
	unordered bool
}

// ExtractRelations derives the stored edges from a document's IfcRel*
// records:
//
//   - IfcRelContainedInSpatialStructure → element CONTAINED_IN container
//   - IfcRelAggregates → part CONTAINED_IN whole (storey in building, ...)
//   - IfcRelAssignsToGroup → element MEMBER_OF system
//   - IfcRelConnectsElements → element CONNECTS_TO element
//   - IfcRelConnectsPorts → the ports' owning elements CONNECTS_TO each
//     other, with ownership taken from IfcRelConnectsPortToElement
//
// Each declared containment level yields one direct edge; no transitive
// closure is computed here.
func ExtractRelations(doc *ifcjson.Document) RelationResult {
	ids := localIDIndex(doc)
	portOwner := portOwnership(doc)

	var pending []pendingEdge
	for _, entity := range doc.Instances {
		switch entity.Type() {
		case "IfcRelContainedInSpatialStructure":
			container := ifcjson.RefID(entity.Get("RelatingStructure", "relatingStructure", "RelatingSpatialStructure", "relatingSpatialStructure"))
			for _, child := range ifcjson.RefList(entity.Get("RelatedElements", "relatedElements")) {
				pending = append(pending, pendingEdge{
					edgeType: common.EdgeContainedIn,
					source:   child,
					target:   container,
				})
			}

		case "IfcRelAggregates":
			whole := ifcjson.RefID(entity.Get("RelatingObject", "relatingObject"))
			for _, part := range ifcjson.RefList(entity.Get("RelatedObjects", "relatedObjects")) {
				pending = append(pending, pendingEdge{
					edgeType: common.EdgeContainedIn,
					source:   part,
					target:   whole,
				})
			}

		case "IfcRelAssignsToGroup":
			system := ifcjson.RefID(entity.Get("RelatingGroup", "relatingGroup"))
			for _, member := range ifcjson.RefList(entity.Get("RelatedObjects", "relatedObjects")) {
				pending = append(pending, pendingEdge{
					edgeType: common.EdgeMemberOf,
					source:   member,
					target:   system,
				})
			}

		case "IfcRelConnectsElements":
			a := ifcjson.RefID(entity.Get("RelatingElement", "relatingElement"))
			b := ifcjson.RefID(entity.Get("RelatedElement", "relatedElement"))
			pending = append(pending, pendingEdge{
				edgeType:  common.EdgeConnectsTo,
				source:    a,
				target:    b,
				unordered: true,
			})

		case "IfcRelConnectsPorts":
			p1 := ifcjson.RefID(entity.Get("RelatingPort", "relatingPort"))
			p2 := ifcjson.RefID(entity.Get("RelatedPort", "relatedPort"))
			pending = append(pending, pendingEdge{
				edgeType:  common.EdgeConnectsTo,
				source:    portOwner[p1],
				target:    portOwner[p2],
				unordered: true,
			})
		}
	}

	return resolvePending(pending, ids)
}

// resolvePending maps local reference ids to globalIds and deduplicates.
// Unresolvable edges are dropped and counted.
func resolvePending(pending []pendingEdge, ids map[string]string) RelationResult {
	var result RelationResult
	seen := make(map[string]struct{}, len(pending))

	for _, p := range pending {
		source, okSource := ids[p.source]
		target, okTarget := ids[p.target]
		if !okSource || !okTarget || source == "" || target == "" {
			result.UnresolvedDropped++
			continue
		}
		if source == target {
			// Port pairs on the same element resolve to a self loop;
			// nothing to store.
			continue
		}

		edge := common.Edge{Type: p.edgeType, SourceID: source, TargetID: target}
		if p.unordered {
			edge = common.Connection(source, target)
		}
		if _, dup := seen[edge.Key()]; dup {
			continue
		}
		seen[edge.Key()] = struct{}{}
		result.Edges = append(result.Edges, edge)
	}

	sort.Slice(result.Edges, func(i, j int) bool {
		return result.Edges[i].Key() < result.Edges[j].Key()
	})
	return result
}

// localIDIndex maps every local entity id (and its globalId, since some
// exporters reference either) to the entity's globalId.
func localIDIndex(doc *ifcjson.Document) map[string]string {
	ids := make(map[string]string, len(doc.Instances))
	for localID, entity := range doc.Instances {
		globalID := entity.GlobalID(localID)
		if globalID == "" {
			continue
		}
		ids[localID] = globalID
		ids[globalID] = globalID
	}
	return ids
}

// portOwnership maps port reference ids to the local id of their owning
// element, taken from IfcRelConnectsPortToElement records.
func portOwnership(doc *ifcjson.Document) map[string]string {
	owners := make(map[string]string)
	for _, entity := range doc.Instances {
		if entity.Type() != "IfcRelConnectsPortToElement" {
			continue
		}
		port := ifcjson.RefID(entity.Get("RelatingPort", "relatingPort"))
		element := ifcjson.RefID(entity.Get("RelatedElement", "relatedElement"))
		if port != "" && element != "" {
			owners[port] = element
		}
	}
	return owners
}
