package graph

import (
	"context"
	"testing"

	"github.com/OFFIS-RIT/bimrag/pkg/common"
	"github.com/OFFIS-RIT/bimrag/pkg/ifcjson"
	storemem "github.com/OFFIS-RIT/bimrag/pkg/store/memory"
)

const hvacDoc = `{
	"objects": {
		"storey2": {"type": "IfcBuildingStorey", "Name": "Level 2"},
		"room204": {"type": "IfcSpace", "Name": "Room 204",
			"psets": {"Pset_SpaceCommon.Reference": "R-204"}},
		"ahu1":    {"type": "IfcUnitaryEquipment", "Name": "AHU-1"},
		"sys1":    {"type": "IfcSystem", "Name": "Supply Air S-1"},
		"relAgg":  {"type": "IfcRelAggregates",
			"RelatingObject": "storey2", "RelatedObjects": ["room204"]},
		"relCont": {"type": "IfcRelContainedInSpatialStructure",
			"RelatingStructure": "room204", "RelatedElements": ["ahu1"]},
		"relGrp":  {"type": "IfcRelAssignsToGroup",
			"RelatingGroup": "sys1", "RelatedObjects": ["ahu1"]}
	}
}`

func TestIngestDocumentsIdempotent(t *testing.T) {
	ctx := context.Background()
	storeClient := storemem.NewGraphMemStorage()
	client := NewGraphClient(NewGraphClientParams{})
	docs := []SourceDocument{{Name: "hvac.json", Data: []byte(hvacDoc)}}

	first, err := client.IngestDocuments(ctx, docs, "rev-a", storeClient)
	if err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	if first.NodesCreated != 4 {
		t.Fatalf("expected 4 nodes created, got %d", first.NodesCreated)
	}
	if first.EdgesCreated != 3 {
		t.Fatalf("expected 3 edges created, got %d", first.EdgesCreated)
	}
	if first.Fingerprint == "" {
		t.Fatalf("expected fingerprint after a mutating run")
	}

	second, err := client.IngestDocuments(ctx, docs, "rev-a", storeClient)
	if err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}
	if second.NodesCreated != 0 || second.NodesUpdated != 4 {
		t.Fatalf("expected re-ingest to update, got created=%d updated=%d",
			second.NodesCreated, second.NodesUpdated)
	}
	if second.EdgesCreated != 0 {
		t.Fatalf("expected no new edges on re-ingest, got %d", second.EdgesCreated)
	}
	if second.Fingerprint == first.Fingerprint {
		t.Fatalf("expected fingerprint to move on every mutating run")
	}

	nodes, err := storeClient.ListNodes(ctx)
	if err != nil {
		t.Fatalf("ListNodes failed: %v", err)
	}
	if len(nodes) != 4 {
		t.Fatalf("expected 4 nodes after re-ingest, got %d", len(nodes))
	}
}

func TestIngestDocumentsSkipsMalformed(t *testing.T) {
	ctx := context.Background()
	storeClient := storemem.NewGraphMemStorage()
	client := NewGraphClient(NewGraphClientParams{})

	docs := []SourceDocument{
		{Name: "broken.json", Data: []byte(`[not even close`)},
		{Name: "hvac.json", Data: []byte(hvacDoc)},
	}
	summary, err := client.IngestDocuments(ctx, docs, "rev-a", storeClient)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if summary.MalformedDocuments != 1 {
		t.Fatalf("expected 1 malformed document, got %d", summary.MalformedDocuments)
	}
	if summary.Documents != 1 {
		t.Fatalf("expected the healthy document to ingest, got %d", summary.Documents)
	}
	if summary.NodesCreated != 4 {
		t.Fatalf("expected 4 nodes from the healthy document, got %d", summary.NodesCreated)
	}
}

func TestIngestDocumentsLastWriterWins(t *testing.T) {
	ctx := context.Background()
	storeClient := storemem.NewGraphMemStorage()
	client := NewGraphClient(NewGraphClientParams{})

	revA := `{"objects": {"room204": {"type": "IfcSpace", "Name": "Room 204",
		"psets": {"Pset_SpaceCommon.Reference": "R-204", "Pset_SpaceCommon.GrossArea": 40.0}}}}`
	revB := `{"objects": {"room204": {"type": "IfcSpace", "Name": "Conference 204",
		"psets": {"Pset_SpaceCommon.GrossArea": 42.5}}}}`

	if _, err := client.IngestDocuments(ctx, []SourceDocument{{Name: "a", Data: []byte(revA)}}, "rev-a", storeClient); err != nil {
		t.Fatalf("rev-a ingest failed: %v", err)
	}
	if _, err := client.IngestDocuments(ctx, []SourceDocument{{Name: "b", Data: []byte(revB)}}, "rev-b", storeClient); err != nil {
		t.Fatalf("rev-b ingest failed: %v", err)
	}

	nodes, err := storeClient.GetNodes(ctx, []string{"room204"})
	if err != nil || len(nodes) != 1 {
		t.Fatalf("expected one node, got %v (err %v)", nodes, err)
	}
	node := nodes[0]
	if node.Name != "Conference 204" {
		t.Fatalf("expected later name to win, got %q", node.Name)
	}
	if node.SourceTag != "rev-b" {
		t.Fatalf("expected later source tag, got %q", node.SourceTag)
	}
	if got := node.Properties["Pset_SpaceCommon.GrossArea"]; got != common.NumberValue(42.5) {
		t.Fatalf("expected overwritten area, got %v", got)
	}
	if got := node.Properties["Pset_SpaceCommon.Reference"]; got != common.StringValue("R-204") {
		t.Fatalf("expected untouched key to survive, got %v", got)
	}
}

func TestMapEntitiesSkipsUnmappedTypes(t *testing.T) {
	doc, err := ifcjson.Parse([]byte(`{"objects": {
		"room": {"type": "IfcSpace", "Name": "Room"},
		"geom": {"type": "IfcShapeRepresentation"},
		"rel":  {"type": "IfcRelAggregates"}
	}}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	result := MapEntities(doc, "rev-a")
	if len(result.Nodes) != 1 {
		t.Fatalf("expected only the space to map, got %v", result.Nodes)
	}
	if result.Nodes[0].GlobalID != "room" {
		t.Fatalf("expected room, got %q", result.Nodes[0].GlobalID)
	}
}

func TestMapEntitiesMissingIdentity(t *testing.T) {
	doc, err := ifcjson.Parse([]byte(`{"objects": {
		"   ": {"type": "IfcSpace", "Name": "Anonymous"}
	}}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	result := MapEntities(doc, "rev-a")
	if len(result.Nodes) != 0 {
		t.Fatalf("expected no nodes without identity, got %v", result.Nodes)
	}
	if result.MissingIdentity != 1 {
		t.Fatalf("expected 1 missing identity, got %d", result.MissingIdentity)
	}
}

func TestExtractRelationsConnectivityCanonical(t *testing.T) {
	// Both declaration orders of the same unordered pair.
	doc, err := ifcjson.Parse([]byte(`{"objects": {
		"ahu1": {"type": "IfcUnitaryEquipment"},
		"vav3": {"type": "IfcFlowController"},
		"relA": {"type": "IfcRelConnectsElements",
			"RelatingElement": "vav3", "RelatedElement": "ahu1"},
		"relB": {"type": "IfcRelConnectsElements",
			"RelatingElement": "ahu1", "RelatedElement": "vav3"}
	}}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	result := ExtractRelations(doc)
	if len(result.Edges) != 1 {
		t.Fatalf("expected duplicate pair to collapse, got %v", result.Edges)
	}
	want := common.Connection("ahu1", "vav3")
	if result.Edges[0] != want {
		t.Fatalf("expected canonical edge %v, got %v", want, result.Edges[0])
	}
}

func TestExtractRelationsPortOwnership(t *testing.T) {
	doc, err := ifcjson.Parse([]byte(`{"objects": {
		"ahu1":  {"type": "IfcUnitaryEquipment"},
		"duct1": {"type": "IfcFlowSegment"},
		"own1":  {"type": "IfcRelConnectsPortToElement",
			"RelatingPort": "portA", "RelatedElement": "ahu1"},
		"own2":  {"type": "IfcRelConnectsPortToElement",
			"RelatingPort": "portB", "RelatedElement": "duct1"},
		"conn":  {"type": "IfcRelConnectsPorts",
			"RelatingPort": "portA", "RelatedPort": "portB"}
	}}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	result := ExtractRelations(doc)
	if len(result.Edges) != 1 {
		t.Fatalf("expected one element-level edge, got %v", result.Edges)
	}
	want := common.Connection("ahu1", "duct1")
	if result.Edges[0] != want {
		t.Fatalf("expected port pair to resolve to owners %v, got %v", want, result.Edges[0])
	}
}

func TestExtractRelationsDropsUnresolved(t *testing.T) {
	doc, err := ifcjson.Parse([]byte(`{"objects": {
		"room204": {"type": "IfcSpace"},
		"rel": {"type": "IfcRelContainedInSpatialStructure",
			"RelatingStructure": "ghost", "RelatedElements": ["room204"]}
	}}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	result := ExtractRelations(doc)
	if len(result.Edges) != 0 {
		t.Fatalf("expected no edges, got %v", result.Edges)
	}
	if result.UnresolvedDropped != 1 {
		t.Fatalf("expected 1 dropped edge, got %d", result.UnresolvedDropped)
	}
}

func TestExtractRelationsSelfLoopSkipped(t *testing.T) {
	doc, err := ifcjson.Parse([]byte(`{"objects": {
		"ahu1": {"type": "IfcUnitaryEquipment"},
		"own1": {"type": "IfcRelConnectsPortToElement",
			"RelatingPort": "portA", "RelatedElement": "ahu1"},
		"own2": {"type": "IfcRelConnectsPortToElement",
			"RelatingPort": "portB", "RelatedElement": "ahu1"},
		"conn": {"type": "IfcRelConnectsPorts",
			"RelatingPort": "portA", "RelatedPort": "portB"}
	}}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	result := ExtractRelations(doc)
	if len(result.Edges) != 0 {
		t.Fatalf("expected self loop to be skipped, got %v", result.Edges)
	}
	if result.UnresolvedDropped != 0 {
		t.Fatalf("self loops are not unresolved, got %d dropped", result.UnresolvedDropped)
	}
}
