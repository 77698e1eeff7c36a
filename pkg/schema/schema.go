// Package schema holds the fixed graph taxonomy: which IFC types become
// nodes, the coarse class labels layered on top of them, the stored
// relationship types, and the constraint artifact applied to the store
// before any ingestion.
package schema

import (
	"strings"

	"github.com/OFFIS-RIT/bimrag/pkg/common"
)

// EntityLabel is the generic marker label carried by every node.
const EntityLabel = "IfcEntity"

// SpatialTypes are the spatial-structure types of the containment
// hierarchy. They are always mapped.
var SpatialTypes = map[string]struct{}{
	"IfcProject":        {},
	"IfcSite":           {},
	"IfcBuilding":       {},
	"IfcBuildingStorey": {},
	"IfcSpace":          {},
}

// elementPrefixes are the IFC type prefixes accepted as physical or
// logical building elements. Pure geometry and representation types fall
// through and are skipped by the mapper.
var elementPrefixes = []string{
	"IfcElement",
	"IfcBuildingElement",
	"IfcDistribution",
	"IfcFlow",
	"IfcEnergyConversion",
	"IfcUnitaryEquipment",
	"IfcFurnishing",
	"IfcTransport",
	"IfcSystem",
	"IfcGroup",
	"IfcZone",
	"IfcDoor",
	"IfcWindow",
	"IfcWall",
	"IfcSlab",
	"IfcRoof",
	"IfcColumn",
	"IfcBeam",
	"IfcMember",
	"IfcStair",
	"IfcRailing",
	"IfcCovering",
	"IfcSpaceHeater",
	"IfcSanitaryTerminal",
	"IfcAirTerminal",
	"IfcDuct",
	"IfcPipe",
	"IfcPump",
	"IfcFan",
	"IfcValve",
	"IfcBoiler",
	"IfcChiller",
	"IfcLightFixture",
	"IfcOutlet",
	"IfcSensor",
	"IfcActuator",
	"IfcController",
	"IfcBuildingElementProxy",
}

// Mapped reports whether entities of the given IFC type become graph
// nodes. Relationship records (IfcRel*) are handled by the relationship
// extractor and never become nodes themselves.
func Mapped(ifcType string) bool {
	if ifcType == "" || strings.HasPrefix(ifcType, "IfcRel") {
		return false
	}
	if _, ok := SpatialTypes[ifcType]; ok {
		return true
	}
	for _, prefix := range elementPrefixes {
		if strings.HasPrefix(ifcType, prefix) {
			return true
		}
	}
	return false
}

// ClassLabel maps an IFC type to a coarse class used as an extra label,
// so queries can match "any distribution element" without enumerating
// concrete types.
func ClassLabel(ifcType string) string {
	if _, ok := SpatialTypes[ifcType]; ok {
		return ifcType
	}
	switch {
	case strings.HasPrefix(ifcType, "IfcSystem"),
		strings.HasPrefix(ifcType, "IfcGroup"),
		strings.HasPrefix(ifcType, "IfcZone"):
		return "IfcSystem"
	case strings.HasPrefix(ifcType, "IfcFlow"),
		strings.HasPrefix(ifcType, "IfcDistribution"),
		strings.HasPrefix(ifcType, "IfcEnergyConversion"),
		strings.HasPrefix(ifcType, "IfcUnitaryEquipment"),
		strings.HasPrefix(ifcType, "IfcDuct"),
		strings.HasPrefix(ifcType, "IfcPipe"),
		strings.HasPrefix(ifcType, "IfcAirTerminal"):
		return "IfcDistributionElement"
	case strings.HasPrefix(ifcType, "Ifc"):
		return "IfcElement"
	default:
		return ifcType
	}
}

// SystemLabel marks nodes that act as systems for MEMBER_OF edges.
const SystemLabel = "IfcSystem"

// Labels returns the full label set for a node of the given IFC type:
// the generic marker, the concrete type, and the coarse class when it
// differs from the type.
func Labels(ifcType string) []string {
	labels := []string{EntityLabel, ifcType}
	if class := ClassLabel(ifcType); class != ifcType {
		labels = append(labels, class)
	}
	return labels
}

// EdgeTypes lists every stored relationship type. Traversals and schema
// application iterate this instead of hard-coding strings.
var EdgeTypes = []common.EdgeType{
	common.EdgeContainedIn,
	common.EdgeMemberOf,
	common.EdgeConnectsTo,
}

// Constraint declares a uniqueness constraint on a label/property pair.
type Constraint struct {
	Label    string
	Property string
}

// Index declares a secondary index on a label/property pair.
type Index struct {
	Label    string
	Property string
}

// Constraints is the versioned constraint artifact: globalId uniquely
// identifies at most one entity. Applied once before ingestion.
var Constraints = []Constraint{
	{Label: EntityLabel, Property: "globalId"},
}

// Indexes are the secondary indexes backing lexical lookups on
// name-bearing labels.
var Indexes = []Index{
	{Label: EntityLabel, Property: "name"},
	{Label: EntityLabel, Property: "ifcType"},
}
