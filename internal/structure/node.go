// Package structure models the hospital's physical/organizational topology
// (spec.md §9's redesign note): Legal Entity -> Geographic Entity -> Pole ->
// Service -> Functional Unit -> Housing Unit -> Room -> Bed, collapsed into
// one tagged variant rather than a class-per-level hierarchy. A Visit or
// Movement's flat Location string resolves to a Node here by Identifier.
package structure

import "github.com/serbia-gov/platform/internal/shared/types"

// PhysicalType discriminates which level of the hierarchy a Node occupies.
// Cross-kind behavior (parent/child validity, rendering) dispatches on this
// field rather than on a per-level Go type.
type PhysicalType string

const (
	LegalEntity      PhysicalType = "legal_entity"
	GeographicEntity PhysicalType = "geographic_entity"
	Pole             PhysicalType = "pole"
	Service          PhysicalType = "service"
	FunctionalUnit   PhysicalType = "functional_unit"
	HousingUnit      PhysicalType = "housing_unit"
	Room             PhysicalType = "room"
	Bed              PhysicalType = "bed"
)

// hierarchy fixes each PhysicalType's depth; a Node's parent must sit
// exactly one level above it.
var hierarchy = []PhysicalType{
	LegalEntity, GeographicEntity, Pole, Service, FunctionalUnit, HousingUnit, Room, Bed,
}

// rank returns t's depth in the hierarchy, or -1 if t is not a recognized
// PhysicalType.
func (t PhysicalType) rank() int {
	for i, level := range hierarchy {
		if level == t {
			return i
		}
	}
	return -1
}

// ValidParentChild reports whether child may be attached directly under a
// node of type parent.
func ValidParentChild(parent, child PhysicalType) bool {
	pr, cr := parent.rank(), child.rank()
	return pr >= 0 && cr >= 0 && cr == pr+1
}

type NodeStatus string

const (
	StatusActive   NodeStatus = "active"
	StatusInactive NodeStatus = "inactive"
)

type NodeMode string

const (
	ModeInstance NodeMode = "instance"
	ModeKind     NodeMode = "kind"
)

// Node is the shared attribute subset every level of the hierarchy carries,
// per spec.md §9 ("a common attribute subset: identifier, name, short_name,
// description, status, mode, physical_type, address").
type Node struct {
	ID           types.ID
	ParentID     *types.ID
	PhysicalType PhysicalType
	Identifier   string // external code, e.g. an FR hospital's UF code
	Name         string
	ShortName    string
	Description  string
	Status       NodeStatus
	Mode         NodeMode
	Address      string
}
