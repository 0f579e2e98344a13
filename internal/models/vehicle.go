package models

// VehicleRole classifies an entity by the edges it appears on
type VehicleRole string

const (
	RoleInvestor   VehicleRole = "Investor"   // only ever a source
	RoleInvestment VehicleRole = "Investment" // only ever a target
	RoleVehicle    VehicleRole = "Vehicle"    // both a source and a target
)

// VehicleNode is an intermediate entity that both owns and is owned.
// Above and Below hold ancestor and descendant vehicle IDs.
type VehicleNode struct {
	ID          int              `json:"id"`
	Name        string           `json:"name"`
	LowestLevel int              `json:"lowest_level"`
	Above       map[int]struct{} `json:"-"`
	Below       map[int]struct{} `json:"-"`
}

// NewVehicleNode creates a node at level 0 with empty adjacency
func NewVehicleNode(id int, name string) *VehicleNode {
	return &VehicleNode{
		ID:    id,
		Name:  name,
		Above: make(map[int]struct{}),
		Below: make(map[int]struct{}),
	}
}

// IsCyclic reports whether the node is both above and below some other node
func (v *VehicleNode) IsCyclic() bool {
	for id := range v.Above {
		if _, ok := v.Below[id]; ok {
			return true
		}
	}
	return false
}
