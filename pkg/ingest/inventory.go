package ingest

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/nicktill/munin2tinyobs/pkg/httpx"
	"github.com/nicktill/munin2tinyobs/pkg/munin"
)

// Inventory remembers which Munin files the server has imported, so clients
// can browse group -> node -> service -> field the way the Munin UI does.
type Inventory struct {
	mu     sync.RWMutex
	fields map[munin.FileIdentity]*FieldInfo
}

// FieldInfo describes one imported RRD file
type FieldInfo struct {
	Field        string         `json:"field"`
	DSType       munin.DSType   `json:"ds_type"`
	Measurement  string         `json:"measurement"`
	Points       int            `json:"points"`
	PointsByCF   map[string]int `json:"points_by_cf"`
	Imports      int            `json:"imports"`
	LastImported time.Time      `json:"last_imported"`
}

// ServiceNode groups the fields of one plugin
type ServiceNode struct {
	Service string      `json:"service"`
	Fields  []FieldInfo `json:"fields"`
}

// HostNode groups the services of one Munin node
type HostNode struct {
	Node     string        `json:"node"`
	Services []ServiceNode `json:"services"`
}

// GroupNode is the top level of the tree
type GroupNode struct {
	Group string     `json:"group"`
	Nodes []HostNode `json:"nodes"`
}

// InventoryResponse is returned by HandleNodes
type InventoryResponse struct {
	Groups []GroupNode `json:"groups"`
	Files  int         `json:"files"`
}

// NewInventory creates an empty inventory
func NewInventory() *Inventory {
	return &Inventory{fields: make(map[munin.FileIdentity]*FieldInfo)}
}

// Add records a successful import. Re-importing a file updates its entry.
func (inv *Inventory) Add(res *ImportResult) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	info, ok := inv.fields[res.Identity]
	if !ok {
		info = &FieldInfo{
			Field:       res.Identity.Field,
			DSType:      res.Identity.DSType,
			Measurement: res.Identity.Measurement(),
		}
		inv.fields[res.Identity] = info
	}

	info.Points = res.Points
	info.PointsByCF = make(map[string]int, len(res.PointsByCF))
	for cf, n := range res.PointsByCF {
		info.PointsByCF[cf] = n
	}
	info.Imports++
	info.LastImported = time.Now()
}

// Files returns the number of distinct files imported
func (inv *Inventory) Files() int {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return len(inv.fields)
}

// Tree returns the inventory as a sorted group/node/service/field tree
func (inv *Inventory) Tree() InventoryResponse {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	tree := make(map[string]map[string]map[string][]FieldInfo)
	for id, info := range inv.fields {
		nodes, ok := tree[id.Group]
		if !ok {
			nodes = make(map[string]map[string][]FieldInfo)
			tree[id.Group] = nodes
		}
		services, ok := nodes[id.Node]
		if !ok {
			services = make(map[string][]FieldInfo)
			nodes[id.Node] = services
		}
		services[id.Service] = append(services[id.Service], *info)
	}

	resp := InventoryResponse{Groups: []GroupNode{}, Files: len(inv.fields)}
	for _, group := range sortedKeys(tree) {
		g := GroupNode{Group: group}
		for _, node := range sortedKeys(tree[group]) {
			n := HostNode{Node: node}
			for _, service := range sortedKeys(tree[group][node]) {
				fields := tree[group][node][service]
				sort.Slice(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
				n.Services = append(n.Services, ServiceNode{Service: service, Fields: fields})
			}
			g.Nodes = append(g.Nodes, n)
		}
		resp.Groups = append(resp.Groups, g)
	}
	return resp
}

// HandleNodes handles GET /v1/nodes
func (h *Handler) HandleNodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.RespondErrorString(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	httpx.RespondJSON(w, http.StatusOK, h.inventory.Tree())
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
