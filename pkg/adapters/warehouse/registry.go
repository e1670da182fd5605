package warehouse

import (
	"context"
	"sort"
	"sync"
)

// AdapterInfo describes a registered adapter.
type AdapterInfo struct {
	Type        string `json:"type"`         // "bigquery", "postgres", "mssql"
	DisplayName string `json:"display_name"` // "Google BigQuery"
	BuildTag    string `json:"build_tag"`    // tag needed to compile the adapter in, empty if always present
}

// Registration pairs adapter info with its executor factory.
type Registration struct {
	Info    AdapterInfo
	Factory func(ctx context.Context, config map[string]any) (QueryExecutor, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Registration)
)

// Register is called by each adapter's init() function.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters sorted by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetFactory returns the executor factory for a warehouse type.
// Returns nil if type is not registered.
func GetFactory(whType string) func(ctx context.Context, config map[string]any) (QueryExecutor, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[whType]; ok {
		return reg.Factory
	}
	return nil
}
