package migration

import (
	"strconv"

	"github.com/google/uuid"
)

// idNamespace roots every per-store namespace.
var idNamespace = uuid.MustParse("6f0c6b0e-2a59-5c1e-9d57-5d3c1f0a7b42")

// IDMap assigns deterministic target IDs to legacy primary keys and records
// the mapping for foreign key resolution. It is not safe for concurrent use;
// staging is sequential.
type IDMap struct {
	namespace uuid.UUID
	ids       map[string]map[int64]string
}

// NewIDMap creates an empty map whose IDs are derived from storeUUID, so the
// same legacy store always migrates to the same target IDs.
func NewIDMap(storeUUID string) *IDMap {
	return &IDMap{
		namespace: uuid.NewSHA1(idNamespace, []byte(storeUUID)),
		ids:       make(map[string]map[int64]string),
	}
}

// ID returns the target ID for a legacy row without recording it.
func (m *IDMap) ID(kind string, legacyPK int64) string {
	return uuid.NewSHA1(m.namespace, []byte(kind+":"+strconv.FormatInt(legacyPK, 10))).String()
}

// Assign computes and records the target ID for a legacy row.
func (m *IDMap) Assign(kind string, legacyPK int64) string {
	id := m.ID(kind, legacyPK)
	byPK, ok := m.ids[kind]
	if !ok {
		byPK = make(map[int64]string)
		m.ids[kind] = byPK
	}
	byPK[legacyPK] = id
	return id
}

// Lookup returns the recorded target ID for a legacy row.
func (m *IDMap) Lookup(kind string, legacyPK int64) (string, bool) {
	id, ok := m.ids[kind][legacyPK]
	return id, ok
}

// Resolve looks up an optional legacy reference. It returns nil with
// dangling=false for a nil reference, and nil with dangling=true when the
// referenced row was never assigned.
func (m *IDMap) Resolve(kind string, legacyPK *int64) (id *string, dangling bool) {
	if legacyPK == nil {
		return nil, false
	}
	found, ok := m.Lookup(kind, *legacyPK)
	if !ok {
		return nil, true
	}
	return &found, false
}

// Len returns how many rows of kind were assigned.
func (m *IDMap) Len(kind string) int {
	return len(m.ids[kind])
}
