// Actor memory: time-stamped knowledge keyed by namespaced subject.
// Entries travel between actors only by copy, through Share.
package agents

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/talgya/offscreen/internal/social"
	"github.com/talgya/offscreen/internal/world"
)

// DefaultMemoryCapacity bounds a store when no capacity is given.
const DefaultMemoryCapacity = 64

// Subject namespaces.
const (
	NSLocation = "location:"
	NSThreat   = "threat:"
	NSCrime    = "crime:"
	NSActor    = "actor:"
	NSCombat   = "combat:"
)

// Shareable namespaces travel by word of mouth.
var Shareable = []string{NSLocation, NSThreat, NSCrime}

func LocationKey(n world.NodeID) string { return NSLocation + string(n) }
func ThreatKey(id ActorID) string       { return NSThreat + string(id) }
func CrimeKey(id ActorID) string        { return NSCrime + string(id) }
func ActorKey(id ActorID) string        { return NSActor + string(id) }
func CombatKey(id string) string        { return NSCombat + id }

// Namespace returns the key prefix up to and including the first colon.
func Namespace(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i+1]
	}
	return ""
}

// Subject returns the part of the key after the namespace.
func Subject(key string) string {
	return key[len(Namespace(key)):]
}

func isShareable(key string) bool {
	ns := Namespace(key)
	for _, s := range Shareable {
		if ns == s {
			return true
		}
	}
	return false
}

// MemoryValue is what an actor knows about a subject.
type MemoryValue struct {
	Node    world.NodeID     `json:"node,omitempty"`
	Tags    []world.Tag      `json:"tags,omitempty"`
	Actor   ActorID          `json:"actor,omitempty"`
	Faction social.FactionID `json:"faction,omitempty"`
	Level   float64          `json:"level,omitempty"` // Threat level, loot value, or crime severity
	Note    string           `json:"note,omitempty"`
}

// HasTag reports whether the remembered node offers an amenity.
func (v MemoryValue) HasTag(tag world.Tag) bool {
	for _, t := range v.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// MemoryEntry is one piece of knowledge. Timestamp is when this store last
// learned or confirmed it; Origin is when it was first observed first hand and
// is carried unchanged across sharing.
type MemoryEntry struct {
	Key       string      `json:"key"`
	Value     MemoryValue `json:"value"`
	Timestamp float64     `json:"timestamp"`
	Origin    float64     `json:"origin"`
}

// TTL maps a namespace to its time-to-live. Namespaces without an entry
// never expire.
type TTL map[string]float64

// Expired reports whether an entry is older than its namespace allows.
func (ttl TTL) Expired(e *MemoryEntry, now float64) bool {
	limit, ok := ttl[Namespace(e.Key)]
	if !ok || limit <= 0 {
		return false
	}
	return now-e.Timestamp > limit
}

// Outdated reports whether the first-hand observation behind an entry is
// older than its namespace allows. Outdated news is no longer passed on.
func (ttl TTL) Outdated(e *MemoryEntry, now float64) bool {
	limit, ok := ttl[Namespace(e.Key)]
	if !ok || limit <= 0 {
		return false
	}
	return now-e.Origin > limit
}

// MemoryStore is one actor's knowledge.
type MemoryStore struct {
	capacity int
	entries  map[string]*MemoryEntry
}

// NewMemoryStore creates a store holding at most capacity entries.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity, entries: make(map[string]*MemoryEntry)}
}

// Capacity returns the entry limit.
func (m *MemoryStore) Capacity() int {
	return m.capacity
}

// Len returns the number of entries.
func (m *MemoryStore) Len() int {
	return len(m.entries)
}

// Observe records a first-hand observation. An existing entry is overwritten
// only if t is strictly newer. Returns whether the store changed.
func (m *MemoryStore) Observe(key string, v MemoryValue, t float64) bool {
	if e, ok := m.entries[key]; ok {
		if t <= e.Timestamp {
			return false
		}
		e.Value = v
		e.Timestamp = t
		e.Origin = t
		return true
	}
	m.insert(&MemoryEntry{Key: key, Value: v, Timestamp: t, Origin: t})
	return true
}

// Recall returns a copy of the entry for key.
func (m *MemoryStore) Recall(key string) (MemoryEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return MemoryEntry{}, false
	}
	return *e, true
}

// Knows reports whether the store holds key.
func (m *MemoryStore) Knows(key string) bool {
	_, ok := m.entries[key]
	return ok
}

// Forget removes a single entry.
func (m *MemoryStore) Forget(key string) {
	delete(m.entries, key)
}

// Prefix returns copies of every entry in a namespace, ordered by key.
func (m *MemoryStore) Prefix(ns string) []MemoryEntry {
	var out []MemoryEntry
	for k, e := range m.entries {
		if strings.HasPrefix(k, ns) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Entries returns copies of every entry ordered by key.
func (m *MemoryStore) Entries() []MemoryEntry {
	return m.Prefix("")
}

// Share copies this store's live shareable entries into dst at time now.
// An entry transfers when dst lacks the key or holds an older first-hand
// origin for it; the copy's timestamp is the later of dst's and now. Entries
// dst already holds from the same or a newer origin are left alone, so the
// same news cannot bounce between two actors forever. News whose origin is
// past the namespace TTL is not passed on, so a shared copy outlives the
// first-hand sighting by at most one TTL. Returns the keys transferred.
func (m *MemoryStore) Share(dst *MemoryStore, now float64, ttl TTL) []string {
	if dst == nil || dst == m {
		return nil
	}
	var moved []string
	for _, e := range m.Entries() {
		if !isShareable(e.Key) || ttl.Expired(&e, now) || ttl.Outdated(&e, now) {
			continue
		}
		existing, ok := dst.entries[e.Key]
		if ok && existing.Origin >= e.Origin {
			continue
		}
		ts := now
		if ok && existing.Timestamp > ts {
			ts = existing.Timestamp
		}
		if ok {
			existing.Value = cloneValue(e.Value)
			existing.Timestamp = ts
			existing.Origin = e.Origin
		} else {
			dst.insert(&MemoryEntry{Key: e.Key, Value: cloneValue(e.Value), Timestamp: ts, Origin: e.Origin})
		}
		moved = append(moved, e.Key)
	}
	return moved
}

// PurgeStale removes entries older than their namespace TTL. Returns the
// number removed.
func (m *MemoryStore) PurgeStale(now float64, ttl TTL) int {
	n := 0
	for k, e := range m.entries {
		if ttl.Expired(e, now) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// insert adds a new entry, evicting the oldest one when full.
func (m *MemoryStore) insert(e *MemoryEntry) {
	if len(m.entries) >= m.capacity {
		var oldest *MemoryEntry
		for _, c := range m.entries {
			if oldest == nil || c.Timestamp < oldest.Timestamp ||
				(c.Timestamp == oldest.Timestamp && c.Key < oldest.Key) {
				oldest = c
			}
		}
		if oldest != nil {
			delete(m.entries, oldest.Key)
		}
	}
	m.entries[e.Key] = e
}

func cloneValue(v MemoryValue) MemoryValue {
	v.Tags = append([]world.Tag(nil), v.Tags...)
	return v
}

type memoryJSON struct {
	Capacity int           `json:"capacity"`
	Entries  []MemoryEntry `json:"entries"`
}

// MarshalJSON encodes the store as a sorted entry list.
func (m *MemoryStore) MarshalJSON() ([]byte, error) {
	return json.Marshal(memoryJSON{Capacity: m.capacity, Entries: m.Entries()})
}

// UnmarshalJSON restores a store written by MarshalJSON.
func (m *MemoryStore) UnmarshalJSON(data []byte) error {
	var raw memoryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = *NewMemoryStore(raw.Capacity)
	for i := range raw.Entries {
		e := raw.Entries[i]
		m.entries[e.Key] = &e
	}
	return nil
}

// RestoreMemoryStore rebuilds a store from saved entries.
func RestoreMemoryStore(capacity int, entries []MemoryEntry) *MemoryStore {
	m := NewMemoryStore(capacity)
	for i := range entries {
		e := entries[i]
		m.entries[e.Key] = &e
	}
	return m
}
