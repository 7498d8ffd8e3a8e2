// Package h2streammap implements the dual-buffer sorted stream container:
// two separately-sorted slices, one for client-initiated (odd) stream IDs
// and one for server-initiated (even) stream IDs, each kept in ascending
// order so lookup is a binary search and insertion of the next stream a
// connection opens is an amortized-O(1) append (new stream IDs only ever
// increase within their parity, per RFC 7540 §5.1.1).
//
// A single map[uint32]*Stream was the obvious alternative; it was rejected
// here because it cannot give stable, ID-ordered iteration without a
// separate sort on every call, and because no third-party ordered
// container fits the job better than sort.Search over a growable slice.
package h2streammap

import (
	"sort"

	"github.com/albertbausili/celeris/internal/h2stream"
)

// Map holds every live stream of a single connection, split across two
// ascending-sorted buffers by ID parity. It is not safe for concurrent use;
// it is only ever touched by the connection state machine that owns it.
type Map struct {
	odd  []*h2stream.Stream // client-initiated
	even []*h2stream.Stream // server-initiated
}

// New returns an empty stream map.
func New() *Map {
	return &Map{}
}

func bufferFor(id uint32) bool { return id%2 == 1 } // true => odd buffer

func (m *Map) buffer(id uint32) []*h2stream.Stream {
	if bufferFor(id) {
		return m.odd
	}
	return m.even
}

func (m *Map) setBuffer(id uint32, buf []*h2stream.Stream) {
	if bufferFor(id) {
		m.odd = buf
	} else {
		m.even = buf
	}
}

// search returns the index within the appropriate buffer at which id either
// is found (found=true) or belongs to preserve sort order (found=false).
func search(buf []*h2stream.Stream, id uint32) (idx int, found bool) {
	idx = sort.Search(len(buf), func(i int) bool { return buf[i].ID >= id })
	found = idx < len(buf) && buf[idx].ID == id
	return idx, found
}

// Get looks up a stream by ID in O(log n).
func (m *Map) Get(id uint32) (*h2stream.Stream, bool) {
	buf := m.buffer(id)
	idx, found := search(buf, id)
	if !found {
		return nil, false
	}
	return buf[idx], true
}

// Put inserts a new stream or replaces an existing entry with the same ID.
// Inserting the connection's next-highest stream ID within a parity class
// is an append (amortized O(1)); inserting out of order falls back to a
// slice insert, which callers should never trigger in practice since stream
// IDs are required to be monotonically increasing within each parity
// (enforced one layer up, in the connection state machine's ID validation).
func (m *Map) Put(s *h2stream.Stream) {
	buf := m.buffer(s.ID)
	idx, found := search(buf, s.ID)
	if found {
		buf[idx] = s
		return
	}
	buf = append(buf, nil)
	copy(buf[idx+1:], buf[idx:])
	buf[idx] = s
	m.setBuffer(s.ID, buf)
}

// Delete removes a stream by ID, if present. It preserves the buffer's sort
// order and does not shrink backing capacity, avoiding reallocation on churn.
func (m *Map) Delete(id uint32) {
	buf := m.buffer(id)
	idx, found := search(buf, id)
	if !found {
		return
	}
	copy(buf[idx:], buf[idx+1:])
	buf[len(buf)-1] = nil
	buf = buf[:len(buf)-1]
	m.setBuffer(id, buf)
}

// Len returns the total number of streams tracked across both buffers.
func (m *Map) Len() int {
	return len(m.odd) + len(m.even)
}

// Range calls fn for every stream in ascending ID order within each parity
// class, client-initiated streams first, then server-initiated. Iteration
// order is stable across calls as long as the map is not mutated between
// them. Range stops early if fn returns false.
func (m *Map) Range(fn func(*h2stream.Stream) bool) {
	for _, s := range m.odd {
		if !fn(s) {
			return
		}
	}
	for _, s := range m.even {
		if !fn(s) {
			return
		}
	}
}

// HighestID returns the greatest stream ID seen in the given parity buffer
// (odd=true for client-initiated), or 0 if that buffer is empty. Only
// streams still tracked count; a closed stream no longer contributes.
func (m *Map) HighestID(odd bool) uint32 {
	buf := m.odd
	if !odd {
		buf = m.even
	}
	if len(buf) == 0 {
		return 0
	}
	return buf[len(buf)-1].ID
}
