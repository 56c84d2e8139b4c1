package sfs

// indexEntry locates one key's current value inside the log, or marks it
// tombstoned. ValueOffset points at the first byte of the value, not the
// start of the record.
type indexEntry struct {
	valueOffset int64
	valueLength uint32
	tombstone   bool
}

// index maps an encoded key (as a string, so it is comparable and usable as
// a map key regardless of the caller's key type) to its locator. It is a
// plain map, not a concurrent one: callers serialise access through the
// store's idxMu, kept separate from the gate so Stats/ScanLive can take a
// cheap index-only snapshot without excluding the writer slot.
type index map[string]indexEntry

func newIndex() index {
	return make(index)
}

func (ix index) get(encodedKey []byte) (indexEntry, bool) {
	entry, ok := ix[string(encodedKey)]
	return entry, ok
}

func (ix index) put(encodedKey []byte, entry indexEntry) {
	ix[string(encodedKey)] = entry
}

func (ix index) tombstone(encodedKey []byte) {
	ix[string(encodedKey)] = indexEntry{tombstone: true}
}

func (ix index) liveCount() int {
	n := 0

	for _, entry := range ix {
		if !entry.tombstone {
			n++
		}
	}

	return n
}

// snapshot returns a shallow copy of the index, used by scan_live and
// snapshot so iteration never observes entries added after it began.
func (ix index) snapshot() index {
	cp := make(index, len(ix))
	for k, v := range ix {
		cp[k] = v
	}

	return cp
}
