package trees

import (
	roaring "github.com/RoaringBitmap/roaring"
)

// statusBitmaps holds one roaring bitmap of entity ids per status.
type statusBitmaps struct {
	byStatus map[Status]*roaring.Bitmap
}

func newStatusBitmaps() *statusBitmaps {
	sb := &statusBitmaps{byStatus: make(map[Status]*roaring.Bitmap, len(allStatuses))}
	for _, s := range allStatuses {
		sb.byStatus[s] = roaring.New()
	}
	return sb
}

// move records that id went from one status to another
func (sb *statusBitmaps) move(id EntityID, from, to Status) {
	sb.byStatus[from].Remove(uint32(id))
	sb.byStatus[to].Add(uint32(id))
}

func (sb *statusBitmaps) add(id EntityID, s Status) {
	sb.byStatus[s].Add(uint32(id))
}

func (sb *statusBitmaps) ids(s Status) []EntityID {
	bm, ok := sb.byStatus[s]
	if !ok {
		return nil
	}
	out := make([]EntityID, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, EntityID(it.Next()))
	}
	return out
}

// changed returns the ids of every entity carrying a status other than Unmarked.
func (sb *statusBitmaps) changed() *roaring.Bitmap {
	return roaring.FastOr(sb.byStatus[StatusCreated], sb.byStatus[StatusChanged], sb.byStatus[StatusDeleted])
}

func (sb *statusBitmaps) counts() map[Status]uint64 {
	out := make(map[Status]uint64, len(sb.byStatus))
	for s, bm := range sb.byStatus {
		out[s] = bm.GetCardinality()
	}
	return out
}

func (sb *statusBitmaps) clear() {
	for _, bm := range sb.byStatus {
		bm.Clear()
	}
}
