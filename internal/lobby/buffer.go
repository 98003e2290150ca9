package lobby

import (
	"cmp"
	"slices"

	"github.com/bulleador/lobbysync/internal/model"
)

// PendingBuffer holds change records that arrive before the baseline
// snapshot. Arrival order is kept; ordering happens on drain.
type PendingBuffer struct {
	records []model.ChangeRecord
}

func (b *PendingBuffer) Enqueue(rec model.ChangeRecord) {
	b.records = append(b.records, rec)
}

func (b *PendingBuffer) Len() int { return len(b.records) }

// DrainInOrder returns every buffered record sorted by change number and
// empties the buffer. Records sharing a number keep their arrival order.
func (b *PendingBuffer) DrainInOrder() []model.ChangeRecord {
	out := b.records
	b.records = nil
	sortByChangeNumber(out)
	return out
}

func (b *PendingBuffer) Reset() {
	b.records = nil
}

func sortByChangeNumber(recs []model.ChangeRecord) {
	slices.SortStableFunc(recs, func(a, b model.ChangeRecord) int {
		return cmp.Compare(a.ChangeNumber, b.ChangeNumber)
	})
}
