package reconcile

import (
	"maps"

	"github.com/bulleador/lobbysync/internal/model"
)

// ApplyAll applies records in the given order and returns the events that
// were not no-ops. It stops at the first rejected record.
func ApplyAll(s *model.Snapshot, recs []model.ChangeRecord) ([]Event, error) {
	var events []Event
	for _, rec := range recs {
		evt, err := Apply(s, rec)
		if err != nil {
			return events, err
		}
		if !evt.IsNoOp() {
			events = append(events, evt)
		}
	}
	return events, nil
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func cloneData(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m)
}
