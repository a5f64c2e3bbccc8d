package resolve

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/dtaplin21/DellSystemManager-sub008/internal/panelid"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/store"
)

// candidateKeys are the payload fields that may carry a panel identifier,
// in priority order.
var candidateKeys = []string{
	"panelId",
	"panel_id",
	"panelNumber",
	"panel_number",
	"panel",
	"rollNumber",
	"roll_number",
	"roll",
}

// RecordCandidates lists the identifiers an as-built record offers: the
// stated panel id, then candidate fields of the mapped payload, then of the
// raw payload.
func RecordCandidates(record store.AsbuiltRecord) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		if _, dup := seen[v]; dup {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	if record.PanelID != nil {
		add(*record.PanelID)
	}
	for _, payload := range []map[string]any{record.MappedData, record.RawData} {
		for _, key := range candidateKeys {
			if v, ok := stringValue(payload[key]); ok {
				add(v)
			}
		}
	}
	return out
}

// ResolveRecordPanel resolves the first candidate identifier of record that
// matches a panel. On a miss the returned resolution carries the canonical
// form of the first normalizable candidate for the review queue.
func ResolveRecordPanel(record store.AsbuiltRecord, panels []store.Panel) Resolution {
	var miss Resolution
	for _, candidate := range RecordCandidates(record) {
		res := Resolve(record.ProjectID, candidate, panels)
		if res.Found() {
			return res
		}
		if miss.Canonical == "" && !strings.HasPrefix(candidate, DerivedPrefix) {
			if canonical, ok := panelid.Normalize(candidate); ok {
				miss.Canonical = canonical
			}
		}
	}
	return miss
}

func stringValue(v any) (string, bool) {
	switch value := v.(type) {
	case string:
		return value, true
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64), true
	case int:
		return strconv.Itoa(value), true
	case int64:
		return strconv.FormatInt(value, 10), true
	case json.Number:
		return value.String(), true
	default:
		return "", false
	}
}
