package carrier

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"aurika-backend/internal/domain"

	"github.com/goccy/go-json"
)

// The carrier pushes at least four distinct payload shapes for the same
// event: a direct object, a single-element array wrap, an object keyed by one
// of the shipment identifiers, and flat fields vs a nested tracking_data
// sub-object. ParseShipmentWebhook reduces all of them to one canonical
// ShipmentEvent.

// scanDateLayout is the carrier's scan timestamp format, e.g. "14 10 2025 10:00:00".
const scanDateLayout = "02 01 2006 15:04:05"

var fallbackDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseShipmentWebhook normalizes a raw carrier webhook body into a
// ShipmentEvent. Unknown extra fields are dropped; a body with no
// recognizable status field fails with NormalizationError.
func ParseShipmentWebhook(raw []byte, source domain.EventSource) (*domain.ShipmentEvent, error) {
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &domain.NormalizationError{Source: source, Reason: "invalid json: " + err.Error()}
	}

	// Shape: single-element array wrap.
	if arr, ok := decoded.([]interface{}); ok {
		if len(arr) != 1 {
			return nil, &domain.NormalizationError{Source: source, Reason: "array payload must contain exactly one element"}
		}
		decoded = arr[0]
	}

	body, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, &domain.NormalizationError{Source: source, Reason: "payload is not an object"}
	}

	outer, td := locateTrackingData(body)
	ev := &domain.ShipmentEvent{Source: source}

	// Identifiers may live on the outer object, the tracking_data object,
	// or both; the innermost value wins only when the outer one is absent.
	ev.ShipmentID = firstString(td, outer, "shipment_id")
	ev.CarrierOrderID = firstString(td, outer, "order_id")
	ev.AWB = firstString(td, outer, "awb_code", "awb")
	ev.OrderNumberHint = firstString(td, outer, "channel_order_id")
	ev.CourierName = firstString(td, outer, "courier_name")

	if code, found := findStatusCode(td, outer); found {
		ev.StatusCode = code
		ev.HasStatusCode = true
	}
	ev.StatusLabel = firstString(td, outer, "current_status", "shipment_status", "status")

	if !ev.HasStatusCode && ev.StatusLabel == "" {
		return nil, &domain.NormalizationError{Source: source, Reason: "no recognizable status field"}
	}

	if etd := firstString(td, outer, "etd", "estimated_delivery_date"); etd != "" {
		if t, ok := parseCarrierTime(etd); ok {
			ev.EstimatedDate = &t
		}
	}

	ev.Scans = extractScans(td, outer)
	if ts := firstString(td, outer, "updated_time_stamp", "event_time"); ts != "" {
		if t, ok := parseCarrierTime(ts); ok {
			ev.Timestamp = t
		}
	}
	if ev.Timestamp.IsZero() && len(ev.Scans) > 0 {
		// Latest scan stands in for the event time.
		ev.Timestamp = ev.Scans[len(ev.Scans)-1].Date
	}
	if loc := firstString(td, outer, "location", "current_location"); loc != "" {
		ev.Location = loc
	} else if len(ev.Scans) > 0 {
		ev.Location = ev.Scans[len(ev.Scans)-1].Location
	}

	return ev, nil
}

// locateTrackingData searches, in order: a direct tracking_data sub-object,
// one addressed by the shipment/order/awb identifier found at top level, and
// finally a scan of all top-level keys for the first object that carries a
// tracking_data sub-object. When none is found the body itself is treated as
// flat tracking data.
func locateTrackingData(body map[string]interface{}) (outer, td map[string]interface{}) {
	if inner, ok := body["tracking_data"].(map[string]interface{}); ok {
		return body, inner
	}

	for _, idKey := range []string{"shipment_id", "order_id", "awb_code", "awb"} {
		id := asString(body[idKey])
		if id == "" {
			continue
		}
		if nested, ok := body[id].(map[string]interface{}); ok {
			// The identifiers live on the top-level body, so it stays the
			// outer map.
			if inner, ok := nested["tracking_data"].(map[string]interface{}); ok {
				return body, inner
			}
			return body, nested
		}
	}

	// Last resort: iterate keys deterministically and take the first object
	// wrapping a tracking_data sub-object.
	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if nested, ok := body[k].(map[string]interface{}); ok {
			if inner, ok := nested["tracking_data"].(map[string]interface{}); ok {
				return body, inner
			}
		}
	}

	return body, body
}

func extractScans(maps ...map[string]interface{}) []domain.Scan {
	var rawScans []interface{}
	for _, m := range maps {
		if m == nil {
			continue
		}
		for _, key := range []string{"scans", "shipment_track_activities"} {
			if arr, ok := m[key].([]interface{}); ok {
				rawScans = arr
				break
			}
		}
		if rawScans != nil {
			break
		}
	}

	scans := make([]domain.Scan, 0, len(rawScans))
	for _, rs := range rawScans {
		row, ok := rs.(map[string]interface{})
		if !ok {
			continue
		}
		scan := domain.Scan{
			Activity: firstString(row, nil, "activity", "sr-status-label", "status"),
			Location: firstString(row, nil, "location"),
		}
		if dateStr := firstString(row, nil, "date", "updated_date"); dateStr != "" {
			if t, ok := parseCarrierTime(dateStr); ok {
				scan.Date = t
			}
		}
		if scan.Date.IsZero() && scan.Activity == "" {
			continue
		}
		scans = append(scans, scan)
	}

	sort.Slice(scans, func(i, j int) bool { return scans[i].Date.Before(scans[j].Date) })
	return scans
}

func findStatusCode(td, outer map[string]interface{}) (int, bool) {
	for _, m := range []map[string]interface{}{td, outer} {
		if m == nil {
			continue
		}
		for _, key := range []string{"shipment_status_id", "current_status_id", "status_id", "shipment_status"} {
			v, ok := m[key]
			if !ok {
				continue
			}
			switch n := v.(type) {
			case float64:
				return int(n), true
			case string:
				if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
					return i, true
				}
			}
		}
	}
	return 0, false
}

// firstString returns the first non-empty string value for any of the keys,
// preferring the inner map. Numeric identifiers are coerced to strings.
func firstString(inner, outer map[string]interface{}, keys ...string) string {
	for _, m := range []map[string]interface{}{inner, outer} {
		if m == nil {
			continue
		}
		for _, key := range keys {
			if s := asString(m[key]); s != "" {
				return s
			}
		}
	}
	return ""
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

func parseCarrierTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(scanDateLayout, s); err == nil {
		return t, true
	}
	for _, layout := range fallbackDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
