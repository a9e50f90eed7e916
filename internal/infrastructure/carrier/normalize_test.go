package carrier

import (
	"testing"
	"time"

	"aurika-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShipmentWebhook_FlatBody(t *testing.T) {
	raw := []byte(`{
		"shipment_id": 4312456,
		"awb": "AWB123456",
		"courier_name": "Delhivery",
		"current_status": "DELIVERED",
		"shipment_status_id": 7,
		"current_timestamp": "x",
		"scans": [
			{"date": "14 10 2025 10:00:00", "activity": "Delivered", "location": "Mumbai"}
		]
	}`)

	ev, err := ParseShipmentWebhook(raw, domain.SourceCarrierShipment)
	require.NoError(t, err)

	assert.Equal(t, "4312456", ev.ShipmentID)
	assert.Equal(t, "AWB123456", ev.AWB)
	assert.Equal(t, "Delhivery", ev.CourierName)
	assert.True(t, ev.HasStatusCode)
	assert.Equal(t, 7, ev.StatusCode)
	assert.Equal(t, "DELIVERED", ev.StatusLabel)
	require.Len(t, ev.Scans, 1)
	assert.Equal(t, "Mumbai", ev.Scans[0].Location)
	assert.Equal(t, time.Date(2025, 10, 14, 10, 0, 0, 0, time.UTC), ev.Scans[0].Date)
	// Latest scan stands in for the event timestamp.
	assert.Equal(t, ev.Scans[0].Date, ev.Timestamp)
}

func TestParseShipmentWebhook_NestedTrackingData(t *testing.T) {
	raw := []byte(`{
		"awb_code": "AWB777",
		"tracking_data": {
			"shipment_status_id": 18,
			"current_status": "In Transit",
			"shipment_track_activities": [
				{"date": "10 10 2025 08:00:00", "activity": "Picked Up", "location": "Jaipur"},
				{"date": "11 10 2025 09:30:00", "activity": "In Transit", "location": "Delhi Hub"}
			]
		}
	}`)

	ev, err := ParseShipmentWebhook(raw, domain.SourceCarrierShipment)
	require.NoError(t, err)

	assert.Equal(t, "AWB777", ev.AWB)
	assert.Equal(t, 18, ev.StatusCode)
	require.Len(t, ev.Scans, 2)
	// Scans come back sorted ascending by date regardless of input order.
	assert.True(t, ev.Scans[0].Date.Before(ev.Scans[1].Date))
	assert.Equal(t, "Delhi Hub", ev.Location)
}

func TestParseShipmentWebhook_SingleElementArray(t *testing.T) {
	raw := []byte(`[{"shipment_id": "99", "shipment_status_id": 6}]`)

	ev, err := ParseShipmentWebhook(raw, domain.SourceCarrierShipment)
	require.NoError(t, err)
	assert.Equal(t, "99", ev.ShipmentID)
	assert.Equal(t, 6, ev.StatusCode)
}

func TestParseShipmentWebhook_MultiElementArrayRejected(t *testing.T) {
	raw := []byte(`[{"shipment_status_id": 6}, {"shipment_status_id": 7}]`)

	_, err := ParseShipmentWebhook(raw, domain.SourceCarrierShipment)
	var nerr *domain.NormalizationError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, domain.SourceCarrierShipment, nerr.Source)
}

func TestParseShipmentWebhook_IdentifierKeyedEnvelope(t *testing.T) {
	// Some pushes key the payload by the shipment id itself.
	raw := []byte(`{
		"shipment_id": "555",
		"555": {
			"tracking_data": {
				"current_status_id": 42,
				"current_status": "PICKED UP"
			}
		}
	}`)

	ev, err := ParseShipmentWebhook(raw, domain.SourceCarrierShipment)
	require.NoError(t, err)
	assert.Equal(t, "555", ev.ShipmentID)
	assert.Equal(t, 42, ev.StatusCode)
	assert.Equal(t, "PICKED UP", ev.StatusLabel)
}

func TestParseShipmentWebhook_KeyScanFallback(t *testing.T) {
	// No identifier at top level; the first (sorted) object holding a
	// tracking_data sub-object wins.
	raw := []byte(`{
		"b_entry": {"tracking_data": {"shipment_status_id": 17, "awb_code": "AWB-B"}},
		"zzz": "noise"
	}`)

	ev, err := ParseShipmentWebhook(raw, domain.SourceCarrierShipment)
	require.NoError(t, err)
	assert.Equal(t, 17, ev.StatusCode)
	assert.Equal(t, "AWB-B", ev.AWB)
}

func TestParseShipmentWebhook_StatusCodeAsString(t *testing.T) {
	raw := []byte(`{"awb": "A1", "shipment_status": " 7 "}`)

	ev, err := ParseShipmentWebhook(raw, domain.SourceCarrierShipment)
	require.NoError(t, err)
	assert.True(t, ev.HasStatusCode)
	assert.Equal(t, 7, ev.StatusCode)
}

func TestParseShipmentWebhook_NoStatusField(t *testing.T) {
	raw := []byte(`{"shipment_id": "123", "awb": "AWB1"}`)

	_, err := ParseShipmentWebhook(raw, domain.SourceCarrierShipment)
	var nerr *domain.NormalizationError
	require.ErrorAs(t, err, &nerr)
	assert.Contains(t, nerr.Reason, "status")
}

func TestParseShipmentWebhook_InvalidJSON(t *testing.T) {
	_, err := ParseShipmentWebhook([]byte(`{nope`), domain.SourceCarrierShipment)
	var nerr *domain.NormalizationError
	require.ErrorAs(t, err, &nerr)
}

func TestParseShipmentWebhook_LabelOnlyReturnFlow(t *testing.T) {
	// Return-flow pushes often carry only a status string.
	raw := []byte(`{"awb": "RETAWB1", "current_status": "RETURN Picked Up"}`)

	ev, err := ParseShipmentWebhook(raw, domain.SourceCarrierReturn)
	require.NoError(t, err)
	assert.False(t, ev.HasStatusCode)
	assert.Equal(t, "RETURN Picked Up", ev.StatusLabel)
}

func TestParseCarrierTime(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want time.Time
	}{
		{"14 10 2025 10:00:00", true, time.Date(2025, 10, 14, 10, 0, 0, 0, time.UTC)},
		{"2025-10-14T10:00:00Z", true, time.Date(2025, 10, 14, 10, 0, 0, 0, time.UTC)},
		{"2025-10-14 10:00:00", true, time.Date(2025, 10, 14, 10, 0, 0, 0, time.UTC)},
		{"2025-10-14", true, time.Date(2025, 10, 14, 0, 0, 0, 0, time.UTC)},
		{"not a date", false, time.Time{}},
	}
	for _, tc := range tests {
		got, ok := parseCarrierTime(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.True(t, got.Equal(tc.want), tc.in)
		}
	}
}
