package capture

import (
	"testing"
	"time"
)

func buildBasicIDMessage(uniqueID string) []byte {
	msg := make([]byte, 25)
	header := byte(msgTypeBasicID) << 4
	msg[0] = header
	copy(msg[1:21], []byte(uniqueID))
	return msg
}

func buildLocationMessage() []byte {
	msg := make([]byte, 25)
	msg[0] = byte(msgTypeLocation) << 4
	msg[1] = 0
	msg[2] = 0
	msg[3] = 90 // heading 90
	msg[4] = 20 // gnd speed raw -> 5.0
	vertRaw := int8(-10)
	msg[5] = byte(vertRaw)

	putFixedPoint(msg[6:10], 40.0)
	putFixedPoint(msg[10:14], -3.0)

	geoAltRaw := int16(200) // -> (200+1000)/2 = 600
	msg[14] = byte(geoAltRaw >> 8)
	msg[15] = byte(geoAltRaw)

	heightRaw := int16(100)
	msg[16] = byte(heightRaw >> 8)
	msg[17] = byte(heightRaw)

	baroAltRaw := int16(31768)
	msg[18] = byte(baroAltRaw >> 8)
	msg[19] = byte(baroAltRaw)

	msg[20] = byte(3 | (2 << 4))   // horz_acc=3, geo_vert_acc=2
	msg[21] = byte(1 | (0 << 4))   // speed_acc=1, baro_alt_acc=0

	decisec := int16(125)
	msg[22] = byte(decisec >> 8)
	msg[23] = byte(decisec)

	return msg
}

func putFixedPoint(b []byte, v float64) {
	raw := int32(v * 1e7)
	b[0] = byte(raw >> 24)
	b[1] = byte(raw >> 16)
	b[2] = byte(raw >> 8)
	b[3] = byte(raw)
}

func TestParseOpenDroneID_BasicIDAndLocation(t *testing.T) {
	payload := append(buildBasicIDMessage("drone-01"), buildLocationMessage()...)
	now := time.Unix(1_700_000_000, 0).UTC()

	odid := parseOpenDroneID(payload, now)
	if odid == nil {
		t.Fatal("expected non-nil OpenDroneID")
	}
	if odid.UniqueID != "drone-01" {
		t.Errorf("UniqueID = %q", odid.UniqueID)
	}
	if !odid.GeoAltPresent || odid.GeoAlt != 600 {
		t.Errorf("GeoAlt = %d (present=%v), want 600", odid.GeoAlt, odid.GeoAltPresent)
	}
	if odid.BaroAltRaw != 31768 {
		t.Errorf("BaroAltRaw = %d, want 31768 (sentinel raw)", odid.BaroAltRaw)
	}
	if odid.HorzAcc != 3 || odid.GeoVertAcc != 2 {
		t.Errorf("HorzAcc=%d GeoVertAcc=%d, want 3,2", odid.HorzAcc, odid.GeoVertAcc)
	}
	if odid.LocTimestampDeciseconds != 125 {
		t.Errorf("LocTimestampDeciseconds = %d, want 125", odid.LocTimestampDeciseconds)
	}
}

func TestParseOpenDroneID_EmptyPayload(t *testing.T) {
	if odid := parseOpenDroneID(nil, time.Now()); odid != nil {
		t.Fatal("expected nil for empty payload")
	}
}

func TestDecodeUniqueID_StripsTrailingZeros(t *testing.T) {
	msg := buildBasicIDMessage("ab")
	got := decodeUniqueID(msg)
	if got != "ab" {
		t.Errorf("decodeUniqueID() = %q, want %q", got, "ab")
	}
}

func TestDecodeFixedPoint_RoundTrips(t *testing.T) {
	b := make([]byte, 4)
	putFixedPoint(b, 12.3456789)
	got := decodeFixedPoint(b)
	if got < 12.34 || got > 12.35 {
		t.Errorf("decodeFixedPoint() = %v, want ~12.3457", got)
	}
}
