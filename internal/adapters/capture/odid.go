package capture

import (
	"time"

	"github.com/cursedremoteid/edge/internal/core/domain"
)

// Open Drone ID message types, per the basic message set carried in the
// vendor-specific information element / BLE service-data payload.
const (
	msgTypeBasicID     = 0x0
	msgTypeLocation    = 0x1
	msgTypeAuth        = 0x2
	msgTypeSelfID      = 0x3
	msgTypeSystem      = 0x4
	msgTypeOperatorID  = 0x5
	msgTypeMessagePack = 0xF
)

// odidOUI is the vendor OUI Open Drone ID payloads are carried under in a
// Wi-Fi vendor-specific information element (ID 221).
var odidOUI = [3]byte{0xFA, 0x0B, 0xBC}

// extractWiFiVendorIE walks a beacon/action frame's information elements
// looking for the Open Drone ID vendor-specific IE, the same manual
// id/length/value walk used elsewhere in this codebase for IE parsing.
// It returns the vendor payload (after the OUI and vendor type byte) or
// nil if no matching IE was found.
func extractWiFiVendorIE(data []byte) []byte {
	offset := 0
	limit := len(data)

	for offset+1 < limit {
		id := int(data[offset])
		length := int(data[offset+1])
		offset += 2

		if offset+length > limit {
			break
		}
		val := data[offset : offset+length]
		offset += length

		if id != 221 || len(val) < 4 {
			continue
		}
		if val[0] == odidOUI[0] && val[1] == odidOUI[1] && val[2] == odidOUI[2] {
			return val[4:] // skip OUI (3) + vendor message type (1)
		}
	}
	return nil
}

// parseOpenDroneID decodes a concatenation of 25-byte Open Drone ID
// messages, each carrying its message type in the high nibble of its
// first byte, into an OpenDroneID record. A message-pack header (type,
// message size and message count bytes) is skipped so the packed
// messages after it are decoded in turn. frameEpoch is the capture-time wall clock
// used to reconstruct the absolute timestamp. Messages this function
// does not recognize are skipped; only basic-id and location/vector
// messages contribute fields, matching the record shape spec §3 needs.
func parseOpenDroneID(payload []byte, frameEpoch time.Time) *domain.OpenDroneID {
	if len(payload) == 0 {
		return nil
	}

	odid := &domain.OpenDroneID{FrameEpoch: frameEpoch}
	found := false

	for offset := 0; offset < len(payload); {
		header := payload[offset]
		msgType := header >> 4

		if msgType == msgTypeMessagePack {
			// A message-pack header: the bytes after it are the
			// concatenated single messages handled by this loop.
			offset += 3
			continue
		}

		const msgLen = 25
		if offset+msgLen > len(payload) {
			break
		}
		msg := payload[offset : offset+msgLen]
		offset += msgLen

		switch msgType {
		case msgTypeBasicID:
			odid.UniqueID = decodeUniqueID(msg)
			found = true
		case msgTypeLocation:
			decodeLocation(msg, odid)
			found = true
		}
	}

	if !found {
		return nil
	}
	return odid
}

func decodeUniqueID(msg []byte) string {
	if len(msg) < 21 {
		return ""
	}
	raw := msg[1:21]
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	return string(raw[:end])
}

func decodeLocation(msg []byte, odid *domain.OpenDroneID) {
	if len(msg) < 24 {
		return
	}

	statusAndFlags := msg[0]
	_ = statusAndFlags

	odid.HeightType = int((msg[1] >> 2) & 0x1)

	odid.Heading = int(msg[2])<<8 | int(msg[3])
	odid.GndSpeed = float64(msg[4]) * 0.25
	vertRaw := int8(msg[5])
	odid.VertSpeed = float64(vertRaw) * 0.5

	odid.Lat = decodeFixedPoint(msg[6:10])
	odid.Lon = decodeFixedPoint(msg[10:14])

	geoAltRaw := int32(msg[14])<<8 | int32(msg[15])
	odid.GeoAlt = int((geoAltRaw + 1000) / 2)
	odid.GeoAltPresent = true

	odid.HeightRaw = int32(msg[16])<<8 | int32(msg[17])
	odid.HeightPresent = true

	odid.BaroAltRaw = int32(msg[18])<<8 | int32(msg[19])
	odid.BaroAltPresent = true

	accByte := msg[20]
	odid.HorzAcc = int(accByte & 0x0F)
	odid.GeoVertAcc = int((accByte >> 4) & 0x0F)

	acc2 := msg[21]
	odid.SpeedAcc = int(acc2 & 0x0F)
	odid.BaroAltAcc = int((acc2 >> 4) & 0x0F)

	decisecondsRaw := int32(msg[22])<<8 | int32(msg[23])
	odid.LocTimestampDeciseconds = decisecondsRaw
}

func decodeFixedPoint(b []byte) float64 {
	raw := int32(b[0])<<24 | int32(b[1])<<16 | int32(b[2])<<8 | int32(b[3])
	return float64(raw) / 1e7
}
