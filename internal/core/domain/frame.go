package domain

import (
	"strings"
	"time"
)

// LinkType distinguishes the two broadcast media Remote ID observations
// can arrive on. A Frame carries exactly one.
type LinkType int

const (
	LinkWiFi LinkType = iota
	LinkBLE
)

func (l LinkType) String() string {
	if l == LinkBLE {
		return "ble"
	}
	return "wifi"
}

// WiFiFrame is the subset of an 802.11 management frame Packet Capture
// cares about: enough to recover the transmitter address and the channel
// it was heard on. Everything else the dissector produced is discarded at
// this layer.
type WiFiFrame struct {
	TransmitterMAC string
	Channel        int
	RSSI           int
	FrameControl   uint16
}

// BLEFrame is the subset of a BLE advertisement Packet Capture cares
// about.
type BLEFrame struct {
	DeviceBDA string
	RSSI      int
	AdvType   uint8
}

// OpenDroneID is the optional Open Drone ID payload extracted from a
// vendor-specific information element (Wi-Fi) or service-data AD
// structure (BLE). A Frame with a nil OpenDroneID carries no Remote ID
// payload and is dropped by the caller without reaching validation.
type OpenDroneID struct {
	MessageType byte

	UniqueID string

	FrameEpoch              time.Time
	LocTimestampDeciseconds int32

	Heading   int
	GndSpeed  float64
	VertSpeed float64

	Lat float64
	Lon float64

	GeoAlt        int
	GeoAltPresent bool

	BaroAltRaw     int32
	BaroAltPresent bool

	HeightRaw     int32
	HeightPresent bool
	HeightType    int

	SpeedAcc   int
	HorzAcc    int
	GeoVertAcc int
	BaroAltAcc int
}

// Frame is a sum type over the two link-layer shapes Packet Capture can
// dissect, plus the Open Drone ID payload either of them may carry. Only
// one of WiFi or BLE is populated, selected by Link.
type Frame struct {
	Link LinkType
	WiFi *WiFiFrame
	BLE  *BLEFrame

	// OpenDroneID is nil when the frame carried no recognizable Remote ID
	// payload; callers must check before dereferencing.
	OpenDroneID *OpenDroneID
}

// SrcAddr renders the frame's originating address in the spec's src_addr
// wire format ("MAC-"/"BDA-" prefix plus six colon-separated uppercase hex
// octets), or the empty string if the link-specific payload is absent.
func (f Frame) SrcAddr() string {
	switch f.Link {
	case LinkWiFi:
		if f.WiFi == nil {
			return ""
		}
		return "MAC-" + strings.ToUpper(f.WiFi.TransmitterMAC)
	case LinkBLE:
		if f.BLE == nil {
			return ""
		}
		return "BDA-" + strings.ToUpper(f.BLE.DeviceBDA)
	default:
		return ""
	}
}

// Channel returns the Wi-Fi channel the frame was heard on, or 0 for a BLE
// frame (BLE advertisements are not channel-scheduled by the sweeper).
func (f Frame) Channel() int {
	if f.Link == LinkWiFi && f.WiFi != nil {
		return f.WiFi.Channel
	}
	return 0
}

// HasRemoteID reports whether the frame carried an Open Drone ID payload
// at all; frames that don't are dropped before ever reaching RawFields.
func (f Frame) HasRemoteID() bool {
	return f.OpenDroneID != nil
}

// RawFields projects the frame's Open Drone ID payload into the shape
// NewRecord validates. Callers must check HasRemoteID first.
func (f Frame) RawFields() RawFields {
	odid := f.OpenDroneID
	return RawFields{
		SrcAddr:                 f.SrcAddr(),
		UniqueID:                odid.UniqueID,
		FrameEpochSeconds:       odid.FrameEpoch.Unix(),
		LocTimestampDeciseconds: odid.LocTimestampDeciseconds,
		Heading:                 odid.Heading,
		GndSpeed:                odid.GndSpeed,
		VertSpeed:               odid.VertSpeed,
		Lat:                     odid.Lat,
		Lon:                     odid.Lon,
		GeoAlt:                  odid.GeoAlt,
		GeoAltPresent:           odid.GeoAltPresent,
		BaroAltRaw:              odid.BaroAltRaw,
		BaroAltPresent:          odid.BaroAltPresent,
		HeightRaw:               odid.HeightRaw,
		HeightPresent:           odid.HeightPresent,
		HeightType:              odid.HeightType,
		SpeedAcc:                odid.SpeedAcc,
		HorzAcc:                 odid.HorzAcc,
		GeoVertAcc:              odid.GeoVertAcc,
		BaroAltAcc:              odid.BaroAltAcc,
	}
}
