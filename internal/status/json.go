package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Pins          []PinJSON  `json:"pins"`
	Phase         int        `json:"phase"`
	Writes        int        `json:"writes"`
	Cycles        int        `json:"cycles"`
	LastWrite     string     `json:"last_write,omitempty"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Config        ConfigJSON `json:"config"`
}

// PinJSON is the JSON representation of one output pin.
type PinJSON struct {
	Pin    int    `json:"pin"`
	Level  string `json:"level"`
	Writes int    `json:"writes"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PinA     int    `json:"pin_a"`
	PinB     int    `json:"pin_b"`
	DwellMs  int64  `json:"dwell_ms"`
	Driver   string `json:"driver"`
	Cycles   int    `json:"cycles"`
	Broker   string `json:"broker,omitempty"`
	HTTPAddr string `json:"http_addr,omitempty"`
}

// LevelOrUnknown renders a pin level, "UNKNOWN" before the first write.
func LevelOrUnknown(p PinState) string {
	if p.Level == "" {
		return "UNKNOWN"
	}
	return string(p.Level)
}

func buildInner(snap Snapshot) StatusInner {
	pins := make([]PinJSON, len(snap.Pins))
	for i, p := range snap.Pins {
		pins[i] = PinJSON{Pin: p.Pin, Level: LevelOrUnknown(p), Writes: p.Writes}
	}

	inner := StatusInner{
		Pins:          pins,
		Phase:         snap.Phase,
		Writes:        snap.Counts.Writes,
		Cycles:        snap.Counts.Cycles,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PinA:     snap.Config.PinA,
			PinB:     snap.Config.PinB,
			DwellMs:  snap.Config.DwellMs,
			Driver:   snap.Config.Driver,
			Cycles:   snap.Config.Cycles,
			Broker:   snap.Config.Broker,
			HTTPAddr: snap.Config.HTTPAddr,
		},
	}
	if !snap.LastWrite.IsZero() {
		inner.LastWrite = snap.LastWrite.UTC().Format(time.RFC3339Nano)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
