package models

import "time"

// ModuleEvent is the top-level payload for an asynchronous module state change
// detected between two consecutive collection cycles of the same device.
type ModuleEvent struct {
	Timestamp time.Time   `json:"timestamp"`
	Device    Device      `json:"device"`
	EventInfo EventInfo   `json:"event_info"`
	Vendor    *VendorInfo `json:"vendor_info,omitempty"`
}

// EventInfo carries event-specific fields that are not present in regular
// reports. The "event_info" JSON key is what the split file transport keys on
// when routing events to their own output.
type EventInfo struct {
	PortIndex int    `json:"port_index"`
	Kind      string `json:"kind"`               // "inserted" | "removed" | "ddm_lost" | "ddm_gained"
	Previous  string `json:"previous,omitempty"` // prior presence label
}

// Event kind constants used by the change detector.
const (
	EventInserted  = "inserted"
	EventRemoved   = "removed"
	EventDDMLost   = "ddm_lost"
	EventDDMGained = "ddm_gained"
)
