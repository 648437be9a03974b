// Package models defines the core data structures shared across all layers of
// the SFP Collector. These types represent the canonical in-memory form of all
// collected data; every other package depends on this package and nothing here
// depends on any other internal package.
package models

import "time"

// SFPReport is the top-level payload produced per collection cycle.
// It contains everything the downstream pipeline (formatter → transport) needs:
// the originating device, one record per SFP-capable port, and collection
// metadata.
type SFPReport struct {
	Timestamp time.Time      `json:"timestamp"`
	Device    Device         `json:"device"`
	Ports     []PortRecord   `json:"ports"`
	Metadata  ReportMetadata `json:"metadata,omitempty"`
}

// Device carries identifying information about the monitored switch.
// Optional fields are populated from the device YAML configuration.
type Device struct {
	Hostname    string `json:"hostname"`
	IPAddress   string `json:"ip_address"`
	SNMPVersion string `json:"snmp_version"` // "1", "2c", or "3"
	Identity    string `json:"identity,omitempty"`
	Model       string `json:"model,omitempty"`
}

// PortRecord is the decoded state of a single SFP-capable port. VendorInfo and
// Diagnostics are nil when the module is absent, unreadable, or (for
// Diagnostics) does not implement DDM. The two sub-records are independent: a
// module without DDM still carries full vendor identity.
//
// ReadFailed marks a port whose EEPROM pages were never answered because the
// sweep aborted mid-device. Such a port reports all-missing, which says
// nothing about whether a module is seated.
type PortRecord struct {
	PortIndex   int                 `json:"port_index"`
	ReadFailed  bool                `json:"read_failed,omitempty"`
	VendorInfo  *VendorInfo         `json:"vendor_info,omitempty"`
	Diagnostics *DiagnosticsReading `json:"diagnostics,omitempty"`
}

// VendorInfo holds the fixed-offset ASCII identity fields of the SFF-8472 A0h
// page. Each field is independently optional: nil means the module does not
// carry that field (all-space, all-null, or unprogrammed 0xFF bytes), which is
// distinct from an empty or blank string.
type VendorInfo struct {
	Vendor     *string `json:"vendor,omitempty"`
	PartNumber *string `json:"part_number,omitempty"`
	Revision   *string `json:"revision,omitempty"`
	Serial     *string `json:"serial,omitempty"`
	Date       *string `json:"date,omitempty"`
	Type       *string `json:"type,omitempty"`
}

// DiagnosticsReading holds the five DDM channels in engineering units.
// Fields are nil only when the format itself omits them; a copper module
// reporting zero optical power yields 0.0, not nil.
type DiagnosticsReading struct {
	Temperature *float64 `json:"temperature,omitempty"` // °C
	Voltage     *float64 `json:"voltage,omitempty"`     // V
	TxBias      *float64 `json:"tx_bias,omitempty"`     // mA
	TxPower     *float64 `json:"tx_power,omitempty"`    // dBm
	RxPower     *float64 `json:"rx_power,omitempty"`    // dBm
}

// ReportMetadata carries operational metadata about the collection cycle.
// It is used to monitor the health and performance of the collector itself.
type ReportMetadata struct {
	CollectorID    string `json:"collector_id"`
	PollDurationMs int64  `json:"poll_duration_ms"`
	PollStatus     string `json:"poll_status"` // "success" | "partial" | "error"
}

// ModulePresence reports whether an SFP cage holds a module.
type ModulePresence int

const (
	PresenceAbsent ModulePresence = iota
	PresencePresent
)

// String returns the lower-case presence label.
func (p ModulePresence) String() string {
	if p == PresencePresent {
		return "present"
	}
	return "absent"
}

// ModuleType classifies a module by its connector code. The variant set is
// closed — it is fixed by the SFF-8472 connector-code table, so consumers
// dispatch with a switch rather than polymorphism.
type ModuleType int

const (
	TypeUnknown ModuleType = iota
	TypeCopper
	TypeOptical
)

// String returns the lower-case type label used in VendorInfo.Type.
func (t ModuleType) String() string {
	switch t {
	case TypeCopper:
		return "copper"
	case TypeOptical:
		return "optical"
	default:
		return "unknown"
	}
}
