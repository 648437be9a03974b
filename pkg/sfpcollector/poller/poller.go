package poller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/vpbank/sfp_collector/models"
	"github.com/vpbank/sfp_collector/pkg/sfpcollector/config"
	"github.com/vpbank/sfp_collector/sfp/decoder"
)

// ─────────────────────────────────────────────────────────────────────────────
// PollJob — unit of work
// ─────────────────────────────────────────────────────────────────────────────

// PollJob describes a full EEPROM sweep of one device.
type PollJob struct {
	// Hostname is the key into LoadedConfig.Devices that identifies the target.
	Hostname string

	// Device carries the models.Device fields used in RawPollResult.
	Device models.Device

	// DeviceConfig is the resolved configuration for the device, including
	// the SFP port list and the EEPROM table columns.
	DeviceConfig config.DeviceConfig
}

// ─────────────────────────────────────────────────────────────────────────────
// Poller interface
// ─────────────────────────────────────────────────────────────────────────────

// Poller executes a single device sweep and returns the raw pages.
type Poller interface {
	Poll(ctx context.Context, job PollJob) (decoder.RawPollResult, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// SNMPPoller — production implementation
// ─────────────────────────────────────────────────────────────────────────────

// SNMPPoller is the production Poller backed by a ConnectionPool.
type SNMPPoller struct {
	pool   *ConnectionPool
	logger *slog.Logger
}

// NewSNMPPoller creates a new poller that obtains sessions from pool.
func NewSNMPPoller(pool *ConnectionPool, logger *slog.Logger) *SNMPPoller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &SNMPPoller{pool: pool, logger: logger}
}

// Poll reads both EEPROM pages for every configured SFP port of the device
// and returns them as a RawPollResult.
//
// Each port contributes two instance OIDs, <identity_oid>.<port> and
// <diagnostics_oid>.<port>, batched into as few Get requests as the session's
// MaxOids allows. A noSuchInstance answer for a page is recorded as a nil
// page; only transport-level failures abort the sweep.
func (p *SNMPPoller) Poll(ctx context.Context, job PollJob) (decoder.RawPollResult, error) {
	var result decoder.RawPollResult
	result.Device = job.Device

	if len(job.DeviceConfig.SFPPorts) == 0 {
		return result, fmt.Errorf("poll %s: no sfp_ports configured", job.Hostname)
	}

	conn, err := p.pool.Get(ctx, job.Hostname, job.DeviceConfig)
	if err != nil {
		return result, fmt.Errorf("pool get %s: %w", job.Hostname, err)
	}

	result.PollStartedAt = time.Now()
	pages, err := p.sweepPages(conn, job.DeviceConfig)
	result.CollectedAt = time.Now()

	if err != nil {
		// Connection might be broken — discard it.
		p.pool.Discard(job.Hostname, conn)
		// Ports answered before the failure are still usable; forward them
		// with the unreached ports marked as failed reads. A sweep that read
		// nothing yields no ports and the caller drops the result.
		if len(pages) > 0 {
			result.Ports = assemblePorts(job.DeviceConfig, pages)
		}
		return result, fmt.Errorf("snmp %s: %w", job.Hostname, err)
	}

	// Return connection for reuse.
	p.pool.Put(job.Hostname, conn)

	result.Ports = assemblePorts(job.DeviceConfig, pages)

	p.logger.Debug("poll completed",
		"device", job.Hostname,
		"port_count", len(result.Ports),
		"duration_ms", result.CollectedAt.Sub(result.PollStartedAt).Milliseconds(),
	)
	return result, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// SNMP operation helpers
// ─────────────────────────────────────────────────────────────────────────────

// sweepPages performs the batched Gets and returns raw page bytes keyed by
// instance OID. OIDs the agent rejected (noSuchInstance, noSuchObject, Null)
// map to a nil page; OIDs never answered — a batch after a transport failure —
// have no entry at all, which is how assemblePorts tells an empty cage apart
// from a failed read.
func (p *SNMPPoller) sweepPages(conn *gosnmp.GoSNMP, cfg config.DeviceConfig) (map[string][]byte, error) {
	oids := make([]string, 0, len(cfg.SFPPorts)*2)
	for _, port := range cfg.SFPPorts {
		oids = append(oids,
			fmt.Sprintf("%s.%d", cfg.IdentityOID, port),
			fmt.Sprintf("%s.%d", cfg.DiagnosticsOID, port),
		)
	}

	maxOids := int(conn.MaxOids)
	if maxOids <= 0 {
		maxOids = 60
	}

	pages := make(map[string][]byte, len(oids))
	for i := 0; i < len(oids); i += maxOids {
		end := i + maxOids
		if end > len(oids) {
			end = len(oids)
		}
		pkt, err := conn.Get(oids[i:end])
		if err != nil {
			return pages, err
		}
		for _, pdu := range pkt.Variables {
			pages[strings.TrimPrefix(pdu.Name, ".")] = pageBytes(pdu)
		}
	}
	return pages, nil
}

// pageBytes extracts the OctetString payload of an EEPROM page PDU, or nil
// when the PDU signals that the instance does not exist.
func pageBytes(pdu gosnmp.SnmpPDU) []byte {
	switch pdu.Type {
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
		return nil
	}
	switch v := pdu.Value.(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}

// assemblePorts maps the page table back onto the configured port list,
// preserving configuration order. A port whose identity or diagnostics OID
// has no map entry was never answered and is marked as a failed read.
func assemblePorts(cfg config.DeviceConfig, pages map[string][]byte) []decoder.RawPortRead {
	ports := make([]decoder.RawPortRead, 0, len(cfg.SFPPorts))
	for _, port := range cfg.SFPPorts {
		identity, idOK := pages[fmt.Sprintf("%s.%d", cfg.IdentityOID, port)]
		diagnostics, diagOK := pages[fmt.Sprintf("%s.%d", cfg.DiagnosticsOID, port)]
		ports = append(ports, decoder.RawPortRead{
			PortIndex:   port,
			Identity:    identity,
			Diagnostics: diagnostics,
			ReadFailed:  !idOK || !diagOK,
		})
	}
	return ports
}
