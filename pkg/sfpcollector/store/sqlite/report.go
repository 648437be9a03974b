package sqlitestore

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vpbank/sfp_collector/models"
)

// reportRow is the flattened database form of an SFPReport header.
type reportRow struct {
	ReportID       string    `db:"report_id"`
	Hostname       string    `db:"hostname"`
	IPAddress      string    `db:"ip_address"`
	SNMPVersion    string    `db:"snmp_version"`
	Identity       string    `db:"identity"`
	Model          string    `db:"model"`
	CollectedAt    time.Time `db:"collected_at"`
	CollectorID    string    `db:"collector_id"`
	PollDurationMs int64     `db:"poll_duration_ms"`
	PollStatus     string    `db:"poll_status"`
}

// portRow is the flattened database form of a PortRecord. Identity and
// diagnostics columns are NULL when the corresponding field is absent.
type portRow struct {
	ReportID    string   `db:"report_id"`
	PortIndex   int      `db:"port_index"`
	Present     bool     `db:"present"`
	HasDDM      bool     `db:"has_ddm"`
	ReadFailed  bool     `db:"read_failed"`
	Vendor      *string  `db:"vendor"`
	PartNumber  *string  `db:"part_number"`
	Revision    *string  `db:"revision"`
	Serial      *string  `db:"serial"`
	DateCode    *string  `db:"date_code"`
	ModuleType  *string  `db:"module_type"`
	Temperature *float64 `db:"temperature"`
	Voltage     *float64 `db:"voltage"`
	TxBias      *float64 `db:"tx_bias"`
	TxPower     *float64 `db:"tx_power"`
	RxPower     *float64 `db:"rx_power"`
}

// AddReport persists a full collection cycle: the report header plus one row
// per port, all in a single transaction.
func (s *SqliteStore) AddReport(report models.SFPReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := reportRow{
		ReportID:       uuid.NewString(),
		Hostname:       report.Device.Hostname,
		IPAddress:      report.Device.IPAddress,
		SNMPVersion:    report.Device.SNMPVersion,
		Identity:       report.Device.Identity,
		Model:          report.Device.Model,
		CollectedAt:    report.Timestamp.UTC(),
		CollectorID:    report.Metadata.CollectorID,
		PollDurationMs: report.Metadata.PollDurationMs,
		PollStatus:     report.Metadata.PollStatus,
	}

	_, err = tx.NamedExec(
		`INSERT INTO reports (
			report_id,
			hostname,
			ip_address,
			snmp_version,
			identity,
			model,
			collected_at,
			collector_id,
			poll_duration_ms,
			poll_status)
		 VALUES(
			:report_id,
			:hostname,
			:ip_address,
			:snmp_version,
			:identity,
			:model,
			:collected_at,
			:collector_id,
			:poll_duration_ms,
			:poll_status)`, row)
	if err != nil {
		return err
	}

	for _, port := range report.Ports {
		_, err = tx.NamedExec(
			`INSERT INTO port_records (
				report_id,
				port_index,
				present,
				has_ddm,
				read_failed,
				vendor,
				part_number,
				revision,
				serial,
				date_code,
				module_type,
				temperature,
				voltage,
				tx_bias,
				tx_power,
				rx_power)
			 VALUES(
				:report_id,
				:port_index,
				:present,
				:has_ddm,
				:read_failed,
				:vendor,
				:part_number,
				:revision,
				:serial,
				:date_code,
				:module_type,
				:temperature,
				:voltage,
				:tx_bias,
				:tx_power,
				:rx_power)`, toPortRow(row.ReportID, port))
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LatestReport returns the most recent stored report for the given hostname.
// ErrNotFound is returned when the device has never been collected.
func (s *SqliteStore) LatestReport(hostname string) (models.SFPReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row reportRow
	err := s.db.QueryRowx(
		`SELECT * FROM reports WHERE hostname = ?
		 ORDER BY collected_at DESC LIMIT 1`, hostname).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SFPReport{}, ErrNotFound
	}
	if err != nil {
		return models.SFPReport{}, err
	}

	return s.assembleReport(row)
}

// ReportHistory returns up to limit reports for the given hostname, newest
// first. A limit of zero or less means no limit.
func (s *SqliteStore) ReportHistory(hostname string, limit int) ([]models.SFPReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1 // sqlite treats a negative LIMIT as unbounded
	}

	var rows []reportRow
	err := s.db.Select(&rows,
		`SELECT * FROM reports WHERE hostname = ?
		 ORDER BY collected_at DESC LIMIT ?`, hostname, limit)
	if err != nil {
		return nil, err
	}

	reports := make([]models.SFPReport, 0, len(rows))
	for _, row := range rows {
		report, err := s.assembleReport(row)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// ListHostnames returns the hostnames of every device with at least one
// stored report, sorted alphabetically.
func (s *SqliteStore) ListHostnames() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hostnames := []string{}
	return hostnames, s.db.Select(&hostnames,
		"SELECT DISTINCT hostname FROM reports ORDER BY hostname")
}

func (s *SqliteStore) assembleReport(row reportRow) (models.SFPReport, error) {
	var ports []portRow
	err := s.db.Select(&ports,
		`SELECT * FROM port_records WHERE report_id = ?
		 ORDER BY port_index`, row.ReportID)
	if err != nil {
		return models.SFPReport{}, err
	}

	report := models.SFPReport{
		Timestamp: row.CollectedAt,
		Device: models.Device{
			Hostname:    row.Hostname,
			IPAddress:   row.IPAddress,
			SNMPVersion: row.SNMPVersion,
			Identity:    row.Identity,
			Model:       row.Model,
		},
		Ports: make([]models.PortRecord, 0, len(ports)),
		Metadata: models.ReportMetadata{
			CollectorID:    row.CollectorID,
			PollDurationMs: row.PollDurationMs,
			PollStatus:     row.PollStatus,
		},
	}
	for _, port := range ports {
		report.Ports = append(report.Ports, fromPortRow(port))
	}
	return report, nil
}

func toPortRow(reportID string, port models.PortRecord) portRow {
	row := portRow{
		ReportID:   reportID,
		PortIndex:  port.PortIndex,
		ReadFailed: port.ReadFailed,
	}
	if v := port.VendorInfo; v != nil {
		row.Present = true
		row.Vendor = v.Vendor
		row.PartNumber = v.PartNumber
		row.Revision = v.Revision
		row.Serial = v.Serial
		row.DateCode = v.Date
		row.ModuleType = v.Type
	}
	if d := port.Diagnostics; d != nil {
		row.HasDDM = true
		row.Temperature = d.Temperature
		row.Voltage = d.Voltage
		row.TxBias = d.TxBias
		row.TxPower = d.TxPower
		row.RxPower = d.RxPower
	}
	return row
}

func fromPortRow(row portRow) models.PortRecord {
	port := models.PortRecord{PortIndex: row.PortIndex, ReadFailed: row.ReadFailed}
	if row.Present {
		port.VendorInfo = &models.VendorInfo{
			Vendor:     row.Vendor,
			PartNumber: row.PartNumber,
			Revision:   row.Revision,
			Serial:     row.Serial,
			Date:       row.DateCode,
			Type:       row.ModuleType,
		}
	}
	if row.HasDDM {
		port.Diagnostics = &models.DiagnosticsReading{
			Temperature: row.Temperature,
			Voltage:     row.Voltage,
			TxBias:      row.TxBias,
			TxPower:     row.TxPower,
			RxPower:     row.RxPower,
		}
	}
	return port
}
