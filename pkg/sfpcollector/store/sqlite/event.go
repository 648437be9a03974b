package sqlitestore

import (
	"time"

	"github.com/google/uuid"

	"github.com/vpbank/sfp_collector/models"
)

// eventRow is the flattened database form of a ModuleEvent.
type eventRow struct {
	EventID    string    `db:"event_id"`
	OccurredAt time.Time `db:"occurred_at"`
	Hostname   string    `db:"hostname"`
	IPAddress  string    `db:"ip_address"`
	PortIndex  int       `db:"port_index"`
	Kind       string    `db:"kind"`
	Previous   string    `db:"previous"`
	Vendor     *string   `db:"vendor"`
	Serial     *string   `db:"serial"`
}

// AddEvent persists a single module state-change event.
func (s *SqliteStore) AddEvent(ev models.ModuleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := eventRow{
		EventID:    uuid.NewString(),
		OccurredAt: ev.Timestamp.UTC(),
		Hostname:   ev.Device.Hostname,
		IPAddress:  ev.Device.IPAddress,
		PortIndex:  ev.EventInfo.PortIndex,
		Kind:       ev.EventInfo.Kind,
		Previous:   ev.EventInfo.Previous,
	}
	if ev.Vendor != nil {
		row.Vendor = ev.Vendor.Vendor
		row.Serial = ev.Vendor.Serial
	}

	_, err := s.db.NamedExec(
		`INSERT INTO module_events (
			event_id,
			occurred_at,
			hostname,
			ip_address,
			port_index,
			kind,
			previous,
			vendor,
			serial)
		 VALUES(
			:event_id,
			:occurred_at,
			:hostname,
			:ip_address,
			:port_index,
			:kind,
			:previous,
			:vendor,
			:serial)`, row)
	return err
}

// ListEvents returns up to limit events for the given hostname, newest first.
// An empty hostname matches all devices; a limit of zero or less means no
// limit.
func (s *SqliteStore) ListEvents(hostname string, limit int) ([]models.ModuleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}

	var rows []eventRow
	var err error
	if hostname == "" {
		err = s.db.Select(&rows,
			`SELECT * FROM module_events
			 ORDER BY occurred_at DESC LIMIT ?`, limit)
	} else {
		err = s.db.Select(&rows,
			`SELECT * FROM module_events WHERE hostname = ?
			 ORDER BY occurred_at DESC LIMIT ?`, hostname, limit)
	}
	if err != nil {
		return nil, err
	}

	events := make([]models.ModuleEvent, 0, len(rows))
	for _, row := range rows {
		ev := models.ModuleEvent{
			Timestamp: row.OccurredAt,
			Device: models.Device{
				Hostname:  row.Hostname,
				IPAddress: row.IPAddress,
			},
			EventInfo: models.EventInfo{
				PortIndex: row.PortIndex,
				Kind:      row.Kind,
				Previous:  row.Previous,
			},
		}
		if row.Vendor != nil || row.Serial != nil {
			ev.Vendor = &models.VendorInfo{
				Vendor: row.Vendor,
				Serial: row.Serial,
			}
		}
		events = append(events, ev)
	}
	return events, nil
}
