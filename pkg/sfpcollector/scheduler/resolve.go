// Package scheduler coordinates interval-based poll job dispatch. It turns
// the loaded device configuration into concrete PollJob values, maintains a
// per-device timer, and fires jobs into the poller WorkerPool at the
// configured cadence.
package scheduler

import (
	"log/slog"
	"sort"

	"github.com/vpbank/sfp_collector/models"
	"github.com/vpbank/sfp_collector/pkg/sfpcollector/config"
	"github.com/vpbank/sfp_collector/pkg/sfpcollector/poller"
)

// ResolveJobs returns one PollJob per configured device. Devices without any
// SFP ports are skipped with a warning, since a sweep of zero ports can never
// produce a record.
func ResolveJobs(cfg *config.LoadedConfig, logger *slog.Logger) []poller.PollJob {
	if cfg == nil {
		return nil
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	// Sort hostnames for deterministic output (helps testing + debugging).
	hostnames := make([]string, 0, len(cfg.Devices))
	for h := range cfg.Devices {
		hostnames = append(hostnames, h)
	}
	sort.Strings(hostnames)

	var jobs []poller.PollJob
	for _, hostname := range hostnames {
		devCfg := cfg.Devices[hostname]
		if len(devCfg.SFPPorts) == 0 {
			logger.Warn("scheduler: device has no sfp_ports, skipping", "hostname", hostname)
			continue
		}
		jobs = append(jobs, poller.PollJob{
			Hostname: hostname,
			Device: models.Device{
				Hostname:    hostname,
				IPAddress:   devCfg.IP,
				SNMPVersion: devCfg.Version,
				Identity:    devCfg.Identity,
				Model:       devCfg.Model,
			},
			DeviceConfig: devCfg,
		})
	}
	return jobs
}

// jobsByHostname groups a flat job slice by hostname.
func jobsByHostname(jobs []poller.PollJob) map[string][]poller.PollJob {
	m := make(map[string][]poller.PollJob)
	for _, j := range jobs {
		m[j.Hostname] = append(m[j.Hostname], j)
	}
	return m
}
