package coord

import (
	"context"
	"log/slog"
	"time"
)

// Monitor is the liveness sweep: on a fixed period it marks agents whose
// heartbeats have gone stale as offline and lets the coordinator re-elect
// the lead if needed. It never removes agents or releases their claims;
// only RemoveAgent does that.
type Monitor struct {
	coord    *Coordinator
	interval time.Duration
	timeout  time.Duration
}

func NewMonitor(coord *Coordinator, interval, timeout time.Duration) *Monitor {
	return &Monitor{
		coord:    coord,
		interval: interval,
		timeout:  timeout,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	slog.Info("liveness monitor started", "interval", m.interval, "timeout", m.timeout)
	for {
		select {
		case <-ctx.Done():
			slog.Info("liveness monitor stopped")
			return nil
		case <-ticker.C:
			marked, err := m.coord.MarkAgentsOffline(ctx, m.timeout)
			if err != nil {
				slog.Error("liveness sweep failed", "error", err)
				continue
			}
			if len(marked) > 0 {
				slog.Warn("marked agents offline", "agents", marked)
			}
		}
	}
}
