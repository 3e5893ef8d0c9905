package capacity

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tm2pc/txmanager/pkg/config"
	"github.com/tm2pc/txmanager/pkg/metrics"
)

// Backpressured is satisfied by internal/actuator.Actuator; kept narrow so
// this package never imports the actuator directly.
type Backpressured interface {
	SetBackpressure(factor float64)
}

// Sample is one host resource reading.
type Sample struct {
	CPUPercent float64
	MemPercent float64
	At         time.Time
}

// Logger is the narrow logging surface this package needs.
type Logger interface {
	Warn(msg string, fields ...interface{})
}

// Sampler periodically reads host CPU and memory utilization via gopsutil
// and, when either crosses its configured threshold, widens the actuator's
// retry back-pressure so a loaded host doesn't pile up retries against
// already-struggling participants.
type Sampler struct {
	cfg      config.CapacityConfig
	actuator Backpressured
	logger   Logger
}

func NewSampler(cfg config.CapacityConfig, actuator Backpressured, logger Logger) *Sampler {
	return &Sampler{cfg: cfg, actuator: actuator, logger: logger}
}

// Run samples at cfg.SampleInterval until ctx is done.
func (s *Sampler) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.SampleInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample, err := s.sampleOnce()
			if err != nil {
				if s.logger != nil {
					s.logger.Warn("capacity: sample failed", "error", err.Error())
				}
				continue
			}
			s.apply(sample)
		}
	}
}

func (s *Sampler) sampleOnce() (Sample, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return Sample{}, err
	}
	var cpuPct float64
	if len(percents) > 0 {
		cpuPct = percents[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return Sample{}, err
	}

	return Sample{CPUPercent: cpuPct, MemPercent: vm.UsedPercent, At: time.Now()}, nil
}

func (s *Sampler) apply(sample Sample) {
	metrics.HostCPUPercent.Set(sample.CPUPercent)
	metrics.HostMemPercent.Set(sample.MemPercent)

	factor := 1.0
	if sample.CPUPercent >= s.cfg.CPUThreshold || sample.MemPercent >= s.cfg.MemThreshold {
		factor = 2.0
	}
	if s.actuator != nil {
		s.actuator.SetBackpressure(factor)
	}
}
