package source

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/mancow2001/ntx-custom-monitor/pkg/models"
)

// Compile-time interface guard.
var _ Source = (*Simulated)(nil)

// simulatedNamespace seeds the deterministic UUIDs handed out by Simulated.
var simulatedNamespace = uuid.MustParse("6f1c9a52-3c1e-4f55-9c0a-4b7f3e2d8a10")

// Simulated is an in-process source producing deterministic, slowly varying
// telemetry. It backs test mode and lets the agent run without Prism.
type Simulated struct {
	clusters []models.EntityRecord
	hosts    []models.EntityRecord
	vms      []models.EntityRecord
	tick     atomic.Uint64
}

// NewSimulated returns a source with the given number of entities per kind.
func NewSimulated(clusters, hostsPerCluster, vmsPerHost int) *Simulated {
	s := &Simulated{}
	for c := 0; c < clusters; c++ {
		s.clusters = append(s.clusters, simEntity(models.KindCluster, fmt.Sprintf("sim-cluster-%d", c+1)))
		for h := 0; h < hostsPerCluster; h++ {
			hostName := fmt.Sprintf("sim-c%d-host-%d", c+1, h+1)
			s.hosts = append(s.hosts, simEntity(models.KindHost, hostName))
			for v := 0; v < vmsPerHost; v++ {
				s.vms = append(s.vms, simEntity(models.KindVM, fmt.Sprintf("%s-vm-%d", hostName, v+1)))
			}
		}
	}
	return s
}

func simEntity(kind models.EntityKind, name string) models.EntityRecord {
	return models.EntityRecord{
		UUID: uuid.NewSHA1(simulatedNamespace, []byte(kind.String()+"/"+name)).String(),
		Name: name,
	}
}

func (s *Simulated) ListClusters(ctx context.Context) ([]models.EntityRecord, error) {
	s.tick.Add(1)
	return s.clusters, ctx.Err()
}

func (s *Simulated) ListHosts(ctx context.Context) ([]models.EntityRecord, error) {
	return s.hosts, ctx.Err()
}

func (s *Simulated) ListVMs(ctx context.Context) ([]models.EntityRecord, error) {
	return s.vms, ctx.Err()
}

func (s *Simulated) ClusterStats(ctx context.Context, id string) (models.RawStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w := s.wave(id)
	return models.RawStats{
		"hypervisor_cpu_usage_ppm":              200000 + 300000*w,
		"hypervisor_memory_usage_ppm":           450000 + 200000*w,
		"controller_avg_io_latency_usecs":       800 + 1200*w,
		"controller_avg_read_io_latency_usecs":  600 + 900*w,
		"controller_avg_write_io_latency_usecs": 1000 + 1500*w,
		"controller_io_bandwidth_kBps":          40960 + 81920*w,
		"controller_num_iops":                   int64(2000 + 6000*w),
		"controller_num_read_iops":              int64(1200 + 3600*w),
		"controller_num_write_iops":             int64(800 + 2400*w),
	}, nil
}

func (s *Simulated) HostStats(ctx context.Context, id string) (models.RawStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w := s.wave(id)
	return models.RawStats{
		"hypervisor_cpu_usage_ppm":        150000 + 500000*w,
		"hypervisor_memory_usage_ppm":     400000 + 300000*w,
		"controller_avg_io_latency_usecs": 700 + 1500*w,
		"controller_io_bandwidth_kBps":    10240 + 30720*w,
		"controller_num_iops":             int64(500 + 2500*w),
		"hypervisor_num_vms":              int64(len(s.vms) / max(len(s.hosts), 1)),
		"hypervisor_type":                 "AHV",
		"state":                           "NORMAL",
	}, nil
}

func (s *Simulated) VMStats(ctx context.Context, id string) (models.RawStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w := s.wave(id)
	return models.RawStats{
		"hypervisor_cpu_usage_ppm":    50000 + 600000*w,
		"hypervisor_memory_usage_ppm": 300000 + 500000*w,
		"storage_usage_bytes":         float64(20<<30) + float64(80<<30)*w,
		"power_state":                 "ON",
		"state":                       "COMPLETE",
	}, nil
}

func (s *Simulated) Healthy() bool { return true }

func (s *Simulated) APIVersion() string { return "simulated" }

// wave returns a value in [0,1] that drifts per collection tick and differs
// per entity.
func (s *Simulated) wave(id string) float64 {
	u := uuid.MustParse(id)
	phase := float64(u[0]) / 255 * 2 * math.Pi
	return (math.Sin(phase+float64(s.tick.Load())/5) + 1) / 2
}
