// Package stats normalizes raw control-plane counters into the metric
// vocabulary served over SNMP.
package stats

import "github.com/mancow2001/ntx-custom-monitor/pkg/models"

// Conversion describes how a raw counter becomes a metric value.
type Conversion int

const (
	// Ratio divides by Scale and rounds to two decimals.
	Ratio Conversion = iota
	// Count truncates to an integer.
	Count
	// Text passes a string through unchanged.
	Text
)

// Definition binds a metric to its OID metric id, its raw source key and
// the configuration gate that enables it.
type Definition struct {
	ID         uint32
	Key        string
	RawKey     string
	Gate       string
	Conversion Conversion
	Scale      float64
}

const (
	ppmToPercent  = 10000
	usecToMsec    = 1000
	kbpsToMbps    = 1024
	bytesToGiB    = 1024 * 1024 * 1024
	unscaledCount = 1
)

var clusterDefinitions = []Definition{
	{ID: 1, Key: "cpu_usage_percent", RawKey: "hypervisor_cpu_usage_ppm", Gate: "cpu_usage", Conversion: Ratio, Scale: ppmToPercent},
	{ID: 2, Key: "memory_usage_percent", RawKey: "hypervisor_memory_usage_ppm", Gate: "memory_usage", Conversion: Ratio, Scale: ppmToPercent},
	{ID: 3, Key: "avg_io_latency_ms", RawKey: "controller_avg_io_latency_usecs", Gate: "io_latency", Conversion: Ratio, Scale: usecToMsec},
	{ID: 4, Key: "avg_read_latency_ms", RawKey: "controller_avg_read_io_latency_usecs", Gate: "read_latency", Conversion: Ratio, Scale: usecToMsec},
	{ID: 5, Key: "avg_write_latency_ms", RawKey: "controller_avg_write_io_latency_usecs", Gate: "write_latency", Conversion: Ratio, Scale: usecToMsec},
	{ID: 6, Key: "io_bandwidth_mbps", RawKey: "controller_io_bandwidth_kBps", Gate: "io_bandwidth", Conversion: Ratio, Scale: kbpsToMbps},
	{ID: 7, Key: "iops", RawKey: "controller_num_iops", Gate: "iops", Conversion: Count, Scale: unscaledCount},
	{ID: 8, Key: "read_iops", RawKey: "controller_num_read_iops", Gate: "read_iops", Conversion: Count, Scale: unscaledCount},
	{ID: 9, Key: "write_iops", RawKey: "controller_num_write_iops", Gate: "write_iops", Conversion: Count, Scale: unscaledCount},
}

var hostDefinitions = []Definition{
	{ID: 1, Key: "cpu_usage_percent", RawKey: "hypervisor_cpu_usage_ppm", Gate: "cpu_usage", Conversion: Ratio, Scale: ppmToPercent},
	{ID: 2, Key: "memory_usage_percent", RawKey: "hypervisor_memory_usage_ppm", Gate: "memory_usage", Conversion: Ratio, Scale: ppmToPercent},
	{ID: 3, Key: "avg_io_latency_ms", RawKey: "controller_avg_io_latency_usecs", Gate: "io_latency", Conversion: Ratio, Scale: usecToMsec},
	{ID: 4, Key: "io_bandwidth_mbps", RawKey: "controller_io_bandwidth_kBps", Gate: "io_bandwidth", Conversion: Ratio, Scale: kbpsToMbps},
	{ID: 5, Key: "iops", RawKey: "controller_num_iops", Gate: "iops", Conversion: Count, Scale: unscaledCount},
	{ID: 6, Key: "num_vms", RawKey: "hypervisor_num_vms", Gate: "vm_count", Conversion: Count, Scale: unscaledCount},
	{ID: 7, Key: "hypervisor_type", RawKey: "hypervisor_type", Gate: "hypervisor_type", Conversion: Text},
	{ID: 8, Key: "state", RawKey: "state", Gate: "state", Conversion: Text},
}

var vmDefinitions = []Definition{
	{ID: 1, Key: "cpu_usage_percent", RawKey: "hypervisor_cpu_usage_ppm", Gate: "cpu_usage", Conversion: Ratio, Scale: ppmToPercent},
	{ID: 2, Key: "memory_usage_percent", RawKey: "hypervisor_memory_usage_ppm", Gate: "memory_usage", Conversion: Ratio, Scale: ppmToPercent},
	{ID: 3, Key: "disk_usage_gb", RawKey: "storage_usage_bytes", Gate: "disk_usage", Conversion: Ratio, Scale: bytesToGiB},
	{ID: 4, Key: "power_state", RawKey: "power_state", Gate: "power_state", Conversion: Text},
	{ID: 5, Key: "vm_state", RawKey: "state", Gate: "vm_state", Conversion: Text},
}

// Definitions returns the fixed metric table for kind, ordered by metric id.
// The returned slice must not be modified.
func Definitions(kind models.EntityKind) []Definition {
	switch kind {
	case models.KindCluster:
		return clusterDefinitions
	case models.KindHost:
		return hostDefinitions
	case models.KindVM:
		return vmDefinitions
	default:
		return nil
	}
}

// Lookup returns the definition with the given metric id for kind.
func Lookup(kind models.EntityKind, id uint32) (Definition, bool) {
	for _, d := range Definitions(kind) {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// Gates returns every configuration gate name defined for kind.
func Gates(kind models.EntityKind) []string {
	defs := Definitions(kind)
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Gate)
	}
	return out
}
