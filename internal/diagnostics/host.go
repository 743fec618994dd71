// Package diagnostics gathers runtime facts about the host process for the
// configuration resource and the verify command.
package diagnostics

import (
	"context"
	"os"
	"runtime"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/process"
)

// Host summarises the machine and process the server runs in. Fields that
// cannot be read on the current platform are left empty.
type Host struct {
	Hostname      string `json:"hostname,omitempty"`
	OS            string `json:"os"`
	Platform      string `json:"platform,omitempty"`
	KernelVersion string `json:"kernel_version,omitempty"`
	LogicalCPUs   int    `json:"logical_cpus,omitempty"`
	GoVersion     string `json:"go_version"`
	Goroutines    int    `json:"goroutines"`
	PID           int    `json:"pid"`
	RSS           string `json:"rss,omitempty"`
	Uptime        string `json:"process_uptime,omitempty"`
}

// CollectHost reads host and process information. It never fails; lookups
// that error are skipped.
func CollectHost(ctx context.Context) Host {
	h := Host{
		OS:         runtime.GOOS,
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		PID:        os.Getpid(),
	}
	if info, err := host.InfoWithContext(ctx); err == nil && info != nil {
		h.Hostname = info.Hostname
		h.Platform = info.Platform
		if info.PlatformVersion != "" {
			h.Platform += " " + info.PlatformVersion
		}
		h.KernelVersion = info.KernelVersion
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		h.LogicalCPUs = n
	}
	proc, err := process.NewProcessWithContext(ctx, int32(h.PID))
	if err != nil {
		return h
	}
	if mem, err := proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		h.RSS = humanize.IBytes(mem.RSS)
	}
	if created, err := proc.CreateTimeWithContext(ctx); err == nil && created > 0 {
		h.Uptime = time.Since(time.UnixMilli(created)).Round(time.Second).String()
	}
	return h
}
