package httpserver

import (
	"log/slog"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/process"
)

type processInfo struct {
	PID        int     `json:"pid"`
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	Goroutines int     `json:"goroutines"`
}

// processSampler reads this process's resource usage for the health report.
// Fields the platform cannot provide are left zero.
type processSampler struct {
	log  *slog.Logger
	pid  int
	proc *process.Process
}

func newProcessSampler(log *slog.Logger) *processSampler {
	pid := os.Getpid()
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		log.Warn("process stats unavailable", "err", err)
	}
	return &processSampler{log: log, pid: pid, proc: p}
}

func (s *processSampler) sample() processInfo {
	info := processInfo{PID: s.pid, Goroutines: runtime.NumGoroutine()}
	if s.proc == nil {
		return info
	}
	if mem, err := s.proc.MemoryInfo(); err == nil {
		info.RSSBytes = mem.RSS
	} else {
		s.log.Debug("process memory sample failed", "err", err)
	}
	if cpu, err := s.proc.CPUPercent(); err == nil {
		info.CPUPercent = cpu
	}
	return info
}
