// util/sync.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"log/slog"
	gomath "math"
	"runtime"
	"sync"
	"time"

	"github.com/standoff-sim/standoff/log"

	"github.com/shirou/gopsutil/v3/cpu"
)

///////////////////////////////////////////////////////////////////////////
// LoggingMutex

var heldMutexesMutex sync.Mutex
var heldMutexes map[*LoggingMutex]interface{} = make(map[*LoggingMutex]interface{})

type LoggingMutex struct {
	sync.Mutex
	acq      time.Time
	acqStack []log.StackFrame
}

func (l *LoggingMutex) Lock(lg *log.Logger) {
	tryTime := time.Now()
	lg.Debug("attempting to acquire mutex", slog.Any("mutex", l))

	if !l.Mutex.TryLock() {
		// Lock with timeout.
		locked := make(chan struct{}, 1)

		go func() {
			l.Mutex.Lock()
			locked <- struct{}{}
		}()

		select {
		case <-locked:

		case <-time.After(10 * time.Second):
			lg.Error("unable to acquire mutex after 10 seconds", slog.Any("mutex", l),
				slog.Any("held_mutexes", heldMutexes))

			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			usage, _ := cpu.Percent(time.Second, false)

			lg.Errorf("CPU: %d%% alloc: %dMB total alloc: %dMB sys mem: %dMB goroutines: %d",
				int(gomath.Round(usage[0])), m.Alloc/(1024*1024), m.TotalAlloc/(1024*1024), m.Sys/(1024*1024),
				runtime.NumGoroutine())

			<-locked
		}
	}

	heldMutexesMutex.Lock()
	heldMutexes[l] = nil
	heldMutexesMutex.Unlock()

	l.acq = time.Now()
	l.acqStack = log.Callstack(l.acqStack)
	w := l.acq.Sub(tryTime)
	lg.Debug("acquired mutex", slog.Any("mutex", l), slog.Duration("wait", w))
	if w > time.Second {
		lg.Warn("long wait to acquire mutex", slog.Any("mutex", l), slog.Duration("wait", w))
	}
}

func (l *LoggingMutex) Unlock(lg *log.Logger) {
	heldMutexesMutex.Lock()
	// Though it may seem like we could unlock this sooner, holding it
	// until this function returns ensures that if we end up doing logging
	// in the code below, other mutexes aren't unlocked while we're trying
	// to log the held ones.
	defer heldMutexesMutex.Unlock()

	if _, ok := heldMutexes[l]; !ok {
		lg.Error("mutex not held", slog.Any("held_mutexes", heldMutexes))
	}
	delete(heldMutexes, l)

	if d := time.Since(l.acq); d > time.Second {
		lg.Warn("mutex held for over 1 second", slog.Any("mutex", l), slog.Duration("held", d),
			slog.Any("held_mutexes", heldMutexes))
	}

	l.acq = time.Time{}
	l.acqStack = nil
	l.Mutex.Unlock()
}

func (l *LoggingMutex) LogValue() slog.Value {
	if l.acq.IsZero() {
		return slog.StringValue("unlocked")
	}
	return slog.GroupValue(
		slog.Time("acquired", l.acq),
		slog.Any("callstack", l.acqStack))
}

///////////////////////////////////////////////////////////////////////////
// Resource monitors

// MonitorCPUUsage periodically samples system CPU usage and complains to
// the log when it exceeds the given percentage; if panicIfWedged is set, a
// sustained full-load condition panics so that the stack traces of all
// goroutines end up in the logs.
func MonitorCPUUsage(limit int, panicIfWedged bool, lg *log.Logger) {
	go func() {
		over := 0
		for {
			usage, err := cpu.Percent(5*time.Second, false)
			if err != nil || len(usage) == 0 {
				continue
			}

			if int(usage[0]) >= limit {
				over++
				lg.Warn("high CPU usage", slog.Int("percent", int(usage[0])),
					slog.Int("consecutive", over))
				if over >= 6 && panicIfWedged {
					panic("sustained high CPU usage; giving up")
				}
			} else {
				over = 0
			}
		}
	}()
}

// MonitorMemoryUsage logs when allocated memory exceeds triggerMB and
// thereafter each time it grows by another deltaMB.
func MonitorMemoryUsage(triggerMB, deltaMB int, lg *log.Logger) {
	go func() {
		nextMB := uint64(triggerMB)
		for {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)

			if alloc := m.Alloc / (1024 * 1024); alloc >= nextMB {
				lg.Warn("memory usage", slog.Uint64("alloc_mb", alloc),
					slog.Uint64("sys_mb", m.Sys/(1024*1024)),
					slog.Int("goroutines", runtime.NumGoroutine()))
				nextMB = alloc + uint64(deltaMB)
			}

			time.Sleep(15 * time.Second)
		}
	}()
}
