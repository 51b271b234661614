package sched

import (
	"runtime"
	"time"
)

func gosched() { runtime.Gosched() }

func numCPUHint() int { return runtime.NumCPU() }

func napIdle() { time.Sleep(time.Millisecond) }
