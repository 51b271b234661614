package corert

// Metrics is a point-in-time snapshot of runtime activity, returned by
// Runtime.Metrics. Runtime.Metrics reports values only when the Runtime
// was built with WithMetrics(true); otherwise every field reads zero.
type Metrics struct {
	Workers             int
	IdleWorkers         int64
	StolenTasks         int64
	PinnedTasksExecuted int64
	TimersArmed         int64
	TimersFired         int64
	FDsRegistered       int
	ReactorWakeups      int64
}

// Metrics returns the current snapshot. Cheap enough to call on a
// polling interval; each field is read from its own atomic counter or
// lock-protected accessor rather than a single consistent transaction,
// keeping collection overhead minimal when enabled.
func (rt *Runtime) Metrics() Metrics {
	if !rt.cfg.metricsEnabled {
		return Metrics{}
	}
	return Metrics{
		Workers:             rt.sc.ThreadCount(),
		IdleWorkers:         rt.sc.IdleWorkers(),
		StolenTasks:         rt.sc.StolenTasks(),
		PinnedTasksExecuted: rt.sc.PinnedTasksExecuted(),
		TimersArmed:         int64(rt.rx.Timers.Len()),
		TimersFired:         rt.rx.Timers.FiredCount(),
		FDsRegistered:       rt.reg.Len(),
		ReactorWakeups:      rt.rx.Wakeups(),
	}
}
