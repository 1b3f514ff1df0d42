package main

import (
	"github.com/flowkit/agentctl/internal/obstel"
	"github.com/flowkit/agentctl/internal/scheduler"
)

// schedulerMetrics narrows obstel's full instrument set down to the
// fields the Scheduler records into.
func schedulerMetrics(m obstel.Metrics) scheduler.Metrics {
	return scheduler.Metrics{
		TasksDispatched: m.TasksDispatched,
		TasksRetried:    m.TasksRetried,
		TaskDuration:    m.TaskDuration,
	}
}
