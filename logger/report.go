package logger

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type componentStat struct {
	warns  int64
	errors int64
}

var components sync.Map // map[string]*componentStat

func statFor(component string) *componentStat {
	v, _ := components.LoadOrStore(component, &componentStat{})
	return v.(*componentStat)
}

func recordWarn(component string) {
	atomic.AddInt64(&statFor(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&statFor(component).errors, 1)
}

// Counters is a snapshot of named counters reported alongside the runtime
// figures, for example stream throughput and queue evictions.
type Counters map[string]int64

// CounterSource produces the counters for one report. It is called from the
// report goroutine and must be safe for concurrent use.
type CounterSource func() Counters

// StartReport begins periodic logging of runtime statistics, per-component
// warning and error counts, and the counters returned by source. Each report
// is also published to CloudWatch when a client is configured.
func StartReport(ctx context.Context, log *Log, interval time.Duration, source CounterSource) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(ctx, log, source)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log, source CounterSource) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	warns := map[string]int64{}
	errs := map[string]int64{}
	components.Range(func(k, v any) bool {
		cs := v.(*componentStat)
		warns[k.(string)] = atomic.LoadInt64(&cs.warns)
		errs[k.(string)] = atomic.LoadInt64(&cs.errors)
		return true
	})

	var counters Counters
	if source != nil {
		counters = source()
	}

	log.WithComponent("report").WithFields(Fields{
		"goroutines": runtime.NumGoroutine(),
		"heap_mb":    int64(mem.HeapAlloc) / 1024 / 1024,
		"warns":      warns,
		"errors":     errs,
		"counters":   counters,
	}).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("Goroutines"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(runtime.NumGoroutine()))},
		{MetricName: aws.String("HeapMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(mem.HeapAlloc) / 1024 / 1024)},
	}
	for _, name := range sortedKeys(warns) {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("Warnings"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(warns[name])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("Errors"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(errs[name])),
			},
		)
	}
	for _, name := range sortedKeys(counters) {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(counters[name])),
		})
	}

	publishMetrics(ctx, data)
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
