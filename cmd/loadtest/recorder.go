package main

import (
	"fmt"
	"io"
	"slices"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// maxLatencyMicros: верхняя граница гистограммы, 60 секунд.
const maxLatencyMicros = int64(60 * time.Second / time.Microsecond)

const scenarioSeries = "scenario"

type latencyMs struct {
	Min float64 `json:"min"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

type seriesSummary struct {
	Count     int64            `json:"count"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	Latency   latencyMs        `json:"latency_ms"`
}

type summary struct {
	Mode           loadMode                 `json:"mode"`
	StartedAt      time.Time                `json:"started_at"`
	ElapsedSeconds float64                  `json:"elapsed_seconds"`
	RPS            float64                  `json:"rps"`
	Scenarios      seriesSummary            `json:"scenarios"`
	Calls          map[string]seriesSummary `json:"calls"`
}

type series struct {
	count, failed int64
	codes         map[string]int64
	hist          *hdrhistogram.Histogram
}

// recorder копит латентности по именованным сериям: "scenario" и по одной на вызов.
type recorder struct {
	mu     sync.Mutex
	series map[string]*series
}

func newRecorder() *recorder {
	return &recorder{series: make(map[string]*series)}
}

func (r *recorder) observe(name string, latency time.Duration, code string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.series[name]
	if s == nil {
		s = &series{codes: make(map[string]int64), hist: hdrhistogram.New(1, maxLatencyMicros, 3)}
		r.series[name] = s
	}
	s.count++
	if !ok {
		s.failed++
	}
	s.codes[code]++
	_ = s.hist.RecordValue(min(max(latency.Microseconds(), 1), maxLatencyMicros))
}

func (r *recorder) summarize(mode loadMode, startedAt time.Time, elapsed time.Duration) summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := summary{
		Mode:           mode,
		StartedAt:      startedAt.UTC(),
		ElapsedSeconds: elapsed.Seconds(),
		Calls:          make(map[string]seriesSummary),
	}
	for name, s := range r.series {
		sum := s.summarize()
		if name == scenarioSeries {
			out.Scenarios = sum
			continue
		}
		out.Calls[name] = sum
	}
	if elapsed > 0 {
		out.RPS = float64(out.Scenarios.Count) / elapsed.Seconds()
	}
	return out
}

func (s *series) summarize() seriesSummary {
	codes := make(map[string]int64, len(s.codes))
	for code, n := range s.codes {
		codes[code] = n
	}
	sum := seriesSummary{Count: s.count, Failed: s.failed, Codes: codes}
	if s.count > 0 {
		sum.ErrorRate = float64(s.failed) / float64(s.count)
	}
	if s.hist.TotalCount() > 0 {
		ms := func(us int64) float64 { return float64(us) / 1000 }
		sum.Latency = latencyMs{
			Min: ms(s.hist.Min()),
			Avg: s.hist.Mean() / 1000,
			P50: ms(s.hist.ValueAtQuantile(50)),
			P95: ms(s.hist.ValueAtQuantile(95)),
			P99: ms(s.hist.ValueAtQuantile(99)),
			Max: ms(s.hist.Max()),
		}
	}
	return sum
}

// print выводит сводку таблицей: строка сценариев, затем вызовы по алфавиту.
func (s summary) print(out io.Writer) error {
	_, _ = fmt.Fprintf(out, "load test %s: scenarios=%d failed=%d error_rate=%.4f elapsed=%.2fs rps=%.2f\n",
		s.Mode, s.Scenarios.Count, s.Scenarios.Failed, s.Scenarios.ErrorRate, s.ElapsedSeconds, s.RPS)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SERIES\tCOUNT\tFAILED\tP50 MS\tP95 MS\tP99 MS\tMAX MS")
	row := func(name string, sum seriesSummary) {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\n", name, sum.Count, sum.Failed,
			sum.Latency.P50, sum.Latency.P95, sum.Latency.P99, sum.Latency.Max)
	}
	row(scenarioSeries, s.Scenarios)

	names := make([]string, 0, len(s.Calls))
	for name := range s.Calls {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		row(name, s.Calls[name])
	}
	return w.Flush()
}
