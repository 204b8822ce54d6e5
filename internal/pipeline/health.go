package pipeline

import "time"

// Health aggregates step durations over the items that completed each step.
type Health struct {
	Counts    map[State]int `json:"counts"`
	AvgPrep   time.Duration `json:"avgPrep"`
	AvgUpload time.Duration `json:"avgUpload"`
	AvgAI     time.Duration `json:"avgAi"`
}

func (p *Pipeline) Health() Health {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := Health{Counts: make(map[State]int)}
	var prep, upload, ai average
	for _, it := range p.items {
		h.Counts[it.State]++
		prep.add(it.Metrics, MetricPrepStart, MetricUploadStart)
		upload.add(it.Metrics, MetricUploadStart, MetricUploadDone)
		ai.add(it.Metrics, MetricAIStart, MetricReady)
	}
	h.AvgPrep = prep.value()
	h.AvgUpload = upload.value()
	h.AvgAI = ai.value()
	return h
}

type average struct {
	total time.Duration
	n     int
}

func (a *average) add(metrics map[string]time.Time, from, to string) {
	start, ok := metrics[from]
	if !ok {
		return
	}
	end, ok := metrics[to]
	if !ok || end.Before(start) {
		return
	}
	a.total += end.Sub(start)
	a.n++
}

func (a *average) value() time.Duration {
	if a.n == 0 {
		return 0
	}
	return a.total / time.Duration(a.n)
}
