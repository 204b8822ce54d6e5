package pipeline

import (
	"errors"
	"fmt"
	"time"

	"photolineart-backend/internal/models"
)

// State is the lifecycle of one photo in a batch.
type State string

const (
	StatePreparing  State = "preparing"
	StateUploading  State = "uploading"
	StateUploaded   State = "uploaded"
	StateProcessing State = "processing"
	StateReady      State = "ready"
	StateError      State = "error"
)

// Metric keys stamped on transitions.
const (
	MetricQueued      = "queued"
	MetricPrepStart   = "prepStart"
	MetricUploadStart = "uploadStart"
	MetricUploadDone  = "uploadDone"
	MetricAIStart     = "aiStart"
	MetricReady       = "ready"
	MetricError       = "error"
)

// EventLogSize bounds the per-item event log; the oldest entry is evicted.
const EventLogSize = 12

var ErrInvalidTransition = errors.New("invalid state transition")

// transitions lists every reachable next state. processing→uploaded is the
// watchdog requeue; error→uploading and error→uploaded are the two retries.
var transitions = map[State][]State{
	StatePreparing:  {StateUploading, StateError},
	StateUploading:  {StateUploaded, StateError},
	StateUploaded:   {StateProcessing, StateError},
	StateProcessing: {StateReady, StateError, StateUploaded},
	StateError:      {StateUploading, StateUploaded},
	StateReady:      {},
}

// CanTransition reports whether from→to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further automatic progress will happen.
func (s State) Terminal() bool {
	return s == StateReady || s == StateError
}

type EventKind string

const (
	EventInfo  EventKind = "info"
	EventError EventKind = "error"
)

type Event struct {
	At      time.Time `json:"at"`
	Kind    EventKind `json:"kind"`
	Message string    `json:"message"`
}

// Item is one photo moving through the batch. Callers receive copies from
// Snapshot; the pipeline owns the originals.
type Item struct {
	ID           string                  `json:"id"`
	FileName     string                  `json:"fileName"`
	RawSize      int64                   `json:"rawSize"`
	PreparedSize int64                   `json:"preparedSize"`
	ContentType  string                  `json:"contentType"`
	LocalPath    string                  `json:"localPath,omitempty"`
	BlobURL      string                  `json:"blobUrl,omitempty"`
	LineArtURL   string                  `json:"lineArtUrl,omitempty"`
	Analysis     *models.LineArtAnalysis `json:"analysis,omitempty"`
	Progress     int                     `json:"progress"`
	State        State                   `json:"state"`
	Error        string                  `json:"error,omitempty"`
	LastUpdated  time.Time               `json:"lastUpdated"`
	Events       []Event                 `json:"events"`
	Metrics      map[string]time.Time    `json:"metrics"`

	// Attempt increments every time the AI step is dispatched. A completion
	// carrying an older attempt is stale and discarded.
	Attempt int `json:"attempt"`

	data []byte
}

func newItem(id string, src Source, contentType string, now time.Time) *Item {
	it := &Item{
		ID:          id,
		FileName:    src.Name,
		RawSize:     int64(len(src.Data)),
		ContentType: contentType,
		LocalPath:   src.Path,
		State:       StatePreparing,
		LastUpdated: now,
		Metrics:     map[string]time.Time{MetricQueued: now},
		data:        src.Data,
	}
	it.record(now, EventInfo, "queued")
	return it
}

// transition moves the item to next, stamping metric when non-empty.
func (it *Item) transition(next State, now time.Time, metric string) error {
	if !CanTransition(it.State, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, it.State, next)
	}
	prev := it.State
	it.State = next
	it.LastUpdated = now
	if metric != "" {
		it.Metrics[metric] = now
	}
	if next != StateError {
		it.Error = ""
	}
	it.record(now, EventInfo, fmt.Sprintf("%s -> %s", prev, next))
	return nil
}

func (it *Item) fail(err error, now time.Time) error {
	if terr := it.transition(StateError, now, MetricError); terr != nil {
		return terr
	}
	it.Error = err.Error()
	it.record(now, EventError, err.Error())
	return nil
}

func (it *Item) record(now time.Time, kind EventKind, message string) {
	it.Events = append(it.Events, Event{At: now, Kind: kind, Message: message})
	if over := len(it.Events) - EventLogSize; over > 0 {
		it.Events = append(it.Events[:0], it.Events[over:]...)
	}
}

// advance raises progress; it never goes backwards.
func (it *Item) advance(pct int) {
	if pct > 100 {
		pct = 100
	}
	if pct > it.Progress {
		it.Progress = pct
	}
}

func (it *Item) clone() Item {
	c := *it
	c.Events = append([]Event(nil), it.Events...)
	c.Metrics = make(map[string]time.Time, len(it.Metrics))
	for k, v := range it.Metrics {
		c.Metrics[k] = v
	}
	c.data = nil
	return c
}

func (it *Item) manifestItem() models.ManifestItem {
	mi := models.ManifestItem{
		Title:       it.FileName,
		OriginalURL: it.BlobURL,
		LineArtURL:  it.LineArtURL,
	}
	if it.Analysis != nil {
		mi.Palette = it.Analysis.Palette
		mi.Tips = it.Analysis.Tips
		mi.Set = it.Analysis.PaletteSet
	}
	return mi
}
