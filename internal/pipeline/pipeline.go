// Package pipeline drives a batch of photos from local files to finished
// line art: admission, downscaling, the two-step upload, a bounded pool of
// generation workers and a watchdog that requeues stalled work.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"photolineart-backend/internal/imageproc"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/models"
)

const (
	DefaultWorkers           = 2
	DefaultWatchdogInterval  = 10 * time.Second
	DefaultProcessingTimeout = 90 * time.Second
)

var (
	ErrNoCredits        = errors.New("no credits remaining")
	ErrIncompleteResult = errors.New("generation response is missing lineArtUrl or analysis")
	ErrUnknownItem      = errors.New("unknown item")
)

// API is the server surface the pipeline drives.
type API interface {
	CreateUploadTarget(ctx context.Context, req models.UploadTargetRequest) (*models.UploadTargetResponse, error)
	PutBlob(ctx context.Context, uploadURL string, data []byte, contentType string, progress func(sent, total int64)) (*models.BlobPutResponse, error)
	Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerateResponse, error)
	InitPortal(ctx context.Context, title string) (*models.PortalResponse, error)
	UpdatePortal(ctx context.Context, req models.PortalUpdateRequest) (*models.PortalResponse, error)
	EnhanceTips(ctx context.Context, items []models.ManifestItem) ([]models.ManifestItem, error)
	CreateBundle(ctx context.Context, req models.BundleCreateRequest) (*models.PortalResponse, error)
}

type Options struct {
	Email      string
	Context    string
	Title      string
	Generation *models.GenerationOptions
	CopyAssets bool

	Workers           int
	WatchdogInterval  time.Duration
	ProcessingTimeout time.Duration
	BatchBudget       int64
	ShrinkBudget      int64

	Retry  RetryPolicy
	Notify Notifier
}

func (o *Options) withDefaults() {
	if o.Context == "" {
		o.Context = models.ContextSingle
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.WatchdogInterval <= 0 {
		o.WatchdogInterval = DefaultWatchdogInterval
	}
	if o.ProcessingTimeout <= 0 {
		o.ProcessingTimeout = DefaultProcessingTimeout
	}
	if o.BatchBudget <= 0 {
		o.BatchBudget = DefaultBatchBudget
	}
	if o.ShrinkBudget <= 0 {
		o.ShrinkBudget = imageproc.ShrinkBudget
	}
}

type AdmissionResult struct {
	Accepted []string    `json:"accepted"`
	Rejected []Rejection `json:"rejected"`
}

type Pipeline struct {
	api  API
	opts Options
	now  func() time.Time

	mu      sync.Mutex
	base    context.Context
	items   []*Item
	claimed map[string]int
	changed chan struct{}

	// syncMu orders manifest writes from this process and guards portal.
	syncMu sync.Mutex
	portal *models.PortalResponse
}

func New(api API, opts Options) *Pipeline {
	opts.withDefaults()
	return &Pipeline{
		api:     api,
		opts:    opts,
		now:     time.Now,
		base:    context.Background(),
		claimed: make(map[string]int),
		changed: make(chan struct{}),
	}
}

// Start runs the watchdog until ctx is done. Work started afterwards is
// bound to ctx.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	p.base = ctx
	p.mu.Unlock()

	go p.watch(ctx)
}

// Add admits sources and starts preparing and uploading each accepted one.
func (p *Pipeline) Add(sources []Source) AdmissionResult {
	p.mu.Lock()
	var used int64
	for _, it := range p.items {
		used += it.RawSize
	}
	accepted, rejected := admit(sources, used, p.opts.BatchBudget)

	now := p.now()
	result := AdmissionResult{Rejected: rejected}
	for _, a := range accepted {
		it := newItem(uuid.NewString(), a.src, a.contentType, now)
		p.items = append(p.items, it)
		result.Accepted = append(result.Accepted, it.ID)
	}
	p.notifyLocked()
	p.mu.Unlock()

	for _, r := range rejected {
		logger.Log.WithFields(logrus.Fields{"file": r.Name, "reason": r.Reason}).Warn("File rejected")
	}
	for _, id := range result.Accepted {
		id := id
		p.spawn(func(ctx context.Context) { p.prepare(ctx, id) })
	}
	return result
}

// Retry reruns a failed item from the last step it completed: the upload
// when it never reached the store, otherwise only the generation.
func (p *Pipeline) Retry(id string) error {
	p.mu.Lock()
	it := p.findLocked(id)
	if it == nil {
		p.mu.Unlock()
		return ErrUnknownItem
	}
	if it.State != StateError {
		p.mu.Unlock()
		return fmt.Errorf("item %s is %s, only failed items can be retried", id, it.State)
	}

	now := p.now()
	reupload := it.BlobURL == ""
	var err error
	if reupload {
		err = it.transition(StateUploading, now, MetricUploadStart)
	} else {
		err = it.transition(StateUploaded, now, "")
	}
	p.notifyLocked()
	p.mu.Unlock()
	if err != nil {
		return err
	}

	if reupload {
		p.spawn(func(ctx context.Context) { p.upload(ctx, id) })
	} else {
		p.drain()
	}
	return nil
}

// Remove drops an item, releases its worker claim and resyncs the manifest.
func (p *Pipeline) Remove(ctx context.Context, id string) error {
	p.mu.Lock()
	idx := -1
	for i, it := range p.items {
		if it.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		return ErrUnknownItem
	}
	p.items[idx].data = nil
	p.items = append(p.items[:idx], p.items[idx+1:]...)
	delete(p.claimed, id)
	p.notifyLocked()
	p.mu.Unlock()

	if _, err := p.syncManifest(ctx); err != nil {
		logger.Log.WithError(err).Warn("Manifest sync after removal failed")
	}
	p.drain()
	return nil
}

// Wait blocks until every item is ready or failed.
func (p *Pipeline) Wait(ctx context.Context) error {
	for {
		p.mu.Lock()
		settled := true
		for _, it := range p.items {
			if !it.State.Terminal() {
				settled = false
				break
			}
		}
		ch := p.changed
		p.mu.Unlock()

		if settled {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Snapshot returns copies of all items in list order.
func (p *Pipeline) Snapshot() []Item {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Item, 0, len(p.items))
	for _, it := range p.items {
		out = append(out, it.clone())
	}
	return out
}

func (p *Pipeline) prepare(ctx context.Context, id string) {
	var data []byte
	var contentType string
	ok := p.update(id, func(it *Item, now time.Time) error {
		if it.State != StatePreparing {
			return fmt.Errorf("item is %s", it.State)
		}
		it.Metrics[MetricPrepStart] = now
		it.advance(5)
		data, contentType = it.data, it.ContentType
		return nil
	})
	if !ok {
		return
	}

	shrunk := imageproc.Shrink(data, contentType, p.opts.ShrinkBudget, imageproc.ShrinkAttempts)

	ok = p.update(id, func(it *Item, now time.Time) error {
		it.data = shrunk.Data
		it.ContentType = shrunk.ContentType
		it.PreparedSize = int64(len(shrunk.Data))
		if shrunk.Shrunk {
			it.record(now, EventInfo, fmt.Sprintf("downscaled in %d attempts", shrunk.Attempts))
		} else if it.RawSize > p.opts.ShrinkBudget {
			it.record(now, EventInfo, "could not downscale, uploading original")
		}
		it.advance(10)
		return it.transition(StateUploading, now, MetricUploadStart)
	})
	if ok {
		p.upload(ctx, id)
	}
}

func (p *Pipeline) upload(ctx context.Context, id string) {
	var data []byte
	var contentType, name string
	ok := p.update(id, func(it *Item, now time.Time) error {
		if it.State != StateUploading {
			return fmt.Errorf("item is %s", it.State)
		}
		data, contentType, name = it.data, it.ContentType, it.FileName
		return nil
	})
	if !ok {
		return
	}

	var target *models.UploadTargetResponse
	err := Retry(ctx, "upload target", p.opts.Retry, p.opts.Notify, func(ctx context.Context) error {
		var err error
		target, err = p.api.CreateUploadTarget(ctx, models.UploadTargetRequest{
			ContentType: contentType,
			Size:        int64(len(data)),
			FileName:    name,
		})
		return err
	})
	if err != nil {
		p.failItem(id, err)
		return
	}

	var put *models.BlobPutResponse
	err = Retry(ctx, "upload", p.opts.Retry, p.opts.Notify, func(ctx context.Context) error {
		var err error
		put, err = p.api.PutBlob(ctx, target.UploadURL, data, contentType, func(sent, total int64) {
			if total > 0 {
				p.progress(id, 10+int(50*sent/total))
			}
		})
		return err
	})
	if err != nil {
		p.failItem(id, err)
		return
	}

	ok = p.update(id, func(it *Item, now time.Time) error {
		it.BlobURL = put.URL
		it.advance(60)
		return it.transition(StateUploaded, now, MetricUploadDone)
	})
	if ok {
		p.drain()
	}
}

type job struct {
	id       string
	attempt  int
	imageURL string
}

// drain hands unclaimed uploaded items to free workers in list order.
func (p *Pipeline) drain() {
	p.mu.Lock()
	var jobs []job
	for _, it := range p.items {
		if len(p.claimed) >= p.opts.Workers {
			break
		}
		if it.State != StateUploaded {
			continue
		}
		if _, taken := p.claimed[it.ID]; taken {
			continue
		}
		if err := it.transition(StateProcessing, p.now(), MetricAIStart); err != nil {
			continue
		}
		it.Attempt++
		it.advance(70)
		p.claimed[it.ID] = it.Attempt
		jobs = append(jobs, job{id: it.ID, attempt: it.Attempt, imageURL: it.BlobURL})
	}
	if len(jobs) > 0 {
		p.notifyLocked()
	}
	p.mu.Unlock()

	for _, j := range jobs {
		j := j
		p.spawn(func(ctx context.Context) { p.process(ctx, j) })
	}
}

func (p *Pipeline) process(ctx context.Context, j job) {
	resp, err := p.generate(ctx, j.imageURL)

	p.mu.Lock()
	if p.claimed[j.id] == j.attempt {
		delete(p.claimed, j.id)
	}
	it := p.findLocked(j.id)
	if it == nil || it.Attempt != j.attempt || it.State != StateProcessing {
		p.mu.Unlock()
		logger.Log.WithFields(logrus.Fields{"item": j.id, "attempt": j.attempt}).Debug("Discarding stale generation result")
		p.drain()
		return
	}

	now := p.now()
	if err != nil {
		_ = it.fail(err, now)
	} else {
		it.LineArtURL = resp.LineArtURL
		it.Analysis = resp.Analysis
		it.advance(100)
		_ = it.transition(StateReady, now, MetricReady)
	}
	p.notifyLocked()
	p.mu.Unlock()

	if err != nil {
		logger.Log.WithError(err).WithField("item", j.id).Warn("Generation failed")
	} else if _, serr := p.syncManifest(ctx); serr != nil {
		logger.Log.WithError(serr).Warn("Manifest sync failed")
	}
	p.drain()
}

func (p *Pipeline) generate(ctx context.Context, imageURL string) (*models.GenerateResponse, error) {
	var resp *models.GenerateResponse
	err := Retry(ctx, "line-art generation", p.opts.Retry, p.opts.Notify, func(ctx context.Context) error {
		var err error
		resp, err = p.api.Generate(ctx, models.GenerateRequest{
			ImageURL: imageURL,
			Email:    p.opts.Email,
			Context:  p.opts.Context,
			Options:  p.opts.Generation,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if resp.Status == models.StatusNoCredits {
		return nil, ErrNoCredits
	}
	if resp.LineArtURL == "" || resp.Analysis == nil {
		return nil, ErrIncompleteResult
	}
	return resp, nil
}

func (p *Pipeline) watch(ctx context.Context) {
	ticker := time.NewTicker(p.opts.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.requeueStalled(); n > 0 {
				logger.Log.WithField("count", n).Warn("Requeued stalled items")
				p.drain()
			}
		}
	}
}

// requeueStalled moves items processing longer than the timeout back to
// uploaded and frees their claims. The abandoned call is not cancelled.
func (p *Pipeline) requeueStalled() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	n := 0
	for _, it := range p.items {
		if it.State != StateProcessing || now.Sub(it.Metrics[MetricAIStart]) <= p.opts.ProcessingTimeout {
			continue
		}
		if err := it.transition(StateUploaded, now, ""); err != nil {
			continue
		}
		delete(p.claimed, it.ID)
		it.record(now, EventError, fmt.Sprintf("no result after %s, requeued", p.opts.ProcessingTimeout))
		n++
	}
	if n > 0 {
		p.notifyLocked()
	}
	return n
}

// update applies fn to the item under the lock. It reports false when the
// item is gone or fn returned an error.
func (p *Pipeline) update(id string, fn func(it *Item, now time.Time) error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	it := p.findLocked(id)
	if it == nil {
		return false
	}
	if err := fn(it, p.now()); err != nil {
		logger.Log.WithError(err).WithField("item", id).Debug("Item update skipped")
		return false
	}
	p.notifyLocked()
	return true
}

func (p *Pipeline) failItem(id string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if it := p.findLocked(id); it != nil {
		_ = it.fail(err, p.now())
		p.notifyLocked()
	}
	logger.Log.WithError(err).WithField("item", id).Warn("Upload failed")
}

func (p *Pipeline) progress(id string, pct int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if it := p.findLocked(id); it != nil {
		it.advance(pct)
		p.notifyLocked()
	}
}

func (p *Pipeline) findLocked(id string) *Item {
	for _, it := range p.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

func (p *Pipeline) notifyLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}

func (p *Pipeline) spawn(fn func(ctx context.Context)) {
	p.mu.Lock()
	ctx := p.base
	p.mu.Unlock()
	go fn(ctx)
}
