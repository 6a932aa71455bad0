package archive

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"vk-archive-loader/internal/model"
	"vk-archive-loader/internal/runstore"
)

const defaultRetryBackoff = 2 * time.Second

// Processor settles one link. A non-nil error is a storage fault and ends
// the run; everything else comes back as an Outcome.
type Processor interface {
	Process(ctx context.Context, task model.LinkTask, dir string, class model.ResourceClass) (model.Outcome, error)
}

// GroupSource supplies the owner groups of a run, in processing order.
type GroupSource interface {
	Groups(ctx context.Context) ([]model.OwnerGroup, error)
}

type RunOptions struct {
	RunID        string
	OutputDir    string
	Source       GroupSource
	Processor    Processor
	Logger       logrus.FieldLogger
	Observer     Observer
	SaveByDate   bool
	KeepOutput   bool
	Retries      int
	RetryBackoff time.Duration
	Settings     map[string]string
}

type RunResult struct {
	RunID        string
	OutputDir    string
	ManifestPath string
	State        string
	Owners       int
	TotalLinks   int
	Processed    int
	Bytes        int64
	Outcomes     map[string]int
	Failures     map[string]int
	Categories   map[string]int
	Cleared      runstore.ClearResult
	Manifest     *model.RunManifest
}

type runner struct {
	opts      RunOptions
	log       logrus.FieldLogger
	observer  Observer
	status    model.RunStatus
	createdAt string
	result    RunResult
	manifest  *model.RunManifest
}

// Run drives one archive run: extract the owner groups, settle every link of
// each owner in parallel, fold the outcomes into the manifest and persist it.
// Owners are processed one after another. Per-link problems never end the
// run; storage faults and extractor errors do.
func Run(ctx context.Context, opts RunOptions) (RunResult, error) {
	if opts.Source == nil || opts.Processor == nil {
		return RunResult{}, fmt.Errorf("run requires a group source and a processor")
	}
	outputDir := strings.TrimSpace(opts.OutputDir)
	if outputDir == "" {
		return RunResult{}, fmt.Errorf("output directory is required")
	}
	opts.OutputDir = outputDir
	if strings.TrimSpace(opts.RunID) == "" {
		opts.RunID = uuid.NewString()
	}

	r := &runner{
		opts:      opts,
		log:       opts.Logger,
		observer:  Observers(opts.Observer),
		status:    model.RunStatus{RunID: opts.RunID},
		createdAt: time.Now().UTC().Format(time.RFC3339),
		manifest:  model.NewRunManifest(),
	}
	if r.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		r.log = l
	}
	r.result = RunResult{
		RunID:        opts.RunID,
		OutputDir:    outputDir,
		ManifestPath: runstore.ManifestPath(outputDir),
		Outcomes:     make(map[string]int),
		Failures:     make(map[string]int),
		Categories:   make(map[string]int),
		Manifest:     r.manifest,
	}
	if err := model.TransitionRun(&r.status, model.RunInit, ""); err != nil {
		return RunResult{}, err
	}

	if err := runstore.Mkdir(outputDir); err != nil {
		return RunResult{}, err
	}
	lock, err := runstore.AcquireOutputLock(outputDir, opts.RunID)
	if err != nil {
		return RunResult{}, err
	}
	defer func() {
		_ = lock.Release()
	}()

	if err := r.execute(ctx); err != nil {
		r.fail(err)
		return r.snapshot(), err
	}
	return r.snapshot(), nil
}

func (r *runner) execute(ctx context.Context) error {
	if !r.opts.KeepOutput {
		cleared, err := runstore.ClearOutput(r.opts.OutputDir)
		if err != nil {
			return err
		}
		r.result.Cleared = cleared
		r.log.WithFields(logrus.Fields{"dirs": cleared.RemovedDirs, "files": cleared.RemovedFiles}).Info("output folder cleared")
	}

	if err := r.transition(model.RunExtracting, ""); err != nil {
		return err
	}
	groups, err := r.opts.Source.Groups(ctx)
	if err != nil {
		return fmt.Errorf("extract owner groups: %w", err)
	}
	r.result.Owners = len(groups)
	for _, g := range groups {
		r.result.TotalLinks += g.LinkCount()
	}
	r.log.WithFields(logrus.Fields{"owners": len(groups), "links": r.result.TotalLinks}).Info("extraction finished")

	if err := r.transition(model.RunResolving, ""); err != nil {
		return err
	}
	r.observer.RunStarted(groups)
	for i, g := range groups {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run interrupted before %s/%s: %w", g.Category, g.Owner.Key, err)
		}
		if err := r.runOwner(ctx, i, g); err != nil {
			return err
		}
		if err := r.persist(); err != nil {
			return err
		}
	}

	if err := r.transition(model.RunAggregating, ""); err != nil {
		return err
	}
	if err := r.persist(); err != nil {
		return err
	}
	if err := r.transition(model.RunDone, ""); err != nil {
		return err
	}
	r.log.WithFields(logrus.Fields{
		"processed": r.manifest.Total,
		"manifest":  r.result.ManifestPath,
	}).Info("run finished")
	return nil
}

// runOwner settles every link of one owner, then inserts the owner's entry
// whole.
func (r *runner) runOwner(ctx context.Context, index int, g model.OwnerGroup) error {
	ownerDir := filepath.Join(r.opts.OutputDir, model.SanitizeSegment(g.Category), g.Owner.DirName())
	if err := runstore.Mkdir(ownerDir); err != nil {
		return fmt.Errorf("prepare owner %s/%s: %w", g.Category, g.Owner.Key, err)
	}

	log := r.log.WithFields(logrus.Fields{"category": g.Category, "owner": g.Owner.Key})
	tasks := g.Tasks(r.opts.SaveByDate)
	log.WithField("links", len(tasks)).Info("owner started")
	r.observer.OwnerStarted(index, g)

	// Storage faults come back from Wait; the group has no context, so sibling
	// tasks still run to completion.
	outcomes := make([]model.Outcome, len(tasks))
	var eg errgroup.Group
	for i, task := range tasks {
		dir := ownerDir
		if r.opts.SaveByDate {
			dir = filepath.Join(ownerDir, model.SanitizeSegment(task.DateBucket))
		}
		eg.Go(func() error {
			out, err := r.process(ctx, task, dir, g.Class)
			if err != nil {
				return err
			}
			outcomes[i] = out
			r.observer.TaskFinished(g, task, out)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("owner %s/%s: %w", g.Category, g.Owner.Key, err)
	}
	// An owner cut short by cancellation is left out of the manifest whole.
	if err := ctx.Err(); err != nil {
		log.Warn("owner interrupted, not recorded")
		return fmt.Errorf("run interrupted during %s/%s: %w", g.Category, g.Owner.Key, err)
	}

	entry := model.NewOwnerEntry(g.Owner)
	for i, out := range outcomes {
		if out == nil {
			out = model.Failed{URL: tasks[i].URL, Kind: model.FailParse, Message: "task produced no outcome"}
		}
		entry.Add(out)
		r.count(out)
	}
	r.manifest.Insert(g.Category, g.Owner.Key, entry, len(tasks))
	r.result.Categories[g.Category] += len(tasks)

	log.WithField("links", entry.Count()).Info("owner finished")
	r.observer.OwnerFinished(index, g, entry)
	return nil
}

// process runs the task once, or under the retry policy when retries are
// enabled. Only retryable failures are attempted again, and each attempt goes
// back through the processor, so the governor slot is not held while waiting.
func (r *runner) process(ctx context.Context, task model.LinkTask, dir string, class model.ResourceClass) (model.Outcome, error) {
	if r.opts.Retries <= 0 {
		return r.opts.Processor.Process(ctx, task, dir, class)
	}

	backoff := r.opts.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	policy := retry.WithMaxRetries(uint64(r.opts.Retries), retry.NewExponential(backoff))

	var (
		last  model.Outcome
		fatal error
		tries int
	)
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		tries++
		out, err := r.opts.Processor.Process(ctx, task, dir, class)
		if err != nil {
			fatal = err
			return err
		}
		last = out
		if f, ok := out.(model.Failed); ok && f.Retryable() {
			r.log.WithFields(logrus.Fields{"url": task.URL, "attempt": tries, "kind": f.Kind}).Debug("retrying")
			return retry.RetryableError(fmt.Errorf("%s: %s", f.Kind, f.Message))
		}
		return nil
	})
	if fatal != nil {
		return nil, fatal
	}
	if last == nil {
		kind := model.FailTimeout
		if ctx.Err() != nil {
			kind = model.FailCancelled
		}
		return model.Failed{URL: task.URL, Kind: kind, Message: fmt.Sprintf("no attempt made: %v", err)}, nil
	}
	return last, nil
}

func (r *runner) count(out model.Outcome) {
	r.result.Processed++
	r.result.Outcomes[model.OutcomeKind(out)]++
	switch o := out.(type) {
	case model.Downloaded:
		r.result.Bytes += o.Bytes
	case model.Failed:
		r.result.Failures[string(o.Kind)]++
	}
}

func (r *runner) transition(state, reason string) error {
	if err := model.TransitionRun(&r.status, state, reason); err != nil {
		return err
	}
	r.log.WithField("state", state).Debug("run state")
	return r.saveMeta()
}

// fail records the terminal state. Persistence errors here are dropped in
// favour of cause.
func (r *runner) fail(cause error) {
	if model.TransitionRun(&r.status, model.RunFailed, cause.Error()) != nil {
		return
	}
	r.log.WithError(cause).Error("run failed")
	_ = r.saveMeta()
}

// persist checkpoints the manifest and run metadata.
func (r *runner) persist() error {
	if err := runstore.WriteJSON(r.result.ManifestPath, r.manifest.Document()); err != nil {
		return fmt.Errorf("persist manifest: %w", err)
	}
	return r.saveMeta()
}

func (r *runner) saveMeta() error {
	meta := runstore.RunMeta{
		RunID:        r.status.RunID,
		CreatedAt:    r.createdAt,
		UpdatedAt:    time.Now().UTC().Format(time.RFC3339),
		State:        r.status.State,
		Reason:       r.status.Reason,
		OutputDir:    r.opts.OutputDir,
		ManifestPath: r.result.ManifestPath,
		Owners:       r.result.Owners,
		TotalLinks:   r.result.TotalLinks,
		Outcomes:     r.result.Outcomes,
		Failures:     r.result.Failures,
		Categories:   r.result.Categories,
		Settings:     r.opts.Settings,
	}
	if err := runstore.SaveRunMeta(r.opts.OutputDir, meta); err != nil {
		return fmt.Errorf("persist run metadata: %w", err)
	}
	return nil
}

func (r *runner) snapshot() RunResult {
	res := r.result
	res.State = r.status.State
	return res
}
