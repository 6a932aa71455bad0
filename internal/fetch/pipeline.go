package fetch

import (
	"context"
	"errors"
	"io"

	"github.com/sirupsen/logrus"

	"vk-archive-loader/internal/model"
)

// Fetcher runs one link through classify, resolve and download. One Fetcher
// serves one run: it remembers which URL each output file belongs to.
type Fetcher struct {
	classifier *Classifier
	resolver   *Resolver
	governor   *Governor
	names      *FileNames
	log        logrus.FieldLogger
}

func NewFetcher(classifier *Classifier, resolver *Resolver, governor *Governor, log logrus.FieldLogger) *Fetcher {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Fetcher{classifier: classifier, resolver: resolver, governor: governor, names: NewFileNames(), log: log}
}

// Process settles task into exactly one outcome. Skips never touch the
// network or the governor. The error is non-nil only for storage faults,
// which wrap ErrOutputDir.
func (f *Fetcher) Process(ctx context.Context, task model.LinkTask, dir string, class model.ResourceClass) (model.Outcome, error) {
	log := f.log.WithFields(logrus.Fields{"url": task.URL, "owner": task.OwnerKey})

	if out, ok := f.classifier.Classify(task.URL); ok {
		log.WithField("key", out.ManifestKey()).Debug("classified without network")
		return out, nil
	}

	release, err := f.governor.Acquire(ctx, class)
	if err != nil {
		log.WithError(err).Warn("no network slot")
		kind := model.FailTimeout
		if errors.Is(err, context.Canceled) {
			kind = model.FailCancelled
		}
		return model.Failed{URL: task.URL, Kind: kind, Message: err.Error()}, nil
	}
	defer release()

	res, out := f.resolver.Resolve(ctx, task.URL)
	if out != nil {
		logOutcome(log, out)
		return out, nil
	}

	result, failed, err := Download(res, dir, task.Ordinal, f.names)
	if err != nil {
		log.WithError(err).Error("storage fault")
		return nil, err
	}
	if failed != nil {
		logOutcome(log, *failed)
		return *failed, nil
	}

	done := model.Downloaded{
		FinalURL:  res.FinalURL,
		MediaType: result.MediaType,
		Path:      result.Path,
		Bytes:     result.Bytes,
	}
	log.WithFields(logrus.Fields{"path": result.Path, "bytes": result.Bytes}).Info("downloaded")
	return done, nil
}

func logOutcome(log logrus.FieldLogger, out model.Outcome) {
	switch o := out.(type) {
	case model.Failed:
		entry := log.WithField("kind", o.Kind)
		if o.Status != 0 {
			entry = entry.WithField("status", o.Status)
		}
		entry.Warn(o.Message)
	case model.Unparsed:
		log.Info("no parse strategy produced an asset")
	default:
		log.WithField("key", out.ManifestKey()).Debug("settled")
	}
}
