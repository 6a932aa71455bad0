package fetch

import (
	"context"
	"errors"
	"net"
	"time"

	"vk-archive-loader/internal/model"
)

var errHopTimeout = errors.New("hop deadline exceeded")

// hop is the context of one request. Its deadline can be re-armed once the
// response shows what kind of body follows: a short budget for headers and
// pages, a long one for asset bodies.
type hop struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	timer  *time.Timer
}

func startHop(parent context.Context, d time.Duration) *hop {
	ctx, cancel := context.WithCancelCause(parent)
	h := &hop{ctx: ctx, cancel: cancel}
	h.arm(d)
	return h
}

func (h *hop) arm(d time.Duration) {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	if d > 0 {
		h.timer = time.AfterFunc(d, func() { h.cancel(errHopTimeout) })
	}
}

func (h *hop) finish() {
	if h.timer != nil {
		h.timer.Stop()
	}
	h.cancel(context.Canceled)
}

func (h *hop) timedOut() bool {
	return errors.Is(context.Cause(h.ctx), errHopTimeout)
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errHopTimeout) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// failure maps a transport or stream error on url to TIMEOUT or HTTP_ERROR.
func (h *hop) failure(url string, err error) model.Failed {
	if h.timedOut() || isTimeout(err) {
		return model.Failed{URL: url, Kind: model.FailTimeout, Message: err.Error()}
	}
	return model.Failed{URL: url, Kind: model.FailHTTP, Message: err.Error()}
}
