package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/kidzoona/kiosk/internal/codec"
	"github.com/kidzoona/kiosk/internal/domain"
	"github.com/kidzoona/kiosk/internal/metrics"
)

// LineSource is the inbound side of the device link
type LineSource interface {
	Lines() <-chan string
	Errors() <-chan error
}

// Consume is the single consumer of the device link: it decodes every line
// and applies it to the registry in arrival order, and turns link errors into
// session failures. It returns when ctx is cancelled or both channels close.
func (r *Registry) Consume(ctx context.Context, src LineSource) error {
	lines, errs := src.Lines(), src.Errors()

	for lines != nil || errs != nil {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			r.handleLine(line)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			// Lines read before the failure belong in front of it.
			r.drain(lines)
			r.OnLinkFailure(err)
		}
	}
	return nil
}

func (r *Registry) drain(lines <-chan string) {
	if lines == nil {
		return
	}
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			r.handleLine(line)
		default:
			return
		}
	}
}

func (r *Registry) handleLine(line string) {
	ev := codec.Decode(line)
	metrics.DeviceLinesTotal.WithLabelValues(string(ev.Kind)).Inc()

	if ev.Kind == domain.EventUnrecognized {
		if ev.Err != nil {
			metrics.DeviceDecodeErrorsTotal.Inc()
			r.log.Warn("undecodable device line", zap.String("line", line), zap.Error(ev.Err))
		} else if res := r.chatter.Check(line); res.ShouldEmit {
			r.log.Debug("device says", zap.String("line", line))
		}
		return
	}

	r.OnEvent(ev)
}
