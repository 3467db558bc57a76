package events

import (
	"context"
	"errors"

	"rtmpscout/internal/core/domain"
	"rtmpscout/internal/core/ports"
)

type fanout []ports.ResultMirror

// Fanout combines mirrors; nil entries are skipped. It returns nil when no
// mirror is left so callers can keep treating "no mirror" as nil.
func Fanout(mirrors ...ports.ResultMirror) ports.ResultMirror {
	var out fanout
	for _, m := range mirrors {
		if m != nil {
			out = append(out, m)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

func (f fanout) MirrorURL(ctx context.Context, record domain.URLRecord) error {
	var errs []error
	for _, m := range f {
		errs = append(errs, m.MirrorURL(ctx, record))
	}
	return errors.Join(errs...)
}

func (f fanout) MirrorCommand(ctx context.Context, cmd domain.StreamCommand) error {
	var errs []error
	for _, m := range f {
		errs = append(errs, m.MirrorCommand(ctx, cmd))
	}
	return errors.Join(errs...)
}

func (f fanout) Clear(ctx context.Context) error {
	var errs []error
	for _, m := range f {
		errs = append(errs, m.Clear(ctx))
	}
	return errors.Join(errs...)
}
