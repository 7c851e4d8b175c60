package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"stageq/internal/sample"
)

// classify decides whether a request succeeded. Without configured
// status codes any 2xx passes; the remaining Expect checks apply on top.
func (r *Runner) classify(ctx context.Context, out outcome, d time.Duration) (bool, sample.Reason, string) {
	if out.err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(out.err, context.DeadlineExceeded):
			return false, sample.ReasonTimeout, fmt.Sprintf("request timed out after %s", r.cfg.RequestTimeout)
		case ctx.Err() != nil:
			return false, sample.ReasonTimeout, "cancelled after grace period"
		}
		return false, sample.ReasonError, out.err.Error()
	}

	meta := out.meta
	exp := r.cfg.Expect
	if len(exp.Status) > 0 {
		if !slices.Contains(exp.Status, meta.StatusCode) {
			return false, sample.ReasonStatus, fmt.Sprintf("HTTP %d", meta.StatusCode)
		}
	} else if !meta.OK() {
		return false, sample.ReasonStatus, fmt.Sprintf("HTTP %d", meta.StatusCode)
	}

	if exp.MaxDuration > 0 && d > exp.MaxDuration {
		return false, sample.ReasonCheck, fmt.Sprintf("duration over %s", exp.MaxDuration)
	}
	if exp.BodyRequired && meta.BodyLength == 0 {
		return false, sample.ReasonCheck, "empty body"
	}
	if exp.ContentType != "" && !strings.Contains(meta.ContentType, exp.ContentType) {
		return false, sample.ReasonCheck, fmt.Sprintf("content type %q, want %q", meta.ContentType, exp.ContentType)
	}
	return true, sample.ReasonOK, ""
}
