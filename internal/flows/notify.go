package flows

import (
	"context"
	"errors"
)

// NotifyRequest is one templated message.
type NotifyRequest struct {
	TemplateID string
	Recipient  string
	Username   string
	Params     map[string]string
}

type NotifyMetrics struct {
	Sent    int
	Retried int
	Failed  int
}

type NotifyEvents struct {
	Success string
	Failure string
}

type NotifyErrors struct {
	EngineNotReady error
	NoRecipient    error
}

// NotifyDeps captures notification delivery with a single retry.
type NotifyDeps struct {
	Send func(ctx context.Context, templateID, recipient string, params map[string]string) error
	// Retryable reports whether err is a 5xx-class failure worth one retry.
	Retryable func(err error) bool

	MetricInc func(int)
	EmitAudit AuditFunc
	Warn      func(string, ...any)

	Metrics NotifyMetrics
	Events  NotifyEvents
	Errors  NotifyErrors
}

// RunNotify sends req. A retryable failure is retried exactly once; a
// successful retry is a success and a failed retry is returned unchanged.
func RunNotify(ctx context.Context, req NotifyRequest, deps NotifyDeps) error {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = noopWarn
	}
	if deps.Retryable == nil {
		deps.Retryable = func(error) bool { return false }
	}
	metadata := func() map[string]string {
		return map[string]string{
			"template": req.TemplateID,
		}
	}

	if deps.Send == nil {
		return deps.Errors.EngineNotReady
	}
	if req.Recipient == "" {
		deps.EmitAudit(ctx, deps.Events.Failure, false, req.Username, "", deps.Errors.NoRecipient, metadata)
		return deps.Errors.NoRecipient
	}

	err := deps.Send(ctx, req.TemplateID, req.Recipient, req.Params)
	if err != nil && deps.Retryable(err) && !errors.Is(ctx.Err(), context.Canceled) {
		deps.Warn("idpcore: notification failed, retrying", "username", req.Username, "error", err)
		deps.MetricInc(deps.Metrics.Retried)
		err = deps.Send(ctx, req.TemplateID, req.Recipient, req.Params)
	}
	if err != nil {
		deps.MetricInc(deps.Metrics.Failed)
		deps.EmitAudit(ctx, deps.Events.Failure, false, req.Username, "", err, metadata)
		return err
	}

	deps.MetricInc(deps.Metrics.Sent)
	deps.EmitAudit(ctx, deps.Events.Success, true, req.Username, "", nil, metadata)
	return nil
}
