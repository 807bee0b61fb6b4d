package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/semconv/v1.13.0/httpconv"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
)

type instrumentResty struct {
	tel       API
	tracer    trace.Tracer
	idcounter *uint64
}

// InstrumentResty attaches a span per attempt and debug reports to every request made by
// the client, failed requests (after retries) are reported as broken.
func InstrumentResty(client *resty.Client, tracerName string, tel API) {
	instrumentRestyWith(client, otel.Tracer(tracerName), tel)
}

func instrumentRestyWith(client *resty.Client, tracer trace.Tracer, tel API) {
	var idcounter uint64
	i := instrumentResty{
		tel:       tel,
		tracer:    tracer,
		idcounter: &idcounter,
	}

	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

type reqCtxKeyType int

var reqCtxKey reqCtxKeyType

// reqState lives for one logical request, resty runs its attempts one after the other.
type reqState struct {
	id uint64
	// startTime does not need to rely on chrono because it does not depend on the
	// absolute time, just the difference in time.
	startTime time.Time
	// parent is the caller's context, every attempt span is a child of it.
	parent context.Context
	// span is the attempt in flight, nil once it has been ended.
	span trace.Span
}

func (s *reqState) endSpan() trace.Span {
	span := s.span
	s.span = nil
	return span
}

func (i instrumentResty) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	state, ok := req.Context().Value(reqCtxKey).(*reqState)
	if !ok {
		state = &reqState{
			id:        atomic.AddUint64(i.idcounter, 1),
			startTime: time.Now(),
			parent:    req.Context(),
		}
	} else if span := state.endSpan(); span != nil {
		// the previous attempt failed without a response
		span.SetStatus(codes.Error, "attempt failed, retrying")
		span.End()
	}

	ctx, span := i.tracer.Start(
		state.parent,
		fmt.Sprintf("http %s", req.Method),
		trace.WithAttributes(attribute.Int("http.attempt", req.Attempt)),
	)
	state.span = span
	i.tel.ReportDebug(report_resty_request, state.id, req.Method, req.URL, KV{Key: "attempt", Value: req.Attempt})

	req.SetContext(context.WithValue(ctx, reqCtxKey, state))
	return nil
}

func (i instrumentResty) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	state, ok := res.Request.Context().Value(reqCtxKey).(*reqState)
	if !ok {
		return nil
	}
	span := state.endSpan()
	if span == nil {
		return nil
	}
	defer span.End()

	// request attributes are set here since res.Request.RawRequest is nil in onBeforeRequest
	if res.RawResponse != nil {
		span.SetAttributes(httpconv.ClientResponse(res.RawResponse)...)
	}
	if res.Request.RawRequest != nil {
		span.SetAttributes(httpconv.ClientRequest(res.Request.RawRequest)...)
	}
	if res.IsError() {
		span.SetStatus(codes.Error, res.Status())
	}

	i.tel.ReportDebug(
		report_resty_response,
		state.id,
		time.Since(state.startTime).String(),
		res.Status(),
	)
	return nil
}

func (i instrumentResty) onError(req *resty.Request, err error) {
	var duration time.Duration
	state, ok := req.Context().Value(reqCtxKey).(*reqState)
	if ok {
		duration = time.Since(state.startTime)
		if span := state.endSpan(); span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if req.RawRequest != nil {
				span.SetAttributes(httpconv.ClientRequest(req.RawRequest)...)
			}
			span.End()
		}
	}

	i.tel.ReportBroken(
		report_resty_response,
		err,
		req.Method,
		req.URL,
		duration.String(),
	)
}
