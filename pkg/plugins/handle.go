package plugins

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/llx/pkg/observability"
	"github.com/platinummonkey/llx/pkg/protocol"
)

// HandleOption configures a Handle.
type HandleOption func(*Handle)

// WithHandleLogger sets the logger used for per-call diagnostics.
func WithHandleLogger(log *logrus.Logger) HandleOption {
	return func(h *Handle) {
		if log != nil {
			h.log = log
		}
	}
}

// WithHandleMetrics sets the metrics recorded for every call. Either may be nil.
func WithHandleMetrics(m *observability.Metrics, om *observability.OTelMetrics) HandleOption {
	return func(h *Handle) {
		h.metrics = m
		h.otelMetrics = om
	}
}

// Handle owns one loaded plugin. Calls into the plugin are serialized; calls to
// different handles may run concurrently.
type Handle struct {
	path            string
	name            string
	protocolVersion uint32
	loadedAt        time.Time

	log         *logrus.Logger
	metrics     *observability.Metrics
	otelMetrics *observability.OTelMetrics

	mu        sync.Mutex
	transport Transport
	closed    bool

	metaMu      sync.Mutex
	metaDone    bool
	version     string
	description string

	// set after a batch probe was refused
	batchUnsupported atomic.Bool
}

// NewHandle checks the protocol version t declares against supported, performs
// the GetName handshake and returns a ready handle. On error t is left open.
func NewHandle(ctx context.Context, path string, t Transport, supported protocol.VersionRange, opts ...HandleOption) (*Handle, error) {
	declared, err := t.ProtocolVersion()
	if err != nil {
		return nil, fmt.Errorf("%w: protocol version: %v", ErrMalformedPlugin, err)
	}
	if !supported.Contains(declared) {
		return nil, &VersionMismatchError{Declared: declared, Supported: supported}
	}

	h := &Handle{
		path:            path,
		name:            filepath.Base(path),
		protocolVersion: declared,
		transport:       t,
		log:             logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}

	resp, err := h.Request(ctx, &protocol.GetName{})
	if err != nil {
		return nil, fmt.Errorf("%w: name handshake: %v", ErrMalformedPlugin, err)
	}
	name := resp.(*protocol.NameResponse).Name
	if name == "" {
		return nil, fmt.Errorf("%w: empty plugin name", ErrMalformedPlugin)
	}
	h.name = name
	h.loadedAt = time.Now()
	return h, nil
}

// Name is the plugin's declared name.
func (h *Handle) Name() string { return h.name }

// Path is the library file the plugin was loaded from.
func (h *Handle) Path() string { return h.path }

// ProtocolVersion is the protocol version the plugin declared at load.
func (h *Handle) ProtocolVersion() uint32 { return h.protocolVersion }

// LoadedAt is when the handshake completed.
func (h *Handle) LoadedAt() time.Time { return h.loadedAt }

// Call sends req and returns the plugin's answer. It never fails: every error
// is converted into a local ErrorResponse.
func (h *Handle) Call(ctx context.Context, req protocol.Message) protocol.Message {
	resp, err := h.Request(ctx, req)
	if err == nil {
		return resp
	}
	if errResp, ok := resp.(*protocol.ErrorResponse); ok {
		return errResp
	}
	return &protocol.ErrorResponse{Message: err.Error()}
}

// Request sends req and returns the decoded response. Failures are reported as
// *ForeignCallError, *protocol.EncodeError, *protocol.DecodeError,
// *UnsupportedRequestError (resp is then the plugin's ErrorResponse),
// ErrInvalidResponse or ErrHandleClosed. A done ctx prevents the call; a call
// already in flight runs to completion.
func (h *Handle) Request(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kind := protocol.Kind(0)
	if req != nil {
		kind = req.Kind()
	}

	ctx, span := observability.Tracer().Start(ctx, "plugin.call", trace.WithAttributes(
		attribute.String("plugin.name", h.name),
		attribute.String("plugin.path", h.path),
		attribute.String("plugin.request", kind.String()),
	))
	defer span.End()

	start := time.Now()
	resp, err := h.roundTrip(kind, req)
	elapsed := time.Since(start)

	status := callStatus(err)
	h.metrics.RecordPluginCall(h.name, kind.String(), status, elapsed)
	h.otelMetrics.RecordPluginCall(ctx, h.name, kind.String(), status, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		observability.FromContext(ctx, h.log).WithFields(logrus.Fields{
			"plugin": h.name,
			"kind":   kind.String(),
		}).Debugf("plugin call failed: %v", err)
	}
	return resp, err
}

func (h *Handle) roundTrip(kind protocol.Kind, req protocol.Message) (resp protocol.Message, err error) {
	buf, err := protocol.Encode(req)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHandleClosed
	}

	raw, err := h.invoke(buf)
	if err != nil {
		return nil, &ForeignCallError{Plugin: h.name, Kind: kind, Err: err}
	}

	resp, err = protocol.Decode(raw)
	if err != nil {
		return nil, err
	}
	if errResp, ok := resp.(*protocol.ErrorResponse); ok {
		return resp, &UnsupportedRequestError{
			Plugin:              h.name,
			Kind:                kind,
			Message:             errResp.Message,
			MissingDependencies: errResp.MissingDependencies,
		}
	}
	if !protocol.IsValidResponse(kind, resp.Kind()) {
		return nil, fmt.Errorf("%w: %s answered with %s", ErrInvalidResponse, kind, resp.Kind())
	}
	return resp, nil
}

// invoke calls the transport, containing any panic raised on the Go side of
// the boundary. Must be called with h.mu held.
func (h *Handle) invoke(buf []byte) (raw []byte, err error) {
	defer func() {
		if rerr := observability.RecoverError(recover()); rerr != nil {
			raw, err = nil, rerr
		}
	}()
	return h.transport.Call(buf)
}

// Metadata returns the plugin's version and description, fetched on first use.
// A lookup cut short by ctx is retried by the next caller.
func (h *Handle) Metadata(ctx context.Context) (version, description string) {
	h.metaMu.Lock()
	defer h.metaMu.Unlock()
	if h.metaDone {
		return h.version, h.description
	}

	resp, verr := h.Request(ctx, &protocol.GetVersion{})
	if verr == nil {
		h.version = resp.(*protocol.VersionResponse).Version
	}
	resp, derr := h.Request(ctx, &protocol.GetDescription{})
	if derr == nil {
		h.description = resp.(*protocol.DescriptionResponse).Description
	}
	h.metaDone = !isContextError(verr) && !isContextError(derr)
	return h.version, h.description
}

// Close waits for an in-flight call, then unloads the library. Later calls
// fail with ErrHandleClosed.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.transport.Close()
}

func callStatus(err error) string {
	var unsupported *UnsupportedRequestError
	var foreign *ForeignCallError
	switch {
	case err == nil:
		return observability.StatusOK
	case errors.As(err, &unsupported):
		return observability.StatusUnsupported
	case errors.As(err, &foreign):
		return observability.StatusFault
	default:
		return observability.StatusError
	}
}
