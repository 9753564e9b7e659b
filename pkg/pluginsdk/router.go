// Package pluginsdk is the plugin-side half of the llx protocol. A plugin implements
// Plugin plus any of the optional interfaces, and its exported
// llx_plugin_handle_request entry point forwards raw bytes to Router.HandleRaw.
//
//	var router = pluginsdk.NewRouter(&gitPlugin{})
//
//	//export llx_plugin_handle_request
//	func llx_plugin_handle_request(req *C.uint8_t, n C.size_t, out *C.size_t) *C.uint8_t {
//		resp := router.HandleRaw(C.GoBytes(unsafe.Pointer(req), C.int(n)))
//		...
//	}
package pluginsdk

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/platinummonkey/llx/pkg/protocol"
)

// Plugin is the minimum every plugin provides.
type Plugin interface {
	Name() string
	Version() string
	Description() string
}

// FormatProvider declares the output formats a plugin decorates. Plugins that
// decorate but do not implement it are assumed to support default and long.
type FormatProvider interface {
	SupportedFormats() []string
}

// Decorator adds fields to a single entry.
type Decorator interface {
	Decorate(entry protocol.Entry) (protocol.Entry, error)
}

// BatchDecorator decorates a whole listing in one call. The result must have the
// same length and order as the input.
type BatchDecorator interface {
	DecorateBatch(entries []protocol.Entry, format string) ([]protocol.Entry, error)
}

// FieldFormatter renders the plugin's column for an entry. ok is false when the
// plugin has nothing to show for it.
type FieldFormatter interface {
	FormatField(entry protocol.Entry, format string) (field string, ok bool, err error)
}

// Configurable receives the host configuration once at startup.
type Configurable interface {
	Configure(payload protocol.ConfigPayload) error
}

// ActionHandler runs named plugin actions.
type ActionHandler interface {
	PerformAction(action string, args []string) error
}

// MissingDependencyError lets Configure or any handler report external tools or
// libraries the plugin needs but could not find.
type MissingDependencyError struct {
	Dependencies []string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("missing dependencies: %v", e.Dependencies)
}

// Router dispatches decoded requests to a Plugin.
type Router struct {
	plugin Plugin
}

// NewRouter creates a router for p.
func NewRouter(p Plugin) *Router {
	return &Router{plugin: p}
}

// HandleRaw decodes req, dispatches it and encodes the response. It never panics
// and never returns an empty buffer: every failure becomes an ErrorResponse.
func (r *Router) HandleRaw(req []byte) (resp []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			resp = mustEncode(protocol.Errorf("plugin panic: %v\n%s", rec, debug.Stack()))
		}
	}()

	msg, err := protocol.Decode(req)
	if err != nil {
		return mustEncode(protocol.Errorf("%v", err))
	}

	out, err := protocol.Encode(r.Handle(msg))
	if err != nil {
		return mustEncode(protocol.Errorf("%v", err))
	}
	return out
}

// Handle answers one request.
func (r *Router) Handle(req protocol.Message) protocol.Message {
	switch m := req.(type) {
	case *protocol.GetName:
		return &protocol.NameResponse{Name: r.plugin.Name()}
	case *protocol.GetVersion:
		return &protocol.VersionResponse{Version: r.plugin.Version()}
	case *protocol.GetDescription:
		return &protocol.DescriptionResponse{Description: r.plugin.Description()}
	case *protocol.GetSupportedFormats:
		return &protocol.FormatsResponse{Formats: r.formats(), Capabilities: r.capabilities()}
	case *protocol.Decorate:
		d, ok := r.plugin.(Decorator)
		if !ok {
			return unsupported(req)
		}
		entry, err := d.Decorate(m.Entry)
		if err != nil {
			return errorResponse(err)
		}
		return &protocol.DecoratedResponse{Entry: entry}
	case *protocol.BatchDecorate:
		d, ok := r.plugin.(BatchDecorator)
		if !ok {
			return unsupported(req)
		}
		entries, err := d.DecorateBatch(m.Entries, m.Format)
		if err != nil {
			return errorResponse(err)
		}
		return &protocol.BatchDecoratedResponse{Entries: entries}
	case *protocol.FormatField:
		f, ok := r.plugin.(FieldFormatter)
		if !ok {
			return unsupported(req)
		}
		field, present, err := f.FormatField(m.Entry, m.Format)
		if err != nil {
			return errorResponse(err)
		}
		if !present {
			return &protocol.FieldResponse{}
		}
		return &protocol.FieldResponse{Field: &field}
	case *protocol.Config:
		c, ok := r.plugin.(Configurable)
		if !ok {
			return &protocol.ConfigResponse{Success: true}
		}
		if err := c.Configure(m.Payload); err != nil {
			resp := &protocol.ConfigResponse{Error: err.Error()}
			var missing *MissingDependencyError
			if errors.As(err, &missing) {
				resp.MissingDependencies = missing.Dependencies
			}
			return resp
		}
		return &protocol.ConfigResponse{Success: true}
	case *protocol.PerformAction:
		a, ok := r.plugin.(ActionHandler)
		if !ok {
			return unsupported(req)
		}
		if err := a.PerformAction(m.Action, m.Args); err != nil {
			return &protocol.ActionResponse{Error: err.Error()}
		}
		return &protocol.ActionResponse{Success: true}
	default:
		return unsupported(req)
	}
}

func (r *Router) formats() []string {
	if fp, ok := r.plugin.(FormatProvider); ok {
		return fp.SupportedFormats()
	}
	switch r.plugin.(type) {
	case Decorator, BatchDecorator, FieldFormatter:
		return []string{protocol.FormatDefault, protocol.FormatLong}
	}
	return nil
}

func (r *Router) capabilities() []string {
	var caps []string
	if _, ok := r.plugin.(Decorator); ok {
		caps = append(caps, protocol.FeatureDecorate)
	}
	if _, ok := r.plugin.(BatchDecorator); ok {
		caps = append(caps, protocol.FeatureBatchDecorate)
	}
	if _, ok := r.plugin.(FieldFormatter); ok {
		caps = append(caps, protocol.FeatureFormatField)
	}
	if _, ok := r.plugin.(ActionHandler); ok {
		caps = append(caps, protocol.FeatureActions)
	}
	return caps
}

func unsupported(req protocol.Message) *protocol.ErrorResponse {
	return protocol.Errorf("unsupported request %s", req.Kind())
}

func errorResponse(err error) *protocol.ErrorResponse {
	resp := &protocol.ErrorResponse{Message: err.Error()}
	var missing *MissingDependencyError
	if errors.As(err, &missing) {
		resp.MissingDependencies = missing.Dependencies
	}
	return resp
}

func mustEncode(m protocol.Message) []byte {
	b, err := protocol.Encode(m)
	if err != nil {
		// ErrorResponse always encodes; reaching here is a bug in the codec.
		panic(err)
	}
	return b
}
