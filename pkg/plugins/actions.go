package plugins

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/llx/pkg/protocol"
)

// PerformAction runs a named action in an enabled plugin.
func (r *Registry) PerformAction(ctx context.Context, name, action string, args []string) error {
	h, release, err := r.acquire(name)
	if err != nil {
		r.health.RecordError(name, err.Error())
		return err
	}
	defer release()

	if !r.IsEnabled(name) {
		return fmt.Errorf("%w: %s", ErrPluginDisabled, name)
	}

	resp, err := h.Request(ctx, &protocol.PerformAction{Action: action, Args: args})
	if err != nil {
		r.recordCallError(name, "action "+action, err)
		return err
	}

	result := resp.(*protocol.ActionResponse)
	if !result.Success {
		return &ActionError{Plugin: name, Action: action, Reason: result.Error}
	}
	r.health.RecordSuccess(name)
	return nil
}

// deliverConfig sends payload to h once. A refusal or failure is recorded in
// the health ledger and otherwise ignored.
func (r *Registry) deliverConfig(ctx context.Context, h *Handle, payload protocol.ConfigPayload) {
	resp, err := h.Request(ctx, &protocol.Config{Payload: payload})
	if err != nil {
		r.recordCallError(h.Name(), "config", err)
		r.log.WithField("plugin", h.Name()).Warnf("Plugin did not accept configuration: %v", err)
		return
	}

	result := resp.(*protocol.ConfigResponse)
	for _, dep := range result.MissingDependencies {
		r.health.RecordMissingDependency(h.Name(), dep)
	}
	if !result.Success {
		reason := result.Error
		if reason == "" {
			reason = "configuration rejected"
		}
		r.health.RecordError(h.Name(), "config: "+reason)
		r.log.WithField("plugin", h.Name()).Warnf("Plugin rejected configuration: %s", reason)
		return
	}
	r.health.RecordSuccess(h.Name())
}

func (r *Registry) recordCallError(name, what string, err error) {
	if isContextError(err) {
		return
	}
	r.health.RecordError(name, fmt.Sprintf("%s: %v", what, err))

	var unsupported *UnsupportedRequestError
	if errors.As(err, &unsupported) {
		for _, dep := range unsupported.MissingDependencies {
			r.health.RecordMissingDependency(name, dep)
		}
	}
}

// ConfigOptions are the host settings sent to plugins at startup.
type ConfigOptions struct {
	HostVersion   string
	Theme         string
	DefaultFormat string
	ShowIcons     bool
	// Shortcuts maps a shortcut name to its plugin and action.
	Shortcuts map[string]Shortcut
}

// Shortcut binds a name to a plugin action.
type Shortcut struct {
	Plugin string
	Action string
}

// NewConfigPayload builds the payload delivered to plugins.
func NewConfigPayload(opts ConfigOptions) protocol.ConfigPayload {
	payload := protocol.ConfigPayload{
		Theme:         opts.Theme,
		DefaultFormat: opts.DefaultFormat,
		ShowIcons:     opts.ShowIcons,
		Values: map[string]string{
			"version":        opts.HostVersion,
			"api_version":    fmt.Sprint(protocol.Version),
			"theme":          opts.Theme,
			"default_format": opts.DefaultFormat,
			"show_icons":     fmt.Sprint(opts.ShowIcons),
		},
	}
	if len(opts.Shortcuts) > 0 {
		payload.Shortcuts = make(map[string]string, len(opts.Shortcuts))
		for name, sc := range opts.Shortcuts {
			payload.Shortcuts[name] = sc.Plugin + ":" + sc.Action
		}
	}
	return payload
}
