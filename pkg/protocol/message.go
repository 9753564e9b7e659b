package protocol

import "fmt"

// Message is one variant of the plugin message union. Only pointer types of this
// package implement it.
type Message interface {
	Kind() Kind
}

// Requests sent by the host.

type GetName struct{}

type GetVersion struct{}

type GetDescription struct{}

// GetSupportedFormats asks for the output formats and optional features a plugin
// supports.
type GetSupportedFormats struct{}

type Decorate struct {
	Entry Entry
}

// BatchDecorate carries a whole listing. The response must hold the same number of
// entries in the same order.
type BatchDecorate struct {
	Entries []Entry
	Format  string
}

// FormatField asks a plugin to render its column for one entry in a given format.
type FormatField struct {
	Entry  Entry
	Format string
}

type Config struct {
	Payload ConfigPayload
}

type PerformAction struct {
	Action string
	Args   []string
}

// Responses sent by plugins.

type NameResponse struct {
	Name string
}

type VersionResponse struct {
	Version string
}

type DescriptionResponse struct {
	Description string
}

type FormatsResponse struct {
	Formats []string
	// Capabilities lists optional features (see the Feature constants). When it is
	// empty the host probes for batch support instead.
	Capabilities []string
}

type DecoratedResponse struct {
	Entry Entry
}

type BatchDecoratedResponse struct {
	Entries []Entry
}

// FieldResponse holds the rendered field, or nil when the plugin has nothing to show.
type FieldResponse struct {
	Field *string
}

type ConfigResponse struct {
	Success             bool
	Error               string
	MissingDependencies []string
}

type ActionResponse struct {
	Success bool
	Error   string
}

// ErrorResponse answers any request the plugin could not or would not serve.
type ErrorResponse struct {
	Message             string
	MissingDependencies []string
}

func (*GetName) Kind() Kind             { return KindGetName }
func (*GetVersion) Kind() Kind          { return KindGetVersion }
func (*GetDescription) Kind() Kind      { return KindGetDescription }
func (*GetSupportedFormats) Kind() Kind { return KindGetSupportedFormats }
func (*Decorate) Kind() Kind            { return KindDecorate }
func (*BatchDecorate) Kind() Kind       { return KindBatchDecorate }
func (*FormatField) Kind() Kind         { return KindFormatField }
func (*Config) Kind() Kind              { return KindConfig }
func (*PerformAction) Kind() Kind       { return KindPerformAction }

func (*NameResponse) Kind() Kind           { return KindNameResponse }
func (*VersionResponse) Kind() Kind        { return KindVersionResponse }
func (*DescriptionResponse) Kind() Kind    { return KindDescriptionResponse }
func (*FormatsResponse) Kind() Kind        { return KindFormatsResponse }
func (*DecoratedResponse) Kind() Kind      { return KindDecoratedResponse }
func (*BatchDecoratedResponse) Kind() Kind { return KindBatchDecoratedResponse }
func (*FieldResponse) Kind() Kind          { return KindFieldResponse }
func (*ConfigResponse) Kind() Kind         { return KindConfigResponse }
func (*ActionResponse) Kind() Kind         { return KindActionResponse }
func (*ErrorResponse) Kind() Kind          { return KindErrorResponse }

// Errorf builds an ErrorResponse.
func Errorf(format string, args ...any) *ErrorResponse {
	return &ErrorResponse{Message: fmt.Sprintf(format, args...)}
}
