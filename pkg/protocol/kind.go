package protocol

import "fmt"

// Kind discriminates message variants. Its value is the envelope field number.
type Kind uint32

const (
	KindGetName             Kind = 1
	KindGetVersion          Kind = 2
	KindGetDescription      Kind = 3
	KindGetSupportedFormats Kind = 4
	KindDecorate            Kind = 5
	KindBatchDecorate       Kind = 6
	KindFormatField         Kind = 7
	KindConfig              Kind = 8
	KindPerformAction       Kind = 9

	KindNameResponse           Kind = 101
	KindVersionResponse        Kind = 102
	KindDescriptionResponse    Kind = 103
	KindFormatsResponse        Kind = 104
	KindDecoratedResponse      Kind = 105
	KindBatchDecoratedResponse Kind = 106
	KindFieldResponse          Kind = 107
	KindConfigResponse         Kind = 108
	KindActionResponse         Kind = 109

	KindErrorResponse Kind = 200
)

// responseOffset maps a request kind to its response kind.
const responseOffset = 100

var kindNames = map[Kind]string{
	KindGetName:                "GetName",
	KindGetVersion:             "GetVersion",
	KindGetDescription:         "GetDescription",
	KindGetSupportedFormats:    "GetSupportedFormats",
	KindDecorate:               "Decorate",
	KindBatchDecorate:          "BatchDecorate",
	KindFormatField:            "FormatField",
	KindConfig:                 "Config",
	KindPerformAction:          "PerformAction",
	KindNameResponse:           "NameResponse",
	KindVersionResponse:        "VersionResponse",
	KindDescriptionResponse:    "DescriptionResponse",
	KindFormatsResponse:        "FormatsResponse",
	KindDecoratedResponse:      "DecoratedResponse",
	KindBatchDecoratedResponse: "BatchDecoratedResponse",
	KindFieldResponse:          "FieldResponse",
	KindConfigResponse:         "ConfigResponse",
	KindActionResponse:         "ActionResponse",
	KindErrorResponse:          "ErrorResponse",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint32(k))
}

// Known reports whether k is a variant of this schema revision.
func (k Kind) Known() bool {
	_, ok := kindNames[k]
	return ok
}

// IsRequest reports whether k is a host-to-plugin request.
func (k Kind) IsRequest() bool {
	return k >= KindGetName && k <= KindPerformAction
}

// IsResponse reports whether k is a plugin-to-host response, including ErrorResponse.
func (k Kind) IsResponse() bool {
	return k.Known() && !k.IsRequest()
}

// ResponseKind returns the single valid non-error response kind for a request kind.
func ResponseKind(request Kind) (Kind, bool) {
	if !request.IsRequest() {
		return 0, false
	}
	return request + responseOffset, true
}

// IsValidResponse reports whether resp is type-correct for req: either the paired
// response kind or ErrorResponse.
func IsValidResponse(req, resp Kind) bool {
	if resp == KindErrorResponse {
		return req.IsRequest()
	}
	want, ok := ResponseKind(req)
	return ok && resp == want
}
