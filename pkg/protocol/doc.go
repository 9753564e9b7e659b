// Package protocol defines the message schema exchanged between llx and its plugins
// and the codec that turns those messages into bytes.
//
// # Overview
//
// Host and plugin never share in-memory structures. Every interaction is one request
// message encoded to bytes, handed across the FFI boundary, and one response message
// decoded from the bytes the plugin hands back.
//
// # Wire Format
//
// Messages use the protobuf wire format, written and read with protowire so no
// generated code is involved. A message is an envelope with exactly one populated
// variant field; the field number is the message Kind:
//
//	1 GetName              101 NameResponse
//	2 GetVersion           102 VersionResponse
//	3 GetDescription       103 DescriptionResponse
//	4 GetSupportedFormats  104 FormatsResponse
//	5 Decorate             105 DecoratedResponse
//	6 BatchDecorate        106 BatchDecoratedResponse
//	7 FormatField          107 FieldResponse
//	8 Config               108 ConfigResponse
//	9 PerformAction        109 ActionResponse
//	                       200 ErrorResponse
//
// Unknown fields are skipped at every nesting level, so a consumer built against an
// older revision of the schema keeps working when a newer producer adds fields.
// Nil and empty collections encode identically.
//
// # Usage Example
//
//	buf, err := protocol.Encode(&protocol.Decorate{Entry: entry})
//	if err != nil {
//		return err
//	}
//
//	msg, err := protocol.Decode(resp)
//	if errors.Is(err, protocol.ErrUnknownVariant) {
//		// produced by a newer, incompatible plugin
//	}
//
// # Related Packages
//
//   - pkg/dylib: moves encoded buffers across the FFI boundary
//   - pkg/plugins: host-side runtime built on this schema
//   - pkg/pluginsdk: plugin-side request router built on this schema
package protocol
