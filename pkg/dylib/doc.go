// Package dylib opens plugin shared libraries and performs raw byte calls into them.
//
// # Binary Contract
//
// A plugin library exports three C ABI functions:
//
//	uint32_t llx_plugin_protocol_version(void);
//	uint8_t* llx_plugin_handle_request(const uint8_t* req, size_t req_len, size_t* resp_len);
//	void     llx_plugin_free_response(uint8_t* resp, size_t resp_len);
//
// # Buffer Ownership
//
// One convention holds for every call:
//
//   - the host owns the request buffer; the plugin reads it during the call only
//   - the plugin allocates the response with its own allocator
//   - the host copies the response into Go memory, then hands the original pointer and
//     length back to llx_plugin_free_response, on every exit path
//   - a NULL response pointer is a failed call and is never freed
//
// Libraries are loaded with purego on Unix-like systems, so no cgo toolchain is
// needed on the host side, and with LoadLibrary on Windows.
package dylib
