package rpcserver

import "github.com/kgmemory/kgmemory/internal/graphtypes"

// errorCode assigns a small stable negative integer per graphtypes.Kind,
// mirrored from original_source/src/mcp's per-operation error-code
// taxonomy (SPEC_FULL.md §9 supplemented feature) so client tooling can
// switch on the numeric code instead of string-matching error.message.
// -32000..-32099 is the JSON-RPC 2.0 reserved "Server error" band; these
// codes live inside it.
var errorCode = map[graphtypes.Kind]int{
	graphtypes.KindInvalidParameters: -32001,
	graphtypes.KindNotFound:          -32002,
	graphtypes.KindConflict:          -32003,
	graphtypes.KindNotReady:          -32004,
	graphtypes.KindTimeout:           -32005,
	graphtypes.KindCircuitOpen:       -32006,
	graphtypes.KindRateLimited:       -32007,
	graphtypes.KindAuthDenied:        -32008,
	graphtypes.KindStorageTransient:  -32009,
	graphtypes.KindStorageCorruption: -32010,
	graphtypes.KindInternal:          -32000,
}

// codeForKind returns the stable numeric code for kind, defaulting to the
// generic Internal code for any kind not in the table (there is none today,
// but this keeps the lookup total).
func codeForKind(kind graphtypes.Kind) int {
	if c, ok := errorCode[kind]; ok {
		return c
	}
	return errorCode[graphtypes.KindInternal]
}

// toRPCError converts any error into an RPCError, pulling Kind/message
// through graphtypes when err is a *graphtypes.Error and falling back to
// KindInternal with err.Error() otherwise.
func toRPCError(err error) *RPCError {
	kind := graphtypes.KindOf(err)
	return &RPCError{
		Code:    codeForKind(kind),
		Message: err.Error(),
		Data:    map[string]string{"kind": kind.String()},
	}
}

// invalidParams builds a KindInvalidParameters *graphtypes.Error with the
// given field name, for transport-level param decoding failures that never
// reach a ToolHandler.
func invalidParams(field, message string) error {
	return graphtypes.New(graphtypes.KindInvalidParameters, message).WithField(field)
}

// Parse/invalid-request codes below -32099 are the standard JSON-RPC 2.0
// reserved codes, used only for transport-level malformed input (not
// tied to any graphtypes.Kind since the request never reached a handler).
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
)
