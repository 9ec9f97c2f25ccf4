package request

import "github.com/sarchlab/coupling/hooking"

// HookPosRequestIssued marks when a request is handed to the transport. The
// hook item is the request Info.
var HookPosRequestIssued = &hooking.HookPos{Name: "Request Issued"}

// HookPosRequestCompleted marks when the Manager observes the completion of
// a request.
var HookPosRequestCompleted = &hooking.HookPos{Name: "Request Completed"}

// HookPosRequestCancelled marks when a receive is withdrawn before a message
// matched it.
var HookPosRequestCancelled = &hooking.HookPos{Name: "Request Cancelled"}

// HookPosRequestDeleted marks when a request leaves the request table.
var HookPosRequestDeleted = &hooking.HookPos{Name: "Request Deleted"}
