// Package client talks to the gatekeeper AuthService over gRPC.
//
// GRPCClient keeps the current token pair, attaches the access token to
// every call and, when the server answers with an expired-token error,
// refreshes once and retries. Server errors are translated back to the
// sentinels in internal/common so callers can use errors.Is.
package client
