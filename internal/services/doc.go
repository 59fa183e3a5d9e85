// Package services is the operation layer shared by the HTTP and MCP
// surfaces.
//
// Memory validates requests, resolves the agent's store through the
// integration registry and returns copies, so neither transport touches a
// store directly. Errors are classified by sentinel:
//
//	ErrInvalidRequest, integration.ErrInvalidAgentID  bad input
//	ErrEntryNotFound, integration.ErrAgentNotFound    missing target
//	ErrSearchUnavailable                              backend lacks search
package services
