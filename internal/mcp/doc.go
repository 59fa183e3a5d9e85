// Package mcp exposes the memory service as MCP tools over stdio.
//
// Tools take an agent id and map one-to-one onto services.Memory
// operations. Tool errors are returned to the client as error results;
// they never terminate the session.
package mcp
