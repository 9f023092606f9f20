// Package api defines the wire types of the AgentDesk HTTP API.
//
// # API Overview
//
// AgentDesk exposes a small RESTful API around the pending interaction set:
//   - GET  /api/interaction/pending   pending requests keyed by id, creation order
//   - POST /api/interaction/response  answer a pending request
//   - POST /api/interaction/cancel    cancel a pending request
//   - POST /api/interaction/request   register a request (agent side)
//   - GET  /api/interaction/outcome   long-poll the outcome of a request
//   - GET  /api/interaction/stream    websocket, "pending_changed" notifications
//   - GET  /api/interaction/history   recent terminal outcomes
//   - Health monitoring and metrics
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # Error Handling
//
// Errors use the unified envelope:
//
//	{
//	  "success": false,
//	  "error": {"code": "NOT_FOUND", "message": "...", "retryable": false},
//	  "timestamp": "..."
//	}
//
// Answering or cancelling a request that is no longer pending yields
// 404 with code NOT_FOUND.
package api
