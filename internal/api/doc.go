// Package api exposes the chat bot over HTTP: a JSON message endpoint, a
// pre-parsed intent endpoint, a read-only cluster listing and a WebSocket
// chat session.
package api
