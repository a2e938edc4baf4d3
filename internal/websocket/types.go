package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeOperation reports a committed engine operation or an undo
	EventTypeOperation EventType = "operation"
	// EventTypeRulesReloaded reports a rule table reload attempt
	EventTypeRulesReloaded EventType = "rules_reloaded"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// OperationEvent summarizes an operation without the rewritten content
type OperationEvent struct {
	Mode         string   `json:"mode"`
	Replacements int      `json:"replacements"`
	OriginalHash string   `json:"original_hash"`
	NewHash      string   `json:"new_hash"`
	BackupPath   string   `json:"backup_path,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// RulesReloadedEvent reports the outcome of a reload
type RulesReloadedEvent struct {
	Rules int    `json:"rules"`
	Error string `json:"error,omitempty"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type   string      `json:"type"`
	Events []EventType `json:"events,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan Event
	Events      map[EventType]bool
	ConnectedAt time.Time
	LastPing    time.Time
	IP          string
	UserAgent   string
}
