package main

import "encoding/json"

// serviceName and serviceVersion are reported by the metadata endpoint.
const (
	serviceName    = "HabitCards API"
	serviceVersion = "1.0"
)

// collections is the closed set of stored collections. Each entry gets the
// full CRUD route group; the collection name doubles as the storage key.
var collections = []string{"alarms", "meetings", "moods", "inbox", "schedule", "profiles"}

// Item is an opaque JSON object. The server only ever touches its "id" and
// "createdAt" fields; everything else is client- or provider-defined.
type Item = json.RawMessage

// ParseRequest is the payload for the voice parse endpoint.
type ParseRequest struct {
	Text string `json:"text"`
	Mode string `json:"mode"`
}

// ServiceInfo is the response of the metadata endpoint.
type ServiceInfo struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
	Redis     bool     `json:"redis"`
}
