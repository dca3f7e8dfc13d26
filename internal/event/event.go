package event

import (
	"fmt"
	"strings"
	"time"
)

// Type is the canonical event category.
type Type string

const (
	HTTPAccess   Type = "http_access"
	NetworkFlow  Type = "network_flow"
	DNS          Type = "dns"
	Auth         Type = "auth"
	ConfigChange Type = "config_change"
)

// Valid reports whether t is one of the enumerated event types.
func (t Type) Valid() bool {
	switch t {
	case HTTPAccess, NetworkFlow, DNS, Auth, ConfigChange:
		return true
	}
	return false
}

const (
	ActionAllow = "allow"
	ActionDeny  = "deny"

	ResultSuccess = "success"
	ResultFail    = "fail"
)

// Event is the normalized record emitted for one raw log line or record.
// Optional fields left at their zero value are omitted from the JSON form;
// integer fields are pointers so that a real zero survives serialization.
type Event struct {
	Timestamp string `json:"timestamp"`
	AssetID   string `json:"asset_id"`
	Type      Type   `json:"event_type"`

	SrcIP    string `json:"src_ip,omitempty"`
	DstIP    string `json:"dst_ip,omitempty"`
	DstPort  *int   `json:"dst_port,omitempty"`
	Method   string `json:"method,omitempty"`
	Object   string `json:"object,omitempty"`
	Status   *int   `json:"status,omitempty"`
	Bytes    *int   `json:"bytes,omitempty"`
	UA       string `json:"ua,omitempty"`
	Referrer string `json:"referrer,omitempty"`
	Host     string `json:"host,omitempty"`
	Action   string `json:"action,omitempty"`
	User     string `json:"user,omitempty"`
	Result   string `json:"result,omitempty"`
	QType    string `json:"qtype,omitempty"`
}

// Int returns a pointer to n, for the optional integer fields.
func Int(n int) *int {
	return &n
}

// Fields returns the sparse key/value view of e, using the JSON field names.
func (e Event) Fields() map[string]any {
	m := map[string]any{
		"timestamp":  e.Timestamp,
		"asset_id":   e.AssetID,
		"event_type": string(e.Type),
	}
	str := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	num := func(k string, v *int) {
		if v != nil {
			m[k] = *v
		}
	}
	str("src_ip", e.SrcIP)
	str("dst_ip", e.DstIP)
	num("dst_port", e.DstPort)
	str("method", e.Method)
	str("object", e.Object)
	num("status", e.Status)
	num("bytes", e.Bytes)
	str("ua", e.UA)
	str("referrer", e.Referrer)
	str("host", e.Host)
	str("action", e.Action)
	str("user", e.User)
	str("result", e.Result)
	str("qtype", e.QType)
	return m
}

// Validate checks the mandatory fields.
func (e Event) Validate() error {
	if !strings.HasSuffix(e.Timestamp, "Z") {
		return fmt.Errorf("timestamp %q is not UTC", e.Timestamp)
	}
	if _, err := time.Parse(time.RFC3339Nano, e.Timestamp); err != nil {
		return fmt.Errorf("timestamp %q: %w", e.Timestamp, err)
	}
	if e.AssetID == "" {
		return fmt.Errorf("asset_id is required")
	}
	if !e.Type.Valid() {
		return fmt.Errorf("unknown event_type %q", e.Type)
	}
	return nil
}
