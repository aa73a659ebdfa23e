// Package types holds the wire-level DTOs and small enums shared between
// the store, replicator, and HTTP layers.
package types

import "strings"

// Role identifies whether a node accepts client writes or only replicated
// writes from the leader.
type Role int

const (
	RoleLeader Role = iota
	RoleFollower
)

func (r Role) String() string {
	switch r {
	case RoleLeader:
		return "leader"
	case RoleFollower:
		return "follower"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the role the way the wire protocol expects it:
// a bare lowercase string, not a JSON number.
func (r Role) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

// ParseRole parses "leader"/"follower" (case-insensitive).
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(s) {
	case "leader":
		return RoleLeader, true
	case "follower":
		return RoleFollower, true
	default:
		return 0, false
	}
}

// SetRequest is the body of POST /set.
type SetRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SetResponse is the 2xx body of POST /set.
type SetResponse struct {
	Success                   bool      `json:"success"`
	Key                       string    `json:"key"`
	Value                     string    `json:"value"`
	Replicas                  int       `json:"replicas"`
	Required                  int       `json:"required"`
	LatencyMs                 float64   `json:"latency_ms"`
	AvgReplicationLatencyMs   float64   `json:"avg_replication_latency_ms"`
	ReplicationLatenciesMs    []float64 `json:"replication_latencies"`
}

// SetErrorResponse is the body returned when a /set write fails to reach
// quorum (500). Other /set rejections (400/403) use ErrorResponse.
type SetErrorResponse struct {
	Success  bool    `json:"success"`
	Error    string  `json:"error"`
	Replicas int     `json:"replicas,omitempty"`
	Required int     `json:"required,omitempty"`
}

// ReplicateRequest is the body of POST /replicate.
type ReplicateRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ReplicateResponse is the 2xx body of POST /replicate.
type ReplicateResponse struct {
	Success bool `json:"success"`
}

// GetResponse is the body of GET/POST /get, success or not-found.
type GetResponse struct {
	Success  bool   `json:"success"`
	Key      string `json:"key,omitempty"`
	Value    string `json:"value,omitempty"`
	NodeType string `json:"node_type,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ErrorResponse is the generic {success:false,error:...} body returned by
// any endpoint rejecting a request outside its own richer shape (403 role
// mismatches, 400 malformed bodies).
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// GetAllResponse is the body of GET /get_all.
type GetAllResponse struct {
	Success  bool              `json:"success"`
	Data     map[string]string `json:"data"`
	Count    int               `json:"count"`
	NodeType string            `json:"node_type"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	NodeType string `json:"node_type"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	NodeType    string            `json:"node_type"`
	KeyCount    int               `json:"key_count"`
	Keys        map[string]string `json:"keys"`
	WriteQuorum *int              `json:"write_quorum,omitempty"`
}
