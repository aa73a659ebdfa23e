package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/isparth/kvnode/internal/apierr"
	"github.com/isparth/kvnode/internal/types"
)

// handleSet implements POST /set (spec.md §4.4/§6, state machine §4.6).
// Only the leader accepts it. The local commit happens before fan-out
// begins (§5's ordering guarantee), and the client is answered only once
// the quorum decision is known.
func (n *Node) handleSet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if n.Role != types.RoleLeader {
		writeAPIError(w, apierr.RoleMismatch("only the leader accepts write requests"))
		return
	}

	var req types.SetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		writeAPIError(w, apierr.ClientError("invalid request; need key and value"))
		return
	}

	// LOCAL_COMMITTED: leader's store updated before any outbound RPC.
	n.Store.Put(req.Key, req.Value)
	if n.Metrics != nil {
		n.Metrics.StoreSize.Set(float64(n.Store.Size()))
	}

	// REPLICATING -> {QUORUM_MET | QUORUM_FAILED}
	result := n.Replicator.Replicate(r.Context(), req.Key, req.Value)
	totalLatencyMs := float64(time.Since(start)) / float64(time.Millisecond)

	if n.Metrics != nil {
		if result.Accepted {
			n.Metrics.WritesTotal.WithLabelValues("quorum_met").Inc()
		} else {
			n.Metrics.WritesTotal.WithLabelValues("quorum_failed").Inc()
		}
	}

	if !result.Accepted {
		n.Logger.Warn("write quorum not met", "key", req.Key,
			"replicas", result.ReplicaCount, "required", result.Required)
		err := apierr.QuorumUnreached("Quorum not reached")
		writeJSON(w, err.Status(), types.SetErrorResponse{
			Success:  false,
			Error:    err.Message,
			Replicas: result.ReplicaCount,
			Required: result.Required,
		})
		return
	}

	n.Logger.Info("write accepted", "key", req.Key, "replicas", result.ReplicaCount,
		"required", result.Required, "total_latency_ms", totalLatencyMs)

	writeJSON(w, http.StatusOK, types.SetResponse{
		Success:                 true,
		Key:                     req.Key,
		Value:                   req.Value,
		Replicas:                result.ReplicaCount,
		Required:                result.Required,
		LatencyMs:               totalLatencyMs,
		AvgReplicationLatencyMs: result.AverageLatencyMs,
		ReplicationLatenciesMs:  orEmpty(result.PerPeerLatenciesMs),
	})
}

// handleGet implements GET/POST /get (spec.md §4.4). Role-agnostic:
// consults only the local store.
func (n *Node) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" && r.Method == http.MethodPost {
		var req types.SetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			key = req.Key
		}
	}
	if key == "" {
		writeAPIError(w, apierr.ClientError("missing key"))
		return
	}

	value, ok := n.Store.Get(key)
	if !ok {
		err := apierr.NotFound("Key not found")
		writeJSON(w, err.Status(), types.GetResponse{Success: false, Error: err.Message})
		return
	}

	writeJSON(w, http.StatusOK, types.GetResponse{
		Success:  true,
		Key:      key,
		Value:    value,
		NodeType: n.Role.String(),
	})
}

// handleReplicate implements POST /replicate (spec.md §4.3). Only
// followers accept it; the store's own mutex is the only serialization
// needed, per spec.md §4.3.
func (n *Node) handleReplicate(w http.ResponseWriter, r *http.Request) {
	if n.Role != types.RoleFollower {
		writeAPIError(w, apierr.RoleMismatch("only followers accept replication requests"))
		return
	}

	var req types.ReplicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		writeAPIError(w, apierr.ClientError("invalid replication request"))
		return
	}

	n.Store.Put(req.Key, req.Value)
	if n.Metrics != nil {
		n.Metrics.StoreSize.Set(float64(n.Store.Size()))
	}
	n.Logger.Debug("replicated write applied", "key", req.Key)

	writeJSON(w, http.StatusOK, types.ReplicateResponse{Success: true})
}

// handleHealth implements GET /health (spec.md §4.5).
func (n *Node) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:   "healthy",
		NodeType: n.Role.String(),
	})
}

// handleStatus implements GET /status (spec.md §4.5). The response
// includes the full key map, per the Open Question resolution in
// DESIGN.md.
func (n *Node) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := n.Store.Snapshot()
	resp := types.StatusResponse{
		NodeType: n.Role.String(),
		KeyCount: len(snap),
		Keys:     snap,
	}
	if n.Role == types.RoleLeader {
		q := n.WriteQuorum
		resp.WriteQuorum = &q
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetAll implements GET /get_all (SPEC_FULL.md §4.7).
func (n *Node) handleGetAll(w http.ResponseWriter, r *http.Request) {
	snap := n.Store.Snapshot()
	writeJSON(w, http.StatusOK, types.GetAllResponse{
		Success:  true,
		Data:     snap,
		Count:    len(snap),
		NodeType: n.Role.String(),
	})
}

func writeAPIError(w http.ResponseWriter, err *apierr.Error) {
	writeJSON(w, err.Status(), types.ErrorResponse{Success: false, Error: err.Message})
}

func orEmpty(vs []float64) []float64 {
	if vs == nil {
		return []float64{}
	}
	return vs
}
