// Package replication implements the leader's write fan-out: concurrent
// replication RPCs to every configured peer, a quorum wait with
// early-return, and the latency accounting spec.md §4.2 mandates.
package replication

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/isparth/kvnode/internal/metrics"
	"github.com/isparth/kvnode/internal/types"
)

// Config configures a Replicator. It is immutable for the leader's
// lifetime, matching spec.md §3's node configuration.
type Config struct {
	Peers            []string
	WriteQuorum      int
	MinDelay         time.Duration
	MaxDelay         time.Duration
	ReplicateTimeout time.Duration
}

// Replicator fans a single write out to all configured peers and blocks
// until the quorum decision is known.
type Replicator struct {
	cfg     Config
	client  *http.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New builds a Replicator. metrics and logger may be nil.
func New(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Replicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replicator{
		cfg:     cfg,
		client:  &http.Client{},
		metrics: m,
		logger:  logger,
	}
}

// Result is the write result described in spec.md §3, minus the total
// end-to-end latency, which only the HTTP handler can measure (it spans
// the local commit that happens before Replicate is even called).
type Result struct {
	Accepted                bool
	ReplicaCount            int
	Required                int
	PerPeerLatenciesMs      []float64
	AverageLatencyMs        float64
}

type outcome struct {
	success   bool
	latencyMs float64
}

// Replicate dispatches one replication RPC per peer, waits until either W
// successes are observed or all peers have terminated, and returns. Peers
// still in flight when quorum is decided keep running in the background;
// their outcomes are drained and logged but never change
// the value already returned here. This is a deliberate no-cancellation
// design: followers must still converge for writes that did not reach
// quorum.
func (r *Replicator) Replicate(ctx context.Context, key, value string) Result {
	writeID := uuid.NewString()
	peers := r.cfg.Peers
	n := len(peers)

	outcomes := make(chan outcome, n)
	for _, peer := range peers {
		go r.replicateToOne(peer, key, value, writeID, outcomes)
	}

	var successes int
	var latencies []float64
	received := 0

	for received < n {
		o := <-outcomes
		received++
		if o.success {
			successes++
			latencies = append(latencies, o.latencyMs)
		}
		if successes >= r.cfg.WriteQuorum {
			break
		}
	}

	if received < n {
		go r.drainRemaining(outcomes, n-received, writeID)
	}

	accepted := successes >= r.cfg.WriteQuorum
	r.logger.Info("quorum decision", "write_id", writeID, "key", key,
		"replicas", successes, "required", r.cfg.WriteQuorum, "accepted", accepted)

	return Result{
		Accepted:           accepted,
		ReplicaCount:       successes,
		Required:           r.cfg.WriteQuorum,
		PerPeerLatenciesMs: latencies,
		AverageLatencyMs:   average(latencies),
	}
}

// drainRemaining consumes the outcomes of replication attempts that were
// still in flight when the client-visible quorum decision was made and
// logs each one at debug level. The channel has one slot per peer, so
// senders never block; latency metrics are recorded by replicateToOne
// itself, not here.
func (r *Replicator) drainRemaining(outcomes <-chan outcome, remaining int, writeID string) {
	for i := 0; i < remaining; i++ {
		o := <-outcomes
		r.logger.Debug("late replication outcome after quorum decision",
			"write_id", writeID, "success", o.success, "latency_ms", o.latencyMs)
	}
}

func (r *Replicator) replicateToOne(peer, key, value, writeID string, out chan<- outcome) {
	start := time.Now()

	delay := randDuration(r.cfg.MinDelay, r.cfg.MaxDelay)
	time.Sleep(delay)

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.ReplicateTimeout)
	defer cancel()

	success, err := r.postReplicate(ctx, peer, key, value)
	latencyMs := float64(time.Since(start)) / float64(time.Millisecond)

	if err != nil {
		r.logger.Error("replication attempt failed", "write_id", writeID, "peer", peer,
			"key", key, "latency_ms", latencyMs, "error", err)
	} else if success {
		r.logger.Debug("replication attempt succeeded", "write_id", writeID, "peer", peer,
			"key", key, "latency_ms", latencyMs)
		if r.metrics != nil {
			r.metrics.ReplicationLatency.Observe(latencyMs)
		}
	} else {
		r.logger.Warn("replication attempt rejected", "write_id", writeID, "peer", peer, "key", key)
	}

	out <- outcome{success: success, latencyMs: latencyMs}
}

func (r *Replicator) postReplicate(ctx context.Context, peer, key, value string) (bool, error) {
	body, err := json.Marshal(types.ReplicateRequest{Key: key, Value: value})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, peer+"/replicate", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("peer %s returned status %d", peer, resp.StatusCode)
	}

	var decoded types.ReplicateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return false, fmt.Errorf("peer %s returned invalid body: %w", peer, err)
	}
	return decoded.Success, nil
}

// randDuration draws uniformly from [min, max], inclusive on both ends.
func randDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := max - min
	return min + time.Duration(rand.Int63n(int64(span)+1))
}

func average(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
