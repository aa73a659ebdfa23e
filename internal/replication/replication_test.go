package replication

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/isparth/kvnode/internal/types"
)

// fakeFollower runs an httptest.Server that accepts /replicate after an
// optional artificial delay, and can be told to always fail.
func fakeFollower(t *testing.T, delay time.Duration, fail bool) *httptest.Server {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(delay)
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var req types.ReplicateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(types.ReplicateResponse{Success: true})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestReplicate_QuorumMetUnderTrivialDelay(t *testing.T) {
	peers := []*httptest.Server{
		fakeFollower(t, 0, false),
		fakeFollower(t, 0, false),
		fakeFollower(t, 0, false),
	}
	r := New(Config{
		Peers:            urlsOf(peers),
		WriteQuorum:      2,
		ReplicateTimeout: time.Second,
	}, nil, nil)

	result := r.Replicate(context.Background(), "a", "1")
	require.True(t, result.Accepted)
	require.GreaterOrEqual(t, result.ReplicaCount, 2)
	require.Equal(t, 2, result.Required)
	require.NotEmpty(t, result.PerPeerLatenciesMs)
}

func TestReplicate_QuorumFailedWhenTooFewPeersSucceed(t *testing.T) {
	peers := []*httptest.Server{
		fakeFollower(t, 0, true),
		fakeFollower(t, 0, true),
		fakeFollower(t, 0, false),
	}
	r := New(Config{
		Peers:            urlsOf(peers),
		WriteQuorum:      2,
		ReplicateTimeout: time.Second,
	}, nil, nil)

	result := r.Replicate(context.Background(), "a", "1")
	require.False(t, result.Accepted)
	require.Less(t, result.ReplicaCount, result.Required)
}

func TestReplicate_EarlyReturnDoesNotWaitForSlowerPeers(t *testing.T) {
	peers := []*httptest.Server{
		fakeFollower(t, 5*time.Millisecond, false),
		fakeFollower(t, 5*time.Millisecond, false),
		fakeFollower(t, 200*time.Millisecond, false),
	}
	r := New(Config{
		Peers:            urlsOf(peers),
		WriteQuorum:      2,
		ReplicateTimeout: time.Second,
	}, nil, nil)

	start := time.Now()
	result := r.Replicate(context.Background(), "a", "1")
	elapsed := time.Since(start)

	require.True(t, result.Accepted)
	require.Less(t, elapsed, 150*time.Millisecond, "should return well before the slow peer completes")
}

func TestReplicate_WriteQuorumOneReturnsOnFirstSuccess(t *testing.T) {
	peers := []*httptest.Server{
		fakeFollower(t, 0, false),
		fakeFollower(t, 100*time.Millisecond, false),
	}
	r := New(Config{
		Peers:            urlsOf(peers),
		WriteQuorum:      1,
		ReplicateTimeout: time.Second,
	}, nil, nil)

	start := time.Now()
	result := r.Replicate(context.Background(), "a", "1")
	elapsed := time.Since(start)

	require.True(t, result.Accepted)
	require.Equal(t, 1, result.ReplicaCount)
	require.Less(t, elapsed, 80*time.Millisecond)
}

func TestReplicate_WriteQuorumAllWaitsForSlowestPeer(t *testing.T) {
	peers := []*httptest.Server{
		fakeFollower(t, 0, false),
		fakeFollower(t, 50*time.Millisecond, false),
	}
	r := New(Config{
		Peers:            urlsOf(peers),
		WriteQuorum:      2,
		ReplicateTimeout: time.Second,
	}, nil, nil)

	start := time.Now()
	result := r.Replicate(context.Background(), "a", "1")
	elapsed := time.Since(start)

	require.True(t, result.Accepted)
	require.Equal(t, 2, result.ReplicaCount)
	require.GreaterOrEqual(t, elapsed, 45*time.Millisecond)
}

func TestReplicate_LatencyNeverBelowMinDelay(t *testing.T) {
	peers := []*httptest.Server{fakeFollower(t, 0, false)}
	r := New(Config{
		Peers:            urlsOf(peers),
		WriteQuorum:      1,
		MinDelay:         30 * time.Millisecond,
		MaxDelay:         30 * time.Millisecond,
		ReplicateTimeout: time.Second,
	}, nil, nil)

	result := r.Replicate(context.Background(), "a", "1")
	require.True(t, result.Accepted)
	require.GreaterOrEqual(t, result.PerPeerLatenciesMs[0], 30.0)
}

func TestReplicate_ZeroPeersZeroQuorumSucceedsVacuously(t *testing.T) {
	r := New(Config{
		Peers:            nil,
		WriteQuorum:      0,
		ReplicateTimeout: time.Second,
	}, nil, nil)

	result := r.Replicate(context.Background(), "a", "1")
	require.True(t, result.Accepted)
	require.Equal(t, 0, result.ReplicaCount)
	require.Empty(t, result.PerPeerLatenciesMs)
}

func TestReplicate_AverageLatencyBetweenMinAndMax(t *testing.T) {
	peers := []*httptest.Server{
		fakeFollower(t, 1*time.Millisecond, false),
		fakeFollower(t, 20*time.Millisecond, false),
		fakeFollower(t, 40*time.Millisecond, false),
	}
	r := New(Config{
		Peers:            urlsOf(peers),
		WriteQuorum:      3,
		ReplicateTimeout: time.Second,
	}, nil, nil)

	result := r.Replicate(context.Background(), "a", "1")
	require.True(t, result.Accepted)

	minL, maxL := result.PerPeerLatenciesMs[0], result.PerPeerLatenciesMs[0]
	for _, v := range result.PerPeerLatenciesMs {
		if v < minL {
			minL = v
		}
		if v > maxL {
			maxL = v
		}
	}
	require.GreaterOrEqual(t, result.AverageLatencyMs, minL)
	require.LessOrEqual(t, result.AverageLatencyMs, maxL)
}

func urlsOf(servers []*httptest.Server) []string {
	out := make([]string, len(servers))
	for i, s := range servers {
		out[i] = s.URL
	}
	return out
}
