package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	lsmhttp "lsmview/internal/http"
)

type BenchmarkResult struct {
	TotalOps      int
	SuccessfulOps int
	FailedOps     int
	Duration      time.Duration
	OpsPerSec     float64
	AvgLatency    time.Duration
	MinLatency    time.Duration
	MaxLatency    time.Duration
}

var client = &http.Client{Timeout: 5 * time.Second}

func main() {
	baseURL := "http://localhost:8080"
	if len(os.Args) > 1 {
		baseURL = os.Args[1]
	}

	fmt.Println("=== lsmview Benchmark Test ===")
	fmt.Printf("Target: %s\n", baseURL)
	fmt.Println()

	if !checkHealth(baseURL) {
		fmt.Printf("ERROR: Server %s is not available\n", baseURL)
		return
	}

	sess, err := firstSession(baseURL)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		return
	}
	api := baseURL + "/api/sessions/" + sess.ID
	fmt.Printf("Session: %s (%d edits)\n\n", sess.Name, sess.NumEdits)

	fmt.Println("Test 1: Random Cursor Jumps (200 operations)")
	printResult("Cursor Jumps", run(200, 1, func(int) error {
		return setCursor(api, rand.Intn(max(sess.NumEdits, 1)))
	}))

	fmt.Println("\nTest 2: Sequential Steps (200 operations)")
	if err := setCursor(api, 0); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		return
	}
	printResult("Steps", run(200, 1, func(int) error {
		return post(api+"/step", `{"delta": 1}`)
	}))

	targets, err := overlapTargets(api)
	if err != nil || len(targets) == 0 {
		fmt.Printf("\nSkipping overlap tests: no resident files (%v)\n", err)
		return
	}

	fmt.Println("\nTest 3: Overlap Queries (200 operations)")
	printResult("Overlaps", run(200, 1, func(i int) error {
		return get(api + "/overlaps?" + targets[i%len(targets)])
	}))

	fmt.Println("\nTest 4: Concurrent Overlap Queries (200 operations, 10 goroutines)")
	printResult("Concurrent Overlaps", run(200, 10, func(i int) error {
		return get(api + "/overlaps?" + targets[i%len(targets)])
	}))

	fmt.Println("\n=== Benchmark Complete ===")
}

func checkHealth(baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// run executes op totalOps times spread over concurrency goroutines.
func run(totalOps, concurrency int, op func(i int) error) BenchmarkResult {
	start := time.Now()
	var wg sync.WaitGroup
	var mu sync.Mutex

	successful := 0
	failed := 0
	latencies := make([]time.Duration, 0, totalOps)

	opsPerGoroutine := totalOps / concurrency
	remainder := totalOps % concurrency

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(goroutineID int) {
			defer wg.Done()

			ops := opsPerGoroutine
			if goroutineID < remainder {
				ops++
			}

			for j := 0; j < ops; j++ {
				opStart := time.Now()
				err := op(goroutineID*opsPerGoroutine + j)
				latency := time.Since(opStart)

				mu.Lock()
				if err == nil {
					successful++
				} else {
					failed++
				}
				latencies = append(latencies, latency)
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()
	duration := time.Since(start)

	var minLat, maxLat, sum time.Duration
	if len(latencies) > 0 {
		minLat = latencies[0]
		maxLat = latencies[0]
		for _, lat := range latencies {
			minLat = min(minLat, lat)
			maxLat = max(maxLat, lat)
			sum += lat
		}
	}

	var avgLatency time.Duration
	if len(latencies) > 0 {
		avgLatency = sum / time.Duration(len(latencies))
	}

	return BenchmarkResult{
		TotalOps:      totalOps,
		SuccessfulOps: successful,
		FailedOps:     failed,
		Duration:      duration,
		OpsPerSec:     float64(successful) / duration.Seconds(),
		AvgLatency:    avgLatency,
		MinLatency:    minLat,
		MaxLatency:    maxLat,
	}
}

func firstSession(baseURL string) (lsmhttp.SessionResponse, error) {
	var list []lsmhttp.SessionResponse
	if err := do(http.MethodGet, baseURL+"/api/sessions", "", &list); err != nil {
		return lsmhttp.SessionResponse{}, err
	}
	if len(list) == 0 {
		return lsmhttp.SessionResponse{}, fmt.Errorf("no sessions on %s", baseURL)
	}
	return list[0], nil
}

// overlapTargets returns level/file query strings for every resident file at
// the current cursor.
func overlapTargets(api string) ([]string, error) {
	var levels lsmhttp.SessionResponse
	if err := do(http.MethodGet, api+"/levels", "", &levels); err != nil {
		return nil, err
	}

	var targets []string
	for _, l := range levels.Levels {
		for _, f := range l.Files {
			q := url.Values{"level": {fmt.Sprint(l.Level)}, "file": {fmt.Sprint(uint64(f.ID))}}
			targets = append(targets, q.Encode())
		}
	}
	return targets, nil
}

func setCursor(api string, cursor int) error {
	return do(http.MethodPut, api+"/cursor", fmt.Sprintf(`{"cursor": %d}`, cursor), nil)
}

func post(endpoint, body string) error {
	return do(http.MethodPost, endpoint, body, nil)
}

func get(endpoint string) error {
	return do(http.MethodGet, endpoint, "", nil)
}

func do(method, endpoint, body string, out any) error {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, endpoint, r)
	if err != nil {
		return err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, b)
	}
	if out == nil {
		_, err = io.Copy(io.Discard, resp.Body)
		return err
	}

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	return json.Unmarshal(env.Data, out)
}

func printResult(name string, result BenchmarkResult) {
	fmt.Printf("  %s Results:\n", name)
	fmt.Printf("    Total Operations: %d\n", result.TotalOps)
	fmt.Printf("    Successful: %d\n", result.SuccessfulOps)
	fmt.Printf("    Failed: %d\n", result.FailedOps)
	fmt.Printf("    Duration: %v\n", result.Duration)
	fmt.Printf("    Throughput: %.2f ops/sec\n", result.OpsPerSec)
	fmt.Printf("    Avg Latency: %v\n", result.AvgLatency)
	fmt.Printf("    Min Latency: %v\n", result.MinLatency)
	fmt.Printf("    Max Latency: %v\n", result.MaxLatency)
}
