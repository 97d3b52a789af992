// Load generator for the transfer API: each worker intakes a transfer and
// immediately delivers it, exercising the account locks and the sequence
// counters under contention.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	accountIDs  []int64
)

// Metrics
var (
	totalRequests uint64
	intakeOK      uint64
	deliverOK     uint64
	rejected      uint64 // 409/422 precondition failures
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	if err := loadAccounts(); err != nil {
		log.Fatalf("unable to list accounts: %v", err)
	}
	if len(accountIDs) < 2 {
		log.Fatal("need at least two safes seeded, run cmd/seeder first")
	}

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func loadAccounts() error {
	resp, err := http.Get(targetURL + "/api/v1/accounts")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var accounts []struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accounts); err != nil {
		return err
	}
	for _, a := range accounts {
		accountIDs = append(accountIDs, a.ID)
	}
	return nil
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		origin, delivery := pickAccounts()

		transferID, ok := intake(client, origin)
		if !ok {
			continue
		}
		deliver(client, transferID, delivery)
	}
}

func intake(client *http.Client, origin int64) (int64, bool) {
	payload := map[string]interface{}{
		"origin_account_id":   origin,
		"customer_name":       fmt.Sprintf("bench-%d", time.Now().UnixNano()),
		"sent_amount":         "100.00",
		"transfer_cost":       "10.00",
		"receiver_net_amount": "90.00",
		"status":              "checked",
	}
	body, _ := json.Marshal(payload)

	resp, err := client.Post(targetURL+"/api/v1/transfers", "application/json", bytes.NewBuffer(body))
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return 0, false
	}
	defer resp.Body.Close()
	atomic.AddUint64(&totalRequests, 1)

	if resp.StatusCode != http.StatusCreated {
		count(resp.StatusCode)
		return 0, false
	}
	atomic.AddUint64(&intakeOK, 1)

	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		atomic.AddUint64(&failOther, 1)
		return 0, false
	}
	return created.ID, true
}

func deliver(client *http.Client, transferID, delivery int64) {
	payload := map[string]interface{}{
		"delivery_account_id": delivery,
		"delivery_amount":     "90.00",
	}
	body, _ := json.Marshal(payload)

	url := fmt.Sprintf("%s/api/v1/transfers/%d/deliver", targetURL, transferID)
	resp, err := client.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return
	}
	defer resp.Body.Close()
	atomic.AddUint64(&totalRequests, 1)

	if resp.StatusCode == http.StatusOK {
		atomic.AddUint64(&deliverOK, 1)
		return
	}
	count(resp.StatusCode)
}

func count(status int) {
	switch status {
	case http.StatusConflict, http.StatusUnprocessableEntity:
		atomic.AddUint64(&rejected, 1)
	default:
		atomic.AddUint64(&failOther, 1)
	}
}

func pickAccounts() (int64, int64) {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic hammers the first two safes
		if rand.Float32() < 0.90 {
			return accountIDs[0], accountIDs[1]
		}
	}

	a := rand.Intn(len(accountIDs))
	b := rand.Intn(len(accountIDs))
	for a == b {
		b = rand.Intn(len(accountIDs))
	}
	return accountIDs[a], accountIDs[b]
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	tps := float64(total) / d.Seconds()

	results := map[string]interface{}{
		"workload":       workload,
		"duration_sec":   d.Seconds(),
		"total_requests": total,
		"throughput_tps": tps,
		"intakes_ok":     atomic.LoadUint64(&intakeOK),
		"deliveries_ok":  atomic.LoadUint64(&deliverOK),
		"rejected":       atomic.LoadUint64(&rejected),
		"errors":         atomic.LoadUint64(&failOther),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
