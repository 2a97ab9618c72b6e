// Benchmark back-tests Loanscore approval odds against historical lending
// decisions.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/decisions.csv -url http://localhost:8080
//
// The CSV needs a header with the columns id, income, commitments,
// employment, bucket, score, principal, rate, tenure and approved (1/0).
// Every row is sent to POST /v1/individual/simulate; the odds are compared
// with the recorded decision at the -threshold cut-off.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Decision is one historical application and its outcome.
type Decision struct {
	ID          string
	Income      float64
	Commitments float64
	Employment  string
	Bucket      int
	Score       *int
	Principal   float64
	RatePct     float64
	Tenure      int
	Approved    bool
}

type profile struct {
	ID                 string  `json:"id"`
	MonthlyIncome      float64 `json:"monthlyIncome"`
	MonthlyCommitments float64 `json:"monthlyCommitments"`
	EmploymentStatus   string  `json:"employmentStatus"`
	BureauBucket       int     `json:"bureauBucket"`
	BureauScore        *int    `json:"bureauScore,omitempty"`
}

type proposal struct {
	Principal     float64 `json:"principal"`
	AnnualRatePct float64 `json:"annualRatePct"`
	TenureMonths  int     `json:"tenureMonths"`
}

type simulateRequest struct {
	Profile  profile  `json:"profile"`
	Proposal proposal `json:"proposal"`
}

type simulateResponse struct {
	Assessment struct {
		Grade struct {
			Tier string `json:"tier"`
		} `json:"grade"`
		Odds struct {
			Value float64 `json:"value"`
			Band  string  `json:"band"`
		} `json:"odds"`
	} `json:"assessment"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // approved, odds at or above threshold
	FalsePositives int64 // declined, odds at or above threshold
	TrueNegatives  int64 // declined, odds below threshold
	FalseNegatives int64 // approved, odds below threshold

	TotalProcessed int64
	TotalErrors    int64

	mu        sync.Mutex
	latencies []float64
	grades    map[string]int
}

func (m *Metrics) record(latency time.Duration, grade string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = append(m.latencies, float64(latency.Microseconds())/1000)
	m.grades[grade]++
}

func main() {
	csvPath := flag.String("csv", "", "Path to historical decisions CSV")
	baseURL := flag.String("url", "http://localhost:8080", "Loanscore base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum rows to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	threshold := flag.Float64("threshold", 60, "Odds at or above which an application counts as approved")
	verbose := flag.Bool("verbose", false, "Print each result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/decisions.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("LOANSCORE BENCHMARK - approval odds back-test")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("URL:         %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Threshold:   %.1f\n", *threshold)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Loanscore not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}
	fmt.Println("Loanscore is healthy")

	decisions, err := readDecisions(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d decisions\n", len(decisions))

	start := time.Now()
	metrics := runBenchmark(decisions, *baseURL, *tenantID, *workers, *threshold, *verbose)
	printResults(metrics, time.Since(start))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readDecisions(path string, limit int) ([]Decision, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	col := make(map[string]int)
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range []string{"id", "income", "commitments", "employment", "bucket", "principal", "rate", "tenure", "approved"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var decisions []Decision
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue // skip malformed rows
		}

		d := Decision{
			ID:         record[col["id"]],
			Employment: record[col["employment"]],
			Approved:   record[col["approved"]] == "1",
		}
		d.Income, _ = strconv.ParseFloat(record[col["income"]], 64)
		d.Commitments, _ = strconv.ParseFloat(record[col["commitments"]], 64)
		d.Bucket, _ = strconv.Atoi(record[col["bucket"]])
		d.Principal, _ = strconv.ParseFloat(record[col["principal"]], 64)
		d.RatePct, _ = strconv.ParseFloat(record[col["rate"]], 64)
		d.Tenure, _ = strconv.Atoi(record[col["tenure"]])
		if i, ok := col["score"]; ok {
			if v, err := strconv.Atoi(record[i]); err == nil {
				d.Score = &v
			}
		}

		decisions = append(decisions, d)
		if limit > 0 && len(decisions) >= limit {
			break
		}
	}
	return decisions, nil
}

func runBenchmark(decisions []Decision, baseURL, tenantID string, numWorkers int, threshold float64, verbose bool) *Metrics {
	metrics := &Metrics{grades: make(map[string]int)}

	work := make(chan Decision, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for d := range work {
				start := time.Now()
				result, err := simulate(client, baseURL, tenantID, d)
				elapsed := time.Since(start)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", d.ID, err)
					}
					continue
				}
				metrics.record(elapsed, result.Assessment.Grade.Tier)

				odds := result.Assessment.Odds.Value
				predicted := odds >= threshold
				switch {
				case predicted && d.Approved:
					atomic.AddInt64(&metrics.TruePositives, 1)
				case predicted && !d.Approved:
					atomic.AddInt64(&metrics.FalsePositives, 1)
				case !predicted && !d.Approved:
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				default:
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					mark := "ok"
					if predicted != d.Approved {
						mark = "!!"
					}
					fmt.Printf("%s %-12s | grade %s | odds %6.2f (%-8s) | approved %v\n",
						mark, d.ID, result.Assessment.Grade.Tier, odds, result.Assessment.Odds.Band, d.Approved)
				}
			}
		}()
	}

	for _, d := range decisions {
		work <- d
	}
	close(work)
	wg.Wait()

	return metrics
}

func simulate(client *http.Client, baseURL, tenantID string, d Decision) (*simulateResponse, error) {
	body, err := json.Marshal(simulateRequest{
		Profile: profile{
			ID:                 d.ID,
			MonthlyIncome:      d.Income,
			MonthlyCommitments: d.Commitments,
			EmploymentStatus:   d.Employment,
			BureauBucket:       d.Bucket,
			BureauScore:        d.Score,
		},
		Proposal: proposal{
			Principal:     d.Principal,
			AnnualRatePct: d.RatePct,
			TenureMonths:  d.Tenure,
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/v1/individual/simulate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result simulateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nGRADES\n")
	grades := make([]string, 0, len(m.grades))
	for g := range m.grades {
		grades = append(grades, g)
	}
	sort.Strings(grades)
	for _, g := range grades {
		fmt.Printf("   %s: %d\n", g, m.grades[g])
	}

	fmt.Printf("\nCONFUSION MATRIX (predicted approve = odds >= threshold)\n")
	fmt.Printf("   approved  / predicted approve: %8d (TP)\n", m.TruePositives)
	fmt.Printf("   approved  / predicted decline: %8d (FN)\n", m.FalseNegatives)
	fmt.Printf("   declined  / predicted approve: %8d (FP)\n", m.FalsePositives)
	fmt.Printf("   declined  / predicted decline: %8d (TN)\n", m.TrueNegatives)

	precision := ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
	recall := ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	accuracy := ratio(m.TruePositives+m.TrueNegatives, m.TruePositives+m.TrueNegatives+m.FalsePositives+m.FalseNegatives)

	fmt.Printf("\nCALIBRATION\n")
	fmt.Printf("   Precision:  %.4f\n", precision)
	fmt.Printf("   Recall:     %.4f\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", accuracy)

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if len(m.latencies) > 0 {
		sort.Float64s(m.latencies)
		fmt.Printf("   Mean Latency:     %.2f ms\n", stat.Mean(m.latencies, nil))
		fmt.Printf("   p50 Latency:      %.2f ms\n", stat.Quantile(0.50, stat.Empirical, m.latencies, nil))
		fmt.Printf("   p99 Latency:      %.2f ms\n", stat.Quantile(0.99, stat.Empirical, m.latencies, nil))
		fmt.Printf("   Throughput:       %.2f req/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}
	fmt.Println()
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
