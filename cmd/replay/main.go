// Replay tool for checking Kestrel decisions against labelled outcomes.
//
// Usage:
//
//	go run ./cmd/replay -csv /path/to/applicants.csv -url http://localhost:8080
//
// This tool:
//  1. Reads applicants with a known repayment outcome (defaulted = 1/0)
//  2. Registers each applicant with Kestrel and requests an evaluation
//  3. Compares REJECT / ACCEPT with the outcome label
//  4. Prints a confusion matrix, precision, recall and the rating mix
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

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Record is one labelled applicant row.
type Record struct {
	Applicant domain.ApplicantRequest
	Defaulted bool
}

// Metrics tracks replay results. A rejection is the positive prediction.
type Metrics struct {
	TruePositives  int64 // defaulted and rejected
	FalsePositives int64 // repaid but rejected
	TrueNegatives  int64 // repaid and accepted
	FalseNegatives int64 // defaulted but accepted

	TotalProcessed int64
	TotalErrors    int64

	ProcessingTimeMs int64

	mu      sync.Mutex
	ratings map[domain.Rating]int64
}

func (m *Metrics) record(defaulted bool, resp *domain.EvaluationResponse) {
	rejected := resp.Decision == domain.DecisionReject
	switch {
	case rejected && defaulted:
		atomic.AddInt64(&m.TruePositives, 1)
	case rejected && !defaulted:
		atomic.AddInt64(&m.FalsePositives, 1)
	case !rejected && !defaulted:
		atomic.AddInt64(&m.TrueNegatives, 1)
	default:
		atomic.AddInt64(&m.FalseNegatives, 1)
	}

	if resp.RiskRating != "" {
		m.mu.Lock()
		if m.ratings == nil {
			m.ratings = make(map[domain.Rating]int64)
		}
		m.ratings[resp.RiskRating]++
		m.mu.Unlock()
	}
}

// Precision is the share of rejections that defaulted.
func (m *Metrics) Precision() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
}

// Recall is the share of defaulters that were rejected.
func (m *Metrics) Recall() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
}

func ratio(a, b int64) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

func main() {
	csvPath := flag.String("csv", "", "Path to labelled applicant CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	limit := flag.Int("limit", 0, "Maximum applicants to replay (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each decision")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: replay -csv /path/to/applicants.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	if err := checkReady(client, *baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not ready at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	records, err := ReadRecords(f, *limit)
	f.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d applicants from %s\n", len(records), *csvPath)

	start := time.Now()
	metrics := Replay(client, *baseURL, records, *workers, *verbose)
	printResults(metrics, time.Since(start))
}

func checkReady(client *http.Client, baseURL string) error {
	resp, err := client.Get(baseURL + "/ready")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// ReadRecords parses a CSV with a header row. Columns are matched by name,
// case-insensitively; empty cells leave the attribute unset.
func ReadRecords(r io.Reader, limit int) ([]Record, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	col := make(map[string]int)
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"national_id", "defaulted"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var records []Record
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		get := func(name string) string {
			if i, ok := col[name]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}

		var rec Record
		rec.Defaulted = get("defaulted") == "1" || strings.EqualFold(get("defaulted"), "true")
		rec.Applicant = domain.ApplicantRequest{
			NationalID: get("national_id"),
			FullName:   get("full_name"),
			Email:      get("email"),
		}
		if rec.Applicant.FullName == "" {
			rec.Applicant.FullName = "Applicant " + rec.Applicant.NationalID
		}

		p := &rec.Applicant.Profile
		ints := map[string]**int{
			"simah_score":  &p.SimahScore,
			"active_loans": &p.ActiveLoans,
			"defaults":     &p.Defaults,
			"age":          &p.Age,
		}
		for name, dst := range ints {
			if s := get(name); s != "" {
				v, err := strconv.Atoi(s)
				if err != nil {
					return nil, fmt.Errorf("line %d: %s: %w", line, name, err)
				}
				*dst = &v
			}
		}
		floats := map[string]**float64{
			"avg_bank_balance": &p.AvgBankBalance,
			"estimated_income": &p.EstimatedIncome,
			"spending_ratio":   &p.SpendingRatio,
			"dbr_obligations":  &p.DBRObligations,
		}
		for name, dst := range floats {
			if s := get(name); s != "" {
				v, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: %s: %w", line, name, err)
				}
				*dst = &v
			}
		}

		records = append(records, rec)
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records, nil
}

// Replay registers and evaluates every record using numWorkers concurrent
// clients.
func Replay(client *http.Client, baseURL string, records []Record, numWorkers int, verbose bool) *Metrics {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	metrics := &Metrics{}
	work := make(chan Record, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range work {
				start := time.Now()
				resp, err := evaluate(client, baseURL, rec)
				atomic.AddInt64(&metrics.ProcessingTimeMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", rec.Applicant.NationalID, err)
					}
					continue
				}
				metrics.record(rec.Defaulted, resp)

				if verbose {
					fmt.Printf("%-12s | defaulted: %-5v | %-6s | rating: %-1s\n",
						rec.Applicant.NationalID, rec.Defaulted, resp.Decision, resp.RiskRating)
				}
			}
		}()
	}

	for _, rec := range records {
		work <- rec
	}
	close(work)
	wg.Wait()

	return metrics
}

// evaluate registers the applicant, tolerating one that already exists, and
// evaluates it by national id.
func evaluate(client *http.Client, baseURL string, rec Record) (*domain.EvaluationResponse, error) {
	status, body, err := post(client, baseURL+"/applicants", rec.Applicant)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated && status != http.StatusConflict {
		return nil, fmt.Errorf("create applicant: status %d: %s", status, body)
	}

	status, body, err = post(client, baseURL+"/evaluate", domain.EvaluateRequest{ApplicantKey: rec.Applicant.NationalID})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("evaluate: status %d: %s", status, body)
	}

	var resp domain.EvaluationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if resp.Report == nil {
		return nil, errors.New("evaluate: empty report")
	}
	return &resp, nil
}

func post(client *http.Client, url string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nREPLAY RESULTS")

	fmt.Printf("\n  Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("  Errors:     %d\n", m.TotalErrors)

	fmt.Println("\n  CONFUSION MATRIX")
	fmt.Println("                        Predicted")
	fmt.Println("                    REJECT      ACCEPT")
	fmt.Printf("   Defaulted    %10d  %10d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("   Repaid       %10d  %10d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	precision, recall := m.Precision(), m.Recall()
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	fmt.Printf("\n  Precision:  %.4f\n", precision)
	fmt.Printf("  Recall:     %.4f\n", recall)
	fmt.Printf("  F1-Score:   %.4f\n", f1)

	if len(m.ratings) > 0 {
		fmt.Println("\n  RATING MIX")
		keys := make([]string, 0, len(m.ratings))
		for r := range m.ratings {
			keys = append(keys, string(r))
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("   %s  %d\n", k, m.ratings[domain.Rating(k)])
		}
	}

	fmt.Printf("\n  Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		fmt.Printf("  Avg Latency: %.2f ms\n", float64(m.ProcessingTimeMs)/float64(m.TotalProcessed))
	}
	fmt.Println()
}
