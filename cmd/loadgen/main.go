// Command loadgen drives an arcproxy instance with a Zipf-skewed pool of
// ArcGIS envelope queries and reports latency percentiles and the edge
// cache hit rate.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type Config struct {
	TargetURL       string
	Dataset         string
	Concurrency     int
	Duration        time.Duration
	ZipfS           float64
	ZipfV           float64
	EnvelopeCount   int
	OutputPrefix    string
	RequestTimeout  time.Duration
	AppendTimestamp bool
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.TargetURL, "target", "http://localhost:8080", "arcproxy base URL")
	flag.StringVar(&cfg.Dataset, "dataset", "flood", "dataset path to query (flood|water)")
	flag.IntVar(&cfg.Concurrency, "concurrency", 32, "Concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 60*time.Second, "Test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.IntVar(&cfg.EnvelopeCount, "envelopes", 128, "Distinct query envelopes in pool")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/loadgen", "Output file prefix (JSON/CSV)")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 10*time.Second, "Per-request timeout")
	flag.BoolVar(&cfg.AppendTimestamp, "append-ts", true, "Append timestamp to output prefix")
	flag.Parse()
	return cfg
}

type Envelope struct{ XMin, YMin, XMax, YMax float64 }

// String renders the envelope as the ArcGIS geometry parameter value.
func (e Envelope) String() string {
	return fmt.Sprintf("%.5f,%.5f,%.5f,%.5f", e.XMin, e.YMin, e.XMax, e.YMax)
}

// creates a mix of "hot" and "cold" query envelopes. Hot envelopes cluster
// around flood-prone metro areas so the Zipf head exercises cache reuse.
func makeEnvelopes(count int, r *rand.Rand) []Envelope {
	centers := [][2]float64{
		{-90.0715, 29.9511},  // New Orleans
		{-95.3698, 29.7604},  // Houston
		{-80.1918, 25.7617},  // Miami
		{-76.6122, 39.2904},  // Baltimore
		{-122.3321, 47.6062}, // Seattle
	}
	envs := make([]Envelope, 0, count)

	hotCount := int(math.Max(8, float64(count/4))) // at least 8 hot envelopes

	for i := range hotCount {
		c := centers[i%len(centers)]
		dx, dy := (r.Float64()-0.5)*0.20, (r.Float64()-0.5)*0.20
		w, h := 0.12+r.Float64()*0.08, 0.12+r.Float64()*0.08
		lon, lat := c[0]+dx, c[1]+dy
		envs = append(envs, Envelope{lon - w/2, lat - h/2, lon + w/2, lat + h/2})
	}

	// remaining cold envelopes spread over the contiguous US
	for len(envs) < count {
		lon := -125 + r.Float64()*(125-67)
		lat := 25 + r.Float64()*(49-25)
		w, h := 0.2*r.Float64()+0.05, 0.2*r.Float64()+0.05
		envs = append(envs, Envelope{lon - w/2, lat - h/2, lon + w/2, lat + h/2})
	}
	return envs
}

// request result (one sample per request)
type sample struct {
	Timestamp time.Time
	Latency   time.Duration
	Status    int
	CacheHit  bool
	ErrorMsg  string
	EnvIndex  int
	EnvStr    string
}

type summary struct {
	StartTime     time.Time `json:"start"`
	EndTime       time.Time `json:"end"`
	DurationSec   float64   `json:"duration_sec"`
	TotalRequests int64     `json:"total"`
	SuccessCount  int64     `json:"success"`
	ErrorCount    int64     `json:"errors"`
	CacheHits     int64     `json:"cache_hits"`
	HitRate       float64   `json:"hit_rate"`
	ThroughputRPS float64   `json:"throughput_rps"`
	P50Ms         float64   `json:"p50_ms"`
	P95Ms         float64   `json:"p95_ms"`
	P99Ms         float64   `json:"p99_ms"`
	Concurrency   int       `json:"concurrency"`
	ZipfS         float64   `json:"zipf_s"`
	ZipfV         float64   `json:"zipf_v"`
	Envelopes     int       `json:"envelopes"`
	TargetURL     string    `json:"target"`
	Dataset       string    `json:"dataset"`
}

type aggregatedResult struct {
	total   int64
	success int64
	errors  int64
	hits    int64
	latMs   []float64
}

func main() {
	cfg := loadConfig()
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPrefix), 0o750); err != nil {
		log.Fatalf("mkdir results: %v", err)
	}

	prefix := cfg.OutputPrefix
	if cfg.AppendTimestamp {
		prefix = fmt.Sprintf("%s_%s", prefix, time.Now().UTC().Format("20060102_150405Z"))
	}

	target := strings.TrimRight(cfg.TargetURL, "/") + "/" + strings.Trim(cfg.Dataset, "/")
	baseURL, err := url.Parse(target)
	if err != nil {
		log.Fatalf("bad target URL: %v", err)
	}

	// precompute random workload
	seed := time.Now().UnixNano()
	r := rand.New(rand.NewSource(seed))
	envs := makeEnvelopes(cfg.EnvelopeCount, r)
	if len(envs) == 0 {
		log.Fatalf("no envelopes generated")
	}
	imax := uint64(len(envs)) - 1

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 4 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:          1024,
			MaxIdleConnsPerHost:   256,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   4 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: cfg.RequestTimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	csvPath := prefix + "_samples.csv"
	jsonPath := prefix + "_summary.json"
	csvFile, err := os.Create(filepath.Clean(csvPath))
	if err != nil {
		log.Printf("open csv: %v", err)
		return
	}
	defer func() { _ = csvFile.Close() }()
	csvWriter := csv.NewWriter(csvFile)

	// Collects results asynchronously
	samplesChan := make(chan sample, 4096)
	resultsChan := make(chan aggregatedResult, 1)
	go func() {
		_ = csvWriter.Write([]string{"timestamp", "latency_ms", "status", "cache_hit", "error", "env_idx", "envelope"})
		var total, successCount, errorCount, hitCount int64
		latencies := make([]float64, 0, 1<<20)
		for s := range samplesChan {
			total++
			if s.ErrorMsg == "" && s.Status >= 200 && s.Status < 300 {
				successCount++
				latencies = append(latencies, float64(s.Latency.Microseconds())/1000.0)
				if s.CacheHit {
					hitCount++
				}
			} else {
				errorCount++
			}
			_ = csvWriter.Write([]string{
				s.Timestamp.UTC().Format(time.RFC3339Nano),
				fmt.Sprintf("%.3f", float64(s.Latency.Microseconds())/1000.0),
				fmt.Sprintf("%d", s.Status),
				fmt.Sprintf("%t", s.CacheHit),
				s.ErrorMsg,
				fmt.Sprintf("%d", s.EnvIndex),
				s.EnvStr,
			})
		}
		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			log.Printf("csv flush error: %v", err)
		}
		resultsChan <- aggregatedResult{total: total, success: successCount, errors: errorCount, hits: hitCount, latMs: latencies}
	}()

	startTime := time.Now()
	log.Printf("loadgen start target=%s dataset=%s dur=%s conc=%d zipf(s=%.2f,v=%.2f) envelopes=%d",
		target, cfg.Dataset, cfg.Duration, cfg.Concurrency, cfg.ZipfS, cfg.ZipfV, cfg.EnvelopeCount)

	var wg sync.WaitGroup
	wg.Add(cfg.Concurrency)

	for workerID := range cfg.Concurrency {
		go func(id int) {
			defer wg.Done()

			rWorker := rand.New(rand.NewSource(seed + int64(id) + 1))
			zipfDist := rand.NewZipf(rWorker, cfg.ZipfS, cfg.ZipfV, imax)
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				v := zipfDist.Uint64()
				if v > uint64(math.MaxInt) {
					continue
				}
				idx := int(v)
				if idx >= len(envs) {
					continue
				}
				env := envs[idx]

				u := *baseURL
				q := u.Query()
				q.Set("geometry", env.String())
				q.Set("geometryType", "esriGeometryEnvelope")
				q.Set("inSR", "4326")
				q.Set("spatialRel", "esriSpatialRelIntersects")
				u.RawQuery = q.Encode()

				startReq := time.Now()
				req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
				req.Header.Set("Accept", "application/json")
				resp, err := httpClient.Do(req)
				latency := time.Since(startReq)

				result := sample{
					Timestamp: startReq,
					Latency:   latency,
					EnvIndex:  idx,
					EnvStr:    env.String(),
				}

				if err != nil {
					result.ErrorMsg = err.Error()
				} else {
					result.Status = resp.StatusCode
					result.CacheHit = strings.Contains(resp.Header.Get("Cache-Status"), "hit")
					_, _ = io.Copy(io.Discard, resp.Body)
					_ = resp.Body.Close()
					if resp.StatusCode < 200 || resp.StatusCode >= 300 {
						result.ErrorMsg = fmt.Sprintf("status=%d", resp.StatusCode)
					}
				}

				select {
				case samplesChan <- result:
				case <-ctx.Done():
					return
				}
			}
		}(workerID)
	}

	// close samples channel
	go func() {
		<-ctx.Done()
		wg.Wait()
		close(samplesChan)
	}()

	aggResult := <-resultsChan
	endTime := time.Now()
	elapsed := endTime.Sub(startTime).Seconds()

	sort.Float64s(aggResult.latMs)
	p50 := percentile(aggResult.latMs, 50)
	p95 := percentile(aggResult.latMs, 95)
	p99 := percentile(aggResult.latMs, 99)

	hitRate := 0.0
	if aggResult.success > 0 {
		hitRate = float64(aggResult.hits) / float64(aggResult.success)
	}

	runSummary := summary{
		StartTime:     startTime.UTC(),
		EndTime:       endTime.UTC(),
		DurationSec:   elapsed,
		TotalRequests: aggResult.total,
		SuccessCount:  aggResult.success,
		ErrorCount:    aggResult.errors,
		CacheHits:     aggResult.hits,
		HitRate:       hitRate,
		ThroughputRPS: float64(aggResult.total) / elapsed,
		P50Ms:         p50,
		P95Ms:         p95,
		P99Ms:         p99,
		Concurrency:   cfg.Concurrency,
		ZipfS:         cfg.ZipfS,
		ZipfV:         cfg.ZipfV,
		Envelopes:     cfg.EnvelopeCount,
		TargetURL:     target,
		Dataset:       cfg.Dataset,
	}

	jsonFile, err := os.Create(filepath.Clean(jsonPath))
	if err == nil {
		enc := json.NewEncoder(jsonFile)
		enc.SetIndent("", "  ")
		_ = enc.Encode(runSummary)
		_ = jsonFile.Close()
	}

	log.Printf("done: total=%d succ=%d err=%d hits=%d (%.1f%%) thr=%.2f rps p50=%.1fms p95=%.1fms p99=%.1fms",
		aggResult.total, aggResult.success, aggResult.errors, aggResult.hits, hitRate*100, runSummary.ThroughputRPS, p50, p95, p99)
	log.Printf("wrote %s and %s", jsonPath, csvPath)
}

func percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sortedValues[0]
	}
	if p >= 100 {
		return sortedValues[len(sortedValues)-1]
	}
	k := (p / 100.0) * float64(len(sortedValues)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sortedValues)-1 {
		return sortedValues[len(sortedValues)-1]
	}
	d := k - f
	return sortedValues[i]*(1-d) + sortedValues[i+1]*d
}
