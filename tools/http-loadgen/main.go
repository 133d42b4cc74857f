// http-loadgen is a small HTTP load generator for the typeahead
// service. It reuses connections (keep-alive) and supports concurrency
// so demo scripts run fast without relying on external tools.
//
// Modes:
//   - suggest: GET /suggest, typing each phrase one prefix at a time
//     the way an interactive client would
//   - search:  POST /search with a deterministic 80/20 hot/cold skew
//     over the phrase set, which feeds the write-behind pipeline
//   - mixed:   alternate the two, roughly ten reads per write
//
// Usage examples:
//
//	http-loadgen -base=http://127.0.0.1:8080 -mode=suggest -n=5000 -c=16
//	http-loadgen -base=http://127.0.0.1:8080 -mode=search -hot_phrase="javascript tutorial" -n=8000 -c=16
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type modeType string

const (
	modeSuggest modeType = "suggest"
	modeSearch  modeType = "search"
	modeMixed   modeType = "mixed"
)

// defaultPhrases is a small realistic query mix; -phrases overrides it.
var defaultPhrases = []string{
	"javascript tutorial",
	"java interview questions",
	"golang concurrency",
	"weather forecast",
	"weather radar",
	"react hooks",
	"recipe chicken soup",
	"python pandas",
	"machine learning basics",
	"docker compose",
}

func main() {
	var (
		base      = flag.String("base", "http://127.0.0.1:8080", "Base URL including scheme and host")
		modeS     = flag.String("mode", string(modeSuggest), "Mode: suggest|search|mixed")
		phrasesS  = flag.String("phrases", "", "Comma-separated phrase set (empty = built-in mix)")
		hotPhrase = flag.String("hot_phrase", "javascript tutorial", "Hot phrase for the 80/20 search skew")
		userN     = flag.Int("users", 50, "Distinct user IDs to rotate through (0 = anonymous)")
		N         = flag.Int("n", 5000, "Total requests to send")
		conc      = flag.Int("c", 8, "Number of concurrent workers")
		// Deterministic skew: hotEvery=5 means 4/5 go to the hot phrase.
		hotEvery = flag.Int("hot_every", 5, "Skew period (4 of this period go hot; minimum 2)")
		// Timeouts & transport tuning
		timeout    = flag.Duration("timeout", 60*time.Second, "Overall timeout for the loadgen run")
		connIdle   = flag.Duration("idle_timeout", 30*time.Second, "HTTP idle connection timeout")
		maxIdle    = flag.Int("max_idle", 256, "Max idle connections total")
		maxIdlePer = flag.Int("max_idle_per_host", 256, "Max idle connections per host")
	)
	flag.Parse()

	m := modeType(strings.ToLower(*modeS))
	if m != modeSuggest && m != modeSearch && m != modeMixed {
		fmt.Fprintf(os.Stderr, "unknown -mode=%s (want suggest|search|mixed)\n", *modeS)
		os.Exit(2)
	}
	if *N <= 0 || *conc <= 0 {
		fmt.Fprintln(os.Stderr, "-n and -c must be > 0")
		os.Exit(2)
	}
	if *hotEvery < 2 {
		*hotEvery = 2
	}

	phrases := defaultPhrases
	if *phrasesS != "" {
		phrases = strings.Split(*phrasesS, ",")
	}

	baseURL := strings.TrimRight(*base, "/")

	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        *maxIdle,
		MaxIdleConnsPerHost: *maxIdlePer,
		IdleConnTimeout:     *connIdle,
	}
	client := &http.Client{Transport: tr, Timeout: 5 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	userID := func(i int) string {
		if *userN <= 0 {
			return ""
		}
		return fmt.Sprintf("load-user-%d", i%*userN)
	}

	doSuggest := func(i int) {
		phrase := phrases[i%len(phrases)]
		// Type the phrase: 1..len runes, so short and long prefixes both
		// get exercised.
		runes := []rune(phrase)
		plen := (i % len(runes)) + 1
		q := url.Values{
			"prefix": {string(runes[:plen])},
			"limit":  {"10"},
		}
		if uid := userID(i); uid != "" {
			q.Set("user_id", uid)
		}
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/suggest?"+q.Encode(), nil)
		resp, err := client.Do(req)
		if err != nil {
			time.Sleep(200 * time.Microsecond)
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}

	doSearch := func(i int) {
		var phrase string
		if (i % *hotEvery) != 0 {
			phrase = *hotPhrase
		} else {
			phrase = phrases[i%len(phrases)]
		}
		body, _ := json.Marshal(map[string]string{
			"query":  phrase,
			"userID": userID(i),
		})
		req, _ := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/search", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			time.Sleep(200 * time.Microsecond)
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}

	var done int64
	worker := func(id, count int) {
		defer atomic.AddInt64(&done, int64(count))
		for i := 0; i < count; i++ {
			select {
			case <-ctx.Done():
				return
			default:
			}
			n := i + id
			switch m {
			case modeSuggest:
				doSuggest(n)
			case modeSearch:
				doSearch(n)
			case modeMixed:
				if n%11 == 0 {
					doSearch(n)
				} else {
					doSuggest(n)
				}
			}
		}
	}

	start := time.Now()
	per := *N / *conc
	rem := *N - per**conc
	var wg sync.WaitGroup
	wg.Add(*conc)
	for w := 0; w < *conc; w++ {
		count := per
		if w == *conc-1 {
			count += rem
		}
		go func(id, n int) {
			defer wg.Done()
			worker(id, n)
		}(w, count)
	}
	wg.Wait()
	elapsed := time.Since(start)
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	ops := float64(*N) / elapsed.Seconds()
	fmt.Printf("LoadGen: mode=%s N=%d c=%d go=%d Duration=%s Throughput=%.0f req/s\n",
		m, *N, *conc, runtime.GOMAXPROCS(0), elapsed.Truncate(time.Millisecond), ops)
}
