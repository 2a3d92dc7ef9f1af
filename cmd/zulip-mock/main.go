// Command zulip-mock imitates the Zulip message-creation API for local
// testing of the dispatch pipeline. The target stream name selects the
// behavior, which makes the retry and dead-letter paths easy to provoke:
//
//	any stream   -> 200 with an incrementing message ID
//	"fail"       -> 500 on every request
//	"ratelimit"  -> 429 on every request
//	"badstream"  -> 400 (permanent rejection)
//	"flaky"      -> 500 twice, then 200
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync/atomic"
)

var (
	messageID    atomic.Int64
	flakyCount   atomic.Int64
	requestCount atomic.Int64
)

func main() {
	port := "9091"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	http.HandleFunc("/api/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)

		if err := r.ParseForm(); err != nil {
			writeResult(w, http.StatusBadRequest, map[string]any{
				"result": "error", "msg": "malformed form body",
			})
			return
		}

		stream := r.PostFormValue("to")
		topic := r.PostFormValue("topic")

		status := http.StatusOK
		switch stream {
		case "fail":
			status = http.StatusInternalServerError
		case "ratelimit":
			status = http.StatusTooManyRequests
		case "badstream":
			status = http.StatusBadRequest
		case "flaky":
			if flakyCount.Add(1)%3 != 0 {
				status = http.StatusInternalServerError
			}
		}

		logRequest(r, count, stream, topic, status)

		switch status {
		case http.StatusOK:
			writeResult(w, status, map[string]any{
				"result": "success", "msg": "", "id": messageID.Add(1),
			})
		case http.StatusTooManyRequests:
			writeResult(w, status, map[string]any{
				"result": "error", "msg": "API usage exceeded rate limit", "code": "RATE_LIMIT_HIT",
			})
		case http.StatusBadRequest:
			writeResult(w, status, map[string]any{
				"result": "error", "msg": fmt.Sprintf("Stream '%s' does not exist", stream), "code": "STREAM_DOES_NOT_EXIST",
			})
		default:
			writeResult(w, status, map[string]any{
				"result": "error", "msg": "Internal server error",
			})
		}
	})

	http.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, http.StatusOK, map[string]int64{"total_requests": requestCount.Load()})
	})

	log.Printf("Mock Zulip server starting on :%s", port)
	log.Printf("  POST /api/v1/messages  -> behavior selected by stream name")
	log.Printf("  GET  /stats            -> request count")

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func writeResult(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func logRequest(r *http.Request, count int64, stream, topic string, status int) {
	fmt.Printf("[#%d] %s %s -> %d | stream=%s topic=%s\n",
		count, r.Method, r.URL.Path, status, stream, topic)
}
