package api

import (
	"net/http"
	"strings"

	"aisum/internal/stats"
	"aisum/internal/summarizer"
)

// SummarizeResponse is returned by the summarize endpoints. Times are seconds.
type SummarizeResponse struct {
	Key     string         `json:"key"`
	Summary string         `json:"summary"`
	User    string         `json:"user"`
	Stats   SummarizeStats `json:"stats"`
}

// SummarizeStats breaks down where a request spent its time.
type SummarizeStats struct {
	FetchTime      float64 `json:"fetchTime"`
	CacheTime      float64 `json:"cacheTime"`
	GenerationTime float64 `json:"generationTime"`
	RequestTime    float64 `json:"requestTime"`
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w)
		return
	}
	timers := stats.New()
	ctx := stats.WithTimers(r.Context(), timers)
	stop := timers.Start(stats.Request)

	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		BadRequest(w, `Missing required parameter "key"`)
		return
	}

	cache := s.summarizer.Cache()
	evicted := cache.RemoveOlderThan(s.now().Add(-s.opts.MaxCacheAge))
	cache.Remove(key)
	s.logger.Debug("Summarize request", "key", key, "evicted", evicted, "requestID", GetRequestID(ctx))

	issue, err := cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Fetch failed", "key", key, "error", err)
		WriteError(w, err)
		return
	}
	summary, err := s.summarizer.Summarize(ctx, issue, summarizer.Options{MaxDepth: s.opts.DefaultDepth})
	if err != nil {
		s.logger.Error("Summarize failed", "key", key, "error", err)
		WriteError(w, err)
		return
	}
	stop()

	WriteJSON(w, SummarizeResponse{
		Key:     key,
		Summary: strings.Join(strings.Fields(summary), " "),
		User:    caller(ctx),
		Stats: SummarizeStats{
			FetchTime:      timers.Seconds(stats.Fetch),
			CacheTime:      timers.Seconds(stats.Cache),
			GenerationTime: timers.Seconds(stats.Generation),
			RequestTime:    timers.Seconds(stats.Request),
		},
	}, http.StatusOK)
}
