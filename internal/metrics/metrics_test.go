package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeRelay struct {
	active    bool
	fragments int
	pending   int
}

func (f fakeRelay) SessionActive() bool      { return f.active }
func (f fakeRelay) BufferedFragments() int   { return f.fragments }
func (f fakeRelay) SummaryQueuePending() int { return f.pending }

type fakeSubs int

func (f fakeSubs) SubscriberCount() int { return int(f) }

func TestCollector(t *testing.T) {
	t.Run("live_values", func(t *testing.T) {
		c := NewCollector(fakeRelay{active: true, fragments: 7, pending: 2}, fakeSubs(3))
		want := `
# HELP whisper_relay_session_active 1 if a transcription engine session is running.
# TYPE whisper_relay_session_active gauge
whisper_relay_session_active 1
# HELP whisper_relay_transcript_buffered_fragments Fragments currently held in the transcript window.
# TYPE whisper_relay_transcript_buffered_fragments gauge
whisper_relay_transcript_buffered_fragments 7
# HELP whisper_relay_summary_queue_pending Summary requests waiting for a worker.
# TYPE whisper_relay_summary_queue_pending gauge
whisper_relay_summary_queue_pending 2
# HELP whisper_relay_event_subscribers_active Current number of event subscribers (SSE, websocket, mqtt).
# TYPE whisper_relay_event_subscribers_active gauge
whisper_relay_event_subscribers_active 3
`
		if err := testutil.CollectAndCompare(c, strings.NewReader(want)); err != nil {
			t.Error(err)
		}
	})

	t.Run("nil_sources_report_zero", func(t *testing.T) {
		c := NewCollector(nil, nil)
		if n := testutil.CollectAndCount(c); n != 4 {
			t.Fatalf("collected %d metrics, want 4", n)
		}
		want := `
# HELP whisper_relay_session_active 1 if a transcription engine session is running.
# TYPE whisper_relay_session_active gauge
whisper_relay_session_active 0
`
		if err := testutil.CollectAndCompare(c, strings.NewReader(want), "whisper_relay_session_active"); err != nil {
			t.Error(err)
		}
	})
}

func TestInstrumentHandler(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Get("/api/v1/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	counter := HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/things/{id}", "418")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"1", "2"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/things/"+id, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("requests counted under route pattern = %v, want 2", got)
	}
}

func TestStatusWriterFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: 200}
	sw.Flush()
	if !rec.Flushed {
		t.Error("Flush not forwarded to underlying writer")
	}
	if _, _, err := sw.Hijack(); err == nil {
		t.Error("Hijack on a recorder should fail")
	}
}
