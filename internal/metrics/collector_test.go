package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BaSui01/agentdesk/delivery"
	"github.com/BaSui01/agentdesk/hitl"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

var (
	_ hitl.MetricsRecorder = (*Collector)(nil)
	_ delivery.LoopMetrics = (*Collector)(nil)
)

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.interactionsCreated)
	assert.NotNil(t, collector.interactionsPending)
	assert.NotNil(t, collector.deliveryPolls)
}

func TestNewCollector_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() { NewCollector(nextTestNamespace(), nil) })
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/api/interaction/pending", 200, 100*time.Millisecond, 0, 2048)
	collector.RecordHTTPRequest("GET", "/api/interaction/pending", 204, 50*time.Millisecond, 0, 0)
	collector.RecordHTTPRequest("POST", "/api/interaction/response", 404, 10*time.Millisecond, 64, 128)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/api/interaction/pending", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/api/interaction/response", "4xx")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.httpRequestDuration))
}

func TestCollector_InteractionLifecycle(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCreated("text_input")
	collector.RecordCreated("text_input")
	collector.RecordCreated("selection")
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.interactionsPending))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.interactionsCreated.WithLabelValues("text_input")))

	collector.RecordFinished("text_input", "answered", 12*time.Second)
	collector.RecordFinished("selection", "cancelled", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.interactionsPending))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.interactionsFinished.WithLabelValues("text_input", "answered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.interactionsFinished.WithLabelValues("selection", "cancelled")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.interactionWait))
}

func TestCollector_DeliveryLoop(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordPoll("ok")
	collector.RecordPoll("ok")
	collector.RecordPoll("error")
	collector.RecordSend("respond", "ok")
	collector.RecordSend("cancel", "not_found")

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.deliveryPolls.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.deliveryPolls.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.deliverySends.WithLabelValues("cancel", "not_found")))
}

func TestCollector_RecordDatabase(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBConnections("history", 5, 2)
	collector.RecordDBQuery("history", "insert", 3*time.Millisecond)

	assert.Equal(t, 5.0, testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("history")))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("history")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.dbQueryDuration))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordCreated("confirmation")
			collector.RecordHTTPRequest("GET", "/api/interaction/pending", 200, time.Millisecond, 0, 10)
			collector.RecordPoll("ok")
			collector.RecordFinished("confirmation", "answered", time.Second)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50.0, testutil.ToFloat64(collector.interactionsCreated.WithLabelValues("confirmation")))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.interactionsPending))
	assert.Equal(t, 50.0, testutil.ToFloat64(collector.deliveryPolls.WithLabelValues("ok")))
}

func TestStatusCode(t *testing.T) {
	tests := map[int]string{
		200: "2xx", 201: "2xx", 302: "3xx", 404: "4xx", 429: "4xx", 503: "5xx", 101: "unknown",
	}
	for code, want := range tests {
		assert.Equal(t, want, statusCode(code), code)
	}
}
