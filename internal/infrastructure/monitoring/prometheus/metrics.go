package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics bundles every metric the pipeline emits.  It is registered once
// at startup and shared by injection; label sets are listed next to each
// vector.
type AppMetrics struct {
	// HTTP layer
	HTTPRequestsTotal   CounterVec   // method, path, status_code
	HTTPRequestDuration HistogramVec // method, path
	HTTPActiveRequests  GaugeVec     // method

	// Document pipeline
	DocumentsImportedTotal CounterVec   // source, status
	ImportDuration         HistogramVec // source
	TokensPerDocument      HistogramVec // source
	DocumentsTotal         GaugeVec     // status

	// Annotation layer
	CandidatesGeneratedTotal CounterVec   // origin
	MergeRunsTotal           CounterVec   // status
	MergeDroppedTotal        CounterVec   // reason
	MergeDuration            HistogramVec // strategy
	AnnotationsTotal         GaugeVec     // provenance

	// Dataset layer
	DatasetExportsTotal   CounterVec // status
	DatasetExportDuration HistogramVec
	DatasetRecords        GaugeVec   // split
	DatasetPublishTotal   CounterVec // status

	// Training layer
	TrainingJobsTotal   CounterVec   // kind, status
	TrainingJobDuration HistogramVec // kind
	TrainingActiveJobs  GaugeVec     // kind
	JobRetriesTotal     CounterVec   // kind, reason

	// Search and graph export
	IndexOpsTotal       CounterVec   // operation, status
	SearchDuration      HistogramVec // query_type
	SearchResultCount   HistogramVec // query_type
	GraphNodesTotal     GaugeVec     // node_type
	GraphEdgesTotal     GaugeVec     // edge_type
	GraphExportDuration HistogramVec // operation

	// Infrastructure
	DBPoolSize             GaugeVec     // db
	DBPoolActive           GaugeVec     // db
	DBQueryDuration        HistogramVec // db, operation
	CacheHitsTotal         CounterVec   // cache
	CacheMissesTotal       CounterVec   // cache
	QueueDepth             GaugeVec     // queue
	MessageProcessDuration HistogramVec // queue, message_type

	// System health
	ServiceUptime     GaugeVec   // service
	HealthCheckStatus GaugeVec   // component
	ErrorsTotal       CounterVec // component, error_type
}

// Default bucket layouts per concern.
var (
	DefaultHTTPDurationBuckets     = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultPipelineDurationBuckets = []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10}
	DefaultJobDurationBuckets      = []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600, 7200}
	DefaultTokenCountBuckets       = []float64{5, 10, 25, 50, 100, 250, 500, 1000}
	DefaultResultCountBuckets      = []float64{0, 10, 50, 100, 500, 1000}
	DefaultDBDurationBuckets       = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
)

// NewAppMetrics registers the full metric set against the collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	// HTTP
	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "In-flight HTTP requests", "method")

	// Documents
	m.DocumentsImportedTotal = collector.RegisterCounter("documents_imported_total", "Documents imported", "source", "status")
	m.ImportDuration = collector.RegisterHistogram("document_import_duration_seconds", "Document import duration", DefaultPipelineDurationBuckets, "source")
	m.TokensPerDocument = collector.RegisterHistogram("tokens_per_document", "Token count per imported document", DefaultTokenCountBuckets, "source")
	m.DocumentsTotal = collector.RegisterGauge("documents_total", "Documents stored", "status")

	// Annotations
	m.CandidatesGeneratedTotal = collector.RegisterCounter("annotation_candidates_total", "Annotation candidates generated", "origin")
	m.MergeRunsTotal = collector.RegisterCounter("annotation_merge_runs_total", "Merge runs", "status")
	m.MergeDroppedTotal = collector.RegisterCounter("annotation_merge_dropped_total", "Candidates dropped during merge", "reason")
	m.MergeDuration = collector.RegisterHistogram("annotation_merge_duration_seconds", "Merge run duration", DefaultPipelineDurationBuckets, "strategy")
	m.AnnotationsTotal = collector.RegisterGauge("annotations_total", "Stored annotations", "provenance")

	// Datasets
	m.DatasetExportsTotal = collector.RegisterCounter("dataset_exports_total", "Dataset export runs", "status")
	m.DatasetExportDuration = collector.RegisterHistogram("dataset_export_duration_seconds", "Dataset export duration", DefaultPipelineDurationBuckets)
	m.DatasetRecords = collector.RegisterGauge("dataset_records", "Records in the last exported dataset", "split")
	m.DatasetPublishTotal = collector.RegisterCounter("dataset_publish_total", "Dataset artifact publish attempts", "status")

	// Training
	m.TrainingJobsTotal = collector.RegisterCounter("training_jobs_total", "Training jobs by terminal status", "kind", "status")
	m.TrainingJobDuration = collector.RegisterHistogram("training_job_duration_seconds", "Training job duration", DefaultJobDurationBuckets, "kind")
	m.TrainingActiveJobs = collector.RegisterGauge("training_active_jobs", "Jobs currently running", "kind")
	m.JobRetriesTotal = collector.RegisterCounter("training_job_retries_total", "Job retries", "kind", "reason")

	// Search and graph
	m.IndexOpsTotal = collector.RegisterCounter("index_operations_total", "Search index operations", "operation", "status")
	m.SearchDuration = collector.RegisterHistogram("search_duration_seconds", "Entity search duration", DefaultHTTPDurationBuckets, "query_type")
	m.SearchResultCount = collector.RegisterHistogram("search_result_count", "Entity search result count", DefaultResultCountBuckets, "query_type")
	m.GraphNodesTotal = collector.RegisterGauge("graph_nodes_total", "Nodes in the exported relation graph", "node_type")
	m.GraphEdgesTotal = collector.RegisterGauge("graph_edges_total", "Edges in the exported relation graph", "edge_type")
	m.GraphExportDuration = collector.RegisterHistogram("graph_export_duration_seconds", "Relation graph export duration", DefaultPipelineDurationBuckets, "operation")

	// Infrastructure
	m.DBPoolSize = collector.RegisterGauge("db_pool_size", "Database connection pool size", "db")
	m.DBPoolActive = collector.RegisterGauge("db_pool_active", "Database connections in use", "db")
	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Database query duration", DefaultDBDurationBuckets, "db", "operation")
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.QueueDepth = collector.RegisterGauge("mq_depth", "Message queue depth", "queue")
	m.MessageProcessDuration = collector.RegisterHistogram("mq_process_duration_seconds", "Message processing duration", DefaultHTTPDurationBuckets, "queue", "message_type")

	// Health
	m.ServiceUptime = collector.RegisterGauge("service_uptime_seconds", "Service uptime", "service")
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Errors by component", "component", "error_type")

	return m
}

// ─────────────────────────────────────────────────────────────────────────────
// Recording helpers
// ─────────────────────────────────────────────────────────────────────────────

func RecordHTTPRequest(m *AppMetrics, method, path string, statusCode int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordImport(m *AppMetrics, source string, tokens int, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.DocumentsImportedTotal.WithLabelValues(source, status).Inc()
	if err == nil {
		m.ImportDuration.WithLabelValues(source).Observe(duration.Seconds())
		m.TokensPerDocument.WithLabelValues(source).Observe(float64(tokens))
	}
}

func RecordMergeRun(m *AppMetrics, strategy string, duration time.Duration, droppedByReason map[string]int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.MergeRunsTotal.WithLabelValues(status).Inc()
	m.MergeDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	for reason, n := range droppedByReason {
		m.MergeDroppedTotal.WithLabelValues(reason).Add(float64(n))
	}
}

func RecordTrainingJob(m *AppMetrics, kind, status string, duration time.Duration) {
	m.TrainingJobsTotal.WithLabelValues(kind, status).Inc()
	m.TrainingJobDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func RecordDBQuery(m *AppMetrics, db, operation string, duration time.Duration, err error) {
	m.DBQueryDuration.WithLabelValues(db, operation).Observe(duration.Seconds())
	if err != nil {
		m.ErrorsTotal.WithLabelValues(db, "query_error").Inc()
	}
}

func RecordCacheAccess(m *AppMetrics, cache string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func RecordError(m *AppMetrics, component, errorType string) {
	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
