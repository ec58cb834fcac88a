// Command worker runs the background half of the annotation pipeline. It
// consumes pipeline events from kafka and executes the work that must not
// block an API request: auto-annotation of freshly imported documents and
// graph export after an annotation set changes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spanmark/spanmark/internal/application/annotate"
	"github.com/spanmark/spanmark/internal/bootstrap"
	"github.com/spanmark/spanmark/internal/config"
	"github.com/spanmark/spanmark/internal/infrastructure/messaging/kafka"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/prometheus"
	"github.com/spanmark/spanmark/pkg/errors"
	"github.com/spanmark/spanmark/pkg/types/common"
)

const defaultConfigPath = "configs/config.yaml"

// Build-time variable injected via ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	concurrency := flag.Int("concurrency", 0, "number of consumers (overrides config)")
	topicsFlag := flag.String("topics", "", "comma-separated event types to consume (default: all)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *concurrency > 0 {
		cfg.Worker.Concurrency = *concurrency
	}

	events, err := parseEvents(*topicsFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --topics: %v\n", err)
		os.Exit(1)
	}

	logger, err := bootstrap.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	logger.Info("Starting worker",
		logging.String("version", version),
		logging.Int("concurrency", cfg.Worker.Concurrency),
		logging.String("events", strings.Join(events, ",")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, err := bootstrap.NewCore(ctx, cfg, logger, "worker")
	if err != nil {
		logger.Error("Failed to assemble worker stack", logging.Err(err))
		os.Exit(1)
	}
	defer core.Close()

	// Topics must exist before the first consumer joins the group, or the
	// join stalls until a producer creates them.
	ensureTopics(ctx, cfg, logger)

	if core.Graph != nil {
		if err := core.Graph.EnsureSchema(ctx); err != nil {
			logger.Warn("Graph schema bootstrap failed", logging.Err(err))
		}
	}

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            "spanmark",
		Subsystem:            "worker",
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize metrics", logging.Err(err))
		_ = core.Close()
		os.Exit(1)
	}

	w, err := newWorker(core, events, prometheus.NewAppMetrics(collector))
	if err != nil {
		logger.Error("Failed to build consumers", logging.Err(err))
		_ = core.Close()
		os.Exit(1)
	}
	if err := w.Start(ctx); err != nil {
		logger.Error("Failed to start consumers", logging.Err(err))
		w.Close()
		_ = core.Close()
		os.Exit(1)
	}

	healthSrv := w.healthServer(cfg.Worker.HealthPort, collector.Handler())
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server failed", logging.Err(err))
		}
	}()

	logger.Info("Worker started",
		logging.Int("consumers", len(w.consumers)),
		logging.Int("health_port", cfg.Worker.HealthPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Received shutdown signal, draining consumers")
	cancel()
	w.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Health server shutdown failed", logging.Err(err))
	}
	logger.Info("Worker stopped")
}

// loadConfig reads the config file, or falls back to environment-only
// configuration when the file is absent, which is how containerised
// deployments run.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return config.LoadFromEnv()
		}
		return nil, err
	}
	return config.Load(path)
}

// parseEvents resolves the --topics flag to event types, defaulting to every
// event the worker handles.
func parseEvents(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{kafka.EventDocumentImported, kafka.EventAnnotationsMerged}, nil
	}
	var events []string
	for _, part := range strings.Split(raw, ",") {
		event := strings.TrimSpace(part)
		switch event {
		case "":
		case kafka.EventDocumentImported, kafka.EventAnnotationsMerged:
			events = append(events, event)
		default:
			return nil, fmt.Errorf("unknown event type %q (known: %s, %s)",
				event, kafka.EventDocumentImported, kafka.EventAnnotationsMerged)
		}
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("no event types selected")
	}
	return events, nil
}

func ensureTopics(ctx context.Context, cfg *config.Config, logger logging.Logger) {
	tm, err := kafka.NewTopicManager(cfg.Kafka.Brokers, logger)
	if err != nil {
		logger.Warn("Kafka topic bootstrap skipped", logging.Err(err))
		return
	}
	defer tm.Close()
	if err := tm.EnsureDefaultTopics(ctx, cfg.Kafka.TopicPrefix); err != nil {
		logger.Warn("Kafka topic bootstrap failed", logging.Err(err))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Worker
// ─────────────────────────────────────────────────────────────────────────────

// worker supervises a group of consumers sharing one consumer group.
// Partitions spread across the consumers, so concurrency scales without
// breaking per-partition ordering.
type worker struct {
	core      *bootstrap.Core
	metrics   *prometheus.AppMetrics
	logger    logging.Logger
	groupID   string
	consumers []*kafka.Consumer
}

func newWorker(core *bootstrap.Core, events []string, metrics *prometheus.AppMetrics) (*worker, error) {
	cfg := core.Config
	w := &worker{
		core:    core,
		metrics: metrics,
		logger:  core.Logger,
		groupID: cfg.Kafka.GroupID,
	}

	topics := make([]string, 0, len(events))
	routes := make(map[string]kafka.MessageHandler, len(events))
	for _, eventType := range events {
		var h func(context.Context, *kafka.Envelope) error
		switch eventType {
		case kafka.EventDocumentImported:
			h = w.handleDocumentImported
		case kafka.EventAnnotationsMerged:
			h = w.handleAnnotationsMerged
		default:
			return nil, fmt.Errorf("no handler for event type %q", eventType)
		}
		topic := kafka.TopicFor(cfg.Kafka.TopicPrefix, eventType)
		topics = append(topics, topic)
		routes[topic] = w.instrument(topic, h)
	}

	for i := 0; i < cfg.Worker.Concurrency; i++ {
		consumer, err := kafka.NewConsumer(cfg.Kafka, cfg.Worker, topics, core.Logger)
		if err != nil {
			w.Close()
			return nil, err
		}
		for topic, handler := range routes {
			consumer.Subscribe(topic, handler)
		}
		w.consumers = append(w.consumers, consumer)
	}
	return w, nil
}

func (w *worker) Start(ctx context.Context) error {
	for _, consumer := range w.consumers {
		if err := consumer.Start(ctx); err != nil {
			return err
		}
	}
	go w.reportLag(ctx)
	return nil
}

// Close stops every consumer. Offsets of unfinished messages stay
// uncommitted, so another worker replays them.
func (w *worker) Close() {
	for _, consumer := range w.consumers {
		if err := consumer.Close(); err != nil {
			w.logger.Warn("Consumer close failed", logging.Err(err))
		}
	}
}

// instrument decodes the envelope once and times the handler under the topic
// and event type labels.
func (w *worker) instrument(topic string, h func(context.Context, *kafka.Envelope) error) kafka.MessageHandler {
	return func(ctx context.Context, msg *kafka.Message) error {
		env, err := kafka.EnvelopeFromMessage(msg)
		if err != nil {
			return err
		}
		start := time.Now()
		err = h(ctx, env)
		w.metrics.MessageProcessDuration.
			WithLabelValues(topic, env.EventType).
			Observe(time.Since(start).Seconds())
		return err
	}
}

// handleDocumentImported runs the annotation pipeline over a freshly
// imported document.
func (w *worker) handleDocumentImported(ctx context.Context, env *kafka.Envelope) error {
	var payload kafka.DocumentImportedPayload
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}
	outcome, err := w.core.Annotate.AutoAnnotate(ctx, &annotate.AutoAnnotateInput{
		DocumentID: payload.DocumentID,
	})
	if err != nil {
		// The document may have been deleted between import and pickup.
		if errors.IsNotFound(err) {
			w.logger.Warn("Skipping annotation of missing document",
				logging.String("document_id", payload.DocumentID))
			return nil
		}
		return err
	}
	w.logger.Info("Document auto-annotated",
		logging.String("document_id", payload.DocumentID),
		logging.Int("entities", outcome.Entities),
		logging.Int("relations", outcome.Relations))
	return nil
}

// handleAnnotationsMerged refreshes the document's subgraph after its
// annotation set changed. Export is idempotent, so replays are safe.
func (w *worker) handleAnnotationsMerged(ctx context.Context, env *kafka.Envelope) error {
	if w.core.Graph == nil {
		return nil
	}
	var payload kafka.AnnotationsMergedPayload
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}
	id := common.ID(payload.DocumentID)
	doc, err := w.core.Documents.GetByID(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		return err
	}
	set, err := w.core.Annotations.LoadSet(ctx, id)
	if err != nil {
		return err
	}
	summary, err := w.core.Graph.ExportDocument(ctx, doc, set)
	if err != nil {
		return err
	}
	w.logger.Info("Graph refreshed",
		logging.String("document_id", payload.DocumentID),
		logging.Int("mentions", summary.Mentions),
		logging.Int("relations", summary.Relations))
	return nil
}

// reportLag mirrors the aggregate consumer lag into the queue depth gauge.
func (w *worker) reportLag(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.metrics.QueueDepth.
				WithLabelValues(w.groupID).
				Set(float64(w.totals().Lag))
		}
	}
}

func (w *worker) totals() consumerTotals {
	var t consumerTotals
	for _, consumer := range w.consumers {
		s := consumer.Stats()
		t.Consumed += s.MessagesConsumed
		t.Processed += s.MessagesProcessed
		t.Failed += s.MessagesFailed
		t.Retried += s.MessagesRetried
		t.DeadLettered += s.MessagesDeadLettered
		t.Lag += s.Lag
	}
	return t
}

type consumerTotals struct {
	Consumed     int64 `json:"consumed"`
	Processed    int64 `json:"processed"`
	Failed       int64 `json:"failed"`
	Retried      int64 `json:"retried"`
	DeadLettered int64 `json:"dead_lettered"`
	Lag          int64 `json:"lag"`
}

type healthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components"`
	Consumers  consumerTotals    `json:"consumers"`
}

// healthServer serves the probe endpoints: GET /healthz for liveness and
// GET /metrics for prometheus scrapes.
func (w *worker) healthServer(port int, metricsHandler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", w.healthz)
	mux.Handle("/metrics", metricsHandler)
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

func (w *worker) healthz(rw http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:     "healthy",
		Version:    version,
		Components: make(map[string]string),
		Consumers:  w.totals(),
	}
	for _, hc := range w.core.HealthChecks() {
		if err := hc.Check(ctx); err != nil {
			resp.Components[hc.Name] = err.Error()
			// Only the database is fatal; everything else already
			// degraded at startup.
			if hc.Name == "postgres" {
				resp.Status = "unhealthy"
			}
		} else {
			resp.Components[hc.Name] = "ok"
		}
	}

	rw.Header().Set("Content-Type", "application/json")
	if resp.Status != "healthy" {
		rw.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(rw).Encode(resp)
}
