package workers

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
	"github.com/iiitkota/dockpanel/api/internal/nginx"
)

const (
	StatusUpstreamUp   = "upstream_up"
	StatusUpstreamDown = "upstream_down"

	maxJitter    = 2 * time.Second
	checkTimeout = 6 * time.Second
)

// ConfigSource yields the current site file content.
type ConfigSource interface {
	Current() (string, error)
}

// UpstreamMonitor probes every proxied local port and reports state changes.
// It only reads the site file.
type UpstreamMonitor struct {
	source      ConfigSource
	events      domain.EventPublisher
	httpClient  *http.Client
	logger      *slog.Logger
	interval    time.Duration
	concurrency int // 🛡️ SLA: Limit concurrent checks

	mu    sync.Mutex
	state map[string]bool // port -> last seen up
}

func NewUpstreamMonitor(source ConfigSource, events domain.EventPublisher, logger *slog.Logger, interval time.Duration) *UpstreamMonitor {
	return &UpstreamMonitor{
		source:      source,
		events:      events,
		logger:      logger,
		interval:    interval,
		concurrency: 10,
		state:       make(map[string]bool),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
			// A redirect still proves the listener is alive
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (m *UpstreamMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.performChecks(ctx, maxJitter)
		}
	}
}

// CheckNow runs one round of probes without jitter.
func (m *UpstreamMonitor) CheckNow(ctx context.Context) {
	m.performChecks(ctx, 0)
}

func (m *UpstreamMonitor) performChecks(ctx context.Context, jitter time.Duration) {
	content, err := m.source.Current()
	if err != nil {
		m.logger.Error("Upstream monitor could not read proxy config", slog.Any("error", err))
		return
	}

	blocks := nginx.Parse(content)
	m.forgetRemoved(blocks)

	// 🛡️ SLA: Concurrency control via semaphore
	sem := make(chan struct{}, m.concurrency)
	var wg sync.WaitGroup

	for _, block := range blocks {
		wg.Add(1)

		go func(b domain.ServerBlock) {
			defer wg.Done()

			// 🛡️ Jitter: Prevent synchronized spikes
			if jitter > 0 {
				select {
				case <-time.After(time.Duration(rand.Int63n(int64(jitter)))):
				case <-ctx.Done():
					return
				}
			}

			sem <- struct{}{}
			defer func() { <-sem }()

			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			m.observe(b, m.probe(checkCtx, b.ProxyPort))
		}(block)
	}
	wg.Wait()
}

func (m *UpstreamMonitor) probe(ctx context.Context, port string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://127.0.0.1:%s/", port), nil)
	if err != nil {
		return err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	// Any responsive listener below 5xx counts as up, auth walls included.
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("upstream answered %d", resp.StatusCode)
	}
	return nil
}

func (m *UpstreamMonitor) observe(b domain.ServerBlock, probeErr error) {
	up := probeErr == nil

	m.mu.Lock()
	wasUp, seen := m.state[b.ProxyPort]
	m.state[b.ProxyPort] = up
	m.mu.Unlock()

	// First sight of a healthy upstream is not news.
	if (seen && wasUp == up) || (!seen && up) {
		return
	}

	status, message := StatusUpstreamUp, b.ServerName
	if !up {
		status, message = StatusUpstreamDown, fmt.Sprintf("%s: %v", b.ServerName, probeErr)
		m.logger.Warn("Upstream down", slog.String("server_name", b.ServerName), slog.String("port", b.ProxyPort), slog.Any("error", probeErr))
	} else {
		m.logger.Info("Upstream recovered", slog.String("server_name", b.ServerName), slog.String("port", b.ProxyPort))
	}

	if m.events != nil {
		m.events.Publish(nginx.EventTopic, domain.ProxyEvent{
			ID:      uuid.NewString(),
			Step:    "upstream:" + b.ProxyPort,
			Status:  status,
			Message: message,
			At:      time.Now().UTC(),
		})
	}
}

func (m *UpstreamMonitor) forgetRemoved(blocks []domain.ServerBlock) {
	live := make(map[string]struct{}, len(blocks))
	for _, b := range blocks {
		live[b.ProxyPort] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for port := range m.state {
		if _, ok := live[port]; !ok {
			delete(m.state, port)
		}
	}
}
