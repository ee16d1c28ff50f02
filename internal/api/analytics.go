package api

import (
	"context"
	"encoding/json"
	"fmt"
)

// AnalyticsSummary returns the aggregate post/response counts.
func (c *Client) AnalyticsSummary(ctx context.Context) (*AnalyticsSummary, error) {
	var summary AnalyticsSummary
	if err := c.get(ctx, "/api/analytics/summary", nil, &summary); err != nil {
		return nil, fmt.Errorf("analytics summary: %w", err)
	}
	return &summary, nil
}

// WebSocketHealth returns the realtime service health over plain HTTP.
func (c *Client) WebSocketHealth(ctx context.Context) (*WebSocketHealth, error) {
	var health WebSocketHealth
	if err := c.get(ctx, "/api/ws/health", nil, &health); err != nil {
		return nil, fmt.Errorf("websocket health: %w", err)
	}
	return &health, nil
}

// MonitoringStatus returns the raw monitoring status document, the same
// payload the realtime channel pushes as "monitoring_status".
func (c *Client) MonitoringStatus(ctx context.Context) (json.RawMessage, error) {
	var status json.RawMessage
	if err := c.get(ctx, "/api/ws/monitoring-status", nil, &status); err != nil {
		return nil, fmt.Errorf("monitoring status: %w", err)
	}
	return status, nil
}
