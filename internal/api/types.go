package api

import "time"

// TokenResponse is the login response carrying the bearer token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// GeneratedResponse is a drafted reply attached to a matched post.
type GeneratedResponse struct {
	ID            int64     `json:"id"`
	PostID        int64     `json:"post_id"`
	ClientID      int64     `json:"client_id"`
	Content       string    `json:"content"`
	Score         int       `json:"score"`
	Copied        bool      `json:"copied"`
	ComplianceAck bool      `json:"compliance_ack"`
	CreatedAt     time.Time `json:"created_at"`
}

// MatchedPost is a post the monitoring bot flagged for review.
type MatchedPost struct {
	ID              int64               `json:"id"`
	ClientID        int64               `json:"client_id"`
	Subreddit       string              `json:"subreddit"`
	RedditPostID    string              `json:"reddit_post_id"`
	Title           string              `json:"title"`
	URL             string              `json:"url"`
	Author          string              `json:"author"`
	Content         string              `json:"content"`
	KeywordsMatched string              `json:"keywords_matched"`
	Score           int                 `json:"score"`
	NumComments     int                 `json:"num_comments"`
	Flagged         bool                `json:"flagged"`
	Reviewed        bool                `json:"reviewed"`
	CreatedAt       time.Time           `json:"created_at"`
	Responses       []GeneratedResponse `json:"responses"`
}

// AnalyticsSummary is the aggregate view for the dashboard header.
type AnalyticsSummary struct {
	Posts     int64            `json:"posts"`
	Responses int64            `json:"responses"`
	Events    map[string]int64 `json:"events"`
}

// WebSocketHealth is the server-side view of the realtime service,
// fetched over plain HTTP as the polling fallback.
type WebSocketHealth struct {
	ServiceStatus        string  `json:"service_status"`
	RedisConnected       bool    `json:"redis_connected"`
	TotalConnections     int     `json:"total_connections"`
	HealthyConnections   int     `json:"healthy_connections"`
	UnhealthyConnections int     `json:"unhealthy_connections"`
	HealthPercentage     float64 `json:"health_percentage"`
	UptimeSeconds        float64 `json:"uptime_seconds"`
	LastUpdated          string  `json:"last_updated"`
}
