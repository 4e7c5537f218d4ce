package model

import (
	"strings"
	"time"
)

// Response is the standard API response envelope.
type Response struct {
	Status     string      `json:"status"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *APIError   `json:"error"`
}

// Pagination holds pagination metadata for list endpoints.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// ListOptions selects a page of jobs or summaries.
type ListOptions struct {
	Limit  int
	Offset int
	Status string // exact status, empty for any
	User   string // principal name (any case) or user id, empty for any
}

// DefaultListOptions returns the first page of 20.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 20, Offset: 0}
}

// Clamp enforces limits (max 100, min 1).
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// MatchesJob reports whether j passes the status and user filters.
func (o ListOptions) MatchesJob(j *Job) bool {
	if o.Status != "" && string(j.Status) != o.Status {
		return false
	}
	if o.User != "" && !strings.EqualFold(j.UserPrincipalName, o.User) && j.UserID != o.User {
		return false
	}
	return true
}

// Window returns the [start, end) slice bounds of the page within total
// items.
func (o ListOptions) Window(total int) (start, end int) {
	start = min(o.Offset, total)
	return start, min(total, start+o.Limit)
}

// Page describes the page within total items.
func (o ListOptions) Page(total int) *Pagination {
	return &Pagination{
		Total:   total,
		Limit:   o.Limit,
		Offset:  o.Offset,
		HasMore: o.Offset+o.Limit < total,
	}
}
