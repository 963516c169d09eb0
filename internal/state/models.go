// Package state provides MongoDB persistence of expanded job parameters.
package state

import (
	"time"
)

// JobStatus represents the lifecycle of a persisted job request.
type JobStatus string

const (
	// JobNew is a job stored straight from an expansion.
	JobNew JobStatus = "new"
	// JobQueued is a job received from the request channel.
	JobQueued JobStatus = "queued"
	// JobReady is a job whose parameters restored against the tool.
	JobReady   JobStatus = "ready"
	JobInvalid JobStatus = "invalid"
)

// JobParameters is one expanded run of a tool. Params holds the flat
// string form of the parameter state, keyed by top level input name.
type JobParameters struct {
	ID           string            `bson:"_id" json:"id"`
	BatchID      string            `bson:"batch_id" json:"batch_id"`
	ToolID       string            `bson:"tool_id" json:"tool_id"`
	ToolVersion  string            `bson:"tool_version" json:"tool_version"`
	User         string            `bson:"user,omitempty" json:"user,omitempty"`
	Params       map[string]string `bson:"params" json:"params"`
	Status       JobStatus         `bson:"status" json:"status"`
	ErrorMessage string            `bson:"error_message,omitempty" json:"error_message,omitempty"`
	CreatedAt    time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt    *time.Time        `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// JobFilter defines filtering options for job listings.
type JobFilter struct {
	BatchID string
	ToolID  string
	Status  JobStatus
	Limit   int
	Offset  int
}

// BatchProgress counts the jobs of a batch by status.
type BatchProgress struct {
	Total   int `json:"total"`
	New     int `json:"new"`
	Queued  int `json:"queued"`
	Ready   int `json:"ready"`
	Invalid int `json:"invalid"`
}

func (p *BatchProgress) add(status JobStatus, n int) {
	switch status {
	case JobNew:
		p.New += n
	case JobQueued:
		p.Queued += n
	case JobReady:
		p.Ready += n
	case JobInvalid:
		p.Invalid += n
	}
	p.Total += n
}
