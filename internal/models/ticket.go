package models

import "time"

// Status represents the lifecycle state of a ticket.
type Status string

const (
	StatusProposed             Status = "Proposed"
	StatusApproved             Status = "Approved"
	StatusInProgress           Status = "In Progress"
	StatusImplemented          Status = "Implemented"
	StatusPartiallyImplemented Status = "Partially Implemented"
	StatusOnHold               Status = "On Hold"
	StatusRejected             Status = "Rejected"
	StatusSuperseded           Status = "Superseded"
	StatusDeprecated           Status = "Deprecated"
	StatusDuplicate            Status = "Duplicate"
)

// AllStatuses lists every valid status, in lifecycle order.
var AllStatuses = []Status{
	StatusProposed,
	StatusApproved,
	StatusInProgress,
	StatusImplemented,
	StatusPartiallyImplemented,
	StatusOnHold,
	StatusRejected,
	StatusSuperseded,
	StatusDeprecated,
	StatusDuplicate,
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Type represents the kind of change a ticket tracks.
type Type string

const (
	TypeArchitecture       Type = "Architecture"
	TypeFeatureEnhancement Type = "Feature Enhancement"
	TypeBugFix             Type = "Bug Fix"
	TypeTechnicalDebt      Type = "Technical Debt"
	TypeDocumentation      Type = "Documentation"
	TypeResearch           Type = "Research"
)

// AllTypes lists every valid ticket type.
var AllTypes = []Type{
	TypeArchitecture,
	TypeFeatureEnhancement,
	TypeBugFix,
	TypeTechnicalDebt,
	TypeDocumentation,
	TypeResearch,
}

// Valid reports whether t is a known ticket type.
func (t Type) Valid() bool {
	for _, v := range AllTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Priority represents the urgency of a ticket.
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// Valid reports whether p is a known priority value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Ticket is the in-memory projection of a single CR markdown file.
// The file on disk is the source of truth; Ticket values are transient
// parse results and are never cached across operations.
type Ticket struct {
	Code           string     `json:"code" yaml:"code"`
	Title          string     `json:"title" yaml:"title"`
	Status         Status     `json:"status" yaml:"status"`
	Type           Type       `json:"type" yaml:"type"`
	Priority       Priority   `json:"priority" yaml:"priority"`
	PhaseEpic      string     `json:"phaseEpic,omitempty" yaml:"phaseEpic,omitempty"`
	Assignee       string     `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	RelatedTickets []string   `json:"relatedTickets,omitempty" yaml:"relatedTickets,omitempty"`
	DependsOn      []string   `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
	Blocks         []string   `json:"blocks,omitempty" yaml:"blocks,omitempty"`
	DateCreated    time.Time  `json:"dateCreated" yaml:"dateCreated"`
	LastModified   time.Time  `json:"lastModified" yaml:"lastModified"`

	// Markdown body, without the frontmatter block.
	Content string `json:"content,omitempty" yaml:"-"`

	// Derived at resolution time, never persisted to the file.
	FilePath     string `json:"filePath,omitempty" yaml:"-"`
	InWorktree   bool   `json:"inWorktree" yaml:"-"`
	WorktreePath string `json:"worktreePath,omitempty" yaml:"-"`
}
