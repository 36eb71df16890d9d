package trees

import (
	"fmt"
	"time"
)

// ChangeType is the kind of raw filesystem event fed into a ChangeTree
type ChangeType int

const (
	// Created reports that a path appeared
	Created ChangeType = iota + 1
	// Changed reports that a path's content or attributes changed
	Changed
	// Deleted reports that a path disappeared
	Deleted
	// Renamed reports that OldPath was renamed to Path
	Renamed
)

func (c ChangeType) String() string {
	switch c {
	case Created:
		return "created"
	case Changed:
		return "changed"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	default:
		return fmt.Sprintf("ChangeType(%d)", int(c))
	}
}

// Status is the aggregated state of an entity since the last reset
type Status int

const (
	// Unmarked means no change was observed for the entity itself
	Unmarked Status = iota
	StatusCreated
	StatusChanged
	StatusDeleted
)

var allStatuses = []Status{Unmarked, StatusCreated, StatusChanged, StatusDeleted}

func (s Status) String() string {
	switch s {
	case Unmarked:
		return "unmarked"
	case StatusCreated:
		return "created"
	case StatusChanged:
		return "changed"
	case StatusDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Badge is the one character marker used when rendering the tree
func (s Status) Badge() string {
	switch s {
	case StatusCreated:
		return "+"
	case StatusChanged:
		return "~"
	case StatusDeleted:
		return "-"
	default:
		return " "
	}
}

// statusFor maps an incoming change type to the status it writes.
func statusFor(c ChangeType) Status {
	switch c {
	case Created:
		return StatusCreated
	case Changed:
		return StatusChanged
	case Deleted:
		return StatusDeleted
	default:
		return Unmarked
	}
}

// Event is a raw filesystem notification
type Event struct {
	Type      ChangeType
	Path      string
	OldPath   string // Renamed only
	Timestamp time.Time
}

// EntityID identifies an entity within one tree instance. Ids are arena
// positions and are reused after Initialize or Reset.
type EntityID uint32

// NoEntity is the parent of the root
const NoEntity = ^EntityID(0)

// Entity is a read-only view of one tracked path
type Entity struct {
	ID       EntityID   `json:"id"`
	Path     string     `json:"path"`
	Name     string     `json:"name"`
	Status   Status     `json:"status"`
	Parent   EntityID   `json:"parent"`
	Children []EntityID `json:"children,omitempty"`
	Depth    int        `json:"depth"`
}

// IsRoot reports whether the entity is the tree root
func (e Entity) IsRoot() bool {
	return e.Parent == NoEntity
}
