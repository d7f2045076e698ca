package domain

import (
	"strings"
	"time"
)

// SearchLimit caps an unfiltered search. It is a hard ceiling, not a page size.
const SearchLimit = 10000

// DeletedMessage is returned alongside every delete count.
const DeletedMessage = "Successfully deleted"

// History is a recorded shell command, unique per hostname, working directory and command.
type History struct {
	ID               int64     `json:"id"`
	Hostname         string    `json:"hostname"`
	WorkingDirectory *string   `json:"working_directory"`
	Command          string    `json:"command"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewHistory is the write shape of a history entry. All three fields form the identity key.
type NewHistory struct {
	Hostname         string `json:"hostname"`
	WorkingDirectory string `json:"working_directory"`
	Command          string `json:"command"`
}

// Normalize trims the hostname. Working directory and command are kept verbatim.
func (h NewHistory) Normalize() NewHistory {
	return NewHistory{
		Hostname:         strings.TrimSpace(h.Hostname),
		WorkingDirectory: h.WorkingDirectory,
		Command:          h.Command,
	}
}

// HistoryFilter narrows a search. A nil WorkingDirectory means no filter.
type HistoryFilter struct {
	WorkingDirectory *string
}

// ByWorkingDirectory returns a filter matching pwd exactly.
func ByWorkingDirectory(pwd string) HistoryFilter {
	return HistoryFilter{WorkingDirectory: &pwd}
}

// SearchResult holds matching entries, most recently updated first.
type SearchResult struct {
	Histories []History
	// Truncated reports that an unfiltered search hit SearchLimit.
	Truncated bool
}

// DeletedHistoryCount reports how many rows a delete removed.
type DeletedHistoryCount struct {
	Count   int64  `json:"count"`
	Message string `json:"message"`
}

// NewDeletedHistoryCount builds the delete result for count rows.
func NewDeletedHistoryCount(count int64) DeletedHistoryCount {
	return DeletedHistoryCount{Count: count, Message: DeletedMessage}
}
