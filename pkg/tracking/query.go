package tracking

import (
	"strings"
	"time"
)

// Scope narrows a query to deleted or non-deleted notifications.
type Scope string

const (
	// ScopeAll applies no soft-delete constraint.
	ScopeAll Scope = "all"
	// ScopeDeleted returns only soft-deleted notifications.
	ScopeDeleted Scope = "deleted"
	// ScopeNonDeleted returns only notifications that were not soft-deleted.
	ScopeNonDeleted Scope = "non_deleted"
)

// Query describes a scoped, paginated listing of one user's notifications
// within one app. Results are always ordered by creation time, newest first.
type Query struct {
	// Scope filters on the soft-delete flag. The zero value behaves
	// like ScopeAll.
	Scope Scope

	// After is an inclusive lower bound on Updated. The zero time means
	// no bound.
	After time.Time

	// Search is matched case-insensitively as a literal substring against
	// the notification subject. Regex metacharacters carry no meaning.
	Search string

	// Limit is the page size. Zero or negative means no limit.
	Limit int

	// Offset is the number of matching notifications to skip.
	Offset int
}

// matches reports whether a notification satisfies the scope, time and search
// constraints. App and user equality is handled by the storage itself.
func (q Query) matches(n *Notification) bool {
	switch q.Scope {
	case ScopeDeleted:
		if !n.Deleted {
			return false
		}
	case ScopeNonDeleted:
		if n.Deleted {
			return false
		}
	}
	if !q.After.IsZero() && n.Updated.Before(q.After) {
		return false
	}
	if q.Search != "" {
		subject := strings.ToLower(n.Formatting.Subject)
		if !strings.Contains(subject, strings.ToLower(q.Search)) {
			return false
		}
	}
	return true
}

// inferredTotal implements the last-page shortcut: when the returned page is
// shorter than the requested limit there cannot be further matches, so the
// total is offset+returned and no count query is needed. A full page may be
// truncated, in which case the caller must run an exact count.
func inferredTotal(offset, returned, limit int) (total int64, exact bool) {
	if limit > 0 && returned >= limit {
		return 0, false
	}
	return int64(offset + returned), true
}
