// Package notify queues per-user notifications produced during a tick and
// renders them into one digest message per user. Delivery goes through the
// platform client; the queue itself never talks to the network.
package notify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/UnironicHeyMoon/HMSE/internal/domain"
)

// Severity classifies a notification entry.
type Severity string

const (
	SeveritySuccess Severity = "SUCCESS"
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// Entry is one queued notification about one order.
type Entry struct {
	User     domain.User
	Order    domain.Order
	Severity Severity
	Message  string
}

// Digest is the rendered notification bundle for one user.
type Digest struct {
	User domain.User
	Body string
}

// Queue accumulates entries per user during a tick.
type Queue struct {
	pending map[int64][]Entry
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{pending: make(map[int64][]Entry)}
}

// Enqueue adds a notification for the user.
func (q *Queue) Enqueue(user domain.User, order domain.Order, severity Severity, message string) {
	q.pending[user.ID] = append(q.pending[user.ID], Entry{
		User:     user,
		Order:    order,
		Severity: severity,
		Message:  message,
	})
}

// Len returns the number of queued entries across all users.
func (q *Queue) Len() int {
	n := 0
	for _, entries := range q.pending {
		n += len(entries)
	}
	return n
}

// Digests renders one digest per user, in user-id order. Identical entries
// (same message about the same order description) collapse into one line
// with a count.
func (q *Queue) Digests() []Digest {
	ids := make([]int64, 0, len(q.pending))
	for id := range q.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	digests := make([]Digest, 0, len(ids))
	for _, id := range ids {
		entries := q.pending[id]
		digests = append(digests, Digest{
			User: entries[0].User,
			Body: renderDigest(entries),
		})
	}
	return digests
}

// Reset drops all queued entries.
func (q *Queue) Reset() {
	q.pending = make(map[int64][]Entry)
}

type collapsedEntry struct {
	Entry
	Count int
}

func collapse(entries []Entry) []collapsedEntry {
	var collapsed []collapsedEntry
	for _, e := range entries {
		merged := false
		for i := range collapsed {
			if collapsed[i].Message == e.Message && collapsed[i].Order.Description() == e.Order.Description() {
				collapsed[i].Count++
				merged = true
				break
			}
		}
		if !merged {
			collapsed = append(collapsed, collapsedEntry{Entry: e, Count: 1})
		}
	}
	return collapsed
}

func renderDigest(entries []Entry) string {
	var b strings.Builder
	b.WriteString("# Trade Notifications\n\n")
	b.WriteString("Please see the following notifications about your placed orders.\n\n")

	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"Severity", "Order", "Message", "Count"})
	for _, e := range collapse(entries) {
		table.Append([]string{
			string(e.Severity),
			e.Order.Description(),
			e.Message,
			fmt.Sprintf("%d", e.Count),
		})
	}
	table.Render()

	b.WriteString("\nThanks,\n\nHMSE\n")
	return b.String()
}
