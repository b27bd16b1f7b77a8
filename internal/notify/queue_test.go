package notify

import (
	"strings"
	"testing"

	"github.com/UnironicHeyMoon/HMSE/internal/domain"
)

func TestQueue_DigestPerUser(t *testing.T) {
	alice := domain.User{ID: 1, Name: "Alice"}
	bob := domain.User{ID: 2, Name: "Bob"}
	order := domain.Order{ID: 7, Owner: alice, Asset: domain.NewAsset(1, "PUTIN"), Kind: domain.KindBuy, LimitPrice: 50, TicksRemaining: 1}

	q := NewQueue()
	q.Enqueue(alice, order, SeverityInfo, "order expired")
	q.Enqueue(bob, order, SeveritySuccess, "bought PUTIN for 40")

	digests := q.Digests()
	if len(digests) != 2 {
		t.Fatalf("expected 2 digests, got %d", len(digests))
	}
	if digests[0].User != alice || digests[1].User != bob {
		t.Errorf("digests should be ordered by user id, got %v then %v", digests[0].User, digests[1].User)
	}
	if !strings.Contains(digests[0].Body, "order expired") {
		t.Errorf("digest body missing message: %q", digests[0].Body)
	}
}

func TestQueue_CollapsesDuplicates(t *testing.T) {
	alice := domain.User{ID: 1, Name: "Alice"}
	order := domain.Order{ID: 7, Owner: alice, Asset: domain.NewAsset(1, "PUTIN"), Kind: domain.KindBuy, LimitPrice: 50, TicksRemaining: 2}

	q := NewQueue()
	q.Enqueue(alice, order, SeverityInfo, "you were outbidded")
	q.Enqueue(alice, order, SeverityInfo, "you were outbidded")
	q.Enqueue(alice, order, SeverityInfo, "you were outbidded")

	body := q.Digests()[0].Body
	if got := strings.Count(body, "you were outbidded"); got != 1 {
		t.Errorf("duplicates should collapse to one row, message appears %d times", got)
	}
	if !strings.Contains(body, "3") {
		t.Errorf("collapsed row should carry the count, body: %q", body)
	}
}

func TestQueue_Reset(t *testing.T) {
	alice := domain.User{ID: 1, Name: "Alice"}
	q := NewQueue()
	q.Enqueue(alice, domain.Order{}, SeverityInfo, "hello")
	q.Reset()
	if q.Len() != 0 {
		t.Errorf("expected empty queue after reset, got %d entries", q.Len())
	}
	if len(q.Digests()) != 0 {
		t.Error("expected no digests after reset")
	}
}
