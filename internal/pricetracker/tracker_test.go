package pricetracker

import (
	"path/filepath"
	"testing"

	"github.com/UnironicHeyMoon/HMSE/internal/domain"
	"github.com/UnironicHeyMoon/HMSE/internal/infra/storage"
)

func setupTracker(t *testing.T) (*Tracker, domain.Store, domain.Asset) {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	asset, err := s.AddAsset("PUTIN")
	if err != nil {
		t.Fatalf("AddAsset failed: %v", err)
	}
	return New(s), s, asset
}

func TestSetPriceFirstPointAveragesToItself(t *testing.T) {
	tracker, store, asset := setupTracker(t)

	if err := tracker.SetPrice(asset, 100, 0); err != nil {
		t.Fatalf("SetPrice failed: %v", err)
	}

	pp, err := store.PriceAt(asset, 0)
	if err != nil {
		t.Fatalf("PriceAt failed: %v", err)
	}
	if pp == nil {
		t.Fatal("no price point recorded")
	}
	if pp.Price != 100 || pp.DayAverage != 100 || pp.WeekAverage != 100 || pp.MonthAverage != 100 {
		t.Errorf("expected all fields 100, got %+v", pp)
	}
}

func TestAveragesIncludeCurrentPrice(t *testing.T) {
	tracker, store, asset := setupTracker(t)

	tracker.SetPrice(asset, 40, 0)
	tracker.SetPrice(asset, 80, 1)
	if err := tracker.SetPrice(asset, 120, 2); err != nil {
		t.Fatalf("SetPrice failed: %v", err)
	}

	pp, _ := store.PriceAt(asset, 2)
	// (40 + 80 + 120) / 3
	if pp.DayAverage != 80 {
		t.Errorf("expected day average 80, got %d", pp.DayAverage)
	}
}

func TestWindowsExcludeOldPoints(t *testing.T) {
	tracker, store, asset := setupTracker(t)

	// A spike well outside the day window but inside week and month.
	tracker.SetPrice(asset, 1000, 0)
	if err := tracker.SetPrice(asset, 100, DayWindow+1); err != nil {
		t.Fatalf("SetPrice failed: %v", err)
	}

	pp, _ := store.PriceAt(asset, DayWindow+1)
	if pp.DayAverage != 100 {
		t.Errorf("day average should ignore the old spike, got %d", pp.DayAverage)
	}
	if pp.WeekAverage != 550 {
		t.Errorf("week average should include the spike, got %d", pp.WeekAverage)
	}
}

func TestMaintainPriceCarriesForward(t *testing.T) {
	tracker, store, asset := setupTracker(t)

	tracker.SetPrice(asset, 70, 0)
	if err := tracker.MaintainPrice(asset, 1); err != nil {
		t.Fatalf("MaintainPrice failed: %v", err)
	}

	pp, _ := store.PriceAt(asset, 1)
	if pp.Price != 70 {
		t.Errorf("expected carried-forward 70, got %d", pp.Price)
	}
}

func TestMaintainPriceWithNoHistoryRecordsZero(t *testing.T) {
	tracker, store, asset := setupTracker(t)

	if err := tracker.MaintainPrice(asset, 0); err != nil {
		t.Fatalf("MaintainPrice failed: %v", err)
	}
	pp, _ := store.PriceAt(asset, 0)
	if pp == nil || pp.Price != 0 {
		t.Errorf("expected a 0-price point, got %+v", pp)
	}
}

func TestLatestAndLookback(t *testing.T) {
	tracker, store, asset := setupTracker(t)

	tracker.SetPrice(asset, 40, 0)
	tracker.SetPrice(asset, 90, 5)
	if err := store.SetCurrentTick(5); err != nil {
		t.Fatalf("SetCurrentTick failed: %v", err)
	}

	latest, err := tracker.Latest(asset)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest == nil || latest.Price != 90 {
		t.Errorf("expected latest 90, got %+v", latest)
	}

	// Lookback snaps to the closest older point.
	past, err := tracker.Lookback(asset, 3)
	if err != nil {
		t.Fatalf("Lookback failed: %v", err)
	}
	if past == nil || past.Price != 40 {
		t.Errorf("expected lookback 40, got %+v", past)
	}

	none, err := tracker.Lookback(asset, 50)
	if err != nil {
		t.Fatalf("Lookback failed: %v", err)
	}
	if none != nil {
		t.Errorf("expected nil beyond history, got %+v", none)
	}
}
