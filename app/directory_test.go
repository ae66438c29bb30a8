package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tola-labs/cfusage/domain/org"
)

func TestOrgDirectory_EmptyBeforeRefresh(t *testing.T) {
	f := newFixture()

	got := f.directory.List("east")
	if got == nil || len(got) != 0 {
		t.Errorf("List() = %v, want empty non-nil slice", got)
	}
	if f.directory.Ready() {
		t.Error("Ready() = true before any listing")
	}
	if _, ok := f.directory.RefreshedAt("east"); ok {
		t.Error("RefreshedAt() reported a listing that never happened")
	}
}

func TestOrgDirectory_RefreshAll(t *testing.T) {
	f := newFixture()
	f.fetcher.excluded = org.NewExclusionSet("search")

	if err := f.directory.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}

	east := f.directory.List("east")
	if len(east) != 1 || east[0].GUID != "o1" {
		t.Errorf("east = %+v, want only o1", east)
	}
	if len(f.directory.List("west")) != 1 {
		t.Errorf("west = %+v", f.directory.List("west"))
	}
	if !f.directory.Ready() {
		t.Error("Ready() = false after RefreshAll")
	}

	o, ok := f.directory.Lookup("east", "o1")
	if !ok || o.Name != "payments" {
		t.Errorf("Lookup(o1) = %+v, %v", o, ok)
	}
	if _, ok := f.directory.Lookup("east", "o-sys"); ok {
		t.Error("system org should not be in the directory")
	}

	at, ok := f.directory.RefreshedAt("east")
	if !ok || !at.Equal(testNow) {
		t.Errorf("RefreshedAt() = %v, %v", at, ok)
	}
	if f.metrics.dirSize["east"] != 1 {
		t.Errorf("directory size metric = %d, want 1", f.metrics.dirSize["east"])
	}
}

func TestOrgDirectory_KeepsSnapshotOnFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if err := f.directory.Refresh(ctx, "east"); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(time.Hour)
	f.fetcher.orgErr["east"] = errors.New("uaa unavailable")
	if err := f.directory.Refresh(ctx, "east"); err == nil {
		t.Fatal("Refresh() should fail")
	}

	if got := f.directory.List("east"); len(got) != 2 {
		t.Errorf("List() = %+v, want previous snapshot of 2 orgs", got)
	}
	if at, _ := f.directory.RefreshedAt("east"); !at.Equal(testNow) {
		t.Errorf("RefreshedAt() = %v, want unchanged %v", at, testNow)
	}
	if f.directory.LastError("east") == nil {
		t.Error("LastError() = nil after a failed listing")
	}
}

func TestOrgDirectory_PartialFailure(t *testing.T) {
	f := newFixture()
	f.fetcher.orgErr["west"] = errors.New("timeout")

	err := f.directory.RefreshAll(context.Background())
	if err == nil {
		t.Fatal("RefreshAll() should report the west failure")
	}

	if len(f.directory.List("east")) != 2 {
		t.Error("east should still be listed")
	}
	if len(f.directory.List("west")) != 0 {
		t.Error("west should be empty")
	}
	if !f.directory.Ready() {
		t.Error("Ready() should count failed attempts")
	}
}

func TestOrgDirectory_ListIsACopy(t *testing.T) {
	f := newFixture()
	if err := f.directory.Refresh(context.Background(), "east"); err != nil {
		t.Fatal(err)
	}

	got := f.directory.List("east")
	got[0].Name = "mutated"

	if f.directory.List("east")[0].Name != "payments" {
		t.Error("List() exposed the snapshot")
	}
}

func TestOrgDirectory_StartStop(t *testing.T) {
	f := newFixture()
	f.fetcher.orgErr["west"] = errors.New("down")

	f.directory.Start(context.Background())
	defer f.directory.Stop()

	if !f.directory.Ready() {
		t.Error("Ready() = false after Start")
	}
	if len(f.directory.List("east")) != 2 {
		t.Error("Start did not list east")
	}
}
