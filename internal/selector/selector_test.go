package selector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tis24dev/stackrestore/internal/transfer"
)

func newSelector(names ...string) (*Selector, *transfer.Fake) {
	fake := transfer.NewFake("remote:backups")
	for _, n := range names {
		fake.Put(n, []byte("x"))
	}
	return New(Naming{Prefix: "backup", Extension: ".tar.gz"}, fake, "/var/tmp/work"), fake
}

func TestSelectLatest(t *testing.T) {
	sel, _ := newSelector(
		"backup-2024-01-02.tar.gz",
		"backup-2024-01-15.tar.gz",
		"backup-2023-12-31.tar.gz",
		"backup-2024-01-20.tar.gz.partial",
		"other-2025-01-01.tar.gz",
		"backup-latest.tar.gz",
	)

	d, err := sel.Select(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.Name != "backup-2024-01-15.tar.gz" {
		t.Fatalf("Name = %q; want backup-2024-01-15.tar.gz", d.Name)
	}
	if d.Source != SourceLatest {
		t.Errorf("Source = %q", d.Source)
	}
	if d.LocalPath != "/var/tmp/work/backup-2024-01-15.tar.gz" {
		t.Errorf("LocalPath = %q", d.LocalPath)
	}
	if d.RemotePath != "remote:backups/backup-2024-01-15.tar.gz" {
		t.Errorf("RemotePath = %q", d.RemotePath)
	}
	if !d.Date.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v", d.Date)
	}
	if d.Size != 1 {
		t.Errorf("Size = %d; want the listed size", d.Size)
	}
}

func TestSelectExplicitDateDoesNotList(t *testing.T) {
	sel, fake := newSelector()
	fake.ListErr = errors.New("listing must not be called")

	d, err := sel.Select(context.Background(), Request{Date: "2024-03-01"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.Name != "backup-2024-03-01.tar.gz" || d.Source != SourceExplicitDate {
		t.Fatalf("descriptor = %+v", d)
	}
	if fake.ListCalls != 0 {
		t.Fatalf("List called %d times; want 0", fake.ListCalls)
	}
}

func TestSelectExplicitNameVerbatim(t *testing.T) {
	sel, fake := newSelector()
	d, err := sel.Select(context.Background(), Request{Name: "manual-snapshot.tar.gz"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.Name != "manual-snapshot.tar.gz" || d.Source != SourceExplicitName {
		t.Fatalf("descriptor = %+v", d)
	}
	if !d.Date.IsZero() {
		t.Errorf("undated name should have zero Date")
	}
	if fake.ListCalls != 0 {
		t.Fatalf("List called for explicit name")
	}
}

func TestSelectErrors(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		listErr error
		want    error
	}{
		{"conflict", Request{Name: "a.tar.gz", Date: "2024-01-01"}, nil, ErrConflictingRequest},
		{"bad date", Request{Date: "2024-13-01"}, nil, ErrInvalidRequest},
		{"bad date format", Request{Date: "01/02/2024"}, nil, ErrInvalidRequest},
		{"path in name", Request{Name: "../etc/passwd"}, nil, ErrInvalidRequest},
		{"nothing found", Request{}, nil, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, _ := newSelector("unrelated.txt")
			_, err := sel.Select(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v; want %v", err, tt.want)
			}
		})
	}
}

func TestSelectListFailure(t *testing.T) {
	sel, fake := newSelector()
	fake.ListErr = errors.New("network down")
	_, err := sel.Select(context.Background(), Request{})
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wrapped listing error, got %v", err)
	}
}

func TestObjectsNewestFirst(t *testing.T) {
	sel, _ := newSelector("backup-2024-01-02.tar.gz", "backup-2024-02-01.tar.gz", "backup-2023-05-05.tar.gz")
	objects, err := sel.Objects(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, obj := range objects {
		names = append(names, obj.Name)
	}
	want := []string{"backup-2024-02-01.tar.gz", "backup-2024-01-02.tar.gz", "backup-2023-05-05.tar.gz"}
	if len(names) != len(want) {
		t.Fatalf("names = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v; want %v", names, want)
		}
	}
}

func TestNamingQuotesMeta(t *testing.T) {
	n := Naming{Prefix: "site.v1", Extension: ".tar.gz"}
	if _, ok := n.DateOf("siteXv1-2024-01-01.tar.gz"); ok {
		t.Fatal("prefix dot must be literal")
	}
	if _, ok := n.DateOf("site.v1-2024-01-01.tar.gz"); !ok {
		t.Fatal("expected match")
	}
}
