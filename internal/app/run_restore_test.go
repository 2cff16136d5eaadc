package app

import (
	"bytes"
	"context"
	"testing"

	"github.com/dev-tams/dumpvault/internal/config"
	"github.com/dev-tams/dumpvault/internal/remote"
)

func TestSortByPartNumberOrdersNumerically(t *testing.T) {
	objects := []remote.Object{
		{Name: "users/users.jsonl.part10"},
		{Name: "users/users.jsonl.part2"},
		{Name: "users/users.jsonl.part1"},
	}

	sortByPartNumber(objects)

	want := []string{
		"users/users.jsonl.part1",
		"users/users.jsonl.part2",
		"users/users.jsonl.part10",
	}
	for i, w := range want {
		if objects[i].Name != w {
			t.Fatalf("position %d: got %s want %s", i, objects[i].Name, w)
		}
	}
}

func TestStreamChunksConcatenatesInOrder(t *testing.T) {
	store := &fakeObjectStore{
		content: map[string]string{
			"users/users.jsonl.part1": "{\"a\":1}\n",
			"users/users.jsonl.part2": "{\"a\":2}\n",
		},
	}
	objects := []remote.Object{
		{Name: "users/users.jsonl.part1"},
		{Name: "users/users.jsonl.part2"},
	}

	var buf bytes.Buffer
	if err := streamChunks(context.Background(), store, objects, &buf); err != nil {
		t.Fatalf("streamChunks: %v", err)
	}

	want := "{\"a\":1}\n{\"a\":2}\n"
	if buf.String() != want {
		t.Fatalf("unexpected stream: %q", buf.String())
	}
}

func TestStreamChunksFailsOnMissingObject(t *testing.T) {
	store := &fakeObjectStore{content: map[string]string{}}
	objects := []remote.Object{{Name: "users/users.jsonl.part1"}}

	var buf bytes.Buffer
	if err := streamChunks(context.Background(), store, objects, &buf); err == nil {
		t.Fatalf("expected error for missing object")
	}
}

func TestRestoreURI(t *testing.T) {
	cases := []struct {
		name string
		conn config.ConnectionConfig
		want string
	}{
		{
			name: "explicit uri wins",
			conn: config.ConnectionConfig{URI: "mongodb://u:p@db:27017", Host: "ignored"},
			want: "mongodb://u:p@db:27017",
		},
		{
			name: "host and port",
			conn: config.ConnectionConfig{Host: "db", Port: 27017},
			want: "mongodb://db:27017",
		},
		{
			name: "credentials",
			conn: config.ConnectionConfig{Host: "db", Port: 27017, User: "u", Password: "p"},
			want: "mongodb://u:p@db:27017",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := restoreURI(tc.conn); got != tc.want {
				t.Fatalf("got %s want %s", got, tc.want)
			}
		})
	}
}
