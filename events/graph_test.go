//go:build !integration

package events

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goquerycache "github.com/dgduncan/go-query-cache"
)

func TestDefaultTagGraph(t *testing.T) {
	t.Parallel()

	g := DefaultTagGraph()

	names := make([]string, 0, len(mutations))
	for _, m := range mutations {
		names = append(names, m.Name)
	}
	assert.ElementsMatch(t, names, g.Mutations())

	assert.Equal(t, []goquerycache.Tag{
		goquerycache.ListTag(TagEvent),
		goquerycache.ListTag(TagUserEvents),
	}, g.Tags(JoinEvent))
	assert.Empty(t, g.Tags(Register))
}

func TestLoadTagGraph(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		want    map[string][]goquerycache.Tag
		wantErr bool
	}{
		{
			name: "valid",
			yaml: "mutations:\n  joinEvent: [\"Event:LIST\", \" UserEvents:LIST \"]\n  deleteEvent: [\"Event:{id}\"]\n",
			want: map[string][]goquerycache.Tag{
				JoinEvent:   {{Type: "Event", ID: "LIST"}, {Type: "UserEvents", ID: "LIST"}},
				DeleteEvent: {{Type: "Event", ID: "{id}"}},
			},
		},
		{name: "empty", yaml: "mutations: {}\n", want: map[string][]goquerycache.Tag{}},
		{name: "missing id", yaml: "mutations:\n  joinEvent: [\"Event\"]\n", wantErr: true},
		{name: "missing type", yaml: "mutations:\n  joinEvent: [\":LIST\"]\n", wantErr: true},
		{name: "unknown field", yaml: "queries: {}\n", wantErr: true},
		{name: "not yaml", yaml: "mutations: [", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g, err := LoadTagGraph(strings.NewReader(tt.yaml))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, g.mutations)
		})
	}
}

func TestLoadTagGraphFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tags.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mutations:\n  login: [\"Profile:LIST\"]\n"), 0o600))

	g, err := LoadTagGraphFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{Login}, g.Mutations())

	_, err = LoadTagGraphFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestInvalidatesResolvesIDs(t *testing.T) {
	t.Parallel()

	g := DefaultTagGraph()

	tests := []struct {
		name     string
		mutation string
		args     any
		want     []goquerycache.Tag
	}{
		{
			name:     "int id",
			mutation: DeleteEvent,
			args:     7,
			want:     []goquerycache.Tag{{Type: "Event", ID: "7"}, goquerycache.ListTag(TagEvent), goquerycache.ListTag(TagUserEvents)},
		},
		{
			name:     "entity args",
			mutation: UpdateEvent,
			args:     UpdateEventArgs{ID: 3},
			want:     []goquerycache.Tag{{Type: "Event", ID: "3"}, goquerycache.ListTag(TagEvent), goquerycache.ListTag(TagUserEvents)},
		},
		{
			name:     "user block",
			mutation: ToggleUserBlock,
			args:     ToggleBlockArgs{UserID: 12, Blocked: true},
			want:     []goquerycache.Tag{{Type: "User", ID: "12"}, goquerycache.ListTag(TagUser)},
		},
		{
			name:     "pointer id",
			mutation: DeleteEvent,
			args:     ptr(7),
			want:     []goquerycache.Tag{{Type: "Event", ID: "7"}, goquerycache.ListTag(TagEvent), goquerycache.ListTag(TagUserEvents)},
		},
		{
			name:     "unresolvable id dropped",
			mutation: DeleteEvent,
			args:     nil,
			want:     []goquerycache.Tag{goquerycache.ListTag(TagEvent), goquerycache.ListTag(TagUserEvents)},
		},
		{
			name:     "no placeholders",
			mutation: Login,
			args:     LoginRequest{},
			want:     []goquerycache.Tag{goquerycache.ListTag(TagProfile)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fn := g.invalidates(tt.mutation)
			require.NotNil(t, fn)
			assert.Equal(t, tt.want, fn(nil, tt.args))
		})
	}

	assert.Nil(t, g.invalidates(Refresh))
}

func TestEntityID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		args any
		want string
		ok   bool
	}{
		{args: 5, want: "5", ok: true},
		{args: int64(6), want: "6", ok: true},
		{args: "abc", want: "abc", ok: true},
		{args: "", ok: false},
		{args: 1.5, ok: false},
		{args: UpdateEventArgs{ID: 9}, want: "9", ok: true},
		{args: ptr(5), want: "5", ok: true},
		{args: ptr(int64(6)), want: "6", ok: true},
		{args: ptr("abc"), want: "abc", ok: true},
		{args: (*int)(nil), ok: false},
		{args: (*string)(nil), ok: false},
	}

	for _, tt := range tests {
		got, ok := entityID(tt.args)
		assert.Equal(t, tt.ok, ok, "%v", tt.args)
		assert.Equal(t, tt.want, got, "%v", tt.args)
	}
}
