package walker

import (
	"reflect"
	"testing"

	"github.com/forestmonster/rsmf-browser/model"
)

func TestDiscoverChannels(t *testing.T) {
	tests := []struct {
		name         string
		entries      []string
		wantChannels []model.Channel
		wantPeriods  []string
	}{
		{
			name: "distinct periods in first-seen order",
			entries: []string{
				"export/Channels - general/a.rsmf",
				"export/Channels - general/b.rsmf",
				"export/Channels - random/c.rsmf",
			},
			wantChannels: []model.Channel{
				{ID: "general", Name: "general"},
				{ID: "random", Name: "random"},
			},
			wantPeriods: []string{"Channels - general", "Channels - random"},
		},
		{
			name:         "no matching segments",
			entries:      []string{"readme.txt", "users/index.json"},
			wantChannels: []model.Channel{},
			wantPeriods:  nil,
		},
		{
			name: "non-rsmf entries still contribute periods",
			entries: []string{
				"Channels - ops/notes.txt",
			},
			wantChannels: []model.Channel{{ID: "ops", Name: "ops"}},
			wantPeriods:  []string{"Channels - ops"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			channels, periods := DiscoverChannels(tt.entries)
			if !reflect.DeepEqual(channels, tt.wantChannels) {
				t.Errorf("channels = %v, want %v", channels, tt.wantChannels)
			}
			if !reflect.DeepEqual(periods, tt.wantPeriods) {
				t.Errorf("periods = %v, want %v", periods, tt.wantPeriods)
			}
		})
	}
}

func TestOwnerOf(t *testing.T) {
	periods := []string{"Channels - general", "Channels - random"}

	tests := []struct {
		entry string
		want  string
	}{
		{"export/Channels - general/a.rsmf", "general"},
		{"export/Channels - random/z.rsmf", "random"},
		{"loose.rsmf", ""},
	}

	for _, tt := range tests {
		if got := OwnerOf(tt.entry, periods); got != tt.want {
			t.Errorf("OwnerOf(%q) = %q, want %q", tt.entry, got, tt.want)
		}
	}
}
