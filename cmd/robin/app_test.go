package main

import "testing"

func TestParseRoster(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		want    int
		wantErr bool
	}{
		{
			name:    "valid entries",
			entries: []string{"Ahmia|http://ahmia.example/search?q=%s", "Torch|http://torch.example/?q=%s"},
			want:    2,
		},
		{
			name:    "empty roster",
			entries: nil,
			want:    0,
		},
		{
			name:    "missing separator",
			entries: []string{"Ahmia http://ahmia.example/?q=%s"},
			wantErr: true,
		},
		{
			name:    "missing placeholder",
			entries: []string{"Ahmia|http://ahmia.example/search"},
			wantErr: true,
		},
		{
			name:    "empty name",
			entries: []string{"|http://ahmia.example/?q=%s"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roster, err := parseRoster(tt.entries)
			if tt.wantErr {
				if err == nil {
					t.Fatal("parseRoster() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRoster() error = %v", err)
			}
			if len(roster) != tt.want {
				t.Errorf("len(roster) = %d, want %d", len(roster), tt.want)
			}
		})
	}
}

func TestParseRosterPreservesOrder(t *testing.T) {
	roster, err := parseRoster([]string{"B|http://b.example/?q=%s", "A|http://a.example/?q=%s"})
	if err != nil {
		t.Fatalf("parseRoster() error = %v", err)
	}
	if roster[0].Name != "B" || roster[1].Name != "A" {
		t.Errorf("roster order = [%s %s], want [B A]", roster[0].Name, roster[1].Name)
	}
}
