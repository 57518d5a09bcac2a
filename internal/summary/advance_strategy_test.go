package summary

import (
	"testing"

	"locagest/internal/core"
)

func TestFieldStrategy_Settle(t *testing.T) {
	strategy := FieldStrategy{}

	tests := []struct {
		name        string
		advance     core.Money
		itemized    core.Money
		wantAdvance core.Money
		wantPaid    core.Money
	}{
		{
			name:        "advance only",
			advance:     cents(400),
			itemized:    core.Money{},
			wantAdvance: cents(400),
			wantPaid:    cents(400),
		},
		{
			name:        "itemized payments supersede a smaller advance",
			advance:     cents(400),
			itemized:    cents(700),
			wantAdvance: cents(400),
			wantPaid:    cents(700),
		},
		{
			name:        "advance kept when larger than itemized",
			advance:     cents(400),
			itemized:    cents(100),
			wantAdvance: cents(400),
			wantPaid:    cents(400),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			advance, paid := strategy.Settle(core.Contract{AdvancePayment: tt.advance}, tt.itemized)
			if advance != tt.wantAdvance || paid != tt.wantPaid {
				t.Errorf("FieldStrategy.Settle() = (%s, %s), want (%s, %s)", advance, paid, tt.wantAdvance, tt.wantPaid)
			}
		})
	}
}

func TestPaymentsStrategy_Settle(t *testing.T) {
	advance, paid := PaymentsStrategy{}.Settle(core.Contract{AdvancePayment: cents(999)}, cents(120))
	if advance != cents(120) || paid != cents(120) {
		t.Errorf("PaymentsStrategy.Settle() = (%s, %s), want (120.00, 120.00)", advance, paid)
	}
}

func TestGetAdvanceStrategy(t *testing.T) {
	tests := []struct {
		mode    AdvanceMode
		want    AdvanceStrategy
		wantErr bool
	}{
		{AdvanceFromField, FieldStrategy{}, false},
		{AdvanceFromPayments, PaymentsStrategy{}, false},
		{"", FieldStrategy{}, false},
		{"both", nil, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			got, err := GetAdvanceStrategy(tt.mode)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetAdvanceStrategy(%q) error = %v, wantErr %v", tt.mode, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("GetAdvanceStrategy(%q) = %T, want %T", tt.mode, got, tt.want)
			}
		})
	}
}

func TestParseAdvanceMode(t *testing.T) {
	cases := map[string]AdvanceMode{
		"":          AdvanceFromField,
		"field":     AdvanceFromField,
		" PAYMENTS": AdvanceFromPayments,
	}
	for in, want := range cases {
		got, err := ParseAdvanceMode(in)
		if err != nil || got != want {
			t.Errorf("ParseAdvanceMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseAdvanceMode("shape"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
