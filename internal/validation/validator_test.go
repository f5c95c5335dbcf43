// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package validation

import (
	"strings"
	"testing"
)

type sample struct {
	Limit    int    `validate:"min=1,max=1000"`
	Provider string `validate:"oneof=drive s3 local"`
	Name     string `validate:"required"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		in        sample
		wantErr   bool
		wantField string
		wantMsg   string
	}{
		{"valid", sample{Limit: 10, Provider: "s3", Name: "x"}, false, "", ""},
		{"limit too low", sample{Limit: 0, Provider: "s3", Name: "x"}, true, "sample.Limit", "must be at least 1"},
		{"limit too high", sample{Limit: 5000, Provider: "s3", Name: "x"}, true, "sample.Limit", "must be at most 1000"},
		{"bad provider", sample{Limit: 1, Provider: "ftp", Name: "x"}, true, "sample.Provider", "must be one of: drive s3 local"},
		{"missing name", sample{Limit: 1, Provider: "drive"}, true, "sample.Name", "is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.in)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if len(err.Fields) != 1 {
				t.Fatalf("expected 1 field error, got %d", len(err.Fields))
			}
			if err.Fields[0].Field != tt.wantField {
				t.Errorf("field = %q, want %q", err.Fields[0].Field, tt.wantField)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("message %q does not contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}
