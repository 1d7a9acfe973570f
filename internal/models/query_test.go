package models

import (
	"testing"
)

func TestRetrieveQuery_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   *RetrieveQuery
		wantErr bool
	}{
		{"empty query", &RetrieveQuery{Query: ""}, true},
		{"valid query", &RetrieveQuery{Query: "hello"}, false},
		{"sets default limit", &RetrieveQuery{Query: "x", Limit: 0}, false},
		{"caps limit at 100", &RetrieveQuery{Query: "x", Limit: 200}, false},
		{"min score out of range", &RetrieveQuery{Query: "x", MinScore: ptr(1.5)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate(5)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				if tt.query.Limit == 0 {
					t.Error("expected default limit to be set")
				}
				if tt.query.Limit > 100 {
					t.Errorf("expected limit capped at 100, got %d", tt.query.Limit)
				}
			}
		})
	}
}
