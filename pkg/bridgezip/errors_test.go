package bridgezip_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ravi-parthasarathy/bridgezip/pkg/bridgezip"
)

func TestErrorText(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{bridgezip.ErrEmptyData, "Error: empty data"},
		{fmt.Errorf("decompress: %w", bridgezip.ErrEmptyData), "Error: decompress: empty data"},
	}
	for _, tt := range tests {
		if got := bridgezip.ErrorText(tt.err); got != tt.want {
			t.Errorf("ErrorText(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestText(t *testing.T) {
	if got := bridgezip.Text("W:none", nil); got != "W:none" {
		t.Errorf("Text = %q", got)
	}
	got := bridgezip.Text("ignored", errors.New("boom"))
	if got != "Error: boom" {
		t.Errorf("Text = %q", got)
	}
	if !bridgezip.IsErrorText(got) {
		t.Error("IsErrorText should be true for flattened errors")
	}
	if bridgezip.IsErrorText("W:none|r:0") {
		t.Error("IsErrorText should be false for documents")
	}
}
