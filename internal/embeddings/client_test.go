package embeddings

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestBatchRanges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n, size int
		want    [][2]int
	}{
		{0, 4, nil},
		{3, 4, [][2]int{{0, 3}}},
		{4, 4, [][2]int{{0, 4}}},
		{9, 4, [][2]int{{0, 4}, {4, 8}, {8, 9}}},
	}
	for _, tt := range tests {
		got := batchRanges(tt.n, tt.size)
		if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("batchRanges(%d, %d) mismatch (-want +got):\n%s", tt.n, tt.size, diff)
		}
	}
}
