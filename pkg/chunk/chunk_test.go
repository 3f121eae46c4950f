package chunk

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%03d", i)
	}
	return keys
}

func TestPartitionEmpty(t *testing.T) {
	assert.Nil(t, Partition(nil, 30))
	assert.Nil(t, Partition([]string{}, 30))
}

func TestPartitionAroundCap(t *testing.T) {
	cases := []struct {
		name   string
		count  int
		groups []int
	}{
		{"one below cap", 29, []int{29}},
		{"exactly at cap", 30, []int{30}},
		{"one above cap", 31, []int{30, 1}},
		{"two full groups", 60, []int{30, 30}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			groups := Partition(makeKeys(tc.count), 30)
			require.Len(t, groups, len(tc.groups))
			total := 0
			for i, group := range groups {
				assert.Len(t, group, tc.groups[i])
				total += len(group)
			}
			assert.Equal(t, tc.count, total)
		})
	}
}

func TestPartitionPreservesOrder(t *testing.T) {
	keys := makeKeys(7)
	groups := Partition(keys, 3)
	require.Len(t, groups, 3)
	flat := make([]string, 0, len(keys))
	for _, group := range groups {
		flat = append(flat, group...)
	}
	assert.Equal(t, keys, flat)
}

func TestPartitionInvalidSize(t *testing.T) {
	keys := makeKeys(5)
	groups := Partition(keys, 0)
	require.Len(t, groups, 1)
	assert.Equal(t, keys, groups[0])
}
