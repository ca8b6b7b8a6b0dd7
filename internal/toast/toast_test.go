package toast_test

import (
	"fmt"
	"testing"

	"storefront-sync/internal/toast"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_KeepsNewestFirst(t *testing.T) {
	r := toast.NewRing(3)
	var heard []string
	r.OnToast(func(t toast.Toast) { heard = append(heard, t.Message) })

	for i := 1; i <= 5; i++ {
		r.Toast(toast.KindError, fmt.Sprintf("m%d", i))
	}

	got := r.Recent()
	require.Len(t, got, 3)
	assert.Equal(t, "m5", got[0].Message)
	assert.Equal(t, "m3", got[2].Message)
	assert.Len(t, heard, 5)
}
