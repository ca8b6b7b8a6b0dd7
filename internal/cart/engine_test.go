package cart_test

import (
	"sync"
	"testing"
	"time"

	"storefront-sync/internal/cart"
	"storefront-sync/internal/kvstore"
	"storefront-sync/internal/kvstore/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTab(t *testing.T, p *memory.Profile) (*cart.Engine, *kvstore.Adapter) {
	t.Helper()
	store, err := kvstore.New(p.Open(), zap.NewNop())
	require.NoError(t, err)
	e := cart.NewEngine(store, zap.NewNop())
	t.Cleanup(func() {
		e.Close()
		_ = store.Close()
	})
	return e, store
}

func TestEngine_PersistsBothKeys(t *testing.T) {
	p := memory.NewProfile()
	e, _ := openTab(t, p)

	e.AddItem(item("1", "V1", 100), 2)

	raw, ok := p.Raw(cart.KeyVendor)
	require.True(t, ok)
	assert.JSONEq(t, `"V1"`, string(raw))
	_, ok = p.Raw(cart.KeyLines)
	require.True(t, ok)

	// a fresh context restores the same cart
	reopened, _ := openTab(t, p)
	got := reopened.State()
	assert.Equal(t, "V1", got.VendorID)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, 2, got.Lines[0].Qty)
	assert.False(t, got.DrawerOpen)

	e.Clear()
	_, ok = p.Raw(cart.KeyVendor)
	assert.False(t, ok, "clear releases the vendor lock")
	raw, _ = p.Raw(cart.KeyLines)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestEngine_CorruptKeysRecoverIndependently(t *testing.T) {
	p := memory.NewProfile()
	raw := p.Open()
	require.NoError(t, raw.Save(t.Context(), cart.KeyLines, []byte(`{"broken`)))
	require.NoError(t, raw.Save(t.Context(), cart.KeyVendor, []byte(`"V9"`)))

	e, _ := openTab(t, p)
	s := e.State()
	assert.Empty(t, s.Lines)
	assert.Equal(t, "V9", s.VendorID)

	// a valid item from another vendor still wins over the stale lock
	e.AddItem(item("1", "V1", 10), 1)
	assert.Equal(t, "V1", e.VendorID())
}

func TestEngine_LinesOverrideMismatchedLock(t *testing.T) {
	p := memory.NewProfile()
	raw := p.Open()
	require.NoError(t, raw.Save(t.Context(), cart.KeyLines,
		[]byte(`[{"id":"1","name":"a","price":"5","qty":2,"vendorId":"V1"},{"id":"2","name":"b","price":"1","qty":0,"vendorId":"V1"}]`)))
	require.NoError(t, raw.Save(t.Context(), cart.KeyVendor, []byte(`"V2"`)))

	e, _ := openTab(t, p)
	s := e.State()
	assert.Equal(t, "V1", s.VendorID)
	require.Len(t, s.Lines, 1, "zero quantity lines are dropped")
	assert.Equal(t, 10, int(e.Subtotal().IntPart()))
}

func TestEngine_CrossContextConvergence(t *testing.T) {
	p := memory.NewProfile()
	tabA, _ := openTab(t, p)
	tabB, _ := openTab(t, p)

	var seen []cart.State
	unsubscribe := tabB.Subscribe(func(s cart.State) { seen = append(seen, s) })
	defer unsubscribe()

	tabA.AddItem(item("1", "V1", 100), 1)
	tabA.AddItem(item("2", "V1", 30), 2)
	tabA.SetQty("1", 3)

	persisted, _ := openTab(t, p)
	want := persisted.State()
	got := tabB.State()
	assert.Equal(t, want.VendorID, got.VendorID)
	assert.Equal(t, len(want.Lines), len(got.Lines))
	for i := range want.Lines {
		assert.Equal(t, want.Lines[i].ID, got.Lines[i].ID)
		assert.Equal(t, want.Lines[i].Qty, got.Lines[i].Qty)
		assert.True(t, want.Lines[i].Price.Equal(got.Lines[i].Price))
	}
	assert.NotEmpty(t, seen)
	assert.False(t, got.DrawerOpen, "drawer is per context")

	tabA.AddItem(item("3", "V2", 50), 1)
	assert.Equal(t, "V2", tabB.VendorID())
	assert.Equal(t, 1, tabB.TotalQty())

	tabA.Clear()
	assert.Empty(t, tabB.State().Lines)
	assert.Empty(t, tabB.VendorID())
}

func TestEngine_ExternalCorruptWriteEmptiesCart(t *testing.T) {
	p := memory.NewProfile()
	e, _ := openTab(t, p)
	e.AddItem(item("1", "V1", 10), 1)

	other := p.Open()
	require.NoError(t, other.Watch(func(kvstore.Change) {}))
	require.NoError(t, other.Save(t.Context(), cart.KeyLines, []byte(`not json`)))

	assert.Empty(t, e.State().Lines)
}

func TestEngine_SubscribeAndUnsubscribe(t *testing.T) {
	p := memory.NewProfile()
	e, _ := openTab(t, p)

	calls := 0
	unsubscribe := e.Subscribe(func(cart.State) { calls++ })
	e.AddItem(item("1", "V1", 10), 1)
	e.RemoveItem("missing")
	e.SetDrawerOpen(false)
	unsubscribe()
	unsubscribe()
	e.AddItem(item("1", "V1", 10), 1)

	assert.Equal(t, 2, calls)
}

func TestEngine_CheckoutDraft(t *testing.T) {
	p := memory.NewProfile()
	e, _ := openTab(t, p)

	_, err := e.CheckoutDraft()
	require.ErrorIs(t, err, cart.ErrEmptyCart)

	e.AddItem(item("1", "V1", 12), 2)
	d, err := e.CheckoutDraft()
	require.NoError(t, err)
	assert.Equal(t, "V1", d.VendorID)
	assert.Equal(t, "24", d.Subtotal.String())
}

func TestEngine_ConcurrentWritesFromTwoTabs(t *testing.T) {
	p := memory.NewProfile()
	a, _ := openTab(t, p)
	b, _ := openTab(t, p)

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for _, e := range []*cart.Engine{a, b} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 2000 {
					e.AddItem(item("1", "V1", 10), 1)
				}
			}()
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("AddItem on two tabs of one profile did not return")
	}
	for _, e := range []*cart.Engine{a, b} {
		s := e.State()
		require.Len(t, s.Lines, 1)
		assert.Equal(t, "V1", s.VendorID)
	}
}
