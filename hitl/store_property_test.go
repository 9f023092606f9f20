package hitl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// 任意 Create / Resolve / Cancel 序列之后，ListPending 恰好返回
// 尚未终结的请求，且保持创建顺序。
func TestProperty_PendingSetMatchesModel(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		store := NewMemoryStore()
		defer store.Close()

		model := []string{}
		terminal := make(map[string]bool)
		var all []string

		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			op := rapid.IntRange(0, 2).Draw(rt, "op")
			switch {
			case op == 0 || len(all) == 0:
				kind := rapid.SampledFrom([]Kind{KindTextInput, KindLogin, KindConfirmation, KindSelection, "x"}).Draw(rt, "kind")
				id, err := store.Create(ctx, CreateOptions{Kind: kind, Prompt: "p"})
				require.NoError(rt, err)
				model = append(model, id)
				all = append(all, id)
			default:
				id := rapid.SampledFrom(all).Draw(rt, "target")
				var err error
				if op == 1 {
					_, err = store.Resolve(ctx, id, "v")
				} else {
					_, err = store.Cancel(ctx, id)
				}
				if terminal[id] {
					assert.ErrorIs(rt, err, ErrNotFound)
					continue
				}
				require.NoError(rt, err)
				terminal[id] = true
				model = removeID(model, id)
			}
		}

		pending, err := store.ListPending(ctx)
		require.NoError(rt, err)
		got := make([]string, 0, len(pending))
		for i, req := range pending {
			got = append(got, req.ID)
			assert.Equal(rt, StatusPending, req.Status)
			if i > 0 {
				assert.Less(rt, pending[i-1].Sequence, req.Sequence)
			}
		}
		assert.Equal(rt, model, got)
	})
}

func removeID(ids []string, target string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
