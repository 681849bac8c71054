package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/kshedden/mipool/evaluate"
	"github.com/kshedden/mipool/pipeline"
	"github.com/kshedden/mipool/pool"
	"github.com/kshedden/mipool/trial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(t *testing.T, id string, created time.Time) *pipeline.Result {

	tbl, err := trial.NewTable([]string{"id"}, [][]float64{{1, 2, 3}})
	require.NoError(t, err)

	return &pipeline.Result{
		RunID:    id,
		Seed:     math.MaxUint64 - 1,
		Created:  created,
		Prepared: tbl,
		Imputed:  []*trial.Table{tbl, tbl, tbl},
		Models: []*pipeline.ModelResult{
			{
				Name:   pipeline.Lasso,
				Pooled: []int{0, 2},
				Estimates: []pool.Estimate{
					{Predictor: "nmr", Mean: -0.4, SE: 0.1},
					{Predictor: "bdi", Mean: 0, SE: 0},
					{Predictor: "age", Mean: math.NaN(), SE: math.NaN()},
				},
				Discrimination: &evaluate.Discrimination{AUC: []float64{0.71, 0.69}},
			},
		},
	}
}

func TestSaveAndLoad(t *testing.T) {

	ctx := context.Background()
	st, err := Open(filepath.Join(t.TempDir(), "out", "runs.db"))
	require.NoError(t, err)
	defer st.Close()

	t0 := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, st.Save(ctx, result(t, "b", t0.Add(time.Hour))))
	require.NoError(t, st.Save(ctx, result(t, "a", t0)))

	runs, err := st.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "a", runs[0].ID)
	assert.True(t, runs[0].Created.Equal(t0))
	assert.Equal(t, uint64(math.MaxUint64-1), runs[0].Seed)
	assert.Equal(t, 3, runs[0].NumRows)
	assert.Equal(t, 3, runs[0].M)

	est, err := st.Estimates(ctx, "a", pipeline.Lasso)
	require.NoError(t, err)
	require.Len(t, est, 3)
	assert.Equal(t, "nmr", est[0].Predictor)
	assert.Equal(t, -0.4, est[0].Mean)
	assert.Equal(t, 0.0, est[1].SE)
	assert.True(t, math.IsNaN(est[2].Mean))

	auc, err := st.AUC(ctx, "a", pipeline.Lasso)
	require.NoError(t, err)
	assert.Equal(t, map[int]float64{0: 0.71, 2: 0.69}, auc)

	est, err = st.Estimates(ctx, "a", pipeline.Subset)
	require.NoError(t, err)
	assert.Empty(t, est)
}

func TestSaveDuplicate(t *testing.T) {

	ctx := context.Background()
	st, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer st.Close()

	r := result(t, "a", time.Now())
	require.NoError(t, st.Save(ctx, r))
	assert.Error(t, st.Save(ctx, r))

	// The failed save left nothing behind
	runs, err := st.Runs(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
