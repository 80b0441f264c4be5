package checkpoint_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/rewind/pkg/checkpoint"
)

var retentionNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestRetentionPlan_Unlimited(t *testing.T) {
	t.Parallel()

	g := checkpoint.NewGraph([]*checkpoint.Checkpoint{
		node("old", checkpoint.KindFull, "", 1000*time.Hour),
	})

	plan := checkpoint.RetentionPolicy{}.Plan(g, retentionNow, nil)
	assert.Empty(t, plan.Evict)
	assert.Empty(t, plan.Protected)
}

func TestRetentionPlan_AgeAndCount(t *testing.T) {
	t.Parallel()

	g := checkpoint.NewGraph([]*checkpoint.Checkpoint{
		node("f1", checkpoint.KindFull, "", 5*time.Hour),
		node("f2", checkpoint.KindFull, "", 4*time.Hour),
		node("f3", checkpoint.KindFull, "", 3*time.Hour),
		node("f4", checkpoint.KindFull, "", 2*time.Hour),
	})

	byAge := checkpoint.RetentionPolicy{MaxAge: 150 * time.Minute}.Plan(g, retentionNow, nil)
	assert.Equal(t, []string{"f1", "f2", "f3"}, byAge.Evict)

	byCount := checkpoint.RetentionPolicy{MaxCheckpoints: 3}.Plan(g, retentionNow, nil)
	assert.Equal(t, []string{"f1"}, byCount.Evict)
}

func TestRetentionPlan_ProtectsChains(t *testing.T) {
	t.Parallel()

	g := checkpoint.NewGraph([]*checkpoint.Checkpoint{
		node("full", checkpoint.KindFull, "", 4*time.Hour),
		node("inc1", checkpoint.KindIncremental, "full", 3*time.Hour),
		node("inc2", checkpoint.KindIncremental, "inc1", 2*time.Hour),
		node("other", checkpoint.KindFull, "", 5*time.Hour),
	})

	plan := checkpoint.RetentionPolicy{MaxCheckpoints: 1}.Plan(g, retentionNow, nil)
	assert.Equal(t, []string{"other"}, plan.Evict)
	assert.Equal(t, []string{"full", "inc1"}, plan.Protected)
}

func TestRetentionPlan_Pinned(t *testing.T) {
	t.Parallel()

	g := checkpoint.NewGraph([]*checkpoint.Checkpoint{
		node("target", checkpoint.KindFull, "", 10*time.Hour),
		node("backup", checkpoint.KindFull, "", 0),
	})

	plan := checkpoint.RetentionPolicy{MaxCheckpoints: 1}.Plan(g, retentionNow, []string{"target"})
	assert.Empty(t, plan.Evict)
	assert.Equal(t, []string{"target"}, plan.Protected)
}
