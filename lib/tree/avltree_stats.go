package tree

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	AVLTreeStatsName = "xavl/avltree"
)

var (
	rotateLeftAttrs  = metric.WithAttributeSet(attribute.NewSet(attribute.String("avltree.rotation.dir", "left")))
	rotateRightAttrs = metric.WithAttributeSet(attribute.NewSet(attribute.String("avltree.rotation.dir", "right")))
)

// avlTreeStats methods are nil receiver safe.
// The size is mirrored into an atomic because the observable gauge
// callback runs on the metric reader's goroutine.
type avlTreeStats struct {
	size           atomic.Int64
	insertCount    metric.Int64Counter
	removeCount    metric.Int64Counter
	rotationCount  metric.Int64Counter
	rebalanceDepth metric.Int64Histogram
	sizeGauge      metric.Int64ObservableGauge
}

func (stats *avlTreeStats) IncreaseInsertCount(size int64) {
	if stats == nil {
		return
	}
	stats.insertCount.Add(context.Background(), 1)
	stats.size.Store(size)
}

func (stats *avlTreeStats) IncreaseRemoveCount(size int64) {
	if stats == nil {
		return
	}
	stats.removeCount.Add(context.Background(), 1)
	stats.size.Store(size)
}

func (stats *avlTreeStats) IncreaseRotationCount(dir AVLDirection) {
	if stats == nil {
		return
	}
	switch dir {
	case Left:
		stats.rotationCount.Add(context.Background(), 1, rotateLeftAttrs)
	case Right:
		stats.rotationCount.Add(context.Background(), 1, rotateRightAttrs)
	default:
	}
}

func (stats *avlTreeStats) RecordRebalanceDepth(depth int64) {
	if stats == nil {
		return
	}
	stats.rebalanceDepth.Record(context.Background(), depth)
}

func (stats *avlTreeStats) RecordSize(size int64) {
	if stats == nil {
		return
	}
	stats.size.Store(size)
}

func newAVLTreeStats(name string) *avlTreeStats {
	meterName := fmt.Sprintf("%s/%s", AVLTreeStatsName, name)
	stats := &avlTreeStats{
		insertCount: lo.Must[metric.Int64Counter](otel.Meter(meterName).
			Int64Counter(
				"avltree.insert.count",
				metric.WithDescription("The number of new keys inserted into the avl tree."),
			),
		),
		removeCount: lo.Must[metric.Int64Counter](otel.Meter(meterName).
			Int64Counter(
				"avltree.remove.count",
				metric.WithDescription("The number of keys removed from the avl tree."),
			),
		),
		rotationCount: lo.Must[metric.Int64Counter](otel.Meter(meterName).
			Int64Counter(
				"avltree.rotation.count",
				metric.WithDescription("The number of single rotations done by the avl tree rebalance."),
			),
		),
		rebalanceDepth: lo.Must[metric.Int64Histogram](otel.Meter(meterName).
			Int64Histogram(
				"avltree.rebalance.depth",
				metric.WithDescription("The number of ancestor levels visited by one rebalance."),
				metric.WithExplicitBucketBoundaries(0, 1, 2, 4, 8, 16, 32, 64),
			),
		),
	}
	stats.sizeGauge = lo.Must[metric.Int64ObservableGauge](otel.Meter(meterName).
		Int64ObservableGauge(
			"avltree.size",
			metric.WithDescription("The number of keys in the avl tree."),
			metric.WithInt64Callback(func(ctx context.Context, ob metric.Int64Observer) error {
				ob.Observe(stats.size.Load())
				return nil
			}),
		),
	)
	return stats
}
