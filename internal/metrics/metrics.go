package metrics

import (
	"fmt"

	"contrib.go.opencensus.io/exporter/stackdriver"
	"github.com/mcmetrics/plugin-tracker/internal/config"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	CounterPluginCreates = stats.Int64("plugin_creates", "Number of created plugins", "1")
	CounterUpdateAppends = stats.Int64("update_appends", "Number of appended plugin updates", "1")
	CounterCacheHit      = stats.Int64("cache_hits", "Number of cache hits", "1")
	CounterCacheMiss     = stats.Int64("cache_misses", "Number of cache misses", "1")

	TagVariant  = tag.MustNewKey("variant")
	TagCacheKey = tag.MustNewKey("cache_key")
)

var views = []*view.View{
	{
		Name:        "plugin_creates",
		Measure:     CounterPluginCreates,
		Description: "Number of created plugins",
		TagKeys:     []tag.Key{TagVariant},
		Aggregation: view.Count(),
	},
	{
		Name:        "update_appends",
		Measure:     CounterUpdateAppends,
		Description: "Number of appended plugin updates",
		Aggregation: view.Count(),
	},
	{
		Name:        "cache_hits",
		Measure:     CounterCacheHit,
		Description: "Number of cache hits",
		Aggregation: view.Count(),
	},
	{
		Name:        "cache_misses",
		Measure:     CounterCacheMiss,
		Description: "Number of cache misses",
		Aggregation: view.Count(),
	},
}

func NewExporter(cfg *config.ServerConfig) (*stackdriver.Exporter, error) {
	err := view.Register(views...)
	if err != nil {
		return nil, err
	}
	exporter, err := stackdriver.NewExporter(stackdriver.Options{
		ProjectID:    cfg.ProjectID,
		MetricPrefix: fmt.Sprintf("plugin-tracker/%s", cfg.Stage),
	})
	if err != nil {
		return nil, err
	}
	err = exporter.StartMetricsExporter()
	if err != nil {
		return nil, err
	}
	return exporter, nil
}
