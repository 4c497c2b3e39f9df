// Package health reports whether the render service can take work.
//
// A Checker reports one component: the metadata store, the artifact
// directory, or the render queue. An Aggregator runs them together and folds
// the results into one Status; the gin handlers expose that as liveness,
// readiness, and detailed endpoints.
//
//	agg := health.NewAggregator()
//	agg.Register(health.NewPingChecker("metadata_store", metadataStore))
//	agg.Register(health.NewPingChecker("artifact_store", artifactStore))
//	agg.Register(health.NewRenderQueueChecker(coordinator.GuardMetrics, 16))
//
//	health.Register(router, agg)
package health
