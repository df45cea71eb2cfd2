/*
Package monitoring provides Prometheus metrics for the automation server.

Collectors are registered against an explicit prometheus.Registerer so
tests can use a private registry. All recording methods accept a nil
receiver.

# Usage

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	router.Use(monitoring.Middleware(metrics))

	timer := monitoring.NewTimer(metrics, "Page.navigate")
	// ... dispatch ...
	timer.Stop("")

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
