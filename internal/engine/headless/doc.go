// Package headless is an in-process engine.Engine.
//
// Pages are fetched over HTTP, parsed into a DOM and scripted with an
// embedded JavaScript runtime. There is no layout or painting: viewport
// sizes are tracked but never affect the document, and screenshots are
// blank canvases of the requested geometry.
//
// Components:
//   - Partition store: one directory per partition under the profile
//     directory, described by a partition.toml file
//   - Cookie and permission stores, per partition, in memory
//   - Loader: resty-based fetcher that reports every exchange to channel
//     observers and honors Suspend/Resume/Cancel
//   - Content: one worker per tab that owns the document and its script
//     runtime and answers content-session messages
//
// Example Usage:
//
//	eng, err := headless.New(headless.DefaultConfig(), logger)
//	if err != nil {
//		return err
//	}
//	defer eng.Quit()
//	tab, err := eng.OpenTab(ctx, engine.DefaultPartition)
package headless
