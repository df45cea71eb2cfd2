/*
Package target tracks tabs as automation targets.

Every tab the engine reports becomes a page target with a stable id
("target-page-1", "target-page-2", ...) assigned in creation order and
never reused. The browser itself is the permanent "target-browser".

Lifecycle notifications are delivered through typed subscriptions:

	unsubscribe := registry.OnTargetDestroyed(func(t target.Target) {
		// the target is still resolvable here
	})

Notifications are serialized with the lifecycle change that caused them.
A listener that panics is logged and skipped.
*/
package target
