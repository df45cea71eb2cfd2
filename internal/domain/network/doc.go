/*
Package network sequences HTTP activity into protocol events.

The engine reports each exchange through independent callbacks (headers
final, response examined, transaction closed, redirect) that are not
ordered relative to each other. A Sequencer buffers what it learns per
request and emits

	requestWillBeSent -> responseReceived -> requestFinished | requestFailed

strictly in that order, each stage at most once. requestFailed may follow
either of the first two stages. Records are dropped on a terminal stage.

Interception holds every new request after its headers are captured and
reports it with suspended set. Held requests are released with Resume or
cancelled with Abort, which also reports a synthetic requestFailed.
Several connections intercepting the same tab each hold the request;
channel suspension nests.

One process-wide Observer fans engine callbacks out to sequencers by tab.
Callback panics are logged and swallowed at the Observer.
*/
package network
