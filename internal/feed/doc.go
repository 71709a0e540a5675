// Package feed maintains the relay's single upstream websocket connection.
//
// This package is internal to danmurelay. The [Client] dials the upstream
// event feed, stores every inbound frame in a [store.Store] (last write wins)
// and reconnects forever after a fixed delay whenever the connection fails.
// Upstream failures never propagate: they are reported through a
// [fault.Hook] and logged.
//
// During an outage the store keeps the last frame received, so readers keep
// serving stale-but-available data.
package feed
