package relay

import "time"

// afterFunc is time.AfterFunc by default; tests replace it to collapse the
// real-time delay out of grace/heartbeat scenarios.
var afterFunc = time.AfterFunc

// newTicker is time.NewTicker by default; tests replace it the same way.
var newTicker = time.NewTicker
