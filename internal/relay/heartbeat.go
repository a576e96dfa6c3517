package relay

// ensureHeartbeat lazily starts the 25s ticker on the first tracked
// socket. Must be called from inside the event's actor.
func (e *Event) ensureHeartbeat() {
	if e.heartbeat != nil {
		return
	}
	e.heartbeat = newTicker(heartbeatInterval)
	e.hbStop = make(chan struct{})
	ticker, stop := e.heartbeat, e.hbStop
	go func() {
		for {
			select {
			case <-ticker.C:
				e.post(func() { e.tick() })
			case <-stop:
				return
			}
		}
	}()
}

func (e *Event) tick() {
	t := e.now().Unix()
	frame := hbFrame(t)
	for s := range e.meta {
		if err := s.Send(frame); err != nil {
			e.remove(s)
		}
	}
}

// maybeStopHeartbeat stops the ticker once no sockets remain.
func (e *Event) maybeStopHeartbeat() {
	if e.heartbeat == nil || len(e.meta) > 0 {
		return
	}
	e.heartbeat.Stop()
	close(e.hbStop)
	e.heartbeat = nil
	e.hbStop = nil
}
