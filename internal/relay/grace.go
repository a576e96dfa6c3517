package relay

// startGrace begins the offline-grace countdown for pcid, replacing any
// timer already running for it. The timer callback runs on its own
// goroutine (time.AfterFunc) and re-enters the event through post, so it
// observes a consistent view of pcBySocket when it fires.
func (e *Event) startGrace(pcid string) {
	if t, ok := e.graceTimers[pcid]; ok {
		t.Stop()
	}
	e.graceTimers[pcid] = afterFunc(offlineGrace, func() {
		e.post(func() { e.fireGrace(pcid) })
	})
}

func (e *Event) fireGrace(pcid string) {
	delete(e.graceTimers, pcid)

	if _, reconnected := e.pcBySocket[pcid]; reconnected {
		return
	}

	for sid, set := range e.mobilesBySid {
		for s := range set {
			if e.meta[s] == nil || e.meta[s].pcid != pcid {
				continue
			}
			_ = s.Send(evtFrame(sid, "pc-timeout", nil))
			s.Close(1012, "pc-offline-timeout")
			e.remove(s)
		}
	}
}
