package relay

import "github.com/lumacast/relay/internal/signing"

func (e *Event) handlePCAuth(s Socket, in Frame) {
	if !ValidEventID(in.PCID) {
		_ = s.Send(pcErrFrame("E_BAD_FIELD"))
		return
	}

	path := in.Path
	if path == "" {
		path = "/e/" + e.id + "/ws"
	}

	req := signing.Request{
		Op:          signing.OpWSAuth,
		Path:        path,
		PayloadHash: in.PayloadHash,
		Iat:         in.Iat,
		Nonce:       in.Nonce,
		Sig:         in.Sig,
	}

	if verr := e.verifier.Verify(e.id, req); verr != nil {
		if verr.Kind == signing.KindNonceReplay {
			e.nonceReplay()
		}
		if verr.Kind == signing.KindClockSkew {
			_ = s.Send(pcErrSkewFrame(string(verr.Kind), verr.ServerTime))
		} else {
			_ = s.Send(pcErrFrame(string(verr.Kind)))
		}
		return
	}

	// A socket re-authing under the same pcid just refreshes its binding;
	// anything else (a mobile switching role, a pc switching pcid) must
	// leave its old index entry first or the presence maps go stale.
	prev := e.meta[s]
	rebind := prev != nil && prev.role == RolePC && prev.pcid == in.PCID
	if prev != nil && prev.role != "" && !rebind {
		e.detach(s, prev)
	}

	e.pcBySocket[in.PCID] = s
	e.meta[s] = &socketMeta{role: RolePC, pcid: in.PCID, lastSeen: e.now()}
	if !rebind {
		e.socketConnected(RolePC)
	}
	if t, ok := e.graceTimers[in.PCID]; ok {
		t.Stop()
		delete(e.graceTimers, in.PCID)
	}

	e.broadcastToPC(in.PCID, "pc-online", nil)
	_ = s.Send(pcAckFrame())
}

func (e *Event) handleJoin(s Socket, in Frame) {
	if !ValidSID(in.SID) {
		_ = s.Send(errFrame("E_BAD_SID"))
		return
	}

	entry, ok := e.sids.Get(e.id, in.SID)
	if !ok || entry.PCID == "" {
		_ = s.Send(errFrame("E_BAD_SID"))
		return
	}

	prev := e.meta[s]
	rejoin := prev != nil && prev.role == RoleMobile && prev.sid == in.SID
	if prev != nil && prev.role != "" && !rejoin {
		e.detach(s, prev)
	}

	e.meta[s] = &socketMeta{
		role:     RoleMobile,
		pcid:     entry.PCID,
		sid:      in.SID,
		imageID:  in.ImageID,
		lastSeen: e.now(),
	}
	if e.mobilesBySid[in.SID] == nil {
		e.mobilesBySid[in.SID] = make(map[Socket]bool)
	}
	e.mobilesBySid[in.SID][s] = true
	e.sids.MarkClaimed(e.id, in.SID)
	if !rejoin {
		e.socketConnected(RoleMobile)
	}

	_ = s.Send(ackFrame())

	if pc, ok := e.pcBySocket[entry.PCID]; ok {
		_ = pc.Send(previewReqFrame(in.SID, in.ImageID))
	}
}

func (e *Event) handleCmd(s Socket, in Frame) {
	m, ok := e.meta[s]
	if !ok || m.role != RoleMobile {
		return
	}
	pc, ok := e.pcBySocket[m.pcid]
	if !ok {
		return
	}
	if err := pc.Send(cmdFrame(m.sid, outPayload(in))); err != nil {
		e.remove(pc)
		return
	}
	e.frameForwarded("cmd")
}

func (e *Event) handleEvt(s Socket, in Frame) {
	m, ok := e.meta[s]
	if !ok || m.role != RolePC {
		return
	}
	set, ok := e.mobilesBySid[in.SID]
	if !ok || len(set) == 0 {
		return
	}
	frame := evtFrame(in.SID, in.Evt, in.Data)
	for mobile := range set {
		if err := mobile.Send(frame); err != nil {
			e.remove(mobile)
			continue
		}
		e.frameForwarded("evt")
	}
}
