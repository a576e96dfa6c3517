package relay

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumacast/relay/internal/sidstore"
	"github.com/lumacast/relay/internal/signing"
)

// fakeSocket is an in-memory Socket used to drive the Event actor without
// a real network connection.
type fakeSocket struct {
	id string

	mu          sync.Mutex
	sent        []Frame
	closed      bool
	closeCode   int
	closeReason string
}

func newFakeSocket(id string) *fakeSocket { return &fakeSocket{id: id} }

func (f *fakeSocket) Send(frame any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fr, _ := frame.(Frame)
	f.sent = append(f.sent, fr)
	return nil
}

func (f *fakeSocket) Close(code int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCode = code
	f.closeReason = reason
}

func (f *fakeSocket) ID() string { return f.id }

func (f *fakeSocket) framesOfType(typ string) []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Frame
	for _, fr := range f.sent {
		if fr.Type == typ {
			out = append(out, fr)
		}
	}
	return out
}

func (f *fakeSocket) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeNonces struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeNonces() *fakeNonces { return &fakeNonces{seen: map[string]bool{}} }

func (f *fakeNonces) Claim(eventID, nonce string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := eventID + ":" + nonce
	if f.seen[key] {
		return false
	}
	f.seen[key] = true
	return true
}

func testEvent(t *testing.T, now int64) (*Event, *signing.Verifier) {
	t.Helper()
	verifier := signing.NewVerifier("s", 60, newFakeNonces(), func() int64 { return now })
	// The actor goroutine is left running; closing the mailbox would race
	// any timer or heartbeat callback still trying to post into it.
	e := newEvent("e1", verifier, sidstore.NewMemoryStore(), nil, discardLogger())
	return e, verifier
}

// flush blocks until every job already posted to e's mailbox has run,
// relying on the mailbox being a single FIFO channel.
func flush(e *Event) {
	e.do(func() {})
}

func pcAuthFrame(v *signing.Verifier, pcid, path, nonce string, iat int64) Frame {
	req := signing.Request{
		Op:          signing.OpWSAuth,
		Path:        path,
		PayloadHash: signing.EmptyBodyHash,
		Iat:         iat,
		Nonce:       nonce,
	}
	req.Sig = v.Sign(req)
	return Frame{
		V: 1, Type: "pc-auth", PCID: pcid, Path: path,
		Iat: iat, Nonce: nonce, Sig: req.Sig, PayloadHash: req.PayloadHash,
	}
}

func TestHappyPath_RegisterAuthJoinCmdEvt(t *testing.T) {
	e, v := testEvent(t, 1000)

	e.RegisterPC("pc1")
	require.NoError(t, e.PendingSID("pc1", "ABCDEFGHIJ", 60*time.Second))

	pc := newFakeSocket("pc-sock")
	e.Accept(pc)
	authBytes := marshalFrame(t, pcAuthFrame(v, "pc1", "/e/e1/ws", "n3", 1002))
	e.Dispatch(pc, authBytes)
	flush(e)

	require.Len(t, pc.framesOfType("pc-ack"), 1)

	mobile := newFakeSocket("mobile-sock")
	e.Accept(mobile)
	e.Dispatch(mobile, marshalFrame(t, Frame{V: 1, Type: "join", SID: "ABCDEFGHIJ"}))
	flush(e)

	acks := mobile.framesOfType("ack")
	require.Len(t, acks, 1)
	assert.True(t, acks[0].OK)

	previews := pc.framesOfType("req")
	require.Len(t, previews, 1)
	assert.Equal(t, "preview", previews[0].Req)
	assert.Equal(t, "ABCDEFGHIJ", previews[0].SID)

	assert.True(t, e.SidStatus("ABCDEFGHIJ"))

	e.Dispatch(mobile, marshalFrame(t, Frame{V: 1, Type: "cmd", Payload: []byte(`{"cmd":"jump"}`)}))
	flush(e)
	cmds := pc.framesOfType("cmd")
	require.Len(t, cmds, 1)
	assert.Equal(t, "ABCDEFGHIJ", cmds[0].SID)
	assert.JSONEq(t, `{"cmd":"jump"}`, string(cmds[0].Payload))

	e.Dispatch(pc, marshalFrame(t, Frame{V: 1, Type: "evt", SID: "ABCDEFGHIJ", Evt: "pong"}))
	flush(e)
	evts := mobile.framesOfType("evt")
	require.Len(t, evts, 1)
	assert.Equal(t, "pong", evts[0].Evt)
}

func TestPCAuth_NonceReplayRejectedSecondTime(t *testing.T) {
	e, v := testEvent(t, 1000)
	e.RegisterPC("pc1")

	pc := newFakeSocket("pc-sock")
	e.Accept(pc)
	frame := pcAuthFrame(v, "pc1", "/e/e1/ws", "n1", 1000)
	e.Dispatch(pc, marshalFrame(t, frame))
	e.Dispatch(pc, marshalFrame(t, frame))
	flush(e)

	errs := pc.framesOfType("pc-err")
	require.Len(t, errs, 1)
	assert.Equal(t, "E_NONCE_REPLAY", errs[0].Code)
}

func TestPendingSID_BeforeRegisterPC(t *testing.T) {
	e, _ := testEvent(t, 1000)
	err := e.PendingSID("pcX", "ABCDEFGHIJ", 60*time.Second)
	assert.ErrorIs(t, err, ErrPCNotRegistered)
}

func TestPendingSID_DuplicateRejected(t *testing.T) {
	e, _ := testEvent(t, 1000)
	e.RegisterPC("pc1")
	require.NoError(t, e.PendingSID("pc1", "ABCDEFGHIJ", 60*time.Second))
	err := e.PendingSID("pc1", "ABCDEFGHIJ", 60*time.Second)
	assert.ErrorIs(t, err, ErrSIDExists)
}

func TestJoin_UnknownSIDRejected(t *testing.T) {
	e, _ := testEvent(t, 1000)
	mobile := newFakeSocket("mobile-sock")
	e.Accept(mobile)
	e.Dispatch(mobile, marshalFrame(t, Frame{V: 1, Type: "join", SID: "NOSUCHSID1"}))
	flush(e)

	errs := mobile.framesOfType("error")
	require.Len(t, errs, 1)
	assert.Equal(t, "E_BAD_SID", errs[0].Code)
}

func TestOfflineGrace_ReconnectCancelsTimeout(t *testing.T) {
	e, v := testEvent(t, 1000)
	fired := make(chan func(), 1)
	origAfterFunc := afterFunc
	afterFunc = func(d time.Duration, fn func()) *time.Timer {
		fired <- fn
		return time.NewTimer(time.Hour) // never actually fires on its own
	}
	defer func() { afterFunc = origAfterFunc }()

	e.RegisterPC("pc1")
	require.NoError(t, e.PendingSID("pc1", "ABCDEFGHIJ", 60*time.Second))

	pc := newFakeSocket("pc-sock")
	e.Accept(pc)
	e.Dispatch(pc, marshalFrame(t, pcAuthFrame(v, "pc1", "/e/e1/ws", "n1", 1000)))
	flush(e)

	mobile := newFakeSocket("mobile-sock")
	e.Accept(mobile)
	e.Dispatch(mobile, marshalFrame(t, Frame{V: 1, Type: "join", SID: "ABCDEFGHIJ"}))
	flush(e)

	e.Disconnect(pc)
	flush(e)

	offEvts := mobile.framesOfType("evt")
	require.Len(t, offEvts, 1)
	assert.Equal(t, "pc-offline", offEvts[0].Evt)

	graceFn := <-fired

	pc2 := newFakeSocket("pc-sock-2")
	e.Accept(pc2)
	e.Dispatch(pc2, marshalFrame(t, pcAuthFrame(v, "pc1", "/e/e1/ws", "n2", 1000)))
	flush(e)

	onEvts := mobile.framesOfType("evt")
	require.Len(t, onEvts, 2)
	assert.Equal(t, "pc-online", onEvts[1].Evt)

	graceFn()
	flush(e)

	assert.False(t, mobile.isClosed())
	timeouts := mobile.framesOfType("evt")
	for _, fr := range timeouts {
		assert.NotEqual(t, "pc-timeout", fr.Evt)
	}
}

func TestHeartbeat_TicksTrackedSocketsAndSelfStops(t *testing.T) {
	e, _ := testEvent(t, 1000)
	origTicker := newTicker
	newTicker = func(d time.Duration) *time.Ticker { return time.NewTicker(5 * time.Millisecond) }
	defer func() { newTicker = origTicker }()

	s := newFakeSocket("s1")
	e.Accept(s)

	require.Eventually(t, func() bool {
		return len(s.framesOfType("hb")) > 0
	}, time.Second, 5*time.Millisecond)

	e.Disconnect(s)
	flush(e)

	e.do(func() {
		assert.Nil(t, e.heartbeat)
	})
}

func TestDispatch_BadJSONAndBadVersionRejected(t *testing.T) {
	e, _ := testEvent(t, 1000)
	s := newFakeSocket("s1")
	e.Accept(s)

	e.Dispatch(s, []byte(`{not json`))
	e.Dispatch(s, marshalFrame(t, Frame{V: 2, Type: "join", SID: "ABCDEFGHIJ"}))
	flush(e)

	errs := s.framesOfType("error")
	require.Len(t, errs, 2)
	assert.Equal(t, "E_BAD_JSON", errs[0].Code)
	assert.Equal(t, "E_BAD_VERSION", errs[1].Code)
}

func TestPCAuth_BadPcidGrammarRejected(t *testing.T) {
	e, v := testEvent(t, 1000)
	s := newFakeSocket("pc-sock")
	e.Accept(s)
	frame := pcAuthFrame(v, "AB", "/e/e1/ws", "n1", 1000)
	e.Dispatch(s, marshalFrame(t, frame))
	flush(e)

	errs := s.framesOfType("pc-err")
	require.Len(t, errs, 1)
	assert.Equal(t, "E_BAD_FIELD", errs[0].Code)
}

func TestPCAuth_NewerSocketWinsAndOldCloseIsSilent(t *testing.T) {
	e, v := testEvent(t, 1000)
	e.RegisterPC("pc1")
	require.NoError(t, e.PendingSID("pc1", "ABCDEFGHIJ", 60*time.Second))

	old := newFakeSocket("pc-old")
	e.Accept(old)
	e.Dispatch(old, marshalFrame(t, pcAuthFrame(v, "pc1", "/e/e1/ws", "n1", 1000)))

	mobile := newFakeSocket("mobile-sock")
	e.Accept(mobile)
	e.Dispatch(mobile, marshalFrame(t, Frame{V: 1, Type: "join", SID: "ABCDEFGHIJ"}))

	newer := newFakeSocket("pc-new")
	e.Accept(newer)
	e.Dispatch(newer, marshalFrame(t, pcAuthFrame(v, "pc1", "/e/e1/ws", "n2", 1000)))
	flush(e)

	e.do(func() {
		assert.Equal(t, Socket(newer), e.pcBySocket["pc1"])
	})

	// The superseded socket closing must not look like the PC going away.
	e.Disconnect(old)
	flush(e)

	for _, fr := range mobile.framesOfType("evt") {
		assert.NotEqual(t, "pc-offline", fr.Evt)
	}

	e.Dispatch(mobile, marshalFrame(t, Frame{V: 1, Type: "cmd", Payload: []byte(`{"cmd":"jump"}`)}))
	flush(e)
	require.Len(t, newer.framesOfType("cmd"), 1)
}

func TestJoin_SwitchingSIDLeavesOldFanOutSet(t *testing.T) {
	e, _ := testEvent(t, 1000)
	e.RegisterPC("pc1")
	require.NoError(t, e.PendingSID("pc1", "ABCDEFGHIJ", 60*time.Second))
	require.NoError(t, e.PendingSID("pc1", "KLMNOPQRST", 60*time.Second))

	mobile := newFakeSocket("mobile-sock")
	e.Accept(mobile)
	e.Dispatch(mobile, marshalFrame(t, Frame{V: 1, Type: "join", SID: "ABCDEFGHIJ"}))
	e.Dispatch(mobile, marshalFrame(t, Frame{V: 1, Type: "join", SID: "KLMNOPQRST"}))
	flush(e)

	e.do(func() {
		assert.Nil(t, e.mobilesBySid["ABCDEFGHIJ"])
		assert.True(t, e.mobilesBySid["KLMNOPQRST"][mobile])
		assert.Equal(t, "KLMNOPQRST", e.meta[mobile].sid)
	})
}

func TestUnknownFrameEchoedBack(t *testing.T) {
	e, _ := testEvent(t, 1000)
	s := newFakeSocket("s1")
	e.Accept(s)
	e.Dispatch(s, marshalFrame(t, Frame{V: 1, Type: "mystery", Cmd: "x"}))
	flush(e)

	evts := s.framesOfType("evt")
	require.Len(t, evts, 1)
	require.NotNil(t, evts[0].Echo)
	assert.Equal(t, "mystery", evts[0].Echo.Type)
}

func TestOfflineGrace_NoReconnectTimesOutMobile(t *testing.T) {
	e, v := testEvent(t, 1000)
	fired := make(chan func(), 1)
	origAfterFunc := afterFunc
	afterFunc = func(d time.Duration, fn func()) *time.Timer {
		fired <- fn
		return time.NewTimer(time.Hour)
	}
	defer func() { afterFunc = origAfterFunc }()

	e.RegisterPC("pc1")
	require.NoError(t, e.PendingSID("pc1", "ABCDEFGHIJ", 60*time.Second))

	pc := newFakeSocket("pc-sock")
	e.Accept(pc)
	e.Dispatch(pc, marshalFrame(t, pcAuthFrame(v, "pc1", "/e/e1/ws", "n1", 1000)))
	flush(e)

	mobile := newFakeSocket("mobile-sock")
	e.Accept(mobile)
	e.Dispatch(mobile, marshalFrame(t, Frame{V: 1, Type: "join", SID: "ABCDEFGHIJ"}))
	flush(e)

	e.Disconnect(pc)
	flush(e)

	graceFn := <-fired
	graceFn()
	flush(e)

	assert.True(t, mobile.isClosed())
	assert.Equal(t, 1012, mobile.closeCode)
	assert.Equal(t, "pc-offline-timeout", mobile.closeReason)

	evts := mobile.framesOfType("evt")
	var sawTimeout bool
	for _, fr := range evts {
		if fr.Evt == "pc-timeout" {
			sawTimeout = true
		}
	}
	assert.True(t, sawTimeout)
}
