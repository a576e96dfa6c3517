package relay

import "encoding/json"

// Frame is the single envelope shape used for every WebSocket message in
// both directions. Unused fields are omitted on the wire; parsing an inbound
// Frame leaves Payload/Args/Data as raw JSON so handlers decode only what the
// frame type actually needs.
type Frame struct {
	V           int             `json:"v"`
	Type        string          `json:"type"`
	PCID        string          `json:"pcid,omitempty"`
	Path        string          `json:"path,omitempty"`
	Iat         int64           `json:"iat,omitempty"`
	Nonce       string          `json:"nonce,omitempty"`
	Sig         string          `json:"sig,omitempty"`
	PayloadHash string          `json:"payloadHash,omitempty"`
	SID         string          `json:"sid,omitempty"`
	ImageID     string          `json:"imageId,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Cmd         string          `json:"cmd,omitempty"`
	Args        json.RawMessage `json:"args,omitempty"`
	Evt         string          `json:"evt,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	T           int64           `json:"t,omitempty"`
	Code        string          `json:"code,omitempty"`
	ServerTime  int64           `json:"serverTime,omitempty"`
	OK          bool            `json:"ok,omitempty"`
	Req         string          `json:"req,omitempty"`
	Echo        *Frame          `json:"echo,omitempty"`
}

// outPayload is what the relay actually forwards for a cmd frame: either
// the mobile's structured payload object, or its legacy {cmd,args} shape.
func outPayload(in Frame) json.RawMessage {
	if len(in.Payload) > 0 {
		return in.Payload
	}
	legacy := struct {
		Cmd  string          `json:"cmd"`
		Args json.RawMessage `json:"args,omitempty"`
	}{Cmd: in.Cmd, Args: in.Args}
	raw, _ := json.Marshal(legacy)
	return raw
}

func ackFrame() Frame              { return Frame{V: 1, Type: "ack", OK: true} }
func errFrame(code string) Frame   { return Frame{V: 1, Type: "error", Code: code} }
func pcAckFrame() Frame            { return Frame{V: 1, Type: "pc-ack"} }
func pcErrFrame(code string) Frame { return Frame{V: 1, Type: "pc-err", Code: code} }

func pcErrSkewFrame(code string, serverTime int64) Frame {
	return Frame{V: 1, Type: "pc-err", Code: code, ServerTime: serverTime}
}

func evtFrame(sid, evt string, data json.RawMessage) Frame {
	return Frame{V: 1, Type: "evt", SID: sid, Evt: evt, Data: data}
}

func cmdFrame(sid string, payload json.RawMessage) Frame {
	return Frame{V: 1, Type: "cmd", SID: sid, Payload: payload}
}

func previewReqFrame(sid, imageID string) Frame {
	return Frame{V: 1, Type: "req", Req: "preview", SID: sid, ImageID: imageID}
}

func hbFrame(t int64) Frame { return Frame{V: 1, Type: "hb", T: t} }
