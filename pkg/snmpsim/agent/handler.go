package agent

import (
	"time"

	"github.com/vpbank/snmp_simulator/models"
	"github.com/vpbank/snmp_simulator/pkg/snmpsim/catalog"
	"github.com/vpbank/snmp_simulator/snmp/codec"
)

// process runs on the agent's run loop and is therefore the only writer of
// agent state. It consults active faults first, then resolves the PDU.
func (a *Agent) process(msg *codec.Message) Response {
	a.touch()
	a.requestsSeen.Add(1)

	// DOWN agents are unreachable regardless of PDU type. The recovery timer
	// flips the state back; until then everything times out client-side.
	if a.downMode != "" {
		return Response{Kind: Drop}
	}

	// packet_loss.
	if cfg, ok := a.faults[models.FaultPacketLoss]; ok {
		if a.rng.Float64() < cfg.Rate {
			return Response{Kind: Drop}
		}
	}

	// timeout.
	if cfg, ok := a.faults[models.FaultTimeout]; ok {
		if a.rng.Float64() < cfg.Probability {
			if !cfg.ReplyAfterDelay {
				return Response{Kind: Drop}
			}
			resp := a.resolve(msg)
			resp.Kind = DelayedReply
			resp.Delay = time.Duration(cfg.DelayMs) * time.Millisecond
			return resp
		}
	}

	// snmp_error.
	if cfg, ok := a.faults[models.FaultSNMPError]; ok {
		if a.faultOIDMatch(cfg, msg) && a.rng.Float64() < cfg.Probability {
			return a.errorResponse(msg, cfg.ErrorCode)
		}
	}

	// malformed.
	if cfg, ok := a.faults[models.FaultMalformed]; ok {
		if a.rng.Float64() < cfg.Probability {
			resp := a.resolve(msg)
			if resp.Kind == Reply {
				return Response{Kind: ReplyMalformed, Data: codec.Malform(resp.Data, cfg.Variant)}
			}
			return resp
		}
	}

	return a.resolve(msg)
}

// faultOIDMatch applies the optional oid_filter: the fault only fires when a
// request varbind falls under the filter prefix.
func (a *Agent) faultOIDMatch(cfg models.FaultConfig, msg *codec.Message) bool {
	if cfg.OIDFilter == "" {
		return true
	}
	prefix, err := models.ParseOID(cfg.OIDFilter)
	if err != nil {
		return true
	}
	for _, vb := range msg.Varbinds {
		if vb.OID.HasPrefix(prefix) {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// PDU resolution
// ─────────────────────────────────────────────────────────────────────────────

// resolve answers a fault-free request.
func (a *Agent) resolve(msg *codec.Message) Response {
	switch msg.PDUType {
	case codec.GetRequest:
		return a.answerGet(msg)
	case codec.GetNextRequest:
		return a.answerGetNext(msg)
	case codec.GetBulkRequest:
		if msg.Version == codec.Version1 {
			// GETBULK does not exist in SNMPv1.
			return a.errorResponse(msg, codec.ErrGenErr)
		}
		return a.answerGetBulk(msg)
	case codec.SetRequest:
		return a.answerSet(msg)
	default:
		return a.errorResponse(msg, codec.ErrGenErr)
	}
}

// answerGet renders each varbind independently. Individual OID failures
// produce per-varbind exception markers (v2c) or a PDU-level noSuchName (v1);
// they never become genErr.
func (a *Agent) answerGet(msg *codec.Message) Response {
	wall := time.Now().UTC()
	uptime := a.uptime()

	out := make([]codec.Varbind, len(msg.Varbinds))
	for i, vb := range msg.Varbinds {
		entry, status := a.cfg.Catalog.Get(vb.OID)
		var value models.TypedValue
		switch status {
		case catalog.Found:
			value = a.render(vb.OID, entry, wall, uptime)
		case catalog.NoSuchInstance:
			value = models.NoSuchInstanceValue()
		default:
			value = models.NoSuchObjectValue()
		}
		out[i] = codec.Varbind{OID: vb.OID, Value: value}
	}

	if msg.Version == codec.Version1 {
		if idx := firstException(out); idx >= 0 {
			return a.v1Error(msg, codec.ErrNoSuchName, idx+1)
		}
	}
	return a.encodeReply(msg, out, false)
}

// answerGetNext advances each varbind to its lexicographic successor,
// descending correctly from internal nodes.
func (a *Agent) answerGetNext(msg *codec.Message) Response {
	wall := time.Now().UTC()
	uptime := a.uptime()

	out := make([]codec.Varbind, len(msg.Varbinds))
	for i, vb := range msg.Varbinds {
		row, ok := a.cfg.Catalog.GetNext(vb.OID)
		if !ok {
			out[i] = codec.Varbind{OID: vb.OID, Value: models.EndOfMibViewValue()}
			continue
		}
		value := a.render(row.OID, row.Entry, wall, uptime)
		out[i] = codec.Varbind{OID: row.OID, Value: value}
	}

	if msg.Version == codec.Version1 {
		if idx := firstException(out); idx >= 0 {
			return a.v1Error(msg, codec.ErrNoSuchName, idx+1)
		}
	}
	return a.encodeReply(msg, out, false)
}

// answerGetBulk treats the first non-repeaters varbinds as GETNEXT and walks
// the rest up to max-repetitions steps each. The result is bounded by
// non_repeaters + R × max_repetitions varbinds before MTU truncation.
func (a *Agent) answerGetBulk(msg *codec.Message) Response {
	wall := time.Now().UTC()
	uptime := a.uptime()

	nonRepeaters := msg.NonRepeaters
	if nonRepeaters < 0 {
		nonRepeaters = 0
	}
	if nonRepeaters > len(msg.Varbinds) {
		nonRepeaters = len(msg.Varbinds)
	}
	maxReps := msg.MaxRepetitions
	if maxReps < 0 {
		maxReps = 0
	}

	var out []codec.Varbind
	for i, vb := range msg.Varbinds {
		if i < nonRepeaters {
			row, ok := a.cfg.Catalog.GetNext(vb.OID)
			if !ok {
				out = append(out, codec.Varbind{OID: vb.OID, Value: models.EndOfMibViewValue()})
				continue
			}
			out = append(out, codec.Varbind{
				OID:   row.OID,
				Value: a.render(row.OID, row.Entry, wall, uptime),
			})
			continue
		}

		cur := vb.OID
		for r := 0; r < maxReps; r++ {
			row, ok := a.cfg.Catalog.GetNext(cur)
			if !ok {
				out = append(out, codec.Varbind{OID: cur, Value: models.EndOfMibViewValue()})
				break
			}
			out = append(out, codec.Varbind{
				OID:   row.OID,
				Value: a.render(row.OID, row.Entry, wall, uptime),
			})
			cur = row.OID
		}
	}

	return a.encodeReply(msg, out, true)
}

// render produces the value of one catalog row. A configured SysDescr
// override replaces sysDescr.0, as it does on the hot path.
func (a *Agent) render(oid models.OID, entry *models.CatalogEntry, wall time.Time, uptime time.Duration) models.TypedValue {
	if a.cfg.SysDescr != "" && oid.String() == "1.3.6.1.2.1.1.1.0" {
		return models.StringValue(a.cfg.SysDescr)
	}
	return a.cfg.Simulator.Render(oid, entry, a.st, wall, uptime)
}

// answerSet always refuses: the simulator's MIB is read-only.
func (a *Agent) answerSet(msg *codec.Message) Response {
	resp := &codec.Message{
		Version:     msg.Version,
		Community:   msg.Community,
		PDUType:     codec.GetResponse,
		RequestID:   msg.RequestID,
		ErrorStatus: codec.ErrReadOnly,
		ErrorIndex:  1,
		Varbinds:    msg.Varbinds,
	}
	return a.encodeMessage(resp, false)
}

// ─────────────────────────────────────────────────────────────────────────────
// Response encoding and MTU policy
// ─────────────────────────────────────────────────────────────────────────────

// encodeReply wraps resolved varbinds in a GetResponse.
func (a *Agent) encodeReply(msg *codec.Message, varbinds []codec.Varbind, isBulk bool) Response {
	resp := &codec.Message{
		Version:   msg.Version,
		Community: msg.Community,
		PDUType:   codec.GetResponse,
		RequestID: msg.RequestID,
		Varbinds:  varbinds,
	}
	return a.encodeMessage(resp, isBulk)
}

// encodeMessage serialises resp. Oversize GETBULK responses truncate
// repetitions from the tail (callers requested the cap, never tooBig);
// oversize single responses synthesize tooBig with empty varbinds.
func (a *Agent) encodeMessage(resp *codec.Message, isBulk bool) Response {
	for {
		data, err := codec.Encode(resp)
		if err == nil && len(data) <= a.cfg.MTU {
			return Response{Kind: Reply, Data: data}
		}

		if isBulk && len(resp.Varbinds) > 0 {
			// Drop a quarter of the varbinds per pass so pathological
			// responses converge in a few re-encodes.
			cut := len(resp.Varbinds) / 4
			if cut == 0 {
				cut = 1
			}
			resp.Varbinds = resp.Varbinds[:len(resp.Varbinds)-cut]
			continue
		}

		a.logger.Debug("agent: response exceeds MTU — answering tooBig",
			"request_id", resp.RequestID,
			"mtu", a.cfg.MTU,
		)
		return a.tooBig(resp)
	}
}

// tooBig synthesizes the v2c tooBig error PDU: matching request-id, empty
// varbind list.
func (a *Agent) tooBig(resp *codec.Message) Response {
	out := &codec.Message{
		Version:     resp.Version,
		Community:   resp.Community,
		PDUType:     codec.GetResponse,
		RequestID:   resp.RequestID,
		ErrorStatus: codec.ErrTooBig,
	}
	data, err := codec.Encode(out)
	if err != nil {
		return Response{Kind: Drop}
	}
	return Response{Kind: Reply, Data: data}
}

// errorResponse builds a GetResponse carrying a PDU-level error-status with
// the request varbinds echoed.
func (a *Agent) errorResponse(msg *codec.Message, errStatus int) Response {
	errIndex := 0
	if errStatus != codec.ErrNoError && len(msg.Varbinds) > 0 {
		errIndex = 1
	}
	resp := &codec.Message{
		Version:     msg.Version,
		Community:   msg.Community,
		PDUType:     codec.GetResponse,
		RequestID:   msg.RequestID,
		ErrorStatus: errStatus,
		ErrorIndex:  errIndex,
		Varbinds:    msg.Varbinds,
	}
	return a.encodeMessage(resp, false)
}

// v1Error maps a v2c exception onto the v1 PDU-level error model.
func (a *Agent) v1Error(msg *codec.Message, errStatus, errIndex int) Response {
	resp := &codec.Message{
		Version:     msg.Version,
		Community:   msg.Community,
		PDUType:     codec.GetResponse,
		RequestID:   msg.RequestID,
		ErrorStatus: errStatus,
		ErrorIndex:  errIndex,
		Varbinds:    msg.Varbinds,
	}
	return a.encodeMessage(resp, false)
}

// firstException returns the index of the first exception-marker varbind, or
// -1 when every varbind resolved.
func firstException(vbs []codec.Varbind) int {
	for i, vb := range vbs {
		if vb.Value.Kind.IsException() {
			return i
		}
	}
	return -1
}
