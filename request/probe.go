package request

import "github.com/sarchlab/coupling/transport"

// Probe blocks until a message from peer is pending and describes it. Peer
// may be transport.AnySource.
func (m *Manager) Probe(peer int) (ProbeResult, error) {
	st, err := m.comm.Probe(peer, transport.AnyTag)
	if err != nil {
		return ProbeResult{}, err
	}

	return m.probeResult(st), nil
}

// IProbe is the non-blocking version of Probe. The flag tells whether a
// message is pending.
func (m *Manager) IProbe(peer int) (ProbeResult, bool, error) {
	found, st, err := m.comm.IProbe(peer, transport.AnyTag)
	if err != nil || !found {
		return ProbeResult{}, false, err
	}

	return m.probeResult(st), true, nil
}

func (m *Manager) probeResult(st transport.Status) ProbeResult {
	dtype := DatatypeOfTag(st.Tag)
	if dtype == transport.UnknownType {
		m.tracef("probed tag %d from %d carries no known payload type",
			st.Tag, st.Source)
	}

	return ProbeResult{
		Source:   st.Source,
		Tag:      st.Tag,
		Type:     dtype,
		OutCount: st.Count,
	}
}
