package cachegate

// QoSMarker is the supplemented QoS/TOS marking hook named in SPEC_FULL.md,
// grounded on client_side_reply.cc's Ip::Qos calls. Concrete marking
// (netfilter mark, DSCP) is an external collaborator; this module only
// calls it once per transaction on the first pump.
type QoSMarker interface {
	MarkReply(hit bool)
}

// WithQoSMarker installs a QoSMarker, invoked once from stream.go's first
// pumpOne call.
func WithQoSMarker(m QoSMarker) Option {
	return func(e *Engine) error {
		e.qos = m
		return nil
	}
}
