package amqp

import "fmt"

// Authentication is a SASL mechanism the client can offer during the
// Connection.Start/StartOk handshake.
type Authentication interface {
	Mechanism() string
	Response() string
}

// PlainAuth implements the SASL PLAIN mechanism.
type PlainAuth struct {
	Username string
	Password string
}

func (a *PlainAuth) Mechanism() string { return "PLAIN" }
func (a *PlainAuth) Response() string {
	return fmt.Sprintf("\000%s\000%s", a.Username, a.Password)
}

// AMQPPlainAuth implements RabbitMQ's AMQPLAIN mechanism, which encodes
// the same credentials as an AMQP field table rather than PLAIN's
// null-delimited string.
type AMQPPlainAuth struct {
	Username string
	Password string
}

func (a *AMQPPlainAuth) Mechanism() string { return "AMQPLAIN" }

// Response returns the credentials as the marker string
// "LOGIN:<user>PASSWORD:<password>", not as an AMQP field table; the
// core passes it through Connection.StartOk as an opaque string, as it
// does every SASL response, and any field-table framing is left to the
// caller's FrameCodec.
func (a *AMQPPlainAuth) Response() string {
	return fmt.Sprintf("LOGIN:%sPASSWORD:%s", a.Username, a.Password)
}

// pickMechanism chooses the first of offered that also appears in the
// server's space-separated list of acceptable SASL mechanisms.
func pickMechanism(offered []Authentication, serverList []string) (Authentication, bool) {
	allowed := make(map[string]bool, len(serverList))
	for _, m := range serverList {
		allowed[m] = true
	}
	for _, a := range offered {
		if allowed[a.Mechanism()] {
			return a, true
		}
	}
	if len(offered) > 0 {
		return offered[0], false
	}
	return nil, false
}

// pickLocale validates the requested locale against the server's list,
// defaulting to "en_US". It never fails the handshake by
// itself -- a mismatch is only ever worth a log warning.
func pickLocale(requested string, serverList []string) (string, bool) {
	if requested == "" {
		requested = "en_US"
	}
	for _, l := range serverList {
		if l == requested {
			return requested, true
		}
	}
	return requested, false
}
