package session

import (
	"slices"

	"github.com/pkg/errors"

	"github.com/TheusHen/cshpke/cshpke/protocol"
)

// packets is one round of setup packets keyed by id.
type packets map[protocol.PacketID]protocol.Packet

// collect receives packets until one of each id in want has arrived, in
// any order. A repeated or unrequested id is an error.
func collect(conn *protocol.Conn, want ...protocol.PacketID) (packets, error) {
	got := make(packets, len(want))
	for len(got) < len(want) {
		p, err := conn.Receive()
		if err != nil {
			return nil, err
		}
		if !slices.Contains(want, p.ID) {
			return nil, errors.Wrapf(protocol.ErrUnexpectedPacket, "%s during setup", p.ID)
		}
		if _, dup := got[p.ID]; dup {
			return nil, errors.Wrapf(protocol.ErrUnexpectedPacket, "second %s", p.ID)
		}
		got[p.ID] = p
	}
	return got, nil
}

func (ps packets) bytes(id protocol.PacketID) ([]byte, error) {
	return ps[id].RequireBytes()
}

func (ps packets) code(id protocol.PacketID) (uint16, error) {
	return ps[id].Uint16()
}
