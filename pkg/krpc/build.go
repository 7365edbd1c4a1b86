package krpc

import (
	"github.com/NamanBalaji/bitwire/pkg/bencode"
	"github.com/NamanBalaji/bitwire/pkg/peer"
)

func query(tid []byte, method Method, args *bencode.Mut) *bencode.Mut {
	return bencode.NewDict().
		Put("t", bencode.NewBytes(tid)).
		Put("y", bencode.NewString(string(TypeQuery))).
		Put("q", bencode.NewString(string(method))).
		Put("a", args)
}

func idArgs(id NodeID) *bencode.Mut {
	return bencode.NewDict().Put("id", bencode.NewBytes(id[:]))
}

// Ping builds a ping query.
func Ping(tid []byte, id NodeID) *bencode.Mut {
	return query(tid, MethodPing, idArgs(id))
}

// FindNode builds a find_node query for target.
func FindNode(tid []byte, id, target NodeID) *bencode.Mut {
	return query(tid, MethodFindNode, idArgs(id).Put("target", bencode.NewBytes(target[:])))
}

// GetPeers builds a get_peers query for infoHash.
func GetPeers(tid []byte, id NodeID, infoHash peer.Hash) *bencode.Mut {
	return query(tid, MethodGetPeers, idArgs(id).Put("info_hash", bencode.NewBytes(infoHash[:])))
}

// AnnouncePeer builds an announce_peer query. With impliedPort set the
// receiver uses the packet's source port and port is advisory.
func AnnouncePeer(tid []byte, id NodeID, infoHash peer.Hash, port uint16, token []byte, impliedPort bool) *bencode.Mut {
	args := idArgs(id).
		Put("info_hash", bencode.NewBytes(infoHash[:])).
		Put("port", bencode.NewInt(int64(port))).
		Put("token", bencode.NewBytes(token))

	if impliedPort {
		args.Put("implied_port", bencode.NewInt(1))
	}

	return query(tid, MethodAnnouncePeer, args)
}

// Response wraps reply, which must hold at least "id", in a response
// envelope.
func Response(tid []byte, reply *bencode.Mut) *bencode.Mut {
	return bencode.NewDict().
		Put("t", bencode.NewBytes(tid)).
		Put("y", bencode.NewString(string(TypeResponse))).
		Put("r", reply)
}

// PingResponse answers ping and announce_peer.
func PingResponse(tid []byte, id NodeID) *bencode.Mut {
	return Response(tid, idArgs(id))
}

// FindNodeResponse answers find_node with the closest known nodes.
func FindNodeResponse(tid []byte, id NodeID, nodes []NodeInfo) *bencode.Mut {
	return Response(tid, idArgs(id).Put("nodes", bencode.NewBytes(AppendCompactNodes(nil, nodes))))
}

// GetPeersResponse answers get_peers. Peers go under "values" when any
// are known, otherwise nodes go under "nodes".
func GetPeersResponse(tid []byte, id NodeID, token []byte, peers []Peer, nodes []NodeInfo) *bencode.Mut {
	reply := idArgs(id).Put("token", bencode.NewBytes(token))

	if len(peers) > 0 {
		values := bencode.NewList()
		for _, p := range peers {
			values.Append(bencode.NewBytes(p.Compact()))
		}

		reply.Put("values", values)
	} else {
		reply.Put("nodes", bencode.NewBytes(AppendCompactNodes(nil, nodes)))
	}

	return Response(tid, reply)
}

// ErrorReply builds an error message.
func ErrorReply(tid []byte, code ErrorCode, message string) *bencode.Mut {
	return bencode.NewDict().
		Put("t", bencode.NewBytes(tid)).
		Put("y", bencode.NewString(string(TypeError))).
		Put("e", bencode.NewList(bencode.NewInt(int64(code)), bencode.NewString(message)))
}
