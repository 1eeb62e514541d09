package dispatch

import (
	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/manycbor"
	"github.com/certenio/manynet/pkg/message"
)

// statusPayload is the CBOR map returned by the base `status` endpoint.
type statusPayload struct {
	ServerID []byte               `cbor:"0,keyasint"`
	Modules  []message.ModuleInfo `cbor:"1,keyasint"`
}

func encodeStatus(serverID identity.Identity, infos []message.ModuleInfo) ([]byte, error) {
	return manycbor.Marshal(statusPayload{ServerID: serverID.ToBytes(), Modules: infos})
}

func encodeEndpoints(names []string) ([]byte, error) {
	return manycbor.Marshal(names)
}
