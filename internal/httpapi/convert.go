package httpapi

import (
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/wire"
)

// ── Commands ─────────────────────────────────────────────────────────────────

func commandRequestFromProto(p *structpb.Struct) (types.CommandRequest, error) {
	return wire.CommandRequestFromStruct(p)
}

func commandResponseToProto(r types.CommandResponse) (*structpb.Struct, error) {
	return wire.CommandResponseToStruct(r)
}
