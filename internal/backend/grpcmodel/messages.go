package grpcmodel

import (
	"github.com/ekisa-team/flamingo/internal/backend"
	"github.com/ekisa-team/flamingo/internal/tensor"
)

// ServiceName is the gRPC service exposed by model servers.
const ServiceName = "flamingo.model.v1.Model"

const (
	methodLoad       = "/" + ServiceName + "/Load"
	methodParameters = "/" + ServiceName + "/Parameters"
	methodLoadState  = "/" + ServiceName + "/LoadStateDict"
	methodDecode     = "/" + ServiceName + "/Decode"
	methodUnload     = "/" + ServiceName + "/Unload"
)

type loadRequest struct {
	Spec backend.LoadSpec `msgpack:"spec"`
}

type loadResponse struct {
	Handle   string           `msgpack:"handle"`
	Contract backend.Contract `msgpack:"contract"`
}

type handleRequest struct {
	Handle string `msgpack:"handle"`
}

type parametersResponse struct {
	Shapes map[string][]int `msgpack:"shapes"`
}

type loadStateRequest struct {
	Handle string                    `msgpack:"handle"`
	State  map[string]*tensor.Tensor `msgpack:"state"`
	Strict bool                      `msgpack:"strict"`
}

type decodeRequest struct {
	Handle  string                 `msgpack:"handle"`
	Request *backend.DecodeRequest `msgpack:"request"`
}

type decodeResponse struct {
	Hypotheses []backend.Hypothesis `msgpack:"hypotheses"`
}

type empty struct{}
