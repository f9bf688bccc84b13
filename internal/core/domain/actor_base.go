package domain

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorRef lets requests name an explicit reply target without importing actor types everywhere.
type ActorRef actor.PID

type ActorRequest interface {
	ReplyTo() *ActorRef
}

// ActorRequestMixIn is embedded by requests that may be answered to someone other than the sender.
type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}

// ActorResponseMixIn is embedded by every response. A failed modbus or MQTT operation sets ResponseError.
type ActorResponseMixIn struct {
	ResponseError error
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}
