package servicedef

import "gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

const (
	// CommandEcho asks an entity to post each of the given messages back to its callback URL.
	CommandEcho = "echo"

	// CallbackKindEcho is the Kind of a callback message sent in response to CommandEcho.
	CallbackKindEcho = "echo"

	// CallbackKindError is the Kind of a callback message that reports an error inside the
	// test service.
	CallbackKindError = "error"
)

// CreateEntityParams is the request body that asks the test service to create an entity.
type CreateEntityParams struct {
	Tag            string                 `json:"tag"`
	CallbackURL    string                 `json:"callbackUrl,omitempty"`
	InitialDelayMS ldvalue.OptionalInt    `json:"initialDelayMs,omitempty"`
	Params         map[string]interface{} `json:"params,omitempty"`
}

// CommandParams is the request body of a command sent to an entity.
type CommandParams struct {
	Command string      `json:"command"`
	Echo    *EchoParams `json:"echo,omitempty"`
}

type EchoParams struct {
	Messages []string `json:"messages"`
}

// CallbackMessage is the body of a request that an entity posts to its callback URL. The
// path of the request is a counter starting at 1, so the harness can restore the order.
type CallbackMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
