package realtime

// Events attached to messages published by the agent.
const (
	EventSnapshot = "snapshot"
	EventUpdate   = "update"
	EventPong     = "pong"
)
