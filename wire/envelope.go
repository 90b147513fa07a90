package wire

// Op names one of the three client-facing operations.
type Op string

const (
	OpGetParameters Op = "get_parameters"
	OpFit           Op = "fit"
	OpEvaluate      Op = "evaluate"
)

// Request is the transport envelope for an outgoing instruction. Round is
// carried on every request for observability on the participant side.
type Request struct {
	ID      string `json:"id"      cbor:"1,keyasint"`
	Round   uint64 `json:"round"   cbor:"2,keyasint"`
	Op      Op     `json:"op"      cbor:"3,keyasint"`
	Payload []byte `json:"payload" cbor:"4,keyasint"`
}

// Announcement statuses published on the membership topic.
const (
	AnnounceJoin  = "join"
	AnnounceAlive = "alive"
)

// Announcement is published by a participant when it comes online and
// periodically afterwards as a liveness beacon.
type Announcement struct {
	ClientID string `json:"client_id" cbor:"1,keyasint"`
	Status   string `json:"status"    cbor:"2,keyasint"`
}

// Response is the transport envelope for a result. Error is set only when
// the participant could not produce a result envelope at all; client-level
// failures travel inside the payload's Status.
type Response struct {
	ID      string `json:"id"      cbor:"1,keyasint"`
	Op      Op     `json:"op"      cbor:"2,keyasint"`
	Payload []byte `json:"payload" cbor:"3,keyasint"`
	Error   string `json:"error,omitempty" cbor:"4,keyasint,omitempty"`
}
