package observerproto

// Version is the observer protocol version.
const Version = "1.0"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeFrame     = "FRAME"
)

// Client -> Server. First message on the observer WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	Width           int `json:"width"`
	Height          int `json:"height"`
	Entities        int `json:"entities"`
	TickRateHz      int `json:"tick_rate_hz"`
	Workers         int `json:"workers"`
	FrameEveryTicks int `json:"frame_every_ticks"`
}

// Server -> Client. Sent every frame_every_ticks ticks.
// Points are the (x, y) cells holding an entity; everything else is background.
type FrameMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	WorldID         string    `json:"world_id"`
	Tick            uint64    `json:"tick"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	Points          [][2]uint `json:"points"`
}
