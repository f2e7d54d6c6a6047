package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// relayMeasurement is the measurement name for relay points.
const relayMeasurement = "relay"

// WriteRelay records one relay attempt:
//
//	relay,direction=broker_to_chat,result=ok bytes=62i
//
// direction and result are low-cardinality tags; bytes is the payload
// size. The write is non-blocking and dropped silently when the client is
// closed.
func (c *Client) WriteRelay(direction, result string, bytes int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		relayMeasurement,
		map[string]string{
			"direction": direction,
			"result":    result,
		},
		map[string]interface{}{
			"bytes": int64(bytes),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
